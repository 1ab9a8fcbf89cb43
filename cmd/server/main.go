package main

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"email-task-extractor/internal/ai"
	"email-task-extractor/internal/api"
	"email-task-extractor/internal/config"
)

func main() {
	cfg, err := config.Load(os.Getenv("TASKX_CONFIG"))
	if err != nil {
		logrus.Fatalf("load config: %v", err)
	}
	if err := cfg.Log.ApplyLogging(); err != nil {
		logrus.Fatalf("configure logging: %v", err)
	}

	if dir := filepath.Dir(cfg.Store.Path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			logrus.Fatalf("create data directory: %v", err)
		}
	}

	routingCfg, err := cfg.RoutingConfig()
	if err != nil {
		logrus.Fatalf("routing config: %v", err)
	}

	extractor, err := cfg.Extractor()
	if err != nil && !errors.Is(err, ai.ErrDisabled) {
		logrus.Fatalf("configure extractor: %v", err)
	}
	if closer, ok := extractor.(*ai.CachedExtractor); ok {
		defer closer.Close()
	}

	server, err := api.NewServer(api.Config{
		DBPath:         cfg.Store.Path,
		SilentDB:       cfg.Store.Silent,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Routing:        routingCfg,
		Extractor:      extractor,
		RequestTimeout: cfg.AI.Timeout * 2,
	})
	if err != nil {
		logrus.Fatalf("create server: %v", err)
	}
	defer server.Close()

	router, err := server.Router()
	if err != nil {
		logrus.Fatalf("configure router: %v", err)
	}

	port := strings.TrimSpace(cfg.Server.Port)
	if port == "" {
		port = "2000"
	}

	logrus.Infof("starting email task extractor on :%s (provider %s)", port, cfg.AI.Provider)
	if err := router.Run(":" + port); err != nil {
		logrus.Fatalf("server exited: %v", err)
	}
}
