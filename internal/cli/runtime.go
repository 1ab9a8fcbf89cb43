package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"email-task-extractor/internal/ai"
	"email-task-extractor/internal/config"
	"email-task-extractor/internal/metrics"
	"email-task-extractor/internal/pipeline"
	"email-task-extractor/internal/routing"
	"email-task-extractor/internal/store"
)

// extractorFactory builds the extractor used by commands that call the model.
var extractorFactory = (*config.Config).Extractor

type runtime struct {
	cfg     *config.Config
	routing routing.Config
	db      *store.Database
	cache   *ai.CachedExtractor
	printer *Printer
}

func loadRuntime(cmd *cobra.Command, opts *rootOptions) (*runtime, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Log.ApplyLogging(); err != nil {
		return nil, err
	}
	logrus.SetOutput(cmd.ErrOrStderr())

	rc, err := cfg.RoutingConfig()
	if err != nil {
		return nil, err
	}
	return &runtime{
		cfg:     cfg,
		routing: rc,
		printer: NewPrinter(cmd.OutOrStdout(), opts.noColor),
	}, nil
}

func (rt *runtime) openStore(opts *rootOptions) error {
	if opts.noHistory || rt.cfg.Store.Disabled {
		return nil
	}
	path := rt.cfg.Store.Path
	if strings.TrimSpace(opts.dbPath) != "" {
		path = opts.dbPath
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create history directory: %w", err)
		}
	}
	db, err := store.Open(path, rt.cfg.Store.Silent)
	if err != nil {
		return err
	}
	rt.db = db
	return nil
}

func (rt *runtime) processor(opts *rootOptions) (*pipeline.Processor, error) {
	extractor, err := extractorFactory(rt.cfg)
	if err != nil {
		if errors.Is(err, ai.ErrDisabled) {
			return nil, fmt.Errorf("%w: set ANTHROPIC_API_KEY or OPENAI_API_KEY (run `taskx check`)", err)
		}
		return nil, err
	}
	if cached, ok := extractor.(*ai.CachedExtractor); ok {
		rt.cache = cached
	}
	if err := rt.openStore(opts); err != nil {
		return nil, err
	}
	options := pipeline.Options{Routing: rt.routing, Metrics: metrics.Prometheus{}}
	if rt.db != nil {
		options.Store = rt.db
	}
	return pipeline.New(extractor, options)
}

func (rt *runtime) Close() {
	if rt.cache != nil {
		rt.cache.Close()
	}
	if rt.db != nil {
		_ = rt.db.Close()
	}
}
