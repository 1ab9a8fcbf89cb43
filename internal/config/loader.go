package config

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix namespaces environment overrides.
const EnvPrefix = "TASKX_"

const maxConfigFileSize = 1024 * 1024

// Load reads configuration in order of increasing precedence:
// built-in defaults, the optional YAML file at path, then TASKX_* environment
// variables. TASKX_ROUTING_AUTO_APPROVE_THRESHOLD maps to routing.auto_approve_threshold.
// ANTHROPIC_API_KEY, OPENAI_API_KEY and PORT are honoured when the namespaced
// keys are unset.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path = strings.TrimSpace(path); path != "" {
		content, err := readConfigFile(path)
		if err != nil {
			return nil, err
		}
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load environment variables: %w", err)
	}

	cfg := Default()
	defaultOrigins := cfg.Server.AllowedOrigins
	cfg.Server.AllowedOrigins = nil
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	applyEnvFallbacks(&cfg)
	cfg.Server.AllowedOrigins = splitList(cfg.Server.AllowedOrigins)
	if !k.Exists("server.allowed_origins") {
		cfg.Server.AllowedOrigins = defaultOrigins
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// envKey maps TASKX_SECTION_FIELD_NAME to section.field_name.
func envKey(s string) string {
	lower := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	parts := strings.SplitN(lower, "_", 2)
	if len(parts) == 1 {
		return lower
	}
	return parts[0] + "." + parts[1]
}

func applyEnvFallbacks(cfg *Config) {
	if cfg.AI.AnthropicAPIKey == "" {
		cfg.AI.AnthropicAPIKey = strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY"))
	}
	if cfg.AI.OpenAIAPIKey == "" {
		cfg.AI.OpenAIAPIKey = strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
	}
	if _, ok := os.LookupEnv(EnvPrefix + "SERVER_PORT"); !ok {
		if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
			cfg.Server.Port = port
		}
	}
}

func readConfigFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat config file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("config path %s is a directory", path)
	}
	if info.Size() > maxConfigFileSize {
		return nil, fmt.Errorf("config file %s exceeds %d bytes", path, maxConfigFileSize)
	}
	content, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return content, nil
}
