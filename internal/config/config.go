// Package config loads runtime settings for the CLI and the HTTP server.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"email-task-extractor/internal/ai"
	"email-task-extractor/internal/routing"
)

// APIKeyPlaceholder is the value shipped in example env files.
const APIKeyPlaceholder = "your_api_key_here"

// Config is the full runtime configuration.
type Config struct {
	AI      AIConfig      `koanf:"ai"`
	Routing RoutingConfig `koanf:"routing"`
	Server  ServerConfig  `koanf:"server"`
	Store   StoreConfig   `koanf:"store"`
	Cache   CacheConfig   `koanf:"cache"`
	Log     LogConfig     `koanf:"log"`
	Export  ExportConfig  `koanf:"export"`
}

// AIConfig selects and tunes the extraction model.
type AIConfig struct {
	Provider        string        `koanf:"provider"`
	Fallback        string        `koanf:"fallback"`
	AnthropicAPIKey string        `koanf:"anthropic_api_key"`
	OpenAIAPIKey    string        `koanf:"openai_api_key"`
	Model           string        `koanf:"model"`
	FallbackModel   string        `koanf:"fallback_model"`
	BaseURL         string        `koanf:"base_url"`
	Temperature     float64       `koanf:"temperature"`
	MaxTokens       int           `koanf:"max_tokens"`
	Timeout         time.Duration `koanf:"timeout"`
	RateLimit       float64       `koanf:"rate_limit"`
	MaxRetries      int           `koanf:"max_retries"`
	Disabled        bool          `koanf:"disabled"`
}

// RoutingConfig mirrors routing.Config with flat keys.
type RoutingConfig struct {
	AutoApproveThreshold       float64  `koanf:"auto_approve_threshold"`
	UrgentThreshold            float64  `koanf:"urgent_threshold"`
	PenaltyMissingDeadline     float64  `koanf:"penalty_missing_deadline"`
	PenaltyUnspecifiedAssignee float64  `koanf:"penalty_unspecified_assignee"`
	PenaltyVagueLanguage       float64  `koanf:"penalty_vague_language"`
	VagueTerms                 []string `koanf:"vague_terms"`
	VagueTermsFile             string   `koanf:"vague_terms_file"`
}

// ServerConfig holds HTTP settings.
type ServerConfig struct {
	Port           string   `koanf:"port"`
	AllowedOrigins []string `koanf:"allowed_origins"`
}

// StoreConfig locates the history database.
type StoreConfig struct {
	Path     string `koanf:"path"`
	Silent   bool   `koanf:"silent"`
	Disabled bool   `koanf:"disabled"`
}

// CacheConfig sizes the extraction cache.
type CacheConfig struct {
	Enabled bool          `koanf:"enabled"`
	MaxCost int64         `koanf:"max_cost"`
	TTL     time.Duration `koanf:"ttl"`
}

// LogConfig controls logrus output.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// ExportConfig sets where saved exports land.
type ExportConfig struct {
	Dir string `koanf:"dir"`
}

// Default returns the built-in configuration.
func Default() Config {
	rc := routing.DefaultConfig()
	return Config{
		AI: AIConfig{
			Provider:   string(ai.ProviderAnthropic),
			MaxTokens:  2000,
			Timeout:    60 * time.Second,
			RateLimit:  2,
			MaxRetries: 3,
		},
		Routing: RoutingConfig{
			AutoApproveThreshold:       rc.AutoApproveThreshold,
			UrgentThreshold:            rc.UrgentThreshold,
			PenaltyMissingDeadline:     rc.Penalties.MissingDeadline,
			PenaltyUnspecifiedAssignee: rc.Penalties.UnspecifiedAssignee,
			PenaltyVagueLanguage:       rc.Penalties.VagueLanguage,
		},
		Server: ServerConfig{
			Port: "2000",
			AllowedOrigins: []string{
				"http://localhost:1000",
				"http://127.0.0.1:1000",
			},
		},
		Store: StoreConfig{
			Path:   "data/tasks.db",
			Silent: true,
		},
		Cache: CacheConfig{
			Enabled: true,
			MaxCost: 16 << 20,
			TTL:     time.Hour,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Export: ExportConfig{Dir: "."},
	}
}

// Validate checks every section.
func (c *Config) Validate() error {
	if _, err := c.RoutingConfig(); err != nil {
		return err
	}
	if _, err := parseProvider(c.AI.Provider); err != nil {
		return err
	}
	if strings.TrimSpace(c.AI.Fallback) != "" {
		if _, err := parseProvider(c.AI.Fallback); err != nil {
			return fmt.Errorf("fallback: %w", err)
		}
	}
	if c.AI.Temperature < 0 || c.AI.Temperature > 2 {
		return fmt.Errorf("ai.temperature must be between 0 and 2, got %v", c.AI.Temperature)
	}
	if c.AI.MaxTokens < 0 {
		return fmt.Errorf("ai.max_tokens must not be negative, got %d", c.AI.MaxTokens)
	}
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}
	if c.Cache.Enabled && c.Cache.MaxCost <= 0 {
		return errors.New("cache.max_cost must be positive when the cache is enabled")
	}
	return nil
}

// RoutingConfig builds and validates the engine configuration.
func (c *Config) RoutingConfig() (routing.Config, error) {
	rc := routing.Config{
		AutoApproveThreshold: c.Routing.AutoApproveThreshold,
		UrgentThreshold:      c.Routing.UrgentThreshold,
		Penalties: routing.Penalties{
			MissingDeadline:     c.Routing.PenaltyMissingDeadline,
			UnspecifiedAssignee: c.Routing.PenaltyUnspecifiedAssignee,
			VagueLanguage:       c.Routing.PenaltyVagueLanguage,
		},
		VagueTerms: routing.DefaultVagueTerms(),
	}
	if terms := splitList(c.Routing.VagueTerms); len(terms) > 0 {
		rc.VagueTerms = terms
	}
	if path := strings.TrimSpace(c.Routing.VagueTermsFile); path != "" {
		terms, err := routing.LoadVagueTerms(path)
		if err != nil {
			return routing.Config{}, fmt.Errorf("load vague terms: %w", err)
		}
		rc.VagueTerms = terms
	}
	if err := rc.Validate(); err != nil {
		return routing.Config{}, err
	}
	return rc, nil
}

// APIKey returns the key configured for provider.
func (c *AIConfig) APIKey(provider ai.Provider) string {
	switch provider {
	case ai.ProviderOpenAI:
		return strings.TrimSpace(c.OpenAIAPIKey)
	default:
		return strings.TrimSpace(c.AnthropicAPIKey)
	}
}

// Primary returns the client configuration for the main provider.
func (c *AIConfig) Primary() ai.Config {
	provider, _ := parseProvider(c.Provider)
	return ai.Config{
		Provider:    provider,
		APIKey:      c.APIKey(provider),
		Model:       c.Model,
		BaseURL:     c.BaseURL,
		Temperature: c.Temperature,
		MaxTokens:   c.MaxTokens,
		Timeout:     c.Timeout,
		RateLimit:   c.RateLimit,
		MaxRetries:  c.MaxRetries,
	}
}

// Secondary returns the fallback client configuration, if one is set.
func (c *AIConfig) Secondary() (ai.Config, bool) {
	if strings.TrimSpace(c.Fallback) == "" {
		return ai.Config{}, false
	}
	provider, err := parseProvider(c.Fallback)
	if err != nil {
		return ai.Config{}, false
	}
	return ai.Config{
		Provider:    provider,
		APIKey:      c.APIKey(provider),
		Model:       c.FallbackModel,
		Temperature: c.Temperature,
		MaxTokens:   c.MaxTokens,
		Timeout:     c.Timeout,
		RateLimit:   c.RateLimit,
		MaxRetries:  c.MaxRetries,
	}, true
}

// KeyStatus describes the primary API key for installation checks.
func (c *AIConfig) KeyStatus() string {
	provider, _ := parseProvider(c.Provider)
	key := c.APIKey(provider)
	switch {
	case key == "":
		return "missing"
	case key == APIKeyPlaceholder:
		return "placeholder"
	default:
		return "set"
	}
}

// ApplyLogging configures the global logrus logger.
func (c LogConfig) ApplyLogging() error {
	level, err := logrus.ParseLevel(c.Level)
	if err != nil {
		return err
	}
	logrus.SetLevel(level)
	if strings.EqualFold(c.Format, "json") {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return nil
}

func parseProvider(value string) (ai.Provider, error) {
	switch ai.Provider(strings.ToLower(strings.TrimSpace(value))) {
	case "", ai.ProviderAnthropic:
		return ai.ProviderAnthropic, nil
	case ai.ProviderOpenAI:
		return ai.ProviderOpenAI, nil
	default:
		return "", fmt.Errorf("%w: %q", ai.ErrUnknownProvider, value)
	}
}

func splitList(values []string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
