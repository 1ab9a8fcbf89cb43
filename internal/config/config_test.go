package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"email-task-extractor/internal/ai"
	"email-task-extractor/internal/routing"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"ANTHROPIC_API_KEY", "OPENAI_API_KEY", "PORT"} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "anthropic", cfg.AI.Provider)
	assert.Equal(t, "2000", cfg.Server.Port)
	assert.Len(t, cfg.Server.AllowedOrigins, 2)
	assert.Equal(t, "missing", cfg.AI.KeyStatus())

	rc, err := cfg.RoutingConfig()
	require.NoError(t, err)
	assert.Equal(t, routing.DefaultConfig(), rc)
}

func TestLoadFileThenEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "taskx.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
ai:
  provider: openai
  openai_api_key: from-file
  timeout: 15s
routing:
  auto_approve_threshold: 0.8
  vague_terms: [maybe, someday]
server:
  allowed_origins: ["https://tasks.example.com"]
log:
  level: debug
  format: json
`), 0o600))
	t.Setenv("TASKX_ROUTING_URGENT_THRESHOLD", "0.4")
	t.Setenv("TASKX_SERVER_PORT", "9000")
	t.Setenv("PORT", "7000")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "openai", cfg.AI.Provider)
	assert.Equal(t, 15*time.Second, cfg.AI.Timeout)
	assert.Equal(t, "9000", cfg.Server.Port)
	assert.Equal(t, []string{"https://tasks.example.com"}, cfg.Server.AllowedOrigins)

	rc, err := cfg.RoutingConfig()
	require.NoError(t, err)
	assert.Equal(t, 0.8, rc.AutoApproveThreshold)
	assert.Equal(t, 0.4, rc.UrgentThreshold)
	assert.Equal(t, []string{"maybe", "someday"}, rc.VagueTerms)

	primary := cfg.AI.Primary()
	assert.Equal(t, ai.ProviderOpenAI, primary.Provider)
	assert.Equal(t, "from-file", primary.APIKey)
}

func TestLoadEnvFallbacks(t *testing.T) {
	clearEnv(t)
	t.Setenv("ANTHROPIC_API_KEY", APIKeyPlaceholder)
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("PORT", "7000")
	t.Setenv("TASKX_AI_FALLBACK", "openai")
	t.Setenv("TASKX_SERVER_ALLOWED_ORIGINS", "https://a.example.com, https://b.example.com")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "7000", cfg.Server.Port)
	assert.Equal(t, "placeholder", cfg.AI.KeyStatus())
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.Server.AllowedOrigins)

	secondary, ok := cfg.AI.Secondary()
	require.True(t, ok)
	assert.Equal(t, ai.ProviderOpenAI, secondary.Provider)
	assert.Equal(t, "sk-test", secondary.APIKey)
}

func TestLoadRejectsInvalidRouting(t *testing.T) {
	clearEnv(t)
	t.Setenv("TASKX_ROUTING_URGENT_THRESHOLD", "0.9")
	_, err := Load("")
	assert.ErrorIs(t, err, routing.ErrInvalidConfig)
}

func TestLoadMissingFile(t *testing.T) {
	clearEnv(t)
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	bad := Default()
	bad.AI.Provider = "gemini"
	assert.ErrorIs(t, bad.Validate(), ai.ErrUnknownProvider)

	bad = Default()
	bad.Log.Format = "xml"
	assert.Error(t, bad.Validate())

	bad = Default()
	bad.Routing.PenaltyVagueLanguage = -0.1
	assert.ErrorIs(t, bad.Validate(), routing.ErrInvalidConfig)
}

func TestVagueTermsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "terms.json")
	require.NoError(t, os.WriteFile(path, []byte(`["kinda", "sorta"]`), 0o600))
	cfg := Default()
	cfg.Routing.VagueTermsFile = path
	rc, err := cfg.RoutingConfig()
	require.NoError(t, err)
	assert.Equal(t, []string{"kinda", "sorta"}, rc.VagueTerms)
}

func TestApplyLogging(t *testing.T) {
	defer logrus.SetLevel(logrus.InfoLevel)
	defer logrus.SetFormatter(&logrus.TextFormatter{})

	require.NoError(t, LogConfig{Level: "debug", Format: "json"}.ApplyLogging())
	assert.Equal(t, logrus.DebugLevel, logrus.GetLevel())
	_, ok := logrus.StandardLogger().Formatter.(*logrus.JSONFormatter)
	assert.True(t, ok)

	assert.Error(t, LogConfig{Level: "loud"}.ApplyLogging())
}

func TestEnvKey(t *testing.T) {
	assert.Equal(t, "routing.auto_approve_threshold", envKey("TASKX_ROUTING_AUTO_APPROVE_THRESHOLD"))
	assert.Equal(t, "ai.anthropic_api_key", envKey("TASKX_AI_ANTHROPIC_API_KEY"))
	assert.Equal(t, "debug", envKey("TASKX_DEBUG"))
}

func TestExtractorChain(t *testing.T) {
	cfg := Default()
	_, err := cfg.Extractor()
	assert.ErrorIs(t, err, ai.ErrDisabled)

	cfg.AI.AnthropicAPIKey = "key"
	ext, err := cfg.Extractor()
	require.NoError(t, err)
	assert.True(t, ext.Enabled())
	assert.IsType(t, &ai.CachedExtractor{}, ext)
	ext.(*ai.CachedExtractor).Close()

	cfg.Cache.Enabled = false
	cfg.AI.AnthropicAPIKey = ""
	cfg.AI.Fallback = "openai"
	cfg.AI.OpenAIAPIKey = "key"
	ext, err = cfg.Extractor()
	require.NoError(t, err)
	assert.IsType(t, &ai.Client{}, ext)

	cfg.AI.Disabled = true
	_, err = cfg.Extractor()
	assert.ErrorIs(t, err, ai.ErrDisabled)
}
