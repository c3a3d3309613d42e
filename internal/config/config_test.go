package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "anthropic", cfg.LLM.CompletionProvider)
	assert.Equal(t, 60, cfg.LLM.RateLimitPerMinute)
	assert.Equal(t, 30, cfg.LLM.TimeoutSecs)
	assert.Equal(t, 100, cfg.LLM.EmbeddingBatchSize)
	assert.Equal(t, "text-embedding-3-large", cfg.OpenAI.EmbeddingModel)
	assert.Equal(t, "gpt-4o", cfg.OpenAI.ChatModel)
	assert.InDelta(t, 0.8, cfg.Mapping.RuleEarlyExit, 0.001)
	assert.InDelta(t, 0.8, cfg.Mapping.ValidateAbove, 0.001)
	assert.InDelta(t, 0.7, cfg.Mapping.MaterializeMin, 0.001)
	assert.InDelta(t, 0.1, cfg.Mapping.AgreementBonus, 0.001)
	assert.InDelta(t, 0.5, cfg.Mapping.SimilarityThreshold, 0.001)
	assert.Equal(t, 5, cfg.Mapping.MaxMatches)
	assert.Equal(t, 5, cfg.Mapping.MaxSampleValues)
	assert.Equal(t, 2, cfg.Ingest.MaxConcurrentRecords)
	assert.Equal(t, 70, cfg.Ingest.QualityAlertBelow)
	assert.Equal(t, "https://slack.com/api", cfg.Slack.BaseURL)
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
store:
  driver: sqlite
log:
  level: debug
  format: console
server:
  port: 9090
mapping:
  materialize_min: 0.75
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.InDelta(t, 0.75, cfg.Mapping.MaterializeMin, 0.001)
	// Defaults still apply for unset values
	assert.InDelta(t, 0.8, cfg.Mapping.RuleEarlyExit, 0.001)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("ESGHUB_STORE_DRIVER", "postgres")
	t.Setenv("ESGHUB_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	t.Setenv("ESGHUB_LLM_RATE_LIMIT_PER_MINUTE", "10")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.LLM.RateLimitPerMinute)
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// validDefaults returns a Config with all defaults populated for validation tests.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Store.Driver = "postgres"
	cfg.LLM.CompletionProvider = "anthropic"
	cfg.LLM.RateLimitPerMinute = 60
	cfg.Server.Port = 8080
	return cfg
}

func TestValidateMaterialize_AllPresent(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.DatabaseURL = "postgres://localhost/test"
	cfg.Anthropic.Key = "sk-ant-key"
	cfg.OpenAI.Key = "sk-openai"

	assert.NoError(t, cfg.Validate("materialize"))
}

func TestValidateMaterialize_MissingFields(t *testing.T) {
	cfg := validDefaults()

	err := cfg.Validate("materialize")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.database_url is required")
	assert.Contains(t, err.Error(), "anthropic.key is required")
	assert.Contains(t, err.Error(), "openai.key is required")
}

func TestValidateClassify_OpenAIProviderNeedsNoAnthropicKey(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = "sqlite"
	cfg.LLM.CompletionProvider = "openai"
	cfg.OpenAI.Key = "sk-openai"

	assert.NoError(t, cfg.Validate("classify"))
}

func TestValidateClassify_UnknownProvider(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = "sqlite"
	cfg.LLM.CompletionProvider = "cohere"
	cfg.OpenAI.Key = "sk-openai"

	err := cfg.Validate("classify")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "completion_provider")
}

func TestValidateScan_NoLLMNeeded(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.DatabaseURL = "postgres://localhost/test"

	assert.NoError(t, cfg.Validate("scan"))
}

func TestValidateServe_InvalidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = "sqlite"
	cfg.Anthropic.Key = "k"
	cfg.OpenAI.Key = "k"
	cfg.Server.Port = 0

	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.port")
}

func TestValidate_UnknownMode(t *testing.T) {
	cfg := validDefaults()
	err := cfg.Validate("bogus")
	require.Error(t, err)
}

func TestValidate_BadDriver(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = "mysql"

	err := cfg.Validate("store")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.driver")
}
