package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	OpenAI    OpenAIConfig    `yaml:"openai" mapstructure:"openai"`
	LLM       LLMConfig       `yaml:"llm" mapstructure:"llm"`
	Mapping   MappingConfig   `yaml:"mapping" mapstructure:"mapping"`
	Ingest    IngestConfig    `yaml:"ingest" mapstructure:"ingest"`
	Slack     SlackConfig     `yaml:"slack" mapstructure:"slack"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// OpenAIConfig holds OpenAI API settings. OpenAI always serves embeddings and
// optionally serves completions.
type OpenAIConfig struct {
	Key            string `yaml:"key" mapstructure:"key"`
	BaseURL        string `yaml:"base_url" mapstructure:"base_url"`
	ChatModel      string `yaml:"chat_model" mapstructure:"chat_model"`
	EmbeddingModel string `yaml:"embedding_model" mapstructure:"embedding_model"`
	MaxTokens      int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// LLMConfig controls provider selection and self-imposed limits.
type LLMConfig struct {
	CompletionProvider string  `yaml:"completion_provider" mapstructure:"completion_provider"`
	RateLimitPerMinute int     `yaml:"rate_limit_per_minute" mapstructure:"rate_limit_per_minute"`
	TimeoutSecs        int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	EmbeddingBatchSize int     `yaml:"embedding_batch_size" mapstructure:"embedding_batch_size"`
	RetryAttempts      int     `yaml:"retry_attempts" mapstructure:"retry_attempts"`
	Temperature        float64 `yaml:"temperature" mapstructure:"temperature"`
}

// MappingConfig holds the column-to-KPI confidence thresholds.
type MappingConfig struct {
	RuleEarlyExit       float64 `yaml:"rule_early_exit" mapstructure:"rule_early_exit"`
	ValidateAbove       float64 `yaml:"validate_above" mapstructure:"validate_above"`
	MaterializeMin      float64 `yaml:"materialize_min" mapstructure:"materialize_min"`
	AgreementBonus      float64 `yaml:"agreement_bonus" mapstructure:"agreement_bonus"`
	SimilarityThreshold float64 `yaml:"similarity_threshold" mapstructure:"similarity_threshold"`
	MaxMatches          int     `yaml:"max_matches" mapstructure:"max_matches"`
	MaxSampleValues     int     `yaml:"max_sample_values" mapstructure:"max_sample_values"`
}

// IngestConfig configures raw batch processing.
type IngestConfig struct {
	MaxConcurrentRecords int `yaml:"max_concurrent_records" mapstructure:"max_concurrent_records"`
	QualitySampleRows    int `yaml:"quality_sample_rows" mapstructure:"quality_sample_rows"`
	QualityAlertBelow    int `yaml:"quality_alert_below" mapstructure:"quality_alert_below"`
	MaxRows              int `yaml:"max_rows" mapstructure:"max_rows"`
}

// SlackConfig holds chat-ops notifier settings.
type SlackConfig struct {
	BotToken  string `yaml:"bot_token" mapstructure:"bot_token"`
	ChannelID string `yaml:"channel_id" mapstructure:"channel_id"`
	BaseURL   string `yaml:"base_url" mapstructure:"base_url"`
}

// ServerConfig configures the HTTP trigger server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	CronSecret     string   `yaml:"cron_secret" mapstructure:"cron_secret"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	MaxBodyBytes   int64    `yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("ESGHUB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.max_body_bytes", 10<<20)
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 500)
	v.SetDefault("openai.chat_model", "gpt-4o")
	v.SetDefault("openai.embedding_model", "text-embedding-3-large")
	v.SetDefault("openai.max_tokens", 500)
	v.SetDefault("llm.completion_provider", "anthropic")
	v.SetDefault("llm.rate_limit_per_minute", 60)
	v.SetDefault("llm.timeout_secs", 30)
	v.SetDefault("llm.embedding_batch_size", 100)
	v.SetDefault("llm.retry_attempts", 3)
	v.SetDefault("llm.temperature", 0.1)
	v.SetDefault("mapping.rule_early_exit", 0.8)
	v.SetDefault("mapping.validate_above", 0.8)
	v.SetDefault("mapping.materialize_min", 0.7)
	v.SetDefault("mapping.agreement_bonus", 0.1)
	v.SetDefault("mapping.similarity_threshold", 0.5)
	v.SetDefault("mapping.max_matches", 5)
	v.SetDefault("mapping.max_sample_values", 5)
	v.SetDefault("ingest.max_concurrent_records", 2)
	v.SetDefault("ingest.quality_sample_rows", 10)
	v.SetDefault("ingest.quality_alert_below", 70)
	v.SetDefault("ingest.max_rows", 50000)
	v.SetDefault("slack.base_url", "https://slack.com/api")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks that the settings required by the given command mode are
// present. Modes: "serve", "materialize", "classify", "scan", "store".
func (c *Config) Validate(mode string) error {
	var errs []string

	needLLM := false
	switch mode {
	case "serve", "materialize", "classify":
		needLLM = true
	case "scan", "store":
	default:
		return eris.Errorf("config: unknown validation mode %q", mode)
	}

	switch c.Store.Driver {
	case "postgres":
		if c.Store.DatabaseURL == "" {
			errs = append(errs, "store.database_url is required")
		}
	case "sqlite":
	default:
		errs = append(errs, "store.driver must be postgres or sqlite")
	}

	if needLLM {
		switch c.LLM.CompletionProvider {
		case "anthropic":
			if c.Anthropic.Key == "" {
				errs = append(errs, "anthropic.key is required")
			}
		case "openai":
		default:
			errs = append(errs, "llm.completion_provider must be anthropic or openai")
		}
		if c.OpenAI.Key == "" {
			errs = append(errs, "openai.key is required")
		}
		if c.LLM.RateLimitPerMinute <= 0 {
			errs = append(errs, "llm.rate_limit_per_minute must be positive")
		}
	}

	if mode == "serve" {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, "server.port must be between 1 and 65535")
		}
		if c.Server.CronSecret == "" {
			zap.L().Warn("config: server.cron_secret not set, cron endpoint disabled")
		}
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
