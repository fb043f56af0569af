package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/acquire-pipeline/internal/faults"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Perplexity PerplexityConfig `yaml:"perplexity" mapstructure:"perplexity"`
	Notion     NotionConfig     `yaml:"notion" mapstructure:"notion"`
	Salesforce SalesforceConfig `yaml:"salesforce" mapstructure:"salesforce"`
	Scoring    ScoringConfig    `yaml:"scoring" mapstructure:"scoring"`
	FollowUp   FollowUpConfig   `yaml:"followup" mapstructure:"followup"`
	Research   ResearchConfig   `yaml:"research" mapstructure:"research"`
	Jobs       JobsConfig       `yaml:"jobs" mapstructure:"jobs"`
	Intake     IntakeConfig     `yaml:"intake" mapstructure:"intake"`
	Pipeline   PipelineConfig   `yaml:"pipeline" mapstructure:"pipeline"`
	Batch      BatchConfig      `yaml:"batch" mapstructure:"batch"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Retry      RetryConfig      `yaml:"retry" mapstructure:"retry"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// AnthropicConfig holds Anthropic API settings for the extraction,
// evaluation, and synthesis capabilities.
type AnthropicConfig struct {
	Key            string `yaml:"key" mapstructure:"key"`
	ExtractModel   string `yaml:"extract_model" mapstructure:"extract_model"`
	EvaluateModel  string `yaml:"evaluate_model" mapstructure:"evaluate_model"`
	SynthesisModel string `yaml:"synthesis_model" mapstructure:"synthesis_model"`
	MaxTokens      int    `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// PerplexityConfig holds settings for the web-research capability.
type PerplexityConfig struct {
	Key            string  `yaml:"key" mapstructure:"key"`
	BaseURL        string  `yaml:"base_url" mapstructure:"base_url"`
	Model          string  `yaml:"model" mapstructure:"model"`
	RequestsPerSec float64 `yaml:"requests_per_sec" mapstructure:"requests_per_sec"`
}

// NotionConfig holds deal-desk sync credentials.
type NotionConfig struct {
	Token  string `yaml:"token" mapstructure:"token"`
	DealDB string `yaml:"deal_db" mapstructure:"deal_db"`
}

// SalesforceConfig holds CRM writeback JWT auth settings.
type SalesforceConfig struct {
	ClientID string `yaml:"client_id" mapstructure:"client_id"`
	Username string `yaml:"username" mapstructure:"username"`
	KeyPath  string `yaml:"key_path" mapstructure:"key_path"`
	LoginURL string `yaml:"login_url" mapstructure:"login_url"`
}

// ScoringConfig holds the component weight table and trust penalty table.
// Both are validated at startup; an invalid table is fatal.
type ScoringConfig struct {
	Weights        map[string]float64 `yaml:"weights" mapstructure:"weights"`
	TrustPenalties map[string]float64 `yaml:"trust_penalties" mapstructure:"trust_penalties"`
}

// FollowUpConfig configures question generation.
type FollowUpConfig struct {
	PolicyPath string `yaml:"policy_path" mapstructure:"policy_path"` // optional YAML rule/template overrides
}

// ResearchConfig configures the deep-research orchestration.
type ResearchConfig struct {
	PromptVersion    string `yaml:"prompt_version" mapstructure:"prompt_version"`
	AgentTimeoutSecs int    `yaml:"agent_timeout_secs" mapstructure:"agent_timeout_secs"`
}

// JobsConfig configures the async job tracker.
type JobsConfig struct {
	Workers       int `yaml:"workers" mapstructure:"workers"`
	RetentionMins int `yaml:"retention_mins" mapstructure:"retention_mins"`
}

// IntakeConfig configures listing ingestion transports.
type IntakeConfig struct {
	HTTPTimeoutSecs int `yaml:"http_timeout_secs" mapstructure:"http_timeout_secs"`
	FTPTimeoutSecs  int `yaml:"ftp_timeout_secs" mapstructure:"ftp_timeout_secs"`
}

// PipelineConfig configures listing evaluation.
type PipelineConfig struct {
	PromptVersion       string `yaml:"prompt_version" mapstructure:"prompt_version"`
	ExtractTimeoutSecs  int    `yaml:"extract_timeout_secs" mapstructure:"extract_timeout_secs"`
	EvaluateTimeoutSecs int    `yaml:"evaluate_timeout_secs" mapstructure:"evaluate_timeout_secs"`
}

// BatchConfig configures batch processing.
type BatchConfig struct {
	MaxConcurrentListings int `yaml:"max_concurrent_listings" mapstructure:"max_concurrent_listings"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// RetryConfig bounds retries of transient external-capability failures.
type RetryConfig struct {
	MaxAttempts      int `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMS int `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMS     int `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
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
	v.SetEnvPrefix("ACQUIRE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("batch.max_concurrent_listings", 5)
	v.SetDefault("anthropic.extract_model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.evaluate_model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.synthesis_model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.max_tokens", 4096)
	v.SetDefault("perplexity.base_url", "https://api.perplexity.ai")
	v.SetDefault("perplexity.model", "sonar-pro")
	v.SetDefault("perplexity.requests_per_sec", 3)
	v.SetDefault("salesforce.login_url", "https://login.salesforce.com")
	v.SetDefault("scoring.weights", map[string]float64{
		"price_efficiency": 0.20,
		"revenue_quality":  0.15,
		"moat":             0.20,
		"ai_leverage":      0.15,
		"operations":       0.10,
		"risk":             0.10,
		"trust":            0.10,
	})
	v.SetDefault("scoring.trust_penalties", map[string]float64{
		"missing_financials": 25,
		"assumptions":        10,
		"contradictions":     10,
		"requires_followup":  15,
	})
	v.SetDefault("research.prompt_version", "v1")
	v.SetDefault("research.agent_timeout_secs", 120)
	v.SetDefault("jobs.workers", 4)
	v.SetDefault("jobs.retention_mins", 240)
	v.SetDefault("intake.http_timeout_secs", 60)
	v.SetDefault("intake.ftp_timeout_secs", 30)
	v.SetDefault("pipeline.prompt_version", "v1")
	v.SetDefault("pipeline.extract_timeout_secs", 120)
	v.SetDefault("pipeline.evaluate_timeout_secs", 120)
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_backoff_ms", 500)
	v.SetDefault("retry.max_backoff_ms", 10000)

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

// Validate checks structural settings that every command depends on.
// Weight and rule tables are validated by the packages that own them.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "postgres":
		if c.Store.DatabaseURL == "" {
			return faults.NewConfig("store", "postgres driver requires database_url")
		}
	case "sqlite":
		if c.Store.DatabaseURL == "" {
			return faults.NewConfig("store", "sqlite driver requires database_url (file path)")
		}
	default:
		return faults.NewConfig("store", "unknown driver %q", c.Store.Driver)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return faults.NewConfig("server", "port %d out of range", c.Server.Port)
	}
	if c.Jobs.Workers < 1 {
		return faults.NewConfig("jobs", "workers must be at least 1, got %d", c.Jobs.Workers)
	}
	if c.Research.AgentTimeoutSecs <= 0 {
		return faults.NewConfig("research", "agent_timeout_secs must be positive, got %d", c.Research.AgentTimeoutSecs)
	}
	if c.Retry.MaxAttempts < 1 {
		return faults.NewConfig("retry", "max_attempts must be at least 1, got %d", c.Retry.MaxAttempts)
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
