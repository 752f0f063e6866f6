package config

import (
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/rlpride/dpc-health-insurance-lead-generation-system/internal/scorer"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Salesforce SalesforceConfig `yaml:"salesforce" mapstructure:"salesforce"`
	Queue      QueueConfig      `yaml:"queue" mapstructure:"queue"`
	CRM        CRMConfig        `yaml:"crm" mapstructure:"crm"`
	Retry      RetryConfig      `yaml:"retry" mapstructure:"retry"`
	Breaker    BreakerConfig    `yaml:"breaker" mapstructure:"breaker"`
	Batch      BatchConfig      `yaml:"batch" mapstructure:"batch"`
	Experiment ExperimentConfig `yaml:"experiment" mapstructure:"experiment"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
	Scoring    scorer.Config    `yaml:"scoring" mapstructure:"scoring"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	SQLitePath  string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
}

// SalesforceConfig holds Salesforce JWT auth settings.
type SalesforceConfig struct {
	ClientID  string  `yaml:"client_id" mapstructure:"client_id"`
	Username  string  `yaml:"username" mapstructure:"username"`
	KeyPath   string  `yaml:"key_path" mapstructure:"key_path"`
	LoginURL  string  `yaml:"login_url" mapstructure:"login_url"`
	RateLimit float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
	RateBurst int     `yaml:"rate_burst" mapstructure:"rate_burst"`
}

// QueueConfig configures the Redis-backed task queue.
type QueueConfig struct {
	RedisURL    string `yaml:"redis_url" mapstructure:"redis_url"`
	Name        string `yaml:"name" mapstructure:"name"`
	Concurrency int    `yaml:"concurrency" mapstructure:"concurrency"`
	MaxRetry    int    `yaml:"max_retry" mapstructure:"max_retry"`
}

// CRMConfig controls which leads are pushed to the CRM.
type CRMConfig struct {
	SyncThreshold int    `yaml:"sync_threshold" mapstructure:"sync_threshold"`
	LeadSource    string `yaml:"lead_source" mapstructure:"lead_source"`
}

// RetryConfig configures retries of the score-persist-enqueue unit of work.
type RetryConfig struct {
	MaxAttempts      int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	Multiplier       float64 `yaml:"multiplier" mapstructure:"multiplier"`
	JitterFraction   float64 `yaml:"jitter_fraction" mapstructure:"jitter_fraction"`
}

// BreakerConfig configures the circuit breaker around CRM calls.
type BreakerConfig struct {
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
}

// BatchConfig configures batch scoring.
type BatchConfig struct {
	Limit          int `yaml:"limit" mapstructure:"limit"`
	Concurrency    int `yaml:"concurrency" mapstructure:"concurrency"`
	StaleAfterDays int `yaml:"stale_after_days" mapstructure:"stale_after_days"`
}

// ExperimentConfig holds analysis defaults.
type ExperimentConfig struct {
	ConfidenceLevel float64 `yaml:"confidence_level" mapstructure:"confidence_level"`
	Strategy        string  `yaml:"strategy" mapstructure:"strategy"`
	WindowDays      int     `yaml:"window_days" mapstructure:"window_days"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from .env, config.yaml and LEADSCORE_* environment
// variables, in increasing order of precedence. Scoring tables start from
// scorer.DefaultConfig; a list or map given under "scoring" replaces the
// default one rather than merging into it. Variant names are case-insensitive
// and are stored lowercase, since viper lowercases map keys.
func Load() (*Config, error) {
	// .env is optional.
	_ = godotenv.Load()

	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("LEADSCORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.sqlite_path", "leadscore.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("batch.limit", 100)
	v.SetDefault("batch.concurrency", 8)
	v.SetDefault("batch.stale_after_days", 7)
	v.SetDefault("queue.redis_url", "redis://localhost:6379/0")
	v.SetDefault("queue.name", "crm")
	v.SetDefault("queue.concurrency", 5)
	v.SetDefault("queue.max_retry", 5)
	v.SetDefault("crm.sync_threshold", 80)
	v.SetDefault("crm.lead_source", "Lead Scoring Engine")
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_backoff_ms", 200)
	v.SetDefault("retry.max_backoff_ms", 5000)
	v.SetDefault("retry.multiplier", 2.0)
	v.SetDefault("retry.jitter_fraction", 0.25)
	v.SetDefault("breaker.failure_threshold", 5)
	v.SetDefault("breaker.reset_timeout_secs", 30)
	v.SetDefault("experiment.confidence_level", 0.95)
	v.SetDefault("experiment.strategy", "threshold")
	v.SetDefault("experiment.window_days", 30)
	v.SetDefault("salesforce.login_url", "https://login.salesforce.com")
	v.SetDefault("salesforce.rate_limit", 20.0)
	v.SetDefault("salesforce.rate_burst", 5)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	cfg := Config{Scoring: scorer.DefaultConfig()}
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.ZeroFields = true
	}); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	normalizeVariantNames(&cfg.Scoring.ABTest)

	if err := scorer.ValidateConfig(cfg.Scoring); err != nil {
		return nil, eris.Wrap(err, "config: scoring")
	}

	return &cfg, nil
}

func normalizeVariantNames(ab *scorer.ABTestConfig) {
	ab.Control = strings.ToLower(ab.Control)
	for i := range ab.Traffic {
		ab.Traffic[i].Variant = strings.ToLower(ab.Traffic[i].Variant)
	}
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
