package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/liamcoop/intakehub/internal/logger"
)

type Config struct {
	Port            string        `mapstructure:"PORT"`
	Env             string        `mapstructure:"ENV"`
	DatabaseURL     string        `mapstructure:"DATABASE_URL"`
	LogLevel        string        `mapstructure:"LOG_LEVEL"`
	LogFormat       string        `mapstructure:"LOG_FORMAT"`
	ErrorSampleRate int           `mapstructure:"ERROR_SAMPLE_RATE"`
	ConditionEngine string        `mapstructure:"CONDITION_ENGINE"`
	NotifyWorkers   int           `mapstructure:"NOTIFY_WORKERS"`
	NotifyQueueSize int           `mapstructure:"NOTIFY_QUEUE_SIZE"`
	RulesCacheTTL   time.Duration `mapstructure:"RULES_CACHE_TTL"`
	RequestTimeout  time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	ShutdownTimeout time.Duration `mapstructure:"SHUTDOWN_TIMEOUT"`
	MigrationsPath  string        `mapstructure:"MIGRATIONS_PATH"`
	SeedDefaults    bool          `mapstructure:"SEED_DEFAULTS"`
}

// Condition engines selectable with CONDITION_ENGINE.
const (
	EngineNative = "native"
	EngineCEL    = "cel"
)

var defaults = map[string]any{
	"PORT":              "8080",
	"ENV":               "development",
	"DATABASE_URL":      "",
	"LOG_LEVEL":         "INFO",
	"LOG_FORMAT":        "json",
	"ERROR_SAMPLE_RATE": 1,
	"CONDITION_ENGINE":  EngineNative,
	"NOTIFY_WORKERS":    4,
	"NOTIFY_QUEUE_SIZE": 256,
	"RULES_CACHE_TTL":   "0s",
	"REQUEST_TIMEOUT":   "60s",
	"SHUTDOWN_TIMEOUT":  "30s",
	"MIGRATIONS_PATH":   "migrations",
	"SEED_DEFAULTS":     true,
}

// Load reads configuration from the environment and an optional .env file
// in the working directory. Environment variables win over the file.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	for key, value := range defaults {
		v.SetDefault(key, value)
		// Bind env vars explicitly so Unmarshal picks them up
		_ = v.BindEnv(key)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.ConditionEngine = strings.ToLower(strings.TrimSpace(cfg.ConditionEngine))
	cfg.LogFormat = strings.ToLower(strings.TrimSpace(cfg.LogFormat))
	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// UsesPostgres reports whether DATABASE_URL selects the PostgreSQL stores.
func (c *Config) UsesPostgres() bool {
	return strings.TrimSpace(c.DatabaseURL) != ""
}

// Addr is the HTTP listen address.
func (c *Config) Addr() string {
	return ":" + c.Port
}

// Validate rejects settings the server cannot start with.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT is required")
	}
	if _, err := logger.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("LOG_LEVEL: %w", err)
	}
	if c.LogFormat != "json" && c.LogFormat != "text" {
		return fmt.Errorf("LOG_FORMAT must be \"json\" or \"text\", got %q", c.LogFormat)
	}
	if c.ConditionEngine != EngineNative && c.ConditionEngine != EngineCEL {
		return fmt.Errorf("CONDITION_ENGINE must be %q or %q, got %q", EngineNative, EngineCEL, c.ConditionEngine)
	}
	if c.NotifyWorkers <= 0 {
		return fmt.Errorf("NOTIFY_WORKERS must be positive, got %d", c.NotifyWorkers)
	}
	if c.NotifyQueueSize <= 0 {
		return fmt.Errorf("NOTIFY_QUEUE_SIZE must be positive, got %d", c.NotifyQueueSize)
	}
	if c.RulesCacheTTL < 0 {
		return fmt.Errorf("RULES_CACHE_TTL must not be negative")
	}
	return nil
}
