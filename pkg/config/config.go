package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config is the worker configuration surface. Zero values fall back to
// the defaults in Default.
type Config struct {
	// Address is the listen address for the host runner.
	Address string `yaml:"address"`

	// Workers is the number of worker instances the host runs.
	Workers int `yaml:"workers"`

	// MemoryLimit is the per-worker memory ceiling as a limit string
	// ("128M", "2G", "unlimited"). Empty means re-derive from the runtime.
	MemoryLimit string `yaml:"memory_limit"`

	// PersistentComponents lists component IDs exempt from per-request
	// recreation.
	PersistentComponents []string `yaml:"persistent_components"`

	// RedisURL switches sessions to the Redis store when set.
	RedisURL string `yaml:"redis_url"`

	// DatabaseURL switches sessions to the Postgres store when set.
	// Takes precedence over RedisURL.
	DatabaseURL string `yaml:"database_url"`

	// CookieValidationKey enables integrity-validated cookies when set.
	// Must be at least 32 bytes.
	CookieValidationKey string `yaml:"cookie_validation_key"`

	// SessionCookie is the session cookie name.
	SessionCookie string `yaml:"session_cookie"`

	// MethodParam is the body field checked for a method override.
	MethodParam string `yaml:"method_param"`

	// Debug enables stack traces and server-parameter dumps in error
	// responses. Secrets are redacted from the dump even in debug mode.
	Debug bool `yaml:"debug"`

	// FlushLogs flushes buffered log targets after every request
	// instead of relying on buffering across requests.
	FlushLogs bool `yaml:"flush_logs"`

	// Sentry configures the optional Sentry log destination.
	Sentry SentryConfig `yaml:"sentry"`
}

// SentryConfig holds the Sentry log destination settings.
type SentryConfig struct {
	DSN         string `yaml:"dsn"`
	Environment string `yaml:"environment"`
}

// Default returns the configuration defaults.
func Default() *Config {
	return &Config{
		Address:       ":8080",
		Workers:       1,
		SessionCookie: "__sid",
		MethodParam:   "_method",
	}
}

// Load reads a YAML configuration file and applies BRIDGE_* environment
// overrides on top. A missing path returns defaults with env overrides
// only.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	applyEnv(cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("BRIDGE_ADDRESS"); v != "" {
		cfg.Address = v
	}
	if v := os.Getenv("BRIDGE_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Workers = n
		}
	}
	if v := os.Getenv("BRIDGE_MEMORY_LIMIT"); v != "" {
		cfg.MemoryLimit = v
	}
	if v := os.Getenv("BRIDGE_REDIS_URL"); v != "" {
		cfg.RedisURL = v
	}
	if v := os.Getenv("BRIDGE_DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("BRIDGE_COOKIE_VALIDATION_KEY"); v != "" {
		cfg.CookieValidationKey = v
	}
	if v := os.Getenv("BRIDGE_SESSION_COOKIE"); v != "" {
		cfg.SessionCookie = v
	}
	if v := os.Getenv("BRIDGE_DEBUG"); v != "" {
		cfg.Debug = v == "1" || v == "true"
	}
	if v := os.Getenv("BRIDGE_FLUSH_LOGS"); v != "" {
		cfg.FlushLogs = v == "1" || v == "true"
	}
	if v := os.Getenv("BRIDGE_SENTRY_DSN"); v != "" {
		cfg.Sentry.DSN = v
	}
	if v := os.Getenv("BRIDGE_SENTRY_ENVIRONMENT"); v != "" {
		cfg.Sentry.Environment = v
	}
}
