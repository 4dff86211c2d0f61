// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New() to build a Config with defaults.
// - Load layers a YAML file and environment variables over the defaults.
// - External errors are wrapped with this package's sentinels.
package config

import (
	"fmt"
	"runtime"
	"strings"
	"time"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the log encoding: text or json.
	LogFormat string `koanf:"log_format"`

	// LogFile, when set, also writes logs to a rotating file.
	LogFile       string `koanf:"log_file"`
	LogMaxSizeMB  int    `koanf:"log_max_size_mb"`
	LogMaxBackups int    `koanf:"log_max_backups"`
	LogMaxAgeDays int    `koanf:"log_max_age_days"`

	// Addr configures the HTTP listen address, e.g. ":8000".
	Addr string `koanf:"addr"`

	// ModelPath locates the model artifact (JSON or YAML).
	ModelPath string `koanf:"model_path"`

	// WatchModel reloads the artifact when its file changes. Watch reloads
	// always keep the last good artifact.
	WatchModel bool `koanf:"watch_model"`

	// KeepLastGood keeps the previous artifact serving when an explicit
	// reload fails. Off by default: a failed reload leaves the service
	// without a model until a load succeeds.
	KeepLastGood bool `koanf:"keep_last_good"`

	// ClampNegative maps negative predictions to zero.
	ClampNegative bool `koanf:"clamp_negative"`

	// StrictSchema rejects rows missing a column the artifact expects
	// instead of filling it with zero.
	StrictSchema bool `koanf:"strict_schema"`

	// CacheSize bounds the prediction cache. Zero disables it.
	CacheSize int `koanf:"cache_size"`

	// BatchWorkers sets the number of batch prediction workers.
	BatchWorkers int `koanf:"batch_workers"`

	// MaxBatchSize caps the number of requests in one batch.
	MaxBatchSize int `koanf:"max_batch_size"`

	// RateLimitRPS limits prediction routes. Zero disables limiting.
	RateLimitRPS   float64 `koanf:"rate_limit_rps"`
	RateLimitBurst int     `koanf:"rate_limit_burst"`

	// MaxBodyBytes caps request bodies.
	MaxBodyBytes int64 `koanf:"max_body_bytes"`

	// CORSOrigins lists allowed origins; "*" allows any.
	CORSOrigins []string `koanf:"cors_origins"`

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// New creates a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:        "info",
		LogFormat:       "text",
		LogMaxSizeMB:    100,
		LogMaxBackups:   3,
		LogMaxAgeDays:   28,
		Addr:            ":8000",
		ModelPath:       "models/model.json",
		CacheSize:       4096,
		BatchWorkers:    runtime.NumCPU(),
		MaxBatchSize:    500,
		RateLimitBurst:  50,
		MaxBodyBytes:    1 << 20,
		CORSOrigins:     []string{"*"},
		ShutdownTimeout: 15 * time.Second,
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch {
	case strings.TrimSpace(c.Addr) == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case strings.TrimSpace(c.ModelPath) == "":
		return fmt.Errorf("%w: model_path must not be empty", ErrInvalidConfig)
	case c.LogFormat != "text" && c.LogFormat != "json":
		return fmt.Errorf("%w: log_format must be text or json, got %q", ErrInvalidConfig, c.LogFormat)
	case c.CacheSize < 0:
		return fmt.Errorf("%w: cache_size must not be negative", ErrInvalidConfig)
	case c.BatchWorkers < 1:
		return fmt.Errorf("%w: batch_workers must be at least 1", ErrInvalidConfig)
	case c.MaxBatchSize < 1:
		return fmt.Errorf("%w: max_batch_size must be at least 1", ErrInvalidConfig)
	case c.RateLimitRPS < 0:
		return fmt.Errorf("%w: rate_limit_rps must not be negative", ErrInvalidConfig)
	case c.RateLimitRPS > 0 && c.RateLimitBurst < 1:
		return fmt.Errorf("%w: rate_limit_burst must be at least 1 when rate limiting", ErrInvalidConfig)
	case c.MaxBodyBytes < 0:
		return fmt.Errorf("%w: max_body_bytes must not be negative", ErrInvalidConfig)
	case c.ShutdownTimeout <= 0:
		return fmt.Errorf("%w: shutdown_timeout must be positive", ErrInvalidConfig)
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("%w: unknown log_level %q", ErrInvalidConfig, c.LogLevel)
	}
	return nil
}
