// Package config defines service configuration structures and loading hooks.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/okian/questlog/internal/domain/progression"
	"github.com/okian/questlog/internal/domain/scoring"
)

// Store backends.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// Store selects the persistence backend: memory or postgres.
	Store string `koanf:"store"`

	// DatabaseDSN is the Postgres connection string; required for postgres.
	DatabaseDSN string `koanf:"database_dsn"`

	// PersistenceMaxRetries bounds extra attempts on transient database errors.
	PersistenceMaxRetries int `koanf:"persistence_max_retries"`

	// PersistenceRetryBackoffMS is the linear backoff step between attempts.
	PersistenceRetryBackoffMS int `koanf:"persistence_retry_backoff_ms"`

	// SweepIntervalSeconds is the period of the background deadline sweep.
	SweepIntervalSeconds int `koanf:"sweep_interval_seconds"`

	// SweepConcurrency bounds how many quests one sweep evaluates at once.
	SweepConcurrency int `koanf:"sweep_concurrency"`

	// TierPoints are the base points for tiers 1..5.
	TierPoints []int `koanf:"tier_points"`

	// PerformanceMultipliers maps reviewer labels to point factors.
	PerformanceMultipliers map[string]float64 `koanf:"performance_multipliers"`

	// LevelThresholds holds the minimum points of each level; index i is the
	// floor of level i+1.
	LevelThresholds []int `koanf:"level_thresholds"`

	// ShutdownTimeoutSeconds caps graceful shutdown.
	ShutdownTimeoutSeconds int `koanf:"shutdown_timeout_seconds"`
}

// New creates a Config populated with defaults.
func New() *Config {
	multipliers := make(map[string]float64, len(scoring.DefaultMultipliers))
	for label, factor := range scoring.DefaultMultipliers {
		multipliers[label] = factor
	}
	return &Config{
		LogLevel:                  "info",
		Addr:                      ":9080",
		Store:                     StoreMemory,
		PersistenceMaxRetries:     3,
		PersistenceRetryBackoffMS: 50,
		SweepIntervalSeconds:      60,
		SweepConcurrency:          4,
		TierPoints:                append([]int(nil), scoring.DefaultTierPoints...),
		PerformanceMultipliers:    multipliers,
		LevelThresholds:           append([]int(nil), progression.DefaultThresholds...),
		ShutdownTimeoutSeconds:    15,
	}
}

// SweepInterval returns the sweep period.
func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalSeconds) * time.Second
}

// RetryBackoff returns the persistence retry backoff step.
func (c *Config) RetryBackoff() time.Duration {
	return time.Duration(c.PersistenceRetryBackoffMS) * time.Millisecond
}

// ShutdownTimeout returns the graceful shutdown budget.
func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutSeconds) * time.Second
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch strings.ToLower(strings.TrimSpace(c.LogLevel)) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return invalid("unknown log_level %q", c.LogLevel)
	}
	if strings.TrimSpace(c.Addr) == "" {
		return invalid("addr must not be empty")
	}
	switch c.Store {
	case StoreMemory:
	case StorePostgres:
		if strings.TrimSpace(c.DatabaseDSN) == "" {
			return invalid("store %q requires database_dsn", c.Store)
		}
	default:
		return invalid("unknown store %q", c.Store)
	}
	if c.PersistenceMaxRetries < 0 {
		return invalid("persistence_max_retries must not be negative")
	}
	if c.PersistenceRetryBackoffMS < 0 {
		return invalid("persistence_retry_backoff_ms must not be negative")
	}
	if c.SweepIntervalSeconds <= 0 {
		return invalid("sweep_interval_seconds must be positive")
	}
	if c.SweepConcurrency <= 0 {
		return invalid("sweep_concurrency must be positive")
	}
	if c.ShutdownTimeoutSeconds <= 0 {
		return invalid("shutdown_timeout_seconds must be positive")
	}
	if err := validateTierPoints(c.TierPoints); err != nil {
		return err
	}
	for label, factor := range c.PerformanceMultipliers {
		if _, ok := scoring.CanonicalLabel(label); !ok {
			return invalid("unknown performance label %q", label)
		}
		if factor <= 0 {
			return invalid("performance multiplier for %q must be positive", label)
		}
	}
	if len(c.LevelThresholds) > 0 && !progression.ThresholdTable(c.LevelThresholds).Valid() {
		return invalid("level_thresholds must start at 0 and strictly increase")
	}
	return nil
}

func validateTierPoints(points []int) error {
	if len(points) == 0 {
		return nil
	}
	if len(points) != scoring.MaxTier {
		return invalid("tier_points must list %d values, got %d", scoring.MaxTier, len(points))
	}
	prev := 0
	for i, p := range points {
		if p <= prev {
			return invalid("tier_points[%d] must be greater than %d", i, prev)
		}
		prev = p
	}
	return nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}
