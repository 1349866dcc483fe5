package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Environment variables read by Load.
const (
	EnvPrefix     = "QUESTLOG_"
	EnvConfigFile = "QUESTLOG_CONFIG"
)

// listKeys are decoded from comma-separated env values.
var listKeys = map[string]bool{
	"tier_points":      true,
	"level_thresholds": true,
}

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New())
//  2. file (YAML) if QUESTLOG_CONFIG is set
//  3. env (prefix QUESTLOG_)
//
// Map-valued keys such as performance_multipliers can only be set from the
// file. List-valued keys accept comma-separated env values.
func Load(_ context.Context) (*Config, error) {
	base := New()

	k := koanf.New(".")

	if path := os.Getenv(EnvConfigFile); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: read %s: %w", ErrLoadConfig, path, err)
		}
	}

	// QUESTLOG_SWEEP_CONCURRENCY -> sweep_concurrency. Underscores are kept
	// to match the flat koanf tags on the struct.
	envProvider := env.ProviderWithValue(EnvPrefix, ".", func(key, value string) (string, interface{}) {
		key = strings.TrimPrefix(strings.ToLower(key), strings.ToLower(EnvPrefix))
		if listKeys[key] {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			return key, parts
		}
		return key, value
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: env: %w", ErrLoadConfig, err)
	}

	cfg := *base
	// Lists and maps from the file replace the defaults rather than merge.
	if k.Exists("tier_points") {
		cfg.TierPoints = nil
	}
	if k.Exists("performance_multipliers") {
		cfg.PerformanceMultipliers = nil
	}
	if k.Exists("level_thresholds") {
		cfg.LevelThresholds = nil
	}
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: decode: %w", ErrLoadConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
