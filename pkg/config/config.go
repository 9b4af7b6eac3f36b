// Package config reads the service configuration from the environment.
// One struct, one Process call; every knob has a default except the
// storage URL, so a bare `DATABASE_URL=... radiolocate` runs.
package config

import (
	"fmt"
	"strings"

	"github.com/kelseyhightower/envconfig"

	"radiolocate/pkg/database"
)

// Config is the full runtime configuration.
//
// AuthToken may stay empty: the server then refuses the authenticated
// endpoints and only ingests through the legacy path.
type Config struct {
	BindAddr             string  `envconfig:"BIND_ADDR" default:":8080"`
	DatabaseURL          string  `envconfig:"DATABASE_URL" required:"true"`
	AuthToken            string  `envconfig:"AUTH_TOKEN"`
	RetainDays           int     `envconfig:"RETAIN_DAYS" default:"120"`
	PartitionHorizonDays int     `envconfig:"PARTITION_HORIZON_DAYS" default:"7"`
	WorkerBatch          int     `envconfig:"WORKER_BATCH" default:"256"`
	WorkerConcurrency    int     `envconfig:"WORKER_CONCURRENCY" default:"2"`
	GNSSMaxAccuracyM     float64 `envconfig:"GNSS_MAX_ACCURACY_M" default:"200"`
	Domain               string  `envconfig:"DOMAIN"`
	DefaultStrengthDBm   float64 `envconfig:"DEFAULT_STRENGTH_DBM" default:"-90"`
}

// Load parses the environment and validates the result.
func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("read environment: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	for _, check := range []struct {
		name  string
		value int
	}{
		{"RETAIN_DAYS", c.RetainDays},
		{"PARTITION_HORIZON_DAYS", c.PartitionHorizonDays},
		{"WORKER_BATCH", c.WorkerBatch},
		{"WORKER_CONCURRENCY", c.WorkerConcurrency},
	} {
		if check.value < 1 {
			return fmt.Errorf("%s must be at least 1, got %d", check.name, check.value)
		}
	}
	if c.GNSSMaxAccuracyM <= 0 {
		return fmt.Errorf("GNSS_MAX_ACCURACY_M must be positive, got %v", c.GNSSMaxAccuracyM)
	}
	if _, err := c.DatabaseConfig(); err != nil {
		return err
	}
	return nil
}

// DatabaseConfig splits DATABASE_URL into the engine selector and the
// DSN the driver expects. postgres:// and postgresql:// pick the pgx
// engine with the URL passed through untouched; anything else is treated
// as an sqlite path, including file: URIs.
func (c Config) DatabaseConfig() (database.Config, error) {
	raw := strings.TrimSpace(c.DatabaseURL)
	if raw == "" {
		return database.Config{}, fmt.Errorf("DATABASE_URL is empty")
	}

	lower := strings.ToLower(raw)
	switch {
	case strings.HasPrefix(lower, "postgres://"), strings.HasPrefix(lower, "postgresql://"):
		return database.Config{DBType: "pgx", DSN: raw}, nil
	case strings.Contains(lower, "://") && !strings.HasPrefix(lower, "file:"):
		return database.Config{}, fmt.Errorf("unsupported DATABASE_URL scheme: %s", raw)
	default:
		return database.Config{DBType: "sqlite", DSN: raw}, nil
	}
}
