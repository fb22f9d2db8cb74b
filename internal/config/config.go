// Package config handles Relay configuration
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Config holds Relay configuration
type Config struct {
	// Knowledge store settings
	DatabasePath string

	// Engine settings
	Workers      int
	TickInterval time.Duration
	TaskTimeout  time.Duration

	// Access log maintenance
	AccessLogRetention time.Duration
	MaintenanceSpec    string // cron expression for the maintenance job

	// Verbose mode for debugging
	Verbose bool
}

// Load loads configuration from environment and defaults
func Load() (*Config, error) {
	cfg := &Config{
		DatabasePath:       defaultDatabasePath(),
		Workers:            4,
		TickInterval:       100 * time.Millisecond,
		TaskTimeout:        30 * time.Second,
		AccessLogRetention: 24 * time.Hour,
		MaintenanceSpec:    "@every 10m",
	}

	// Environment overrides
	if v := os.Getenv("RELAY_DATABASE_PATH"); v != "" {
		cfg.DatabasePath = v
	}
	if v := os.Getenv("RELAY_WORKERS"); v != "" {
		cfg.Workers = parseIntOrDefault(v, 4)
	}
	if v := os.Getenv("RELAY_TICK_INTERVAL"); v != "" {
		cfg.TickInterval = parseDurationOrDefault(v, 100*time.Millisecond)
	}
	if v := os.Getenv("RELAY_TASK_TIMEOUT"); v != "" {
		cfg.TaskTimeout = parseDurationOrDefault(v, 30*time.Second)
	}
	if v := os.Getenv("RELAY_ACCESS_LOG_RETENTION"); v != "" {
		cfg.AccessLogRetention = parseDurationOrDefault(v, 24*time.Hour)
	}
	if v := os.Getenv("RELAY_MAINTENANCE_SPEC"); v != "" {
		cfg.MaintenanceSpec = v
	}
	if v := os.Getenv("RELAY_VERBOSE"); v != "" {
		cfg.Verbose = v == "true" || v == "1"
	}

	if cfg.Workers < 1 {
		return nil, fmt.Errorf("loading config: workers must be at least 1, got %d", cfg.Workers)
	}
	if cfg.TickInterval <= 0 {
		return nil, fmt.Errorf("loading config: tick interval must be positive, got %v", cfg.TickInterval)
	}

	return cfg, nil
}

// defaultDatabasePath returns the SQLite path in the working directory
func defaultDatabasePath() string {
	dir, err := os.Getwd()
	if err != nil {
		return ".relay/relay.db"
	}
	return filepath.Join(dir, ".relay", "relay.db")
}

func parseIntOrDefault(s string, def int) int {
	var i int
	if _, err := fmt.Sscanf(s, "%d", &i); err != nil {
		return def
	}
	return i
}

func parseDurationOrDefault(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}
