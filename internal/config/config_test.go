package config

import (
	"testing"
	"time"
)

func TestParseIntOrDefault(t *testing.T) {
	tests := []struct {
		input    string
		def      int
		expected int
	}{
		{"5", 10, 5},
		{"100", 0, 100},
		{"-3", 10, -3},
		{"abc", 10, 10}, // invalid returns default
		{"", 10, 10},    // empty returns default
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := parseIntOrDefault(tt.input, tt.def)
			if result != tt.expected {
				t.Errorf("parseIntOrDefault(%q, %d) = %d; want %d", tt.input, tt.def, result, tt.expected)
			}
		})
	}
}

func TestParseDurationOrDefault(t *testing.T) {
	tests := []struct {
		input    string
		def      time.Duration
		expected time.Duration
	}{
		{"100ms", time.Second, 100 * time.Millisecond},
		{"30s", time.Second, 30 * time.Second},
		{"1h30m", 10 * time.Minute, 90 * time.Minute},
		{"invalid", 10 * time.Minute, 10 * time.Minute}, // invalid returns default
		{"", 10 * time.Minute, 10 * time.Minute},        // empty returns default
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := parseDurationOrDefault(tt.input, tt.def)
			if result != tt.expected {
				t.Errorf("parseDurationOrDefault(%q, %v) = %v; want %v", tt.input, tt.def, result, tt.expected)
			}
		})
	}
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("RELAY_WORKERS", "8")
	t.Setenv("RELAY_TICK_INTERVAL", "50ms")
	t.Setenv("RELAY_TASK_TIMEOUT", "2m")
	t.Setenv("RELAY_DATABASE_PATH", "/tmp/relay-test.db")
	t.Setenv("RELAY_VERBOSE", "1")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Workers != 8 {
		t.Errorf("Workers = %d, want 8", cfg.Workers)
	}
	if cfg.TickInterval != 50*time.Millisecond {
		t.Errorf("TickInterval = %v, want 50ms", cfg.TickInterval)
	}
	if cfg.TaskTimeout != 2*time.Minute {
		t.Errorf("TaskTimeout = %v, want 2m", cfg.TaskTimeout)
	}
	if cfg.DatabasePath != "/tmp/relay-test.db" {
		t.Errorf("DatabasePath = %s", cfg.DatabasePath)
	}
	if !cfg.Verbose {
		t.Error("Verbose not set")
	}
}

func TestLoad_RejectsInvalidWorkers(t *testing.T) {
	t.Setenv("RELAY_WORKERS", "0")

	if _, err := Load(); err == nil {
		t.Error("Expected error for zero workers")
	}
}
