package config

import (
	"reflect"
	"testing"
	"time"

	env "github.com/caarlos0/env/v11"
)

func TestParseServices(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		expected    map[ServiceMode]bool
		expectError bool
	}{
		{
			name:  "single service - worker",
			input: "worker",
			expected: map[ServiceMode]bool{
				ServiceModeWorker: true,
			},
		},
		{
			name:  "all services",
			input: "worker,reaper,dashboard",
			expected: map[ServiceMode]bool{
				ServiceModeWorker:    true,
				ServiceModeReaper:    true,
				ServiceModeDashboard: true,
			},
		},
		{
			name:  "services with spaces",
			input: " worker , reaper ",
			expected: map[ServiceMode]bool{
				ServiceModeWorker: true,
				ServiceModeReaper: true,
			},
		},
		{
			name:  "duplicate services",
			input: "worker,worker",
			expected: map[ServiceMode]bool{
				ServiceModeWorker: true,
			},
		},
		{
			name:        "empty string",
			input:       "",
			expectError: true,
		},
		{
			name:        "invalid service",
			input:       "worker,scheduler",
			expectError: true,
		},
		{
			name:        "only commas",
			input:       ",,,",
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseServices(tt.input)
			if tt.expectError {
				if err == nil {
					t.Fatalf("expected error for input %q, got %v", tt.input, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !reflect.DeepEqual(got, tt.expected) {
				t.Fatalf("got %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestAppConfigDefaults(t *testing.T) {
	var cfg AppConfig
	if err := env.Parse(&cfg); err != nil {
		t.Fatalf("parse config: %v", err)
	}
	cfg.Sanitize()

	if cfg.Services != "worker" {
		t.Errorf("Services default = %q, want worker", cfg.Services)
	}
	if cfg.Postgres.Port != 5432 {
		t.Errorf("Postgres.Port default = %d, want 5432", cfg.Postgres.Port)
	}
	if cfg.Worker.Concurrency != 1 {
		t.Errorf("Worker.Concurrency default = %d, want 1", cfg.Worker.Concurrency)
	}
	if cfg.Reaper.ClaimGrace != 10*time.Minute {
		t.Errorf("Reaper.ClaimGrace default = %v, want 10m", cfg.Reaper.ClaimGrace)
	}
	if cfg.Dashboard.Port != 8080 {
		t.Errorf("Dashboard.Port default = %d, want 8080", cfg.Dashboard.Port)
	}
	if cfg.Observability.LogLevel != "info" {
		t.Errorf("LogLevel default = %q, want info", cfg.Observability.LogLevel)
	}
}

func TestSanitizeGuardrails(t *testing.T) {
	cfg := AppConfig{
		Worker: WorkerConfig{Concurrency: 0, PollInterval: time.Millisecond, DrainTimeout: 0},
		Reaper: ReaperConfig{Interval: time.Second, ClaimGrace: time.Second, BatchSize: 0},
		Dashboard: DashboardConfig{
			Port: -1,
		},
		Observability: ObservabilityConfig{LogLevel: "LOUD"},
	}
	cfg.Sanitize()

	if cfg.Worker.Concurrency != 1 {
		t.Errorf("Concurrency = %d, want 1", cfg.Worker.Concurrency)
	}
	if cfg.Worker.PollInterval != 100*time.Millisecond {
		t.Errorf("PollInterval = %v, want 100ms", cfg.Worker.PollInterval)
	}
	if cfg.Reaper.Interval != 10*time.Second {
		t.Errorf("Reaper.Interval = %v, want 10s", cfg.Reaper.Interval)
	}
	if cfg.Reaper.ClaimGrace != time.Minute {
		t.Errorf("ClaimGrace = %v, want 1m", cfg.Reaper.ClaimGrace)
	}
	if cfg.Reaper.BatchSize != 1 {
		t.Errorf("BatchSize = %d, want 1", cfg.Reaper.BatchSize)
	}
	if cfg.Dashboard.Port != 8080 {
		t.Errorf("Dashboard.Port = %d, want 8080", cfg.Dashboard.Port)
	}
	if cfg.Observability.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want info", cfg.Observability.LogLevel)
	}
}

func TestMetricsConfigSanitize(t *testing.T) {
	c := ObservabilityMetricsConfig{Enabled: true, StatsdAddress: "   "}
	c.Sanitize()
	if c.IsEnabled() {
		t.Error("metrics with blank address must be disabled")
	}
}
