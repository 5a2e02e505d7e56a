package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ServiceMode represents the available service modes.
type ServiceMode string

const (
	// ServiceModeWorker runs the job worker pool.
	ServiceModeWorker ServiceMode = "worker"
	// ServiceModeReaper runs the stale-claim reaper.
	ServiceModeReaper ServiceMode = "reaper"
	// ServiceModeDashboard runs the read-only HTTP dashboard.
	ServiceModeDashboard ServiceMode = "dashboard"
)

// ValidServiceModes returns all valid service mode names.
func ValidServiceModes() []ServiceMode {
	return []ServiceMode{
		ServiceModeWorker,
		ServiceModeReaper,
		ServiceModeDashboard,
	}
}

// ParseServices parses a comma-delimited string of service names and returns
// the enabled services. It validates that all service names are valid.
func ParseServices(servicesStr string) (map[ServiceMode]bool, error) {
	services := make(map[ServiceMode]bool)

	if servicesStr == "" {
		return services, errors.New("at least one service must be specified")
	}

	for _, part := range strings.Split(servicesStr, ",") {
		serviceName := strings.TrimSpace(part)
		if serviceName == "" {
			continue
		}

		mode := ServiceMode(serviceName)
		switch mode {
		case ServiceModeWorker, ServiceModeReaper, ServiceModeDashboard:
			services[mode] = true
		default:
			return nil, fmt.Errorf(
				"invalid service name: %q (valid options: worker, reaper, dashboard)",
				serviceName,
			)
		}
	}

	if len(services) == 0 {
		return nil, errors.New("at least one valid service must be specified")
	}

	return services, nil
}

// WorkerConfig contains worker pool configuration.
type WorkerConfig struct {
	// Concurrency is the number of worker goroutines.
	Concurrency int `env:"WORKER_CONCURRENCY" envDefault:"1"`

	// PollInterval bounds how long an idle worker waits before re-checking
	// for eligible jobs. Notifications usually wake workers sooner.
	PollInterval time.Duration `env:"WORKER_POLL_INTERVAL" envDefault:"2s"`

	// DrainTimeout bounds how long shutdown waits for in-flight jobs.
	DrainTimeout time.Duration `env:"WORKER_DRAIN_TIMEOUT" envDefault:"30s"`
}

// Sanitize applies guardrails to worker configuration values.
func (w *WorkerConfig) Sanitize() {
	if w.Concurrency < 1 {
		w.Concurrency = 1
	}
	if w.PollInterval < 100*time.Millisecond {
		w.PollInterval = 100 * time.Millisecond
	}
	if w.DrainTimeout < time.Second {
		w.DrainTimeout = time.Second
	}
}

// ReaperConfig contains stale-claim reaper configuration.
type ReaperConfig struct {
	// Interval is the reaper tick interval.
	Interval time.Duration `env:"REAPER_INTERVAL" envDefault:"1m"`

	// ClaimGrace is how long a processing job may hold its claim before the
	// reaper treats the worker as crashed and requeues the job.
	ClaimGrace time.Duration `env:"REAPER_CLAIM_GRACE" envDefault:"10m"`

	// CompletedMaxAge is the maximum age for completed jobs before deletion.
	// Zero disables deletion.
	CompletedMaxAge time.Duration `env:"REAPER_COMPLETED_MAX_AGE" envDefault:"168h"` // 7 days

	// BatchSize is the maximum number of rows to process per operation.
	// Batching prevents long locks and I/O spikes on large tables.
	BatchSize int `env:"REAPER_BATCH_SIZE" envDefault:"1000"`
}

// Sanitize applies guardrails to reaper configuration values.
func (r *ReaperConfig) Sanitize() {
	if r.Interval < 10*time.Second {
		r.Interval = 10 * time.Second
	}
	if r.ClaimGrace < time.Minute {
		r.ClaimGrace = time.Minute
	}
	if r.CompletedMaxAge < 0 {
		r.CompletedMaxAge = 0
	}
	if r.BatchSize < 1 {
		r.BatchSize = 1
	}
	if r.BatchSize > 10000 {
		r.BatchSize = 10000
	}
}

// DashboardConfig contains read-only HTTP dashboard configuration.
type DashboardConfig struct {
	// Host is the listen address.
	Host string `env:"DASHBOARD_HOST" envDefault:"0.0.0.0"`

	// Port is the listen port.
	Port int `env:"DASHBOARD_PORT" envDefault:"8080"`

	// StatsCacheTTL is how long stats snapshots are served from Redis before
	// the store is queried again. Zero disables caching.
	StatsCacheTTL time.Duration `env:"DASHBOARD_STATS_CACHE_TTL" envDefault:"5s"`

	// ReadTimeout and WriteTimeout bound request handling.
	ReadTimeout  time.Duration `env:"DASHBOARD_READ_TIMEOUT"  envDefault:"10s"`
	WriteTimeout time.Duration `env:"DASHBOARD_WRITE_TIMEOUT" envDefault:"10s"`
}

// Sanitize applies guardrails to dashboard configuration values.
func (d *DashboardConfig) Sanitize() {
	if d.Port < 1 || d.Port > 65535 {
		d.Port = 8080
	}
	if d.StatsCacheTTL < 0 {
		d.StatsCacheTTL = 0
	}
	if d.ReadTimeout <= 0 {
		d.ReadTimeout = 10 * time.Second
	}
	if d.WriteTimeout <= 0 {
		d.WriteTimeout = 10 * time.Second
	}
}
