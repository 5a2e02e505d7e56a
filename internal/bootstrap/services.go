package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/m-navaneeth8770/queuectl/config"
	"github.com/m-navaneeth8770/queuectl/internal/adapters/workerpool"
	"github.com/m-navaneeth8770/queuectl/internal/data"
	"github.com/m-navaneeth8770/queuectl/internal/observability/statsd"
	"github.com/m-navaneeth8770/queuectl/internal/service"
)

// ServiceDeps groups dependencies for service initialization.
type ServiceDeps struct {
	Config      *config.AppConfig
	DB          *sql.DB
	RedisClient redis.UniversalClient // Optional: nil disables the stats cache
	Logger      *slog.Logger
}

// ServiceContainer holds all application services.
type ServiceContainer struct {
	Queue     *service.QueueService
	Snapshots *service.StatsCache
	Reaper    *service.ReaperService
	Pool      *workerpool.Pool

	JobRepo    *data.JobRepo
	ConfigRepo *data.ConfigRepo

	MetricsSink *statsd.Client
}

// BuildServices constructs repositories and services from the configuration.
func BuildServices(deps ServiceDeps) (*ServiceContainer, error) {
	if deps.Config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if deps.DB == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	metricsSink := buildMetricsSink(logger, deps.Config.Observability.Metrics)

	jobRepo := data.NewJobRepo(deps.DB, data.RepoConfig{Logger: logger})
	configRepo := data.NewConfigRepo(deps.DB, logger)

	queue, err := service.NewQueueService(service.QueueServiceOptions{
		Store:   jobRepo,
		Config:  configRepo,
		Logger:  logger,
		Metrics: sinkOrNil(metricsSink),
	})
	if err != nil {
		return nil, fmt.Errorf("create queue service: %w", err)
	}

	reaper, err := service.NewReaperService(service.ReaperServiceOptions{
		Repo:    jobRepo,
		Config:  deps.Config.Reaper,
		Logger:  logger,
		Metrics: sinkOrNil(metricsSink),
	})
	if err != nil {
		return nil, fmt.Errorf("create reaper service: %w", err)
	}

	pool, err := workerpool.NewPool(workerpool.PoolOptions{
		Queue:  queue,
		Config: deps.Config.Worker,
		Logger: logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create worker pool: %w", err)
	}

	var cache *data.RedisCacheRepo
	if deps.RedisClient != nil {
		cache = data.NewRedisCacheRepo(deps.RedisClient)
	}
	snapshots := newStatsCache(queue, cache, deps.Config.Dashboard.StatsCacheTTL, logger)

	return &ServiceContainer{
		Queue:       queue,
		Snapshots:   snapshots,
		Reaper:      reaper,
		Pool:        pool,
		JobRepo:     jobRepo,
		ConfigRepo:  configRepo,
		MetricsSink: metricsSink,
	}, nil
}

// newStatsCache keeps the nil-interface handling in one place: a nil
// *RedisCacheRepo must not reach StatsCache as a non-nil interface.
func newStatsCache(
	queue *service.QueueService,
	cache *data.RedisCacheRepo,
	ttl time.Duration,
	logger *slog.Logger,
) *service.StatsCache {
	opts := service.StatsCacheOptions{Queue: queue, TTL: ttl, Logger: logger}
	if cache != nil {
		opts.Cache = cache
	}
	return service.NewStatsCache(opts)
}

func buildMetricsSink(logger *slog.Logger, cfg config.ObservabilityMetricsConfig) *statsd.Client {
	if !cfg.IsEnabled() {
		return nil
	}
	client, err := statsd.NewClient(statsd.Config{
		Enabled: true,
		Address: cfg.StatsdAddress,
		Prefix:  cfg.StatsdPrefix,
		Logger:  logger,
	})
	if err != nil {
		logger.Error("failed to initialise statsd client", "error", err)
		return nil
	}
	return client
}

// sinkOrNil avoids handing services a typed-nil statsd.Sink.
func sinkOrNil(client *statsd.Client) statsd.Sink {
	if client == nil {
		return nil
	}
	return client
}

// RunServices runs the enabled services until the context is cancelled, then
// drains them. Any service failing brings the process down.
func RunServices(ctx context.Context, cfg *config.AppConfig, services *ServiceContainer, logger *slog.Logger) error {
	enabled, err := cfg.GetEnabledServices()
	if err != nil {
		return fmt.Errorf("resolve enabled services: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	if enabled[config.ServiceModeWorker] {
		g.Go(func() error {
			return services.Pool.Run(gctx)
		})
	}

	if enabled[config.ServiceModeReaper] {
		g.Go(func() error {
			return services.Reaper.Run(gctx)
		})
	}

	var server *http.Server
	if enabled[config.ServiceModeDashboard] {
		server = StartDashboardServer(DashboardServerConfig{
			Config:   cfg.Dashboard,
			Services: services,
			Logger:   logger,
		})
		// The server runs in its own goroutine; keep Wait blocked until shutdown.
		g.Go(func() error {
			<-gctx.Done()
			return nil
		})
	}

	err = g.Wait()

	if server != nil {
		if shutdownErr := ShutdownDashboardServer(context.Background(), server, logger); shutdownErr != nil {
			logger.Error("dashboard shutdown failed", "error", shutdownErr)
		}
	}
	services.Queue.Shutdown()
	if services.MetricsSink != nil {
		if closeErr := services.MetricsSink.Close(); closeErr != nil {
			logger.Error("statsd close failed", "error", closeErr)
		}
	}

	return err
}
