package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/m-navaneeth8770/queuectl/config"
	"github.com/m-navaneeth8770/queuectl/internal/bootstrap"
)

// appContext carries the shared dependencies a command needs once the store
// is connected.
type appContext struct {
	Config   config.AppConfig
	Logger   *slog.Logger
	Services *bootstrap.ServiceContainer
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "queuectl",
		Short:         "A CLI job queue backed by Postgres",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	root.AddCommand(
		newEnqueueCmd(),
		newStatusCmd(),
		newListCmd(),
		newStatsCmd(),
		newMetricsCmd(),
		newDLQCmd(),
		newRequeueCmd(),
		newConfigCmd(),
		newWorkerCmd(),
		newServeCmd(),
		newInitDBCmd(),
	)
	return root
}

// withServices loads config, connects the store, and runs fn with the wired
// services. Connections are closed when fn returns.
func withServices(ctx context.Context, fn func(ctx context.Context, app *appContext) error) error {
	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		return err
	}
	logger := bootstrap.InitLogger(cfg.Observability, cfg.IsDev)

	db, err := bootstrap.ConnectDB(bootstrap.DatabaseConfig{
		DBConfig:    cfg.Postgres,
		RedisConfig: cfg.Redis,
		Logger:      logger,
	})
	if err != nil {
		return fmt.Errorf("connect db: %w", err)
	}
	defer func() {
		if cerr := db.Close(); cerr != nil {
			logger.ErrorContext(ctx, "close database failed", "error", cerr)
		}
	}()

	if cfg.Postgres.RunMigrationsOnStart {
		if err := bootstrap.RunMigrations(ctx, db, logger); err != nil {
			return err
		}
	}

	deps := bootstrap.ServiceDeps{
		Config: &cfg,
		DB:     db,
		Logger: logger,
	}
	if cfg.Redis.Enabled {
		redisClient, rerr := bootstrap.ConnectRedis(bootstrap.DatabaseConfig{
			DBConfig:    cfg.Postgres,
			RedisConfig: cfg.Redis,
			Logger:      logger,
		})
		if rerr != nil {
			return fmt.Errorf("connect redis: %w", rerr)
		}
		defer func() {
			if cerr := redisClient.Close(); cerr != nil {
				logger.ErrorContext(ctx, "close redis failed", "error", cerr)
			}
		}()
		deps.RedisClient = redisClient
	}

	services, err := bootstrap.BuildServices(deps)
	if err != nil {
		return err
	}
	defer services.Queue.Shutdown()

	return fn(ctx, &appContext{
		Config:   cfg,
		Logger:   logger,
		Services: services,
	})
}
