package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/m-navaneeth8770/queuectl/internal/adapters/workerpool"
	"github.com/m-navaneeth8770/queuectl/internal/bootstrap"
)

// newServeCmd runs the long-lived services selected by SERVICES
// (worker, reaper, dashboard) until interrupted.
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the configured services (worker, reaper, dashboard)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return withServices(ctx, func(ctx context.Context, app *appContext) error {
				if err := bootstrap.ValidateServiceConfig(&app.Config); err != nil {
					return err
				}
				app.Logger.InfoContext(ctx, "starting queuectl",
					"enabled_services", bootstrap.GetEnabledServices(&app.Config),
					"db_host", app.Config.Postgres.Host,
					"db_name", app.Config.Postgres.Name,
				)
				return bootstrap.RunServices(ctx, &app.Config, app.Services, app.Logger)
			})
		},
	}
}

// newWorkerCmd runs only the worker pool, regardless of SERVICES.
func newWorkerCmd() *cobra.Command {
	var count int

	workerCmd := &cobra.Command{
		Use:   "worker",
		Short: "Manage workers",
	}

	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Run a worker pool until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return withServices(ctx, func(ctx context.Context, app *appContext) error {
				workerCfg := app.Config.Worker
				if count > 0 {
					workerCfg.Concurrency = count
				}
				pool, err := workerpool.NewPool(workerpool.PoolOptions{
					Queue:  app.Services.Queue,
					Config: workerCfg,
					Logger: app.Logger,
				})
				if err != nil {
					return err
				}
				return pool.Run(ctx)
			})
		},
	}
	startCmd.Flags().IntVar(&count, "count", 0, "number of worker goroutines (0 uses WORKER_CONCURRENCY)")

	workerCmd.AddCommand(startCmd)
	return workerCmd
}
