package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/m-navaneeth8770/queuectl/internal/domain/model"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <job-id>",
		Short: "Show a job's state and outcome",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withServices(cmd.Context(), func(ctx context.Context, app *appContext) error {
				job, err := app.Services.Queue.Get(ctx, args[0])
				if err != nil {
					return err
				}
				printJobDetail(job)
				return nil
			})
		},
	}
}

func newListCmd() *cobra.Command {
	var (
		state string
		limit int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs, optionally filtered by state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withServices(cmd.Context(), func(ctx context.Context, app *appContext) error {
				jobs, err := app.Services.Queue.List(ctx, model.JobFilter{
					State: model.JobState(state),
					Limit: limit,
				})
				if err != nil {
					return err
				}
				if len(jobs) == 0 {
					fmt.Println("No jobs found.")
					return nil
				}
				return printJobTable(jobs)
			})
		},
	}

	cmd.Flags().StringVar(&state, "state", "", "filter by state (pending, processing, completed, failed, dead)")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum number of jobs to list")
	return cmd
}

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show per-state job counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withServices(cmd.Context(), func(ctx context.Context, app *appContext) error {
				stats, err := app.Services.Queue.Stats(ctx)
				if err != nil {
					return err
				}
				fmt.Printf("pending:    %d\n", stats.Pending)
				fmt.Printf("processing: %d\n", stats.Processing)
				fmt.Printf("completed:  %d\n", stats.Completed)
				fmt.Printf("failed:     %d\n", stats.Failed)
				fmt.Printf("dead:       %d\n", stats.Dead)
				return nil
			})
		},
	}
}

func newMetricsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "metrics",
		Short: "Show the lifetime execution counters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withServices(cmd.Context(), func(ctx context.Context, app *appContext) error {
				metrics, err := app.Services.Queue.Metrics(ctx)
				if err != nil {
					return err
				}
				fmt.Printf("completed_total: %d\n", metrics.CompletedTotal)
				fmt.Printf("failed_total:    %d\n", metrics.FailedTotal)
				fmt.Printf("dead_total:      %d\n", metrics.DeadTotal)
				return nil
			})
		},
	}
}
