package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newDLQCmd() *cobra.Command {
	dlqCmd := &cobra.Command{
		Use:   "dlq",
		Short: "Manage the dead letter queue",
	}

	var limit int
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs that exhausted their retries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withServices(cmd.Context(), func(ctx context.Context, app *appContext) error {
				jobs, err := app.Services.Queue.ListDLQ(ctx, limit)
				if err != nil {
					return err
				}
				if len(jobs) == 0 {
					fmt.Println("Dead letter queue is empty.")
					return nil
				}
				return printJobTable(jobs)
			})
		},
	}
	listCmd.Flags().IntVar(&limit, "limit", 50, "maximum number of jobs to list")

	retryCmd := &cobra.Command{
		Use:   "retry <job-id>",
		Short: "Move a dead job back to pending with a fresh attempt budget",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return requeueJob(cmd.Context(), args[0])
		},
	}

	dlqCmd.AddCommand(listCmd, retryCmd)
	return dlqCmd
}

// newRequeueCmd is a top-level alias for "dlq retry".
func newRequeueCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "requeue <job-id>",
		Short: "Move a dead job back to pending with a fresh attempt budget",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return requeueJob(cmd.Context(), args[0])
		},
	}
}

func requeueJob(ctx context.Context, id string) error {
	return withServices(ctx, func(ctx context.Context, app *appContext) error {
		job, err := app.Services.Queue.Requeue(ctx, id)
		if err != nil {
			return err
		}
		fmt.Printf("Job %s moved back to pending.\n", job.ID)
		return nil
	})
}
