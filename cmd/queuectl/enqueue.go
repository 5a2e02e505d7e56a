package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/m-navaneeth8770/queuectl/internal/domain/model"
)

func newEnqueueCmd() *cobra.Command {
	var (
		id          string
		priority    int
		runAt       string
		delay       time.Duration
		maxRetries  int
		backoffBase int
		timeout     int
	)

	cmd := &cobra.Command{
		Use:   "enqueue <command>",
		Short: "Add a shell command job to the queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withServices(cmd.Context(), func(ctx context.Context, app *appContext) error {
				req := &model.EnqueueRequest{
					ID:             id,
					Command:        args[0],
					Priority:       priority,
					MaxRetries:     maxRetries,
					BackoffBase:    backoffBase,
					TimeoutSeconds: timeout,
				}

				scheduled, err := resolveRunAt(runAt, delay)
				if err != nil {
					return err
				}
				req.RunAt = scheduled

				job, err := app.Services.Queue.Enqueue(ctx, req)
				if err != nil {
					return err
				}

				fmt.Printf("Job enqueued: %s\n", job.ID)
				if job.RunAt.After(time.Now()) {
					fmt.Printf("Scheduled for: %s\n", job.RunAt.Format(time.RFC3339))
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "job id (generated when omitted)")
	cmd.Flags().IntVar(&priority, "priority", 0, "priority; higher runs first")
	cmd.Flags().StringVar(&runAt, "run-at", "", "earliest run time (RFC 3339)")
	cmd.Flags().DurationVar(&delay, "delay", 0, "run after this delay (e.g. 30s, 5m)")
	cmd.Flags().IntVar(&maxRetries, "max-retries", 0, "retry budget (0 uses the queue default)")
	cmd.Flags().IntVar(&backoffBase, "backoff-base", 0, "backoff base in seconds (0 uses the queue default)")
	cmd.Flags().IntVar(&timeout, "timeout", 0, "execution timeout in seconds (0 uses the queue default)")
	return cmd
}

func resolveRunAt(runAt string, delay time.Duration) (*time.Time, error) {
	if runAt != "" && delay > 0 {
		return nil, fmt.Errorf("--run-at and --delay are mutually exclusive")
	}
	if runAt != "" {
		t, err := time.Parse(time.RFC3339, runAt)
		if err != nil {
			return nil, fmt.Errorf("invalid --run-at %q: %w", runAt, err)
		}
		return &t, nil
	}
	if delay > 0 {
		t := time.Now().UTC().Add(delay)
		return &t, nil
	}
	return nil, nil
}
