package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/m-navaneeth8770/queuectl/internal/domain/model"
)

func printJobTable(jobs []*model.Job) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATE\tPRIORITY\tATTEMPTS\tCOMMAND\tCREATED")
	for _, job := range jobs {
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\t%s\n",
			job.ID,
			job.State,
			job.Priority,
			job.Attempts,
			truncate(job.Command, 48),
			job.CreatedAt.Local().Format(time.DateTime),
		)
	}
	return w.Flush()
}

func printJobDetail(job *model.Job) {
	fmt.Printf("ID:          %s\n", job.ID)
	fmt.Printf("State:       %s\n", job.State)
	fmt.Printf("Command:     %s\n", job.Command)
	fmt.Printf("Priority:    %d\n", job.Priority)
	fmt.Printf("Attempts:    %d/%d\n", job.Attempts, job.MaxRetries)
	fmt.Printf("Created:     %s\n", job.CreatedAt.Local().Format(time.DateTime))
	if job.RunAt.After(job.CreatedAt) {
		fmt.Printf("Run at:      %s\n", job.RunAt.Local().Format(time.DateTime))
	}
	if job.NextEligibleAt != nil {
		fmt.Printf("Next retry:  %s\n", job.NextEligibleAt.Local().Format(time.DateTime))
	}
	if job.ClaimedBy != nil {
		fmt.Printf("Claimed by:  %s\n", *job.ClaimedBy)
	}
	if job.CompletedAt != nil {
		fmt.Printf("Completed:   %s\n", job.CompletedAt.Local().Format(time.DateTime))
	}
	if job.Error != nil && *job.Error != "" {
		fmt.Printf("Error:       %s\n", *job.Error)
	}
	if job.Output != nil && *job.Output != "" {
		fmt.Printf("Output:\n%s\n", *job.Output)
	}
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "…"
}
