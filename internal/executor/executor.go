// Package executor runs job commands through the shell with a bounded timeout
// and captured output.
package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"
)

// maxCapturedOutput caps stored stdout/stderr per job so a chatty command
// cannot bloat the jobs table.
const maxCapturedOutput = 16 * 1024

// Result captures the outcome of one command execution.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
	TimedOut bool
}

// Output returns the captured output suitable for storing on the job row.
func (r *Result) Output() string {
	if r.Stderr == "" {
		return r.Stdout
	}
	if r.Stdout == "" {
		return r.Stderr
	}
	return r.Stdout + "\n" + r.Stderr
}

// Executor runs commands. The interface exists so the worker pool can be
// tested with a fake.
type Executor interface {
	Run(ctx context.Context, command string, timeout time.Duration) (*Result, error)
}

// ShellExecutor executes commands via `sh -c`.
type ShellExecutor struct{}

// NewShellExecutor creates a ShellExecutor.
func NewShellExecutor() *ShellExecutor {
	return &ShellExecutor{}
}

// Run executes command under `sh -c`, bounded by timeout. A non-zero exit or
// a timeout is reported as an error; the Result always carries the captured
// output and timing. The error for a timeout reads "timed out after Ns" so
// the failure reason recorded on the job names the limit that was hit.
func (e *ShellExecutor) Run(ctx context.Context, command string, timeout time.Duration) (*Result, error) {
	runCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, "sh", "-c", command)
	cmd.WaitDelay = 5 * time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	runErr := cmd.Run()
	elapsed := time.Since(start)

	res := &Result{
		Stdout:   truncate(stdout.String()),
		Stderr:   truncate(stderr.String()),
		Duration: elapsed,
		ExitCode: -1,
	}
	if cmd.ProcessState != nil {
		res.ExitCode = cmd.ProcessState.ExitCode()
	}

	if timeout > 0 && errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		res.TimedOut = true
		return res, fmt.Errorf("timed out after %ds", int(timeout.Seconds()))
	}
	if runErr != nil {
		return res, fmt.Errorf("command failed: %w", runErr)
	}
	return res, nil
}

func truncate(s string) string {
	if len(s) <= maxCapturedOutput {
		return s
	}
	return s[:maxCapturedOutput] + "\n[output truncated]"
}

var _ Executor = (*ShellExecutor)(nil)
