// queuectl is a CLI job queue backed by Postgres: enqueue shell commands,
// run worker pools, inspect state, and manage the dead letter queue.
package main

import (
	"context"
	"os"
)

func main() {
	ctx := context.Background()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		// Cobra already printed the error.
		os.Exit(1) //nolint:forbidigo // CLI must propagate command failure to callers.
	}
}
