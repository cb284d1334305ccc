package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func newWorkerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run the queue worker",
		Long: `Consumes scrape jobs from the configured queue, runs each through the
fetch and extraction pipeline, and updates competitor price snapshots.
Transient failures are retried with backoff; exhausted or permanent
failures are dead-lettered.`,
		RunE: runWorker,
	}
}

func runWorker(cmd *cobra.Command, _ []string) error {
	a, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	w, err := a.NewWorker(ctx)
	if err != nil {
		return fmt.Errorf("build worker: %w", err)
	}

	if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("run worker: %w", err)
	}
	a.Logger.Info("worker stopped")
	return nil
}
