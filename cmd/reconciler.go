package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/frahmantamala/payment-lifecycle/pkg/logger"
)

// Reconciler runs inside the server process by default; this subcommand runs
// the sweep loop standalone for deployments that separate web and worker.
var reconcilerCmd = &cobra.Command{
	Use:   "reconciler",
	Short: "Start the reconciliation worker",
	Long:  `Start the standalone reconciliation worker that sweeps stale pending payments`,
	Run: func(cmd *cobra.Command, args []string) {
		startReconciler()
	},
}

func startReconciler() {
	deps, err := initializeDependencies()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize dependencies: %v\n", err)
		os.Exit(1)
	}

	appLogger := logger.LoggerWrapper()

	ctx, cancel := context.WithCancel(context.Background())
	deps.Reconciler.Start(ctx)

	appLogger.Info("reconciler worker is running. Press Ctrl+C to stop.")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	appLogger.Info("received signal, shutting down reconciler", "signal", sig)

	cancel()

	shutdownDone := make(chan struct{})
	go func() {
		deps.Reconciler.Stop()
		close(shutdownDone)
	}()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	select {
	case <-shutdownDone:
		appLogger.Info("reconciler shutdown complete")
	case <-shutdownCtx.Done():
		appLogger.Warn("shutdown timeout reached, forcing exit")
	}

	if err := deps.DB.Close(); err != nil {
		appLogger.Error("database close error", "error", err)
	}
}
