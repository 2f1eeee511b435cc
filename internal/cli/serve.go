package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/trawl/internal/engine"
	"github.com/roach88/trawl/internal/executor"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions

	// Executor allows overriding the container executor (for testing).
	// If nil, defaults to the docker executor from config.
	Executor executor.Executor

	// IDGenerator allows overriding the job ID generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	IDGenerator engine.JobIDGenerator
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the job execution loop",
		Long: `Run the single-writer execution loop.

The loop picks up Queued jobs from the store (including jobs submitted
by other trawl processes), fetches their inputs, runs their containers,
and publishes their results. One serve process per database.

Example:
  trawl serve
  trawl serve --config ./trawl.yaml --verbose`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	setupLogging(opts.Verbose)

	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return err
	}

	slog.Info("opening database", "path", cfg.Database)
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()
	slog.Info("database ready")

	engOpts := engineOptions(cfg, nil)
	if cfg.PollInterval > 0 {
		engOpts = append(engOpts, engine.WithPollInterval(cfg.PollInterval.Std()))
	}
	if opts.Executor != nil {
		engOpts = append(engOpts, engine.WithExecutor(opts.Executor))
	}
	if opts.IDGenerator != nil {
		engOpts = append(engOpts, engine.WithIDGenerator(opts.IDGenerator))
	}
	eng := engine.New(st, cfg.DataDir, engOpts...)

	// Setup signal handling for graceful shutdown
	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	if err := eng.Init(ctx); err != nil {
		return WrapExitError(ExitCommandError, "engine init failed", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan) // Prevent signal handler leak

	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
			// Parent context cancelled (e.g., from test)
		}
	}()

	slog.Info("engine starting", "db", cfg.Database, "data_dir", cfg.DataDir)
	fmt.Fprintln(cmd.OutOrStdout(), "Engine started. Watching for jobs...")
	fmt.Fprintln(cmd.OutOrStdout(), "Press Ctrl-C to stop.")

	if err := eng.Run(ctx); err != nil && err != context.Canceled && err != context.DeadlineExceeded {
		return WrapExitError(ExitFailure, "engine error", err)
	}

	slog.Info("engine stopped gracefully")
	return nil
}
