// Package commands provides CLI subcommands for the eventmq scheduler.
package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofrs/flock"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/jacobdh/eventmq/internal/config"
	"github.com/jacobdh/eventmq/internal/infra"
	"github.com/jacobdh/eventmq/internal/scheduler"
)

// NewStartCommand creates the start subcommand, which runs the
// scheduler service in the foreground.
func NewStartCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Run the scheduler service",
		Example: `  # Run with ~/.eventmq/eventmq.json or defaults
  eventmq-scheduler start

  # Point at another broker
  EVENTMQ_CONNECT_ADDR=ws://broker:10001/scheduler eventmq-scheduler start`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStart(cmd)
		},
	}
	return cmd
}

func runStart(cmd *cobra.Command) error {
	logger := newLogger(cmd)

	// One scheduler per state dir: a second writer would corrupt the
	// store's schedule list.
	if err := os.MkdirAll(infra.Paths.DataDir, 0755); err != nil {
		return err
	}
	lock := flock.New(infra.LockPath())
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire scheduler lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("another scheduler is already running for %s", config.StateDir())
	}
	defer func() { _ = lock.Unlock() }()

	cfg, err := config.Load()
	if err != nil {
		if !errors.Is(err, config.ErrConfigNotFound) {
			return err
		}
		logger.Info().Msg("No config file found, using defaults")
	}

	svc, err := scheduler.New(cfg, logger)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		logger.Info().Msg("Shutting down scheduler...")
		cancel()
	}()

	return svc.Run(ctx)
}

func newLogger(cmd *cobra.Command) zerolog.Logger {
	level := zerolog.InfoLevel
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		level = zerolog.DebugLevel
	}
	return zerolog.New(os.Stdout).Level(level).With().Timestamp().Logger()
}
