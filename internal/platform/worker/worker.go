// Package worker provides a small worker loop abstraction for the poll
// loops. It encapsulates context cancellation, interruptible sleeps and
// panic recovery shared by the video and dynamic pollers.
package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

const logFieldWorker = "worker"

// LoopConfig configures a self-pacing worker loop.
type LoopConfig struct {
	// Name identifies the worker for logging.
	Name string

	// Run is called once per cycle. Errors are handled by OnError and
	// never stop the loop.
	Run func(ctx context.Context) error

	// NextInterval returns the sleep duration until the next cycle.
	// Called after each cycle, so the cadence can vary by time of day.
	NextInterval func() time.Duration

	// OnError is called when Run returns an error.
	OnError func(err error)

	// Logger for the worker.
	Logger *zerolog.Logger
}

// Loop runs cycles until the context is canceled. The first cycle starts
// immediately. Returns a wrapped context error on cancellation.
func Loop(ctx context.Context, cfg LoopConfig) error {
	logger := getLogger(cfg.Logger)
	logger.Info().Str(logFieldWorker, cfg.Name).Msg("starting worker loop")

	defer logger.Info().Str(logFieldWorker, cfg.Name).Msg("worker loop stopped")

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("worker loop %s: %w", cfg.Name, ctx.Err())
		default:
		}

		if err := cfg.Run(ctx); err != nil {
			if cfg.OnError != nil {
				cfg.OnError(err)
			} else {
				logger.Error().Err(err).Str(logFieldWorker, cfg.Name).Msg("cycle error")
			}
		}

		if err := Wait(ctx, cfg.NextInterval()); err != nil {
			return err
		}
	}
}

// Wait blocks until duration elapses or context is canceled.
// Returns a wrapped context error if context is canceled.
func Wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	select {
	case <-ctx.Done():
		return fmt.Errorf("wait interrupted: %w", ctx.Err())
	case <-time.After(d):
		return nil
	}
}

// RecoverPanic recovers from panics and logs them.
// Use as: defer worker.RecoverPanic(logger, "operation name")
func RecoverPanic(logger *zerolog.Logger, operation string) {
	if r := recover(); r != nil {
		logger.Error().
			Interface("panic", r).
			Str("operation", operation).
			Msg("recovered from panic")
	}
}

func getLogger(logger *zerolog.Logger) *zerolog.Logger {
	if logger == nil {
		nop := zerolog.Nop()

		return &nop
	}

	return logger
}
