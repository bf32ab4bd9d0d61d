package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/rs/zerolog"

	"github.com/yuzutea/curator/internal/app"
	"github.com/yuzutea/curator/internal/platform/config"
	db "github.com/yuzutea/curator/internal/storage"
)

const sentryFlushTimeout = 2 * time.Second

func main() {
	mode := flag.String("mode", "all", "Service mode (all, poller, server)")

	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := newLogger(cfg.AppEnv)

	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{Dsn: cfg.SentryDSN, Environment: cfg.AppEnv}); err != nil {
			logger.Fatal().Err(err).Msg("failed to init sentry")
		}

		defer sentry.Flush(sentryFlushTimeout)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	poolOpts := db.PoolOptions{
		MaxConns:        cfg.DBMaxConnections,
		MinConns:        cfg.DBMinConnections,
		MaxConnIdleTime: cfg.DBMaxConnIdle,
	}

	database, err := db.New(ctx, cfg.PostgresDSN, poolOpts, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer database.Close()

	if err := database.Migrate(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to run migrations")
	}

	application := app.New(cfg, database, &logger)

	if err := runMode(ctx, application, *mode); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Info().Msg("curator stopped")

			return
		}

		logger.Fatal().Err(err).Msg("curator error")
	}
}

func newLogger(appEnv string) zerolog.Logger {
	if appEnv == "local" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Timestamp().Logger()
	}

	return zerolog.New(os.Stderr).With().Timestamp().Logger()
}

func runMode(ctx context.Context, application *app.App, mode string) error {
	switch mode {
	case "all":
		return application.RunAll(ctx)
	case "poller":
		return application.RunPoller(ctx)
	case "server":
		return application.RunServer(ctx)
	default:
		log.Fatalf("Usage: %s --mode=[all|poller|server]", os.Args[0])

		return nil
	}
}
