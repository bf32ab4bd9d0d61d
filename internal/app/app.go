// Package app wires the curator's components together and exposes the
// run modes: the poll loops, the HTTP surface, or both in one process.
package app

import (
	"context"
	"fmt"

	"github.com/getsentry/sentry-go"
	"github.com/rs/zerolog"

	"github.com/yuzutea/curator/internal/callback"
	"github.com/yuzutea/curator/internal/feishu"
	"github.com/yuzutea/curator/internal/httpapi"
	"github.com/yuzutea/curator/internal/ingest/bilibili"
	"github.com/yuzutea/curator/internal/notify"
	"github.com/yuzutea/curator/internal/output/cards"
	"github.com/yuzutea/curator/internal/platform/config"
	"github.com/yuzutea/curator/internal/process/curation"
	db "github.com/yuzutea/curator/internal/storage"
	"github.com/yuzutea/curator/internal/summary"
)

// Logical review group names. The resolver appends the local date.
const (
	videoReviewGroup   = "每日视频"
	dynamicReviewGroup = "每日动态"
)

// App holds the process-wide dependencies.
type App struct {
	cfg      *config.Config
	database *db.DB
	logger   *zerolog.Logger
}

func New(cfg *config.Config, database *db.DB, logger *zerolog.Logger) *App {
	return &App{
		cfg:      cfg,
		database: database,
		logger:   logger,
	}
}

type components struct {
	poller *curation.Poller
	server *httpapi.Server
}

func (a *App) build(ctx context.Context) (*components, error) {
	loc, err := a.cfg.Location()
	if err != nil {
		return nil, err
	}

	topics, err := a.cfg.Topics()
	if err != nil {
		return nil, err
	}

	tokens, err := feishu.NewTokenManager(ctx, a.cfg.FeishuAppID, a.cfg.FeishuAppSecret, a.logger)
	if err != nil {
		return nil, fmt.Errorf("feishu token manager: %w", err)
	}

	go tokens.AutoRefresh(ctx)

	chat := feishu.New(tokens, a.logger)

	renderer := cards.NewRenderer(chat, a.cfg.FallbackImageKey, a.cfg.VideoCategories, loc, a.logger)
	resolver := notify.NewResolver(a.database, chat, a.cfg.InitUserIDs, loc, a.cfg.AppEnv == "local", a.logger)
	notifier := notify.NewNotifier(resolver, renderer, chat, a.database, a.logger)

	feed := bilibili.New(a.cfg.FeedCallInterval, a.cfg.FeedTimeout)

	poller := curation.NewPoller(curation.Config{
		Topics:        topics,
		BatchSize:     a.cfg.BatchSize,
		PageLimit:     a.cfg.FeedPageLimit,
		Interval:      a.cfg.PollInterval,
		NightInterval: a.cfg.PollIntervalNight,
		IsNightHour:   a.cfg.IsNightHour,
		Location:      loc,
		VideoGroup:    videoReviewGroup,
		DynamicGroup:  dynamicReviewGroup,
	}, feed, a.database, notifier, a.logger, a.captureError)

	handler := callback.NewHandler(a.database, resolver, chat, a.logger)
	summaries := summary.NewService(a.database, chat, loc)
	server := httpapi.NewServer(a.cfg.HTTPPort, handler, summaries, a.database, a.database.Pool, loc, a.logger)

	return &components{poller: poller, server: server}, nil
}

// RunAll runs the poll loops and the HTTP server in one process and
// returns the first failure.
func (a *App) RunAll(ctx context.Context) error {
	parts, err := a.build(ctx)
	if err != nil {
		return err
	}

	errs := make(chan error, 2)

	go func() { errs <- parts.poller.Run(ctx) }()
	go func() { errs <- parts.server.Run(ctx) }()

	first := <-errs
	<-errs

	return first
}

// RunPoller runs only the poll loops.
func (a *App) RunPoller(ctx context.Context) error {
	parts, err := a.build(ctx)
	if err != nil {
		return err
	}

	return parts.poller.Run(ctx)
}

// RunServer runs only the HTTP surface.
func (a *App) RunServer(ctx context.Context) error {
	parts, err := a.build(ctx)
	if err != nil {
		return err
	}

	return parts.server.Run(ctx)
}

func (a *App) captureError(err error) {
	if a.cfg.SentryDSN != "" {
		sentry.CaptureException(err)
	}
}
