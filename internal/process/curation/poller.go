package curation

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/yuzutea/curator/internal/ingest/bilibili"
	"github.com/yuzutea/curator/internal/platform/config"
	"github.com/yuzutea/curator/internal/platform/observability"
	"github.com/yuzutea/curator/internal/platform/worker"
)

const firstPageOffset = "0"

// Feed supplies raw feed pages.
type Feed interface {
	TagVideos(ctx context.Context, tagID int64) ([]bilibili.VideoInfo, error)
	TopicDynamics(ctx context.Context, topicName, offset string) (*bilibili.DynamicsPage, error)
}

// Sender delivers one batch to the named review group and persists the
// per-item records.
type Sender interface {
	Send(ctx context.Context, group string, items []FeedItem) error
}

// Config carries the poll cadence and batch limits.
type Config struct {
	Topics    []config.Topic
	BatchSize int
	// PageLimit bounds how many dynamic feed pages are walked per topic
	// per cycle.
	PageLimit int

	Interval      time.Duration
	NightInterval time.Duration
	IsNightHour   func(hour int) bool
	Location      *time.Location

	// Logical review group names; the resolver appends the date.
	VideoGroup   string
	DynamicGroup string
}

// Poller drives the two poll loops. Each cycle fetches every topic,
// merges and filters the candidates and hands at most one batch per kind
// to the sender. Cycle errors are reported and the loop carries on.
type Poller struct {
	cfg     Config
	feed    Feed
	store   ExistenceStore
	sender  Sender
	logger  *zerolog.Logger
	onError func(err error)
}

func NewPoller(cfg Config, feed Feed, store ExistenceStore, sender Sender, logger *zerolog.Logger, onError func(err error)) *Poller {
	return &Poller{
		cfg:     cfg,
		feed:    feed,
		store:   store,
		sender:  sender,
		logger:  logger,
		onError: onError,
	}
}

// Run blocks until ctx is canceled, running the video and dynamic loops
// concurrently.
func (p *Poller) Run(ctx context.Context) error {
	loops := []worker.LoopConfig{
		{
			Name:         "video-poller",
			Run:          p.videoCycle,
			NextInterval: p.nextInterval,
			OnError:      p.reportCycleError,
			Logger:       p.logger,
		},
		{
			Name:         "dynamic-poller",
			Run:          p.dynamicCycle,
			NextInterval: p.nextInterval,
			OnError:      p.reportCycleError,
			Logger:       p.logger,
		},
	}

	errs := make(chan error, len(loops))

	for _, loop := range loops {
		go func(cfg worker.LoopConfig) {
			defer worker.RecoverPanic(p.logger, cfg.Name)
			errs <- worker.Loop(ctx, cfg)
		}(loop)
	}

	var first error
	for range loops {
		if err := <-errs; first == nil {
			first = err
		}
	}

	return first
}

func (p *Poller) reportCycleError(err error) {
	p.logger.Error().Err(err).Msg("poll cycle failed")

	if p.onError != nil {
		p.onError(err)
	}
}

// nextInterval slows the cadence during night hours, when little new
// content is posted.
func (p *Poller) nextInterval() time.Duration {
	hour := time.Now().In(p.cfg.Location).Hour()
	if p.cfg.IsNightHour != nil && p.cfg.IsNightHour(hour) {
		return p.cfg.NightInterval
	}

	return p.cfg.Interval
}

func (p *Poller) videoCycle(ctx context.Context) error {
	timer := prometheus.NewTimer(observability.PollCycleDuration.WithLabelValues(string(KindVideo)))
	defer timer.ObserveDuration()

	var collected []FeedItem

	// A failing topic only loses its own contribution this cycle.
	for _, topic := range p.cfg.Topics {
		videos, err := p.feed.TagVideos(ctx, topic.ID)
		if err != nil {
			p.logger.Warn().Err(err).Str("topic", topic.Name).Msg("tag feed fetch failed")

			continue
		}

		observability.FeedItemsFetched.WithLabelValues(string(KindVideo)).Add(float64(len(videos)))
		collected = append(collected, NormalizeVideos(videos)...)
	}

	return p.dispatch(ctx, KindVideo, p.cfg.VideoGroup, collected)
}

func (p *Poller) dynamicCycle(ctx context.Context) error {
	timer := prometheus.NewTimer(observability.PollCycleDuration.WithLabelValues(string(KindDynamic)))
	defer timer.ObserveDuration()

	var collected []FeedItem

	for _, topic := range p.cfg.Topics {
		offset := firstPageOffset

		for page := 0; page < p.cfg.PageLimit; page++ {
			feedPage, err := p.feed.TopicDynamics(ctx, topic.Name, offset)
			if err != nil {
				p.logger.Warn().Err(err).Str("topic", topic.Name).Msg("topic feed fetch failed")

				break
			}

			observability.FeedItemsFetched.WithLabelValues(string(KindDynamic)).Add(float64(len(feedPage.Cards)))
			collected = append(collected, NormalizeDynamics(feedPage.Cards, p.logger)...)

			if len(feedPage.Cards) == 0 || feedPage.Offset == "" || feedPage.Offset == firstPageOffset {
				break
			}

			offset = feedPage.Offset
		}
	}

	return p.dispatch(ctx, KindDynamic, p.cfg.DynamicGroup, collected)
}

func (p *Poller) dispatch(ctx context.Context, kind Kind, group string, collected []FeedItem) error {
	merged := MergeByID(collected)

	unsent, err := FilterUnsent(ctx, p.store, merged)
	if err != nil {
		return err
	}

	batches := Chunk(unsent, p.cfg.BatchSize)
	if len(batches) == 0 {
		p.logger.Debug().Str("kind", string(kind)).Msg("nothing new this cycle")

		return nil
	}

	for _, batch := range batches {
		if err := p.sender.Send(ctx, group, batch); err != nil {
			observability.BatchesSent.WithLabelValues(string(kind), "error").Inc()

			return fmt.Errorf("send %s batch: %w", kind, err)
		}

		observability.BatchesSent.WithLabelValues(string(kind), "ok").Inc()
		observability.ItemsNotified.WithLabelValues(string(kind)).Add(float64(len(batch)))
		p.logger.Info().Str("kind", string(kind)).Int("items", len(batch)).Msg("batch delivered")
	}

	return nil
}
