package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/yuzutea/curator/internal/ingest/bilibili"
	"github.com/yuzutea/curator/internal/output/cards"
	"github.com/yuzutea/curator/internal/process/curation"
	db "github.com/yuzutea/curator/internal/storage"
)

// CardRenderer builds per-item card bodies.
type CardRenderer interface {
	RenderVideo(ctx context.Context, info *bilibili.VideoInfo) (cards.Body, error)
	RenderDynamic(ctx context.Context, dynamic *bilibili.DynamicDesc, card *bilibili.PictureCard) (cards.Body, error)
}

// ChatSender posts a card to a chat and returns its message id.
type ChatSender interface {
	SendCard(ctx context.Context, chatID string, card json.RawMessage) (string, error)
}

// ItemStore records delivered items.
type ItemStore interface {
	InsertItem(ctx context.Context, item *db.Item) error
}

// GroupResolver maps a logical group name to today's chat id.
type GroupResolver interface {
	Resolve(ctx context.Context, logical string) (string, error)
}

// Notifier sends one batch as a single merged card and persists each
// item under the shared message id. Nothing is persisted when the send
// fails, so every item of a failed batch is retried on the next cycle.
type Notifier struct {
	resolver GroupResolver
	renderer CardRenderer
	chat     ChatSender
	store    ItemStore
	logger   *zerolog.Logger
}

func NewNotifier(resolver GroupResolver, renderer CardRenderer, chat ChatSender, store ItemStore, logger *zerolog.Logger) *Notifier {
	return &Notifier{
		resolver: resolver,
		renderer: renderer,
		chat:     chat,
		store:    store,
		logger:   logger,
	}
}

func (n *Notifier) Send(ctx context.Context, group string, items []curation.FeedItem) error {
	chatID, err := n.resolver.Resolve(ctx, group)
	if err != nil {
		return fmt.Errorf("resolve group %q: %w", group, err)
	}

	bodies := make([]cards.Body, 0, len(items))

	for i := range items {
		body, err := n.renderItem(ctx, &items[i])
		if err != nil {
			return err
		}

		bodies = append(bodies, body)
	}

	merged, err := cards.MergeBodies(bodies)
	if err != nil {
		return err
	}

	card, err := cards.WrapCard(merged)
	if err != nil {
		return err
	}

	messageID, err := n.chat.SendCard(ctx, chatID, card)
	if err != nil {
		return fmt.Errorf("send batch card: %w", err)
	}

	for i := range items {
		if err := n.persist(ctx, &items[i], bodies[i], messageID); err != nil {
			return err
		}
	}

	return nil
}

func (n *Notifier) renderItem(ctx context.Context, item *curation.FeedItem) (cards.Body, error) {
	switch item.Kind {
	case curation.KindVideo:
		return n.renderer.RenderVideo(ctx, item.Video)
	case curation.KindDynamic:
		return n.renderer.RenderDynamic(ctx, item.Dynamic, item.Picture)
	default:
		return nil, fmt.Errorf("unknown item kind %q", item.Kind)
	}
}

func (n *Notifier) persist(ctx context.Context, item *curation.FeedItem, body cards.Body, messageID string) error {
	cardJSON, err := cards.EncodeBody(body)
	if err != nil {
		return err
	}

	record := &db.Item{
		ID:        item.ID,
		CardJSON:  cardJSON,
		MessageID: messageID,
		CreatedAt: item.CreatedAt,
		Author:    item.Author,
	}

	if err := n.store.InsertItem(ctx, record); err != nil {
		return fmt.Errorf("persist item %s: %w", item.ID, err)
	}

	return nil
}
