package callback

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/yuzutea/curator/internal/output/cards"
	"github.com/yuzutea/curator/internal/platform/observability"
	"github.com/yuzutea/curator/internal/platform/worker"
	db "github.com/yuzutea/curator/internal/storage"
)

// Logical archive group names. Accepted items are mirrored there so the
// downstream editors have a flat dated feed of everything approved.
const (
	videoArchiveGroup   = "视频归档"
	dynamicArchiveGroup = "动态归档"

	archiveTimeout = 30 * time.Second
)

// Store is the item state the handler reads and mutates.
type Store interface {
	GetItem(ctx context.Context, id string) (*db.Item, error)
	SetItemCategory(ctx context.Context, id, category, markedBy string) error
	SetItemCardJSON(ctx context.Context, id, cardJSON string) error
	CardsByMessageID(ctx context.Context, messageID string) ([]string, error)
}

// GroupResolver maps a logical group name to the chat id of its
// instance dated by at.
type GroupResolver interface {
	ResolveAt(ctx context.Context, logical string, at time.Time) (string, error)
}

// ChatSender posts a card to a chat.
type ChatSender interface {
	SendCard(ctx context.Context, chatID string, card json.RawMessage) (string, error)
}

// Handler applies moderator actions. Re-delivered actions are
// idempotent: the category write and the card rewrite both converge to
// the same state.
type Handler struct {
	store    Store
	resolver GroupResolver
	chat     ChatSender
	logger   *zerolog.Logger
}

func NewHandler(store Store, resolver GroupResolver, chat ChatSender, logger *zerolog.Logger) *Handler {
	return &Handler{
		store:    store,
		resolver: resolver,
		chat:     chat,
		logger:   logger,
	}
}

// Handle applies one event and returns the rebuilt element list of the
// whole batched message, loaded entirely from the store.
func (h *Handler) Handle(ctx context.Context, event Event) (cards.Body, error) {
	action, err := DecodeAction(event.Action)
	if err != nil {
		observability.CallbacksProcessed.WithLabelValues("rejected").Inc()

		return nil, err
	}

	var (
		itemID   string
		category string
		rewrite  func(cards.Body) cards.Body
	)

	switch a := action.(type) {
	case VideoSelect:
		itemID = a.BVID
		category = a.Category
		rewrite = func(body cards.Body) cards.Body { return cards.AcceptedVideo(body, a.Category) }
	case DynamicAccept:
		itemID = a.DynamicID
		category = db.CategoryDynamicAccepted
		rewrite = cards.AcceptedDynamic
	}

	body, err := h.apply(ctx, itemID, category, markedBy(event), rewrite)
	if err != nil {
		observability.CallbacksProcessed.WithLabelValues("error").Inc()

		return nil, err
	}

	observability.CallbacksProcessed.WithLabelValues("ok").Inc()

	return body, nil
}

func (h *Handler) apply(ctx context.Context, itemID, category, markedBy string, rewrite func(cards.Body) cards.Body) (cards.Body, error) {
	item, err := h.store.GetItem(ctx, itemID)
	if err != nil {
		return nil, err
	}

	if err := h.store.SetItemCategory(ctx, itemID, category, markedBy); err != nil {
		return nil, err
	}

	body, err := cards.DecodeBody(item.CardJSON)
	if err != nil {
		return nil, fmt.Errorf("item %s: %w", itemID, err)
	}

	rewritten := rewrite(body)

	encoded, err := cards.EncodeBody(rewritten)
	if err != nil {
		return nil, err
	}

	if err := h.store.SetItemCardJSON(ctx, itemID, encoded); err != nil {
		return nil, err
	}

	go h.sendArchiveCopy(archiveGroupName(category), item.CreatedAt, rewritten)

	return h.rebuildMessage(ctx, item.MessageID)
}

// rebuildMessage reassembles the full batched card from the persisted
// sibling bodies, so the returned view never depends on what the chat
// platform currently displays.
func (h *Handler) rebuildMessage(ctx context.Context, messageID string) (cards.Body, error) {
	rawCards, err := h.store.CardsByMessageID(ctx, messageID)
	if err != nil {
		return nil, err
	}

	bodies := make([]cards.Body, 0, len(rawCards))

	for _, raw := range rawCards {
		body, err := cards.DecodeBody(raw)
		if err != nil {
			return nil, fmt.Errorf("message %s: %w", messageID, err)
		}

		bodies = append(bodies, body)
	}

	return cards.MergeBodies(bodies)
}

// sendArchiveCopy mirrors an accepted item into the archive group
// dated by the item's publish time. Best effort: failures are logged
// and never surface to the moderator.
func (h *Handler) sendArchiveCopy(group string, publishedAt time.Time, body cards.Body) {
	defer worker.RecoverPanic(h.logger, "archive copy")

	ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
	defer cancel()

	chatID, err := h.resolver.ResolveAt(ctx, group, publishedAt)
	if err != nil {
		h.logger.Warn().Err(err).Str("group", group).Msg("archive group unavailable")

		return
	}

	card, err := cards.WrapCard(body)
	if err != nil {
		h.logger.Warn().Err(err).Msg("archive card marshal failed")

		return
	}

	if _, err := h.chat.SendCard(ctx, chatID, card); err != nil {
		h.logger.Warn().Err(err).Str("group", group).Msg("archive copy failed")
	}
}

func archiveGroupName(category string) string {
	if category == db.CategoryDynamicAccepted {
		return dynamicArchiveGroup
	}

	return videoArchiveGroup
}

func markedBy(event Event) string {
	if event.UserID != "" {
		return event.UserID
	}

	return event.OpenID
}
