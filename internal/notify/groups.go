// Package notify delivers curated batches: it resolves the dated review
// group for a cycle and sends the merged card, persisting one record per
// item under the returned message id.
package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/yuzutea/curator/internal/feishu"
	"github.com/yuzutea/curator/internal/platform/observability"
	db "github.com/yuzutea/curator/internal/storage"
)

// GroupStore is the persisted name-to-chat mapping.
type GroupStore interface {
	GetGroupByName(ctx context.Context, name string) (*db.Group, error)
	InsertGroup(ctx context.Context, name, chatID string) (*db.Group, error)
}

// ChatGroups is the platform side of group management.
type ChatGroups interface {
	GetOrCreateGroup(ctx context.Context, name string) (*feishu.Group, error)
	EnsureMembers(ctx context.Context, chatID string, userIDs []string) error
}

// Resolver maps a logical group name to today's chat id, creating the
// group on first use. Creation is serialized behind a process-wide
// mutex with a re-check, so concurrent cycles landing on a fresh day
// create the group exactly once.
type Resolver struct {
	store   GroupStore
	chat    ChatGroups
	members []string
	loc     *time.Location
	dev     bool
	logger  *zerolog.Logger

	mu sync.Mutex
}

func NewResolver(store GroupStore, chat ChatGroups, members []string, loc *time.Location, dev bool, logger *zerolog.Logger) *Resolver {
	return &Resolver{
		store:   store,
		chat:    chat,
		members: members,
		loc:     loc,
		dev:     dev,
		logger:  logger,
	}
}

// GroupName is the dated display name for a logical group, local date.
func (r *Resolver) GroupName(logical string, now time.Time) string {
	name := fmt.Sprintf("%s %s", logical, now.In(r.loc).Format("01-02"))
	if r.dev {
		name += " dev"
	}

	return name
}

// Resolve returns the chat id for today's instance of the logical group.
func (r *Resolver) Resolve(ctx context.Context, logical string) (string, error) {
	return r.ResolveAt(ctx, logical, time.Now())
}

// ResolveAt resolves the instance of the logical group dated by at.
func (r *Resolver) ResolveAt(ctx context.Context, logical string, at time.Time) (string, error) {
	name := r.GroupName(logical, at)

	chatID, err := r.lookup(ctx, name)
	if err == nil {
		return chatID, nil
	}

	if !errors.Is(err, db.ErrGroupNotFound) {
		return "", err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Another cycle may have created the group while we waited.
	chatID, err = r.lookup(ctx, name)
	if err == nil {
		return chatID, nil
	}

	if !errors.Is(err, db.ErrGroupNotFound) {
		return "", err
	}

	return r.create(ctx, name)
}

func (r *Resolver) lookup(ctx context.Context, name string) (string, error) {
	group, err := r.store.GetGroupByName(ctx, name)
	if err != nil {
		return "", err
	}

	return group.ChatID, nil
}

func (r *Resolver) create(ctx context.Context, name string) (string, error) {
	group, err := r.chat.GetOrCreateGroup(ctx, name)
	if err != nil {
		return "", fmt.Errorf("create group %q: %w", name, err)
	}

	chatID := group.ChatID

	if err := r.chat.EnsureMembers(ctx, chatID, r.members); err != nil {
		return "", fmt.Errorf("ensure members of %q: %w", name, err)
	}

	if _, err := r.store.InsertGroup(ctx, name, chatID); err != nil {
		return "", fmt.Errorf("record group %q: %w", name, err)
	}

	observability.GroupsCreated.Inc()
	r.logger.Info().Str("group", name).Str("chat_id", chatID).Msg("review group ready")

	return chatID, nil
}
