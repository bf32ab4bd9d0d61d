package callback

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yuzutea/curator/internal/output/cards"
	db "github.com/yuzutea/curator/internal/storage"
)

func TestDecodeAction(t *testing.T) {
	tests := []struct {
		name    string
		payload ActionPayload
		want    any
		wantErr error
	}{
		{
			name:    "video select",
			payload: ActionPayload{Value: map[string]string{"type": "video", "bvid": "BV1"}, Option: "舞蹈"},
			want:    VideoSelect{BVID: "BV1", Category: "舞蹈"},
		},
		{
			name:    "dynamic accept",
			payload: ActionPayload{Value: map[string]string{"type": "dynamic", "dynamic_id": "42"}},
			want:    DynamicAccept{DynamicID: "42"},
		},
		{
			name:    "video without option",
			payload: ActionPayload{Value: map[string]string{"type": "video", "bvid": "BV1"}},
			wantErr: ErrMissingField,
		},
		{
			name:    "video without bvid",
			payload: ActionPayload{Value: map[string]string{"type": "video"}, Option: "舞蹈"},
			wantErr: ErrMissingField,
		},
		{
			name:    "dynamic without id",
			payload: ActionPayload{Value: map[string]string{"type": "dynamic"}},
			wantErr: ErrMissingField,
		},
		{
			name:    "unknown type",
			payload: ActionPayload{Value: map[string]string{"type": "article", "id": "7"}},
			wantErr: ErrUnknownAction,
		},
		{
			name:    "empty payload",
			payload: ActionPayload{},
			wantErr: ErrUnknownAction,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeAction(tt.payload)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

type fakeStore struct {
	mu    sync.Mutex
	items map[string]*db.Item
}

func newFakeStore(items ...*db.Item) *fakeStore {
	store := &fakeStore{items: make(map[string]*db.Item)}
	for _, item := range items {
		store.items[item.ID] = item
	}

	return store
}

func (f *fakeStore) GetItem(_ context.Context, id string) (*db.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	item, ok := f.items[id]
	if !ok {
		return nil, db.ErrItemNotFound
	}

	copied := *item

	return &copied, nil
}

func (f *fakeStore) SetItemCategory(_ context.Context, id, category, markedBy string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	item, ok := f.items[id]
	if !ok {
		return db.ErrItemNotFound
	}

	item.Category = category
	item.MarkedBy = markedBy

	return nil
}

func (f *fakeStore) SetItemCardJSON(_ context.Context, id, cardJSON string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	item, ok := f.items[id]
	if !ok {
		return db.ErrItemNotFound
	}

	item.CardJSON = cardJSON

	return nil
}

func (f *fakeStore) CardsByMessageID(_ context.Context, messageID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	// Ascending insertion time is approximated by sorted ids; the fake
	// is only ever seeded in order.
	var raw []string

	for _, id := range f.sortedIDs() {
		if f.items[id].MessageID == messageID {
			raw = append(raw, f.items[id].CardJSON)
		}
	}

	return raw, nil
}

func (f *fakeStore) sortedIDs() []string {
	ids := make([]string, 0, len(f.items))
	for id := range f.items {
		ids = append(ids, id)
	}

	for i := range ids {
		for j := i + 1; j < len(ids); j++ {
			if ids[j] < ids[i] {
				ids[i], ids[j] = ids[j], ids[i]
			}
		}
	}

	return ids
}

type fakeArchiveChat struct {
	mu     sync.Mutex
	sent   []json.RawMessage
	notify chan struct{}
}

func (f *fakeArchiveChat) SendCard(_ context.Context, _ string, card json.RawMessage) (string, error) {
	f.mu.Lock()
	f.sent = append(f.sent, card)
	f.mu.Unlock()

	if f.notify != nil {
		f.notify <- struct{}{}
	}

	return "om_archive", nil
}

type staticResolver struct {
	mu       sync.Mutex
	resolved []time.Time
}

func (r *staticResolver) ResolveAt(_ context.Context, logical string, at time.Time) (string, error) {
	r.mu.Lock()
	r.resolved = append(r.resolved, at)
	r.mu.Unlock()

	return "oc_" + logical, nil
}

func (r *staticResolver) resolvedAt() []time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]time.Time(nil), r.resolved...)
}

func threeBlockBody(label string) string {
	body := cards.Body{
		json.RawMessage(`{"tag":"div","label":"` + label + `"}`),
		json.RawMessage(`{"tag":"action"}`),
		json.RawMessage(`{"tag":"note"}`),
	}

	encoded, _ := cards.EncodeBody(body)

	return encoded
}

func newTestHandler(store Store) (*Handler, *fakeArchiveChat) {
	logger := zerolog.Nop()
	chat := &fakeArchiveChat{notify: make(chan struct{}, 4)}

	return NewHandler(store, &staticResolver{}, chat, &logger), chat
}

func waitArchive(t *testing.T, chat *fakeArchiveChat) {
	t.Helper()

	select {
	case <-chat.notify:
	case <-time.After(2 * time.Second):
		t.Fatal("archive copy never sent")
	}
}

func TestHandleVideoSelect(t *testing.T) {
	store := newFakeStore(
		&db.Item{ID: "BV1", MessageID: "om_1", CardJSON: threeBlockBody("one")},
		&db.Item{ID: "BV2", MessageID: "om_1", CardJSON: threeBlockBody("two")},
	)
	handler, chat := newTestHandler(store)

	elements, err := handler.Handle(context.Background(), Event{
		UserID: "ou_mod",
		Action: ActionPayload{Value: map[string]string{"type": "video", "bvid": "BV1"}, Option: "音乐"},
	})
	require.NoError(t, err)

	// Two three-block bodies plus one separator.
	require.Len(t, elements, 7)

	var middle struct {
		Tag     string `json:"tag"`
		Content string `json:"content"`
	}
	require.NoError(t, json.Unmarshal(elements[1], &middle))
	assert.Equal(t, "markdown", middle.Tag)
	assert.Equal(t, "✔️ 已接受，分类：音乐", middle.Content)

	item, err := store.GetItem(context.Background(), "BV1")
	require.NoError(t, err)
	assert.Equal(t, "音乐", item.Category)
	assert.Equal(t, "ou_mod", item.MarkedBy)
	assert.Equal(t, db.StatusCategorized, item.Status())

	// The sibling's stored card is untouched.
	sibling, err := store.GetItem(context.Background(), "BV2")
	require.NoError(t, err)
	assert.Equal(t, threeBlockBody("two"), sibling.CardJSON)

	waitArchive(t, chat)
	assert.Len(t, chat.sent, 1)
}

func TestHandleDynamicAccept(t *testing.T) {
	store := newFakeStore(&db.Item{ID: "42", MessageID: "om_1", CardJSON: threeBlockBody("pic")})
	handler, chat := newTestHandler(store)

	elements, err := handler.Handle(context.Background(), Event{
		OpenID: "ou_open",
		Action: ActionPayload{Value: map[string]string{"type": "dynamic", "dynamic_id": "42"}},
	})
	require.NoError(t, err)
	require.Len(t, elements, 3)

	item, err := store.GetItem(context.Background(), "42")
	require.NoError(t, err)
	assert.Equal(t, db.CategoryDynamicAccepted, item.Category)
	assert.Equal(t, "ou_open", item.MarkedBy)

	waitArchive(t, chat)
}

func TestArchiveGroupDatedByPublishTime(t *testing.T) {
	published := time.Date(2026, 6, 12, 23, 50, 0, 0, time.UTC)
	store := newFakeStore(&db.Item{
		ID:        "BV1",
		MessageID: "om_1",
		CardJSON:  threeBlockBody("one"),
		CreatedAt: published,
	})

	logger := zerolog.Nop()
	chat := &fakeArchiveChat{notify: make(chan struct{}, 1)}
	resolver := &staticResolver{}
	handler := NewHandler(store, resolver, chat, &logger)

	_, err := handler.Handle(context.Background(), Event{
		UserID: "ou_mod",
		Action: ActionPayload{Value: map[string]string{"type": "video", "bvid": "BV1"}, Option: "音乐"},
	})
	require.NoError(t, err)

	waitArchive(t, chat)

	resolved := resolver.resolvedAt()
	require.Len(t, resolved, 1)
	assert.True(t, published.Equal(resolved[0]))
}

func TestHandleIdempotent(t *testing.T) {
	store := newFakeStore(&db.Item{ID: "BV1", MessageID: "om_1", CardJSON: threeBlockBody("one")})
	handler, chat := newTestHandler(store)

	event := Event{
		UserID: "ou_mod",
		Action: ActionPayload{Value: map[string]string{"type": "video", "bvid": "BV1"}, Option: "舞蹈"},
	}

	first, err := handler.Handle(context.Background(), event)
	require.NoError(t, err)
	waitArchive(t, chat)

	second, err := handler.Handle(context.Background(), event)
	require.NoError(t, err)
	waitArchive(t, chat)

	assert.Equal(t, first, second)

	item, err := store.GetItem(context.Background(), "BV1")
	require.NoError(t, err)
	assert.Equal(t, "舞蹈", item.Category)
}

func TestHandleUnknownItem(t *testing.T) {
	handler, _ := newTestHandler(newFakeStore())

	_, err := handler.Handle(context.Background(), Event{
		Action: ActionPayload{Value: map[string]string{"type": "video", "bvid": "BVmissing"}, Option: "音乐"},
	})
	require.ErrorIs(t, err, db.ErrItemNotFound)
}

func TestHandleMalformedActionNoMutation(t *testing.T) {
	item := &db.Item{ID: "BV1", MessageID: "om_1", CardJSON: threeBlockBody("one")}
	store := newFakeStore(item)
	handler, chat := newTestHandler(store)

	_, err := handler.Handle(context.Background(), Event{
		Action: ActionPayload{Value: map[string]string{"type": "sticker"}},
	})
	require.ErrorIs(t, err, ErrUnknownAction)

	got, err := store.GetItem(context.Background(), "BV1")
	require.NoError(t, err)
	assert.Empty(t, got.Category)
	assert.Equal(t, threeBlockBody("one"), got.CardJSON)
	assert.Empty(t, chat.sent)
}

func TestHandleCorruptCardJSON(t *testing.T) {
	store := newFakeStore(&db.Item{ID: "BV1", MessageID: "om_1", CardJSON: "{broken"})
	handler, _ := newTestHandler(store)

	_, err := handler.Handle(context.Background(), Event{
		Action: ActionPayload{Value: map[string]string{"type": "video", "bvid": "BV1"}, Option: "音乐"},
	})
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrUnknownAction))
}
