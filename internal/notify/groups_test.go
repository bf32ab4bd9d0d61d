package notify

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yuzutea/curator/internal/feishu"
	db "github.com/yuzutea/curator/internal/storage"
)

type fakeGroupStore struct {
	mu     sync.Mutex
	groups map[string]string
}

func newFakeGroupStore() *fakeGroupStore {
	return &fakeGroupStore{groups: make(map[string]string)}
}

func (f *fakeGroupStore) GetGroupByName(_ context.Context, name string) (*db.Group, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	chatID, ok := f.groups[name]
	if !ok {
		return nil, db.ErrGroupNotFound
	}

	return &db.Group{Name: name, ChatID: chatID}, nil
}

func (f *fakeGroupStore) InsertGroup(_ context.Context, name, chatID string) (*db.Group, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.groups[name] = chatID

	return &db.Group{Name: name, ChatID: chatID}, nil
}

type fakeChatGroups struct {
	mu       sync.Mutex
	created  []string
	membered map[string][]string
}

func newFakeChatGroups() *fakeChatGroups {
	return &fakeChatGroups{membered: make(map[string][]string)}
}

func (f *fakeChatGroups) GetOrCreateGroup(_ context.Context, name string) (*feishu.Group, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.created = append(f.created, name)

	return &feishu.Group{ChatID: "oc_" + name, Name: name}, nil
}

func (f *fakeChatGroups) EnsureMembers(_ context.Context, chatID string, userIDs []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.membered[chatID] = userIDs

	return nil
}

func newTestResolver(store GroupStore, chat ChatGroups, dev bool) *Resolver {
	logger := zerolog.Nop()

	return NewResolver(store, chat, []string{"ou_1", "ou_2"}, time.UTC, dev, &logger)
}

func TestGroupName(t *testing.T) {
	resolver := newTestResolver(newFakeGroupStore(), newFakeChatGroups(), false)
	now := time.Date(2026, 6, 12, 15, 0, 0, 0, time.UTC)

	assert.Equal(t, "每日视频 06-12", resolver.GroupName("每日视频", now))

	dev := newTestResolver(newFakeGroupStore(), newFakeChatGroups(), true)
	assert.Equal(t, "每日视频 06-12 dev", dev.GroupName("每日视频", now))
}

func TestResolveCreatesOnce(t *testing.T) {
	store := newFakeGroupStore()
	chat := newFakeChatGroups()
	resolver := newTestResolver(store, chat, false)

	first, err := resolver.Resolve(context.Background(), "每日视频")
	require.NoError(t, err)
	require.NotEmpty(t, first)

	second, err := resolver.Resolve(context.Background(), "每日视频")
	require.NoError(t, err)
	assert.Equal(t, first, second)

	require.Len(t, chat.created, 1)
	assert.Equal(t, []string{"ou_1", "ou_2"}, chat.membered[first])
}

func TestResolveConcurrentExactlyOnce(t *testing.T) {
	store := newFakeGroupStore()
	chat := newFakeChatGroups()
	resolver := newTestResolver(store, chat, false)

	const n = 16

	chatIDs := make([]string, n)

	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)

		go func(i int) {
			defer wg.Done()

			chatID, err := resolver.Resolve(context.Background(), "每日动态")
			assert.NoError(t, err)
			chatIDs[i] = chatID
		}(i)
	}

	wg.Wait()

	assert.Len(t, chat.created, 1, "platform group created exactly once")

	for _, chatID := range chatIDs {
		assert.Equal(t, chatIDs[0], chatID)
	}
}
