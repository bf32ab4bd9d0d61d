package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yuzutea/curator/internal/ingest/bilibili"
	"github.com/yuzutea/curator/internal/output/cards"
	"github.com/yuzutea/curator/internal/process/curation"
	db "github.com/yuzutea/curator/internal/storage"
)

type fakeResolver struct {
	chatID string
	err    error
}

func (f *fakeResolver) Resolve(_ context.Context, _ string) (string, error) {
	return f.chatID, f.err
}

type fakeRenderer struct{}

func (fakeRenderer) RenderVideo(_ context.Context, info *bilibili.VideoInfo) (cards.Body, error) {
	return cards.Body{json.RawMessage(`{"tag":"div","video":"` + info.BVID + `"}`)}, nil
}

func (fakeRenderer) RenderDynamic(_ context.Context, dynamic *bilibili.DynamicDesc, _ *bilibili.PictureCard) (cards.Body, error) {
	return cards.Body{json.RawMessage(`{"tag":"div"}`)}, nil
}

type fakeChatSender struct {
	messageID string
	err       error
	sent      []json.RawMessage
	chatIDs   []string
}

func (f *fakeChatSender) SendCard(_ context.Context, chatID string, card json.RawMessage) (string, error) {
	if f.err != nil {
		return "", f.err
	}

	f.chatIDs = append(f.chatIDs, chatID)
	f.sent = append(f.sent, card)

	return f.messageID, nil
}

type fakeItemStore struct {
	inserted []db.Item
	err      error
}

func (f *fakeItemStore) InsertItem(_ context.Context, item *db.Item) error {
	if f.err != nil {
		return f.err
	}

	f.inserted = append(f.inserted, *item)

	return nil
}

func videoItem(id string, createdAt time.Time) curation.FeedItem {
	return curation.FeedItem{
		ID:        id,
		Kind:      curation.KindVideo,
		Author:    "up-" + id,
		CreatedAt: createdAt,
		Video:     &bilibili.VideoInfo{BVID: id},
	}
}

func TestNotifierSend(t *testing.T) {
	now := time.Date(2026, 6, 12, 9, 0, 0, 0, time.UTC)
	chat := &fakeChatSender{messageID: "om_1"}
	store := &fakeItemStore{}
	logger := zerolog.Nop()

	notifier := NewNotifier(&fakeResolver{chatID: "oc_x"}, fakeRenderer{}, chat, store, &logger)

	items := []curation.FeedItem{videoItem("BV1", now), videoItem("BV2", now.Add(time.Minute))}
	require.NoError(t, notifier.Send(context.Background(), "每日视频", items))

	require.Len(t, chat.sent, 1)
	assert.Equal(t, []string{"oc_x"}, chat.chatIDs)

	// One merged card: two bodies joined by a rule inside the envelope.
	var envelope struct {
		Elements struct {
			ZhCN []json.RawMessage `json:"zh_cn"`
		} `json:"i18n_elements"`
	}
	require.NoError(t, json.Unmarshal(chat.sent[0], &envelope))
	require.Len(t, envelope.Elements.ZhCN, 3)
	assert.JSONEq(t, `{"tag":"hr"}`, string(envelope.Elements.ZhCN[1]))

	require.Len(t, store.inserted, 2)
	for i, record := range store.inserted {
		assert.Equal(t, items[i].ID, record.ID)
		assert.Equal(t, "om_1", record.MessageID)
		assert.Equal(t, items[i].CreatedAt, record.CreatedAt)
		assert.Equal(t, items[i].Author, record.Author)
		assert.Empty(t, record.Category)
		assert.NotEmpty(t, record.CardJSON)
	}
}

func TestNotifierSendFailurePersistsNothing(t *testing.T) {
	chat := &fakeChatSender{err: errors.New("rate limited")}
	store := &fakeItemStore{}
	logger := zerolog.Nop()

	notifier := NewNotifier(&fakeResolver{chatID: "oc_x"}, fakeRenderer{}, chat, store, &logger)

	err := notifier.Send(context.Background(), "每日视频", []curation.FeedItem{videoItem("BV1", time.Now())})
	require.Error(t, err)
	assert.Empty(t, store.inserted)
}

func TestNotifierResolveFailure(t *testing.T) {
	chat := &fakeChatSender{messageID: "om_1"}
	store := &fakeItemStore{}
	logger := zerolog.Nop()

	notifier := NewNotifier(&fakeResolver{err: errors.New("chat api down")}, fakeRenderer{}, chat, store, &logger)

	err := notifier.Send(context.Background(), "每日视频", []curation.FeedItem{videoItem("BV1", time.Now())})
	require.Error(t, err)
	assert.Empty(t, chat.sent)
	assert.Empty(t, store.inserted)
}

func TestNotifierUnknownKind(t *testing.T) {
	chat := &fakeChatSender{messageID: "om_1"}
	store := &fakeItemStore{}
	logger := zerolog.Nop()

	notifier := NewNotifier(&fakeResolver{chatID: "oc_x"}, fakeRenderer{}, chat, store, &logger)

	err := notifier.Send(context.Background(), "每日视频", []curation.FeedItem{{ID: "x", Kind: "article"}})
	require.Error(t, err)
	assert.Empty(t, chat.sent)
}
