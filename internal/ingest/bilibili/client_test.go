package bilibili

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFeed(t *testing.T, handler http.Handler) *Client {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client := New(time.Millisecond, 5*time.Second)
	client.SetBaseURLs(server.URL, server.URL)

	return client
}

func TestTagVideos(t *testing.T) {
	client := newTestFeed(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/x/tag/detail", r.URL.Path)
		assert.Equal(t, "1712619", r.URL.Query().Get("tag_id"))
		assert.Equal(t, "1", r.URL.Query().Get("pn"))

		_, _ = w.Write([]byte(`{
			"code": 0,
			"data": {"news": {"archives": [
				{"bvid": "BV1", "title": "每日编曲", "pic": "https://i0.hdslb.com/c.jpg",
				 "owner": {"mid": 9, "name": "up主"},
				 "stat": {"view": 100, "reply": 5, "danmaku": 8},
				 "duration": 180, "pubdate": 1718100000, "copyright": 1}
			]}}
		}`))
	}))

	videos, err := client.TagVideos(context.Background(), 1712619)
	require.NoError(t, err)
	require.Len(t, videos, 1)

	video := videos[0]
	assert.Equal(t, "BV1", video.BVID)
	assert.Equal(t, "每日编曲", video.Title)
	assert.Equal(t, "https://i0.hdslb.com/c.jpg", video.CoverURL)
	assert.Equal(t, "up主", video.Owner.Name)
	assert.Equal(t, int64(100), video.Stat.View)
	assert.Equal(t, int64(1718100000), video.PublishedAt().Unix())
	assert.False(t, video.IsRepost())
}

func TestTagVideosUpstreamError(t *testing.T) {
	client := newTestFeed(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"code": -404, "message": "啥都木有"}`))
	}))

	_, err := client.TagVideos(context.Background(), 1)
	require.ErrorIs(t, err, ErrFeedStatus)
	assert.Contains(t, err.Error(), "啥都木有")
}

func TestTopicDynamics(t *testing.T) {
	client := newTestFeed(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/topic_svr/v1/topic_svr/topic_history", r.URL.Path)
		assert.Equal(t, "嘉然", r.URL.Query().Get("topic_name"))
		assert.Equal(t, "0", r.URL.Query().Get("offset_dynamic_id"))

		_, _ = w.Write([]byte(`{
			"code": 0,
			"data": {
				"cards": [{
					"desc": {"type": 2, "dynamic_id": 987, "timestamp": 1718100000,
					         "user_profile": {"info": {"uid": 1, "uname": "画师", "face": ""}}},
					"card": "{\"item\":{\"description\":\"摸鱼\",\"pictures\":[{\"img_src\":\"https://i0.hdslb.com/p.jpg\",\"img_width\":800,\"img_height\":600}]}}"
				}],
				"offset": "986"
			}
		}`))
	}))

	page, err := client.TopicDynamics(context.Background(), "嘉然", "0")
	require.NoError(t, err)
	require.Len(t, page.Cards, 1)
	assert.Equal(t, "986", page.Offset)

	desc := page.Cards[0].Desc
	assert.Equal(t, DynamicTypePicture, desc.Type)
	assert.Equal(t, int64(987), desc.DynamicID)
	assert.Equal(t, "画师", desc.User.Info.Name)

	card, err := ParsePictureCard(page.Cards[0].Card)
	require.NoError(t, err)
	assert.Equal(t, "摸鱼", card.Description)
	require.Len(t, card.Pictures, 1)
	assert.Equal(t, int64(800), card.Pictures[0].Width)
}

func TestRateLimiterPacesCalls(t *testing.T) {
	var calls int

	client := newTestFeed(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++

		_, _ = w.Write([]byte(`{"code": 0, "data": {"news": {"archives": []}}}`))
	}))

	start := time.Now()

	for range 3 {
		_, err := client.TagVideos(context.Background(), 1)
		require.NoError(t, err)
	}

	assert.Equal(t, 3, calls)
	// Burst 1 with a 1ms refill means at least two waits happened.
	assert.GreaterOrEqual(t, time.Since(start), 2*time.Millisecond)
}

func TestParsePictureCardMalformed(t *testing.T) {
	_, err := ParsePictureCard("{broken")
	assert.Error(t, err)
}
