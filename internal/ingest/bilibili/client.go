// Package bilibili wraps the upstream feed endpoints the curator polls:
// video lists per tag id and dynamic (post) feeds per topic name. All
// calls share one rate limiter so the pipeline never exceeds the
// configured minimum delay between upstream requests, no matter which
// poller issues them.
package bilibili

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultAPIBase = "https://api.bilibili.com"
	defaultVCBase  = "https://api.vc.bilibili.com"

	videoPageSize = 20
)

// ErrFeedStatus is returned when the upstream answers with a non-zero code.
var ErrFeedStatus = errors.New("feed api error")

// Client fetches feed pages. Safe for concurrent use.
type Client struct {
	client  *http.Client
	limiter *rate.Limiter
	apiBase string
	vcBase  string
}

// New creates a client enforcing at least callInterval between any two
// upstream requests.
func New(callInterval, timeout time.Duration) *Client {
	if callInterval <= 0 {
		callInterval = time.Second
	}

	return &Client{
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Every(callInterval), 1),
		apiBase: defaultAPIBase,
		vcBase:  defaultVCBase,
	}
}

// SetBaseURLs overrides the upstream endpoints. Used by tests.
func (c *Client) SetBaseURLs(apiBase, vcBase string) {
	c.apiBase = apiBase
	c.vcBase = vcBase
}

// feedResponse is the common envelope. The two API hosts disagree on the
// error message field name, so both are decoded.
type feedResponse struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Msg     string          `json:"msg"`
	Data    json.RawMessage `json:"data"`
}

func (r *feedResponse) errMessage() string {
	if r.Message != "" {
		return r.Message
	}

	return r.Msg
}

func (c *Client) get(ctx context.Context, endpoint string, query url.Values, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("feed rate limit: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+query.Encode(), nil)
	if err != nil {
		return fmt.Errorf("build feed request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("feed request: %w", err)
	}
	defer resp.Body.Close()

	var envelope feedResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("decode feed response: %w", err)
	}

	if envelope.Code != 0 {
		return fmt.Errorf("%w: (%d) %s", ErrFeedStatus, envelope.Code, envelope.errMessage())
	}

	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return fmt.Errorf("decode feed data: %w", err)
	}

	return nil
}

// TagVideos returns the newest videos under a tag id.
func (c *Client) TagVideos(ctx context.Context, tagID int64) ([]VideoInfo, error) {
	query := url.Values{}
	query.Set("pn", "1")
	query.Set("ps", strconv.Itoa(videoPageSize))
	query.Set("tag_id", strconv.FormatInt(tagID, 10))

	var data struct {
		News struct {
			Archives []VideoInfo `json:"archives"`
		} `json:"news"`
	}

	if err := c.get(ctx, c.apiBase+"/x/tag/detail", query, &data); err != nil {
		return nil, err
	}

	return data.News.Archives, nil
}

// DynamicsPage is one page of the time-ordered topic feed.
type DynamicsPage struct {
	Cards []Dynamic `json:"cards"`
	// Offset is the cursor for the next page.
	Offset string `json:"offset"`
}

// TopicDynamics returns dynamics under a topic name, newest before the
// given offset cursor ("0" for the first page).
func (c *Client) TopicDynamics(ctx context.Context, topicName, offset string) (*DynamicsPage, error) {
	query := url.Values{}
	query.Set("topic_name", topicName)
	query.Set("offset_dynamic_id", offset)

	var data DynamicsPage
	if err := c.get(ctx, c.vcBase+"/topic_svr/v1/topic_svr/topic_history", query, &data); err != nil {
		return nil, err
	}

	return &data, nil
}
