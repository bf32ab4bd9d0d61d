// Package feishu is a minimal Feishu open-platform client covering what
// the curation pipeline needs: group management, interactive card
// messages and image uploads.
package feishu

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	defaultBaseURL     = "https://open.feishu.cn"
	defaultHTTPTimeout = 20 * time.Second

	headerAuthorization = "Authorization"
	headerContentType   = "Content-Type"
	contentTypeJSON     = "application/json"
)

// ErrAPIStatus is returned when the platform answers with a non-zero code.
var ErrAPIStatus = errors.New("feishu api error")

// Group is a platform chat group.
type Group struct {
	ChatID string `json:"chat_id"` //nolint:tagliatelle
	Name   string `json:"name"`
}

// GroupMember is one member of a chat group.
type GroupMember struct {
	Name     string `json:"name"`
	MemberID string `json:"member_id"` //nolint:tagliatelle
}

// User is one entry of the tenant directory.
type User struct {
	Name   string `json:"name"`
	OpenID string `json:"open_id"` //nolint:tagliatelle
	UserID string `json:"user_id"` //nolint:tagliatelle
}

// SentMessage is the acknowledgement for a sent card.
type SentMessage struct {
	MessageID string `json:"message_id"` //nolint:tagliatelle
}

// TokenSource provides the current tenant access token.
type TokenSource interface {
	Token() string
}

// Client calls the Feishu open APIs. Safe for concurrent use.
type Client struct {
	client  *http.Client
	tokens  TokenSource
	baseURL string
	logger  *zerolog.Logger
}

// New creates a client using the given token source.
func New(tokens TokenSource, logger *zerolog.Logger) *Client {
	return &Client{
		client:  &http.Client{Timeout: defaultHTTPTimeout},
		tokens:  tokens,
		baseURL: defaultBaseURL,
		logger:  logger,
	}
}

// SetBaseURL overrides the API endpoint. Used by tests.
func (c *Client) SetBaseURL(url string) {
	c.baseURL = url
}

type dataResponse struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

type page[T any] struct {
	Items     []T    `json:"items"`
	PageToken string `json:"page_token"` //nolint:tagliatelle
	HasMore   bool   `json:"has_more"`   //nolint:tagliatelle
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	req.Header.Set(headerAuthorization, "Bearer "+c.tokens.Token())

	if contentType != "" {
		req.Header.Set(headerContentType, contentType)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("feishu request: %w", err)
	}
	defer resp.Body.Close()

	var envelope dataResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("decode feishu response: %w", err)
	}

	if envelope.Code != 0 {
		return fmt.Errorf("%w: (%d) %s", ErrAPIStatus, envelope.Code, envelope.Msg)
	}

	if out != nil {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return fmt.Errorf("decode feishu data: %w", err)
		}
	}

	return nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	return c.do(ctx, method, path, bytes.NewReader(body), contentTypeJSON, out)
}

// ListGroups returns the groups the app is a member of.
func (c *Client) ListGroups(ctx context.Context) ([]Group, error) {
	var groups page[Group]
	if err := c.do(ctx, http.MethodGet, "/open-apis/im/v1/chats?page_size=100", nil, "", &groups); err != nil {
		return nil, err
	}

	return groups.Items, nil
}

// ListUsers returns the tenant user directory with user ids filled in.
func (c *Client) ListUsers(ctx context.Context) ([]User, error) {
	var users page[User]
	if err := c.do(ctx, http.MethodGet, "/open-apis/contact/v3/users?user_id_type=user_id&page_size=100", nil, "", &users); err != nil {
		return nil, err
	}

	return users.Items, nil
}

// CreateGroup creates a public group with open membership.
func (c *Client) CreateGroup(ctx context.Context, name string) (*Group, error) {
	c.logger.Info().Str("group", name).Msg("creating feishu group")

	var group Group

	err := c.doJSON(ctx, http.MethodPost, "/open-apis/im/v1/chats", map[string]any{
		"name":                  name,
		"chat_mode":             "group",
		"chat_type":             "public",
		"membership_approval":   "no_approval_required",
		"add_member_permission": "all_members",
	}, &group)
	if err != nil {
		return nil, err
	}

	return &group, nil
}

// GetOrCreateGroup returns the existing group with the given name, or
// creates one.
func (c *Client) GetOrCreateGroup(ctx context.Context, name string) (*Group, error) {
	groups, err := c.ListGroups(ctx)
	if err != nil {
		return nil, err
	}

	for _, g := range groups {
		if g.Name == name {
			return &g, nil
		}
	}

	return c.CreateGroup(ctx, name)
}

// GroupMembers lists the members currently in a group.
func (c *Client) GroupMembers(ctx context.Context, chatID string) ([]GroupMember, error) {
	path := fmt.Sprintf("/open-apis/im/v1/chats/%s/members?member_id_type=user_id&page_size=100", chatID)

	var members page[GroupMember]
	if err := c.do(ctx, http.MethodGet, path, nil, "", &members); err != nil {
		return nil, err
	}

	return members.Items, nil
}

// AddMembers adds the given user ids to a group.
func (c *Client) AddMembers(ctx context.Context, chatID string, userIDs []string) error {
	path := fmt.Sprintf("/open-apis/im/v1/chats/%s/members?member_id_type=user_id", chatID)

	return c.doJSON(ctx, http.MethodPost, path, map[string]any{"id_list": userIDs}, nil)
}

// EnsureMembers adds any of the given user ids not already in the group.
func (c *Client) EnsureMembers(ctx context.Context, chatID string, userIDs []string) error {
	members, err := c.GroupMembers(ctx, chatID)
	if err != nil {
		return fmt.Errorf("list group members: %w", err)
	}

	current := make(map[string]struct{}, len(members))
	for _, m := range members {
		current[m.MemberID] = struct{}{}
	}

	var missing []string

	for _, id := range userIDs {
		if _, ok := current[id]; !ok {
			missing = append(missing, id)
		}
	}

	if len(missing) == 0 {
		return nil
	}

	c.logger.Info().Strs("user_ids", missing).Str("chat_id", chatID).Msg("adding users to group")

	if err := c.AddMembers(ctx, chatID, missing); err != nil {
		return fmt.Errorf("add members: %w", err)
	}

	return nil
}

// SendCard sends an interactive card to a group and returns the platform
// message id. The per-call uuid makes retried sends idempotent on the
// platform side.
func (c *Client) SendCard(ctx context.Context, chatID string, card json.RawMessage) (string, error) {
	var sent SentMessage

	err := c.doJSON(ctx, http.MethodPost, "/open-apis/message/v4/send/", map[string]any{
		"chat_id":      chatID,
		"msg_type":     "interactive",
		"card":         card,
		"update_multi": true,
		"uuid":         uuid.NewString(),
	}, &sent)
	if err != nil {
		return "", err
	}

	return sent.MessageID, nil
}

// UploadImage uploads raw image bytes and returns the platform image key.
func (c *Client) UploadImage(ctx context.Context, data []byte) (string, error) {
	var buf bytes.Buffer

	form := multipart.NewWriter(&buf)

	if err := form.WriteField("image_type", "message"); err != nil {
		return "", fmt.Errorf("write form field: %w", err)
	}

	part, err := form.CreateFormFile("image", "image")
	if err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}

	if _, err := part.Write(data); err != nil {
		return "", fmt.Errorf("write image bytes: %w", err)
	}

	if err := form.Close(); err != nil {
		return "", fmt.Errorf("close form: %w", err)
	}

	var uploaded struct {
		ImageKey string `json:"image_key"` //nolint:tagliatelle
	}

	if err := c.do(ctx, http.MethodPost, "/open-apis/im/v1/images", &buf, form.FormDataContentType(), &uploaded); err != nil {
		return "", err
	}

	return uploaded.ImageKey, nil
}

// FetchImage downloads an image from an arbitrary URL.
func (c *Client) FetchImage(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build image request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: image status %d", ErrAPIStatus, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read image body: %w", err)
	}

	return data, nil
}

// UploadImageURL downloads an image and uploads it to the platform.
func (c *Client) UploadImageURL(ctx context.Context, url string) (string, error) {
	data, err := c.FetchImage(ctx, url)
	if err != nil {
		return "", err
	}

	return c.UploadImage(ctx, data)
}
