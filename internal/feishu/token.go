package feishu

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/yuzutea/curator/internal/platform/worker"
)

const (
	tokenEndpoint        = "https://open.feishu.cn/open-apis/auth/v3/tenant_access_token/internal/"
	tokenRefreshInterval = 10 * time.Minute
)

// TokenManager holds the tenant access token and refreshes it
// periodically. Reads are cheap; the refresh goroutine is the only writer.
type TokenManager struct {
	appID     string
	appSecret string
	client    *http.Client
	logger    *zerolog.Logger

	mu    sync.RWMutex
	token string
}

// NewTokenManager fetches the initial token before returning, so a
// client built on it is immediately usable.
func NewTokenManager(ctx context.Context, appID, appSecret string, logger *zerolog.Logger) (*TokenManager, error) {
	tm := &TokenManager{
		appID:     appID,
		appSecret: appSecret,
		client:    &http.Client{Timeout: defaultHTTPTimeout},
		logger:    logger,
	}

	if err := tm.refresh(ctx); err != nil {
		return nil, fmt.Errorf("initial token fetch: %w", err)
	}

	return tm, nil
}

// Token returns the current tenant access token.
func (tm *TokenManager) Token() string {
	tm.mu.RLock()
	defer tm.mu.RUnlock()

	return tm.token
}

// AutoRefresh refreshes the token on a fixed interval until the context
// is canceled. Refresh failures are logged and retried next tick.
func (tm *TokenManager) AutoRefresh(ctx context.Context) {
	for {
		if err := worker.Wait(ctx, tokenRefreshInterval); err != nil {
			return
		}

		if err := tm.refresh(ctx); err != nil {
			tm.logger.Error().Err(err).Msg("failed to refresh feishu token")
		}
	}
}

func (tm *TokenManager) refresh(ctx context.Context) error {
	body, err := json.Marshal(map[string]string{
		"app_id":     tm.appID,
		"app_secret": tm.appSecret,
	})
	if err != nil {
		return fmt.Errorf("marshal token request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenEndpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build token request: %w", err)
	}

	req.Header.Set(headerContentType, contentTypeJSON)

	resp, err := tm.client.Do(req)
	if err != nil {
		return fmt.Errorf("token request: %w", err)
	}
	defer resp.Body.Close()

	var payload struct {
		Code              int    `json:"code"`
		Msg               string `json:"msg"`
		TenantAccessToken string `json:"tenant_access_token"` //nolint:tagliatelle
	}

	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return fmt.Errorf("decode token response: %w", err)
	}

	if payload.Code != 0 {
		return fmt.Errorf("%w: (%d) %s", ErrAPIStatus, payload.Code, payload.Msg)
	}

	tm.mu.Lock()
	changed := payload.TenantAccessToken != tm.token
	tm.token = payload.TenantAccessToken
	tm.mu.Unlock()

	if changed {
		tm.logger.Debug().Msg("feishu access token updated")
	}

	return nil
}
