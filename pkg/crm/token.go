package crm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/revcrew/leadflow/pkg/pipeline"
	"github.com/revcrew/leadflow/pkg/store"
)

// tokenCacheKey is the well-known K/V key shared by all processes.
const tokenCacheKey = "crm:access_token"

// refreshSafety is subtracted from the token lifetime so we refresh
// slightly before the CRM would reject it.
const refreshSafety = 30 * time.Second

// TokenManager performs the lazy OAuth refresh-token flow. The K/V copy is
// the cross-process source of truth; the in-memory copy avoids a store
// round trip per request. Concurrent refreshes collapse into one flight.
type TokenManager struct {
	kv           *store.Store
	httpClient   *http.Client
	tokenURL     string
	clientID     string
	clientSecret string
	refreshToken string
	logger       *slog.Logger

	mu        sync.Mutex
	token     string
	expiresAt time.Time

	flight singleflight.Group
}

// TokenConfig configures the token manager.
type TokenConfig struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	RefreshToken string
}

// NewTokenManager builds a token manager. httpClient may be nil.
func NewTokenManager(kv *store.Store, httpClient *http.Client, cfg TokenConfig) *TokenManager {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 20 * time.Second}
	}
	return &TokenManager{
		kv:           kv,
		httpClient:   httpClient,
		tokenURL:     cfg.TokenURL,
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		refreshToken: cfg.RefreshToken,
		logger:       slog.Default().With("component", "crm-token"),
	}
}

// AccessToken returns a valid access token, refreshing lazily on expiry.
func (m *TokenManager) AccessToken(ctx context.Context) (string, error) {
	m.mu.Lock()
	if m.token != "" && time.Now().Before(m.expiresAt) {
		tok := m.token
		m.mu.Unlock()
		return tok, nil
	}
	m.mu.Unlock()

	if cached, err := m.kv.Get(ctx, tokenCacheKey); err == nil && cached != "" {
		return cached, nil
	} else if err != nil && !errors.Is(err, store.ErrNotFound) {
		m.logger.Warn("Token cache read failed, falling back to refresh", "error", err)
	}

	return m.refresh(ctx)
}

// Invalidate drops both cached copies. Called once after a 401 so the next
// request refreshes.
func (m *TokenManager) Invalidate(ctx context.Context) {
	m.mu.Lock()
	m.token = ""
	m.expiresAt = time.Time{}
	m.mu.Unlock()
	if err := m.kv.Del(ctx, tokenCacheKey); err != nil {
		m.logger.Warn("Failed to drop cached token", "error", err)
	}
}

// refresh exchanges the refresh token for a new access token. Concurrent
// callers share one outbound request.
func (m *TokenManager) refresh(ctx context.Context) (string, error) {
	tok, err, _ := m.flight.Do("refresh", func() (any, error) {
		return m.doRefresh(ctx)
	})
	if err != nil {
		return "", err
	}
	return tok.(string), nil
}

func (m *TokenManager) doRefresh(ctx context.Context) (string, error) {
	if m.clientID == "" || m.clientSecret == "" || m.refreshToken == "" {
		return "", pipeline.Permanentf("missing CRM OAuth credentials")
	}

	form := url.Values{
		"refresh_token": {m.refreshToken},
		"client_id":     {m.clientID},
		"client_secret": {m.clientSecret},
		"grant_type":    {"refresh_token"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("building token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return "", pipeline.Transient("token refresh", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", pipeline.Transient("reading token response", err)
	}

	if resp.StatusCode >= 400 {
		return "", classifyTokenError(resp.StatusCode, body)
	}

	var parsed struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil || parsed.AccessToken == "" {
		return "", pipeline.Permanentf("token refresh response missing access_token")
	}

	lifetime := time.Duration(parsed.ExpiresIn) * time.Second
	if lifetime <= 0 {
		lifetime = 50 * time.Minute
	}
	ttl := lifetime - refreshSafety
	if ttl < time.Minute {
		ttl = time.Minute
	}

	m.mu.Lock()
	m.token = parsed.AccessToken
	m.expiresAt = time.Now().Add(ttl)
	m.mu.Unlock()

	if err := m.kv.Set(ctx, tokenCacheKey, parsed.AccessToken, ttl); err != nil {
		m.logger.Warn("Failed to cache access token", "error", err)
	}

	m.logger.Info("CRM access token refreshed", "ttl", ttl)
	return parsed.AccessToken, nil
}

// classifyTokenError maps token endpoint failures. The CRM sometimes
// answers HTTP 400 "Access Denied" when rate-limiting the token endpoint,
// which must retry rather than fail the job.
func classifyTokenError(status int, body []byte) error {
	var parsed struct {
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
	}
	_ = json.Unmarshal(body, &parsed)
	desc := strings.ToLower(parsed.ErrorDescription)
	errCode := strings.ToLower(parsed.Error)
	if strings.Contains(desc, "too many requests") ||
		(strings.Contains(desc, "rate") && strings.Contains(desc, "limit")) ||
		strings.Contains(errCode, "access denied") {
		return pipeline.Transientf("token refresh rate-limited: http %d %s", status, parsed.Error)
	}
	return pipeline.ClassifyHTTPStatus(status, "token refresh: "+parsed.Error)
}
