package crm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/revcrew/leadflow/pkg/pipeline"
	"github.com/revcrew/leadflow/pkg/store"
)

func newTestStore(t *testing.T) (*store.Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	kv := store.NewWithClient(redisClient(mr.Addr()))
	t.Cleanup(func() { _ = kv.Close() })
	return kv, mr
}

func newTokenManager(t *testing.T, kv *store.Store, srv *httptest.Server) *TokenManager {
	t.Helper()
	return NewTokenManager(kv, srv.Client(), TokenConfig{
		TokenURL:     srv.URL,
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RefreshToken: "refresh-token",
	})
}

func TestAccessTokenRefreshesAndCaches(t *testing.T) {
	kv, mr := newTestStore(t)

	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.Form.Get("grant_type"))
		assert.Equal(t, "refresh-token", r.Form.Get("refresh_token"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "tok-1",
			"expires_in":   3600,
		})
	}))
	defer srv.Close()

	m := newTokenManager(t, kv, srv)
	ctx := context.Background()

	tok, err := m.AccessToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, "tok-1", tok)
	assert.Equal(t, 1, calls)

	// Cached in the K/V store with the safety margin applied.
	cached, err := kv.Get(ctx, "crm:access_token")
	require.NoError(t, err)
	assert.Equal(t, "tok-1", cached)
	assert.InDelta(t, (time.Hour - 30*time.Second).Seconds(), mr.TTL("crm:access_token").Seconds(), 5)

	// Second call serves from memory without hitting the endpoint.
	tok, err = m.AccessToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, "tok-1", tok)
	assert.Equal(t, 1, calls)
}

func TestAccessTokenReadsSharedCache(t *testing.T) {
	kv, _ := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, kv.Set(ctx, "crm:access_token", "shared-tok", time.Hour))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("token endpoint must not be called when the shared cache is warm")
	}))
	defer srv.Close()

	m := newTokenManager(t, kv, srv)
	tok, err := m.AccessToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, "shared-tok", tok)
}

func TestInvalidateForcesRefresh(t *testing.T) {
	kv, _ := newTestStore(t)

	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "tok-" + string(rune('0'+calls)),
			"expires_in":   3600,
		})
	}))
	defer srv.Close()

	m := newTokenManager(t, kv, srv)
	ctx := context.Background()

	tok, err := m.AccessToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, "tok-1", tok)

	m.Invalidate(ctx)
	_, err = kv.Get(ctx, "crm:access_token")
	assert.ErrorIs(t, err, store.ErrNotFound)

	tok, err = m.AccessToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, "tok-2", tok)
	assert.Equal(t, 2, calls)
}

func TestTokenRefreshRateLimitIsTransient(t *testing.T) {
	kv, _ := newTestStore(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error":             "Access Denied",
			"error_description": "too many requests continue after some time",
		})
	}))
	defer srv.Close()

	m := newTokenManager(t, kv, srv)
	_, err := m.AccessToken(context.Background())
	require.Error(t, err)
	var te *pipeline.TransientError
	assert.ErrorAs(t, err, &te)
}

func TestTokenRefreshBadCredentialsIsPermanent(t *testing.T) {
	kv, _ := newTestStore(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": "invalid_client",
		})
	}))
	defer srv.Close()

	m := newTokenManager(t, kv, srv)
	_, err := m.AccessToken(context.Background())
	require.Error(t, err)
	var pe *pipeline.PermanentError
	assert.ErrorAs(t, err, &pe)
}

func TestTokenRefreshMissingCredentials(t *testing.T) {
	kv, _ := newTestStore(t)
	m := NewTokenManager(kv, nil, TokenConfig{TokenURL: "http://localhost:0"})
	_, err := m.AccessToken(context.Background())
	require.Error(t, err)
	var pe *pipeline.PermanentError
	assert.ErrorAs(t, err, &pe)
}
