package google

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/healthcal/internal/logging"
	"github.com/teemow/healthcal/internal/token"
)

var testNow = time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

type tokenServer struct {
	*httptest.Server
	calls    atomic.Int32
	lastForm url.Values
	status   int
	body     map[string]any
}

func newTokenServer(t *testing.T, status int, body map[string]any) *tokenServer {
	t.Helper()
	ts := &tokenServer{status: status, body: body}
	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ts.calls.Add(1)
		require.NoError(t, r.ParseForm())
		ts.lastForm = r.PostForm
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(ts.status)
		_ = json.NewEncoder(w).Encode(ts.body)
	}))
	t.Cleanup(ts.Close)
	return ts
}

func newTestClient(t *testing.T, tokenURL string) (*Client, *token.Store) {
	t.Helper()
	store := token.NewStore(token.NewMemoryStorage(),
		token.WithClock(func() time.Time { return testNow }),
		token.WithLogger(logging.Discard()))
	conf := NewOAuthConfig(OAuthSettings{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RedirectURL:  "http://localhost:3000/oauth/callback",
		TokenURL:     tokenURL,
	})
	return NewClient(conf, store, WithLogger(logging.Discard()), WithHTTPClient(http.DefaultClient)), store
}

func TestExchangeCodeForToken_Success(t *testing.T) {
	srv := newTokenServer(t, http.StatusOK, map[string]any{
		"access_token":  "access-1",
		"refresh_token": "refresh-1",
		"expires_in":    3600,
		"token_type":    "Bearer",
		"scope":         "https://www.googleapis.com/auth/calendar.events",
	})
	client, store := newTestClient(t, srv.URL)

	rec, err := client.ExchangeCodeForToken(context.Background(), "auth-code")
	require.NoError(t, err)
	assert.Equal(t, "access-1", rec.AccessToken)
	assert.Equal(t, "refresh-1", rec.RefreshToken)
	assert.Equal(t, testNow.UnixMilli()+3600*1000, rec.ExpiresAt)
	assert.Equal(t, "https://www.googleapis.com/auth/calendar.events", rec.Scope)

	assert.Equal(t, "authorization_code", srv.lastForm.Get("grant_type"))
	assert.Equal(t, "auth-code", srv.lastForm.Get("code"))
	assert.Equal(t, "client-id", srv.lastForm.Get("client_id"))
	assert.Equal(t, "client-secret", srv.lastForm.Get("client_secret"))
	assert.Equal(t, "http://localhost:3000/oauth/callback", srv.lastForm.Get("redirect_uri"))

	stored, err := store.GetStoredToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, rec, stored)
}

// A form-encoded response leaves oauth2.Token.ExpiresIn empty, so the
// lifetime comes from the wall-clock Expiry. It must still be applied to
// the store's clock.
func TestExchangeCodeForToken_FormResponseUsesStoreClock(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/x-www-form-urlencoded")
		_, _ = w.Write([]byte("access_token=access-2&token_type=bearer&expires_in=3600"))
	}))
	t.Cleanup(srv.Close)
	client, _ := newTestClient(t, srv.URL)

	rec, err := client.ExchangeCodeForToken(context.Background(), "auth-code")
	require.NoError(t, err)
	assert.Equal(t, "access-2", rec.AccessToken)
	assert.InDelta(t, testNow.UnixMilli()+3600*1000, rec.ExpiresAt, 2000)
}

func TestExchangeCodeForToken_EndpointError(t *testing.T) {
	srv := newTokenServer(t, http.StatusBadRequest, map[string]any{"error": "invalid_grant"})
	client, store := newTestClient(t, srv.URL)

	_, err := client.ExchangeCodeForToken(context.Background(), "bad-code")
	require.Error(t, err)

	var endpointErr *TokenEndpointError
	require.True(t, errors.As(err, &endpointErr))
	assert.Equal(t, http.StatusBadRequest, endpointErr.Status)
	assert.Contains(t, endpointErr.Body, "invalid_grant")

	stored, err := store.GetStoredToken(context.Background())
	require.NoError(t, err)
	assert.Nil(t, stored)
}

func TestRefreshToken_NoStoredToken(t *testing.T) {
	srv := newTokenServer(t, http.StatusOK, map[string]any{"access_token": "x"})
	client, _ := newTestClient(t, srv.URL)

	assert.False(t, client.RefreshToken(context.Background()))
	assert.Equal(t, int32(0), srv.calls.Load())
}

func TestRefreshToken_NoRefreshTokenLeavesStorageUnchanged(t *testing.T) {
	srv := newTokenServer(t, http.StatusOK, map[string]any{"access_token": "x"})
	client, store := newTestClient(t, srv.URL)
	ctx := context.Background()

	original := &token.TokenRecord{AccessToken: "old", ExpiresAt: 1, TokenType: "Bearer"}
	require.NoError(t, store.Save(ctx, original))

	assert.False(t, client.RefreshToken(ctx))
	assert.Equal(t, int32(0), srv.calls.Load())

	stored, err := store.GetStoredToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, original, stored)
}

func TestRefreshToken_PreservesOmittedFields(t *testing.T) {
	srv := newTokenServer(t, http.StatusOK, map[string]any{
		"access_token": "access-2",
		"expires_in":   1800,
	})
	client, store := newTestClient(t, srv.URL)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, &token.TokenRecord{
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
		ExpiresAt:    testNow.UnixMilli() - 1,
		TokenType:    "Bearer",
		Scope:        "calendar.events",
	}))

	require.True(t, client.RefreshToken(ctx))
	assert.Equal(t, int32(1), srv.calls.Load())
	assert.Equal(t, "refresh_token", srv.lastForm.Get("grant_type"))
	assert.Equal(t, "refresh-1", srv.lastForm.Get("refresh_token"))

	stored, err := store.GetStoredToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, &token.TokenRecord{
		AccessToken:  "access-2",
		RefreshToken: "refresh-1",
		ExpiresAt:    testNow.UnixMilli() + 1800*1000,
		TokenType:    "Bearer",
		Scope:        "calendar.events",
	}, stored)
}

func TestRefreshToken_RotatedRefreshToken(t *testing.T) {
	srv := newTokenServer(t, http.StatusOK, map[string]any{
		"access_token":  "access-2",
		"refresh_token": "refresh-2",
		"expires_in":    60,
		"token_type":    "Bearer",
	})
	client, store := newTestClient(t, srv.URL)
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, &token.TokenRecord{AccessToken: "a", RefreshToken: "refresh-1"}))

	require.True(t, client.RefreshToken(ctx))
	stored, err := store.GetStoredToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, "refresh-2", stored.RefreshToken)
}

func TestRefreshToken_EndpointFailure(t *testing.T) {
	srv := newTokenServer(t, http.StatusUnauthorized, map[string]any{"error": "invalid_grant"})
	client, store := newTestClient(t, srv.URL)
	ctx := context.Background()

	original := &token.TokenRecord{AccessToken: "a", RefreshToken: "revoked", TokenType: "Bearer"}
	require.NoError(t, store.Save(ctx, original))

	assert.False(t, client.RefreshToken(ctx))

	stored, err := store.GetStoredToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, original, stored)
}

func TestLogout(t *testing.T) {
	client, store := newTestClient(t, "http://unused.invalid")
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, &token.TokenRecord{AccessToken: "a"}))

	require.NoError(t, client.Logout(ctx))
	stored, err := store.GetStoredToken(ctx)
	require.NoError(t, err)
	assert.Nil(t, stored)
}
