package session

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/healthcal/internal/config"
	"github.com/teemow/healthcal/internal/logging"
	"github.com/teemow/healthcal/internal/oauthflow"
	"github.com/teemow/healthcal/internal/token"
)

type testWindow struct {
	closed atomic.Bool
}

func (w *testWindow) Closed() bool { return w.closed.Load() }
func (w *testWindow) Close() error {
	w.closed.Store(true)
	return nil
}

// browserOpener plays the user: it follows the consent URL straight to the
// callback with a code and the state it was given.
type browserOpener struct {
	t    *testing.T
	sess **Session
}

func (b browserOpener) Open(_ context.Context, authURL string) (oauthflow.Window, error) {
	u, err := url.Parse(authURL)
	if err != nil {
		return nil, err
	}
	state := u.Query().Get("state")
	sess := *b.sess
	cb := "http://" + sess.Callback.Addr() + sess.Callback.Path() + "?code=auth-code&state=" + url.QueryEscape(state)
	go func() {
		resp, err := http.Get(cb)
		if err != nil {
			b.t.Errorf("callback request failed: %v", err)
			return
		}
		_ = resp.Body.Close()
	}()
	return &testWindow{}, nil
}

func newTokenServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "authorization_code", r.PostForm.Get("grant_type"))
		assert.Equal(t, "auth-code", r.PostForm.Get("code"))
		assert.Equal(t, "client-id", r.PostForm.Get("client_id"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "access-1",
			"refresh_token": "refresh-1",
			"expires_in":    3600,
			"token_type":    "Bearer",
			"scope":         "calendar",
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(tokenURL string) config.Config {
	cfg := config.Default()
	cfg.Google.ClientID = "client-id"
	cfg.Google.ClientSecret = "client-secret"
	cfg.Google.RedirectURL = "http://127.0.0.1:0/oauth-callback"
	cfg.Google.TokenURL = tokenURL
	cfg.Storage.Type = token.BackendMemory
	cfg.Calendar.PollInterval = config.Duration(10 * time.Millisecond)
	return cfg
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.Type = "floppy"
	_, err := New(context.Background(), cfg, WithLogger(logging.Discard()))
	assert.ErrorContains(t, err, "invalid configuration")
}

func TestNew_WiresComponents(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:1/token")
	cfg.Backend.URL = "http://backend.test:5005/"

	sess, err := New(context.Background(), cfg, WithLogger(logging.Discard()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sess.Close() })

	assert.Equal(t, "http://127.0.0.1:0", sess.Callback.Origin())
	assert.Equal(t, "/oauth-callback", sess.Callback.Path())
	assert.Equal(t, "http://backend.test:5005", sess.Backend.BaseURL())
	assert.Equal(t, oauthflow.StateIdle, sess.Flow.State())
	assert.Same(t, sess.Bus, sess.Flow.Bus())
	assert.Equal(t, "client-id", sess.OAuth.ClientID)
}

func TestLogin_EndToEnd(t *testing.T) {
	tokenSrv := newTokenServer(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	var sess *Session
	s, err := New(context.Background(), testConfig(tokenSrv.URL),
		WithLogger(logging.Discard()),
		WithClock(func() time.Time { return now }),
		WithOpener(browserOpener{t: t, sess: &sess}),
	)
	require.NoError(t, err)
	sess = s
	t.Cleanup(func() { _ = sess.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	res, err := sess.Login(ctx)
	require.NoError(t, err)
	require.True(t, res.Success, res.Error)
	assert.Equal(t, oauthflow.StateSuccess, res.State)
	assert.Equal(t, "access-1", res.Token.AccessToken)
	assert.Equal(t, now.UnixMilli()+3600*1000, res.Token.ExpiresAt)
	assert.Empty(t, sess.Callback.Addr(), "listener is stopped after the flow")

	// second login takes the stored-token path
	res, err = sess.Login(ctx)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "refresh-1", res.Token.RefreshToken)
}

func TestLogin_MissingClient(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:1/token")
	cfg.Google.ClientSecret = ""
	sess, err := New(context.Background(), cfg, WithLogger(logging.Discard()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sess.Close() })

	_, err = sess.Login(context.Background())
	assert.ErrorContains(t, err, "GOOGLE_CLIENT_SECRET")
}

func TestWithStorage(t *testing.T) {
	storage := token.NewMemoryStorage()
	sess, err := New(context.Background(), testConfig("http://127.0.0.1:1/token"),
		WithLogger(logging.Discard()), WithStorage(storage))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sess.Close() })

	_, err = sess.Tokens.StoreToken(context.Background(), token.TokenResponse{AccessToken: "a", ExpiresIn: 60})
	require.NoError(t, err)
	_, err = storage.Get(context.Background(), token.StorageKey)
	assert.NoError(t, err)
}
