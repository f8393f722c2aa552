package oauthflow

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/healthcal/internal/logging"
	"github.com/teemow/healthcal/internal/token"
)

type fakeExchanger struct {
	codes []string
	err   error
}

func (e *fakeExchanger) ExchangeCodeForToken(_ context.Context, code string) (*token.TokenRecord, error) {
	e.codes = append(e.codes, code)
	if e.err != nil {
		return nil, e.err
	}
	return &token.TokenRecord{AccessToken: "access"}, nil
}

func newTestCallback(t *testing.T, ex CodeExchanger) (*CallbackServer, *MessageBus, <-chan Message) {
	t.Helper()
	bus := NewMessageBus()
	bus.ExpectState("s1")
	msgs, unsubscribe := bus.Subscribe()
	t.Cleanup(unsubscribe)

	srv, err := NewCallbackServer("http://localhost:3000/oauth/callback", ex, bus, logging.Discard())
	require.NoError(t, err)
	return srv, bus, msgs
}

func receive(t *testing.T, msgs <-chan Message) Message {
	t.Helper()
	select {
	case m := <-msgs:
		return m
	case <-time.After(time.Second):
		t.Fatal("no message posted")
		return Message{}
	}
}

func TestCallback_Success(t *testing.T) {
	ex := &fakeExchanger{}
	srv, _, msgs := newTestCallback(t, ex)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/oauth/callback?code=abc&state=s1", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Calendar connected")
	assert.Contains(t, rec.Body.String(), "window.close()")
	assert.Equal(t, []string{"abc"}, ex.codes)

	m := receive(t, msgs)
	assert.Equal(t, MessageSuccess, m.Type)
	assert.Equal(t, "http://localhost:3000", m.Origin)
	assert.Equal(t, "s1", m.State)
}

func TestCallback_ErrorParam(t *testing.T) {
	ex := &fakeExchanger{}
	srv, _, msgs := newTestCallback(t, ex)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/oauth/callback?error=access_denied&state=s1", nil))

	assert.Contains(t, rec.Body.String(), "access_denied")
	assert.Empty(t, ex.codes)

	m := receive(t, msgs)
	assert.Equal(t, MessageError, m.Type)
	assert.Equal(t, "access_denied", m.Error)
}

func TestCallback_MissingCode(t *testing.T) {
	srv, _, msgs := newTestCallback(t, &fakeExchanger{})

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/oauth/callback?state=s1", nil))

	m := receive(t, msgs)
	assert.Equal(t, MessageError, m.Type)
	assert.Equal(t, NoCodeMessage, m.Error)
}

func TestCallback_ExchangeFailure(t *testing.T) {
	srv, _, msgs := newTestCallback(t, &fakeExchanger{err: errors.New("Token exchange failed: invalid_grant")})

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/oauth/callback?code=abc&state=s1", nil))

	m := receive(t, msgs)
	assert.Equal(t, MessageError, m.Type)
	assert.Contains(t, m.Error, "invalid_grant")
}

func TestCallback_UnknownStateRejected(t *testing.T) {
	ex := &fakeExchanger{}
	srv, _, msgs := newTestCallback(t, ex)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/oauth/callback?code=abc&state=forged", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, ex.codes)
	select {
	case m := <-msgs:
		t.Fatalf("unexpected message %+v", m)
	default:
	}
}

func TestCallback_ErrorTextIsEscaped(t *testing.T) {
	srv, _, _ := newTestCallback(t, &fakeExchanger{})

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/oauth/callback?error=%3Cscript%3Ex%3C%2Fscript%3E&state=s1", nil))

	assert.NotContains(t, rec.Body.String(), "<script>x</script>")
}

func TestNewCallbackServer_InvalidURL(t *testing.T) {
	_, err := NewCallbackServer("not a url", &fakeExchanger{}, NewMessageBus(), nil)
	assert.Error(t, err)
}

func TestCallbackServer_StartStop(t *testing.T) {
	bus := NewMessageBus()
	srv, err := NewCallbackServer("http://127.0.0.1:0/cb", &fakeExchanger{}, bus, logging.Discard())
	require.NoError(t, err)
	assert.Equal(t, "/cb", srv.Path())

	require.NoError(t, srv.Start())
	addr := srv.Addr()
	require.NotEmpty(t, addr)

	resp, err := http.Get("http://" + addr + "/cb?state=unknown")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	require.NoError(t, srv.Stop(context.Background()))
	assert.Empty(t, srv.Addr())
}
