package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/healthcal/internal/session"
)

func getHealth(t *testing.T, h http.Handler) (int, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec.Code, body
}

func TestReadiness_DrainAndShutdown(t *testing.T) {
	sc := NewServerContext(context.Background(), &session.Session{}, true)
	h := NewHealthChecker(sc)

	code, body := getHealth(t, h.ReadinessHandler())
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, map[string]any{"ready": "ok", "shutdown": "ok", "storage": "ok"}, body["checks"])

	h.SetReady(false)
	assert.False(t, h.IsReady())
	code, body = getHealth(t, h.ReadinessHandler())
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "not ready", body["status"])

	h.SetReady(true)
	require.NoError(t, sc.Shutdown())
	code, body = getHealth(t, h.ReadinessHandler())
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "shutting down", body["checks"].(map[string]any)["shutdown"])

	code, body = getHealth(t, h.DetailedHealthHandler())
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "shutting down", body["status"])
	assert.Equal(t, true, body["readOnly"])
}

func TestDetailedHealth_ReportsToken(t *testing.T) {
	f := newAPIFixture(t, false, nil)
	f.login(t, "good-token")

	rec := f.do(t, http.MethodGet, "/healthz/detailed", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp DetailedHealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Authenticated)
	assert.False(t, resp.ReadOnly)
	require.NotNil(t, resp.TokenExpiresAt)
	assert.Equal(t, "IDLE", resp.FlowState)
}
