package server

import (
	"context"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/healthcal/internal/instrumentation"
	"github.com/teemow/healthcal/internal/logging"
)

func newTestProvider(t *testing.T, enabled bool) *instrumentation.Provider {
	t.Helper()
	provider, err := instrumentation.NewProvider(context.Background(), instrumentation.Config{
		Enabled:        enabled,
		ServiceVersion: "test",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })
	return provider
}

func TestNewMetricsServer_Validation(t *testing.T) {
	_, err := NewMetricsServer("", nil, nil)
	assert.ErrorContains(t, err, "instrumentation provider is required")

	_, err = NewMetricsServer("", newTestProvider(t, false), nil)
	assert.ErrorContains(t, err, "not enabled")

	srv, err := NewMetricsServer("", newTestProvider(t, true), nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultMetricsAddr, srv.Addr(), "empty address falls back to the default")
}

func TestMetricsServer_ServesCalendarMetrics(t *testing.T) {
	provider := newTestProvider(t, true)
	provider.Metrics().RecordGoogleAPIOperation(context.Background(),
		instrumentation.ServiceCalendar, instrumentation.OperationCreate, instrumentation.StatusSuccess, 50*time.Millisecond)

	srv, err := NewMetricsServer("127.0.0.1:0", provider, logging.Discard())
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- srv.Start() }()

	require.Eventually(t, func() bool { return srv.Addr() != "127.0.0.1:0" }, 2*time.Second, 10*time.Millisecond)

	resp, err := http.Get("http://" + srv.Addr() + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `google_api_operations_total{`)
	assert.Contains(t, string(body), `operation="create"`)

	resp, err = http.Get("http://" + srv.Addr() + "/healthz")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))
	assert.NoError(t, <-done, "Start returns nil after a graceful shutdown")
}

func TestMetricsServer_ShutdownBeforeStart(t *testing.T) {
	srv, err := NewMetricsServer("127.0.0.1:0", newTestProvider(t, true), logging.Discard())
	require.NoError(t, err)
	assert.NoError(t, srv.Shutdown(context.Background()))
}
