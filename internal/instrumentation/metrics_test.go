package instrumentation

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	ctx := context.Background()

	// none of these may panic
	m.RecordHTTPRequest(ctx, "GET", "/api/events", 200, time.Millisecond)
	m.RecordGoogleAPIOperation(ctx, ServiceCalendar, OperationList, StatusSuccess, time.Millisecond)
	m.RecordOAuthAuth(ctx, OAuthResultFailure)
	m.RecordOAuthTokenRefresh(ctx, OAuthResultSuccess)
	m.RecordBatchEvents(ctx, StatusSuccess, 3)
	m.RecordToolInvocation(ctx, "calendar_list_events", StatusSuccess, time.Millisecond)

	zero := &Metrics{}
	zero.RecordBatchEvents(ctx, StatusError, 1)
}

func TestMetrics_RecordedSeriesAreExported(t *testing.T) {
	provider := newPrometheusProvider(t)
	m := provider.Metrics()
	ctx := context.Background()

	m.RecordHTTPRequest(ctx, "GET", "/api/events", 200, 10*time.Millisecond)
	m.RecordGoogleAPIOperation(ctx, ServiceCalendar, OperationList, StatusSuccess, 20*time.Millisecond)
	m.RecordOAuthTokenRefresh(ctx, OAuthResultFailure)
	m.RecordBatchEvents(ctx, StatusSuccess, 2)
	m.RecordBatchEvents(ctx, StatusError, 0)
	m.RecordToolInvocation(ctx, "calendar_list_events", StatusError, time.Millisecond)

	body := scrape(t, provider)
	for _, want := range []string{
		"http_requests",
		"google_api_operations",
		"oauth_token_refresh",
		"calendar_batch_events",
		"mcp_tool_invocations",
		`status="2xx"`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("scrape output missing %q", want)
		}
	}
}
