// Package instrumentation holds healthcal's OpenTelemetry setup: the
// Provider that owns the exporters, the Metrics recorder the calendar,
// OAuth and server packages report to, span helpers and the audit log of
// MCP tool calls.
//
// Instruments:
//
//	http_requests_total, http_request_duration_seconds      method, path (route pattern), status class
//	google_api_operations_total, ..._duration_seconds       service, operation, status
//	oauth_auth_total, oauth_token_refresh_total             result
//	calendar_batch_events_total                             status
//	mcp_tool_invocations_total, mcp_tool_duration_seconds   tool, status
//
// Every Record method is safe on a nil *Metrics, so components built
// without telemetry (the CLI commands, tests) pass nil.
//
// The serve command builds its Config from the [telemetry] section of the
// configuration file:
//
//	provider, err := instrumentation.NewProvider(ctx, cfg.Instrumentation(version))
//	if err != nil {
//		return err
//	}
//	defer provider.Shutdown(ctx)
package instrumentation
