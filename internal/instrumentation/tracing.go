package instrumentation

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName names the tracer behind every healthcal span.
const TracerName = "github.com/teemow/healthcal"

// Span attribute keys.
const (
	SpanAttrTool       = "mcp.tool"
	SpanAttrService    = "healthcal.service"
	SpanAttrOperation  = "healthcal.operation"
	SpanAttrEventCount = "calendar.event_count"
	SpanAttrFlowState  = "oauth.flow_state"
	SpanAttrRetried    = "http.retried"
)

// Spans come from the global provider so components need no Provider
// handle; without NewProvider they are no-ops.
func start(ctx context.Context, name string, kind trace.SpanKind, attrs []attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(TracerName).Start(ctx, name, trace.WithSpanKind(kind), trace.WithAttributes(attrs...))
}

// StartSpan starts an internal span, e.g. "oauth.authenticate".
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return start(ctx, name, trace.SpanKindInternal, attrs)
}

// StartToolSpan starts the server span "tool.<name>" of an MCP tool call.
func StartToolSpan(ctx context.Context, toolName string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs, attribute.String(SpanAttrTool, toolName))
	return start(ctx, "tool."+toolName, trace.SpanKindServer, attrs)
}

// StartClientSpan starts the client span "<service>.<operation>" of an
// upstream call such as calendar.list or oauth.refresh.
func StartClientSpan(ctx context.Context, service, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs,
		attribute.String(SpanAttrService, service),
		attribute.String(SpanAttrOperation, operation),
	)
	return start(ctx, service+"."+operation, trace.SpanKindClient, attrs)
}

// EndSpan sets the span status from err and ends it.
func EndSpan(span trace.Span, err error) {
	defer span.End()
	if err == nil {
		span.SetStatus(codes.Ok, "")
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// GetTraceID is the hex trace ID of the span in ctx, or "".
func GetTraceID(ctx context.Context) string {
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		return sc.TraceID().String()
	}
	return ""
}
