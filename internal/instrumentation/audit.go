package instrumentation

import (
	"context"
	"log/slog"
	"time"
)

// Invocation is one audited operation: an MCP tool call or an HTTP API
// write. It never carries token material.
type Invocation struct {
	Name      string
	Service   string
	Operation string
	StartTime time.Time
	Duration  time.Duration
	Success   bool
	Error     string
	TraceID   string
}

// NewInvocation starts timing an invocation.
func NewInvocation(ctx context.Context, name string) *Invocation {
	return &Invocation{
		Name:      name,
		StartTime: time.Now(),
		TraceID:   GetTraceID(ctx),
	}
}

// WithService sets the upstream service and operation.
func (inv *Invocation) WithService(service, operation string) *Invocation {
	inv.Service = service
	inv.Operation = operation
	return inv
}

// Complete stops the timer and records the outcome.
func (inv *Invocation) Complete(success bool, err error) *Invocation {
	inv.Duration = time.Since(inv.StartTime)
	inv.Success = success
	if err != nil {
		inv.Error = err.Error()
	}
	return inv
}

// Status returns StatusSuccess or StatusError.
func (inv *Invocation) Status() string {
	if inv.Success {
		return StatusSuccess
	}
	return StatusError
}

func (inv *Invocation) attrs() []any {
	attrs := []any{
		slog.String("name", inv.Name),
		slog.Duration("duration", inv.Duration),
		slog.Bool("success", inv.Success),
	}
	if inv.Service != "" {
		attrs = append(attrs, slog.String("service", inv.Service), slog.String("operation", inv.Operation))
	}
	if inv.TraceID != "" {
		attrs = append(attrs, slog.String("trace_id", inv.TraceID))
	}
	if inv.Error != "" {
		attrs = append(attrs, slog.String("error", inv.Error))
	}
	return attrs
}

// AuditLogger writes one structured record per completed invocation.
type AuditLogger struct {
	logger  *slog.Logger
	enabled bool
}

// NewAuditLogger creates an AuditLogger. A nil logger uses slog.Default().
func NewAuditLogger(logger *slog.Logger, enabled bool) *AuditLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditLogger{logger: logger.With("audit", true), enabled: enabled}
}

// Log records inv. Nil receivers and disabled loggers do nothing.
func (al *AuditLogger) Log(inv *Invocation) {
	if al == nil || !al.enabled {
		return
	}
	if inv.Success {
		al.logger.Info("operation_completed", inv.attrs()...)
	} else {
		al.logger.Warn("operation_failed", inv.attrs()...)
	}
}
