package server

import (
	"context"
	"sync"

	"github.com/teemow/healthcal/internal/backend"
	"github.com/teemow/healthcal/internal/calendar"
	"github.com/teemow/healthcal/internal/instrumentation"
	"github.com/teemow/healthcal/internal/session"
)

// ServerContext holds what the MCP tools and HTTP handlers share for the
// lifetime of the serve command.
type ServerContext struct {
	ctx      context.Context
	cancel   context.CancelFunc
	session  *session.Session
	readOnly bool
	audit    *instrumentation.AuditLogger
	mu       sync.RWMutex
	shutdown bool
}

// NewServerContext creates a server context over sess. With readOnly set,
// tools and routes that write to the calendar are not offered.
func NewServerContext(ctx context.Context, sess *session.Session, readOnly bool) *ServerContext {
	shutdownCtx, cancel := context.WithCancel(ctx)
	return &ServerContext{
		ctx:      shutdownCtx,
		cancel:   cancel,
		session:  sess,
		readOnly: readOnly,
	}
}

// Context returns the server context
func (sc *ServerContext) Context() context.Context {
	return sc.ctx
}

// Session returns the wired components.
func (sc *ServerContext) Session() *session.Session {
	return sc.session
}

// Calendar returns the calendar client.
func (sc *ServerContext) Calendar() *calendar.Client {
	return sc.session.Calendar
}

// Backend returns the health backend client.
func (sc *ServerContext) Backend() *backend.Client {
	return sc.session.Backend
}

// Metrics returns the session's metrics recorder, which may be nil.
func (sc *ServerContext) Metrics() *instrumentation.Metrics {
	if sc.session == nil {
		return nil
	}
	return sc.session.Metrics
}

// SetAuditLogger sets the audit logger used for tool invocations.
func (sc *ServerContext) SetAuditLogger(al *instrumentation.AuditLogger) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.audit = al
}

// AuditLogger returns the audit logger, which may be nil.
func (sc *ServerContext) AuditLogger() *instrumentation.AuditLogger {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.audit
}

// ReadOnly reports whether write operations are disabled.
func (sc *ServerContext) ReadOnly() bool {
	return sc.readOnly
}

// IsShutdown returns whether the server has been shutdown
func (sc *ServerContext) IsShutdown() bool {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.shutdown
}

// Shutdown cancels the server context. It is safe to call twice.
func (sc *ServerContext) Shutdown() error {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if sc.shutdown {
		return nil
	}

	sc.shutdown = true
	sc.cancel()
	return nil
}
