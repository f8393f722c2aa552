package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
)

const (
	healthOK           = "ok"
	healthNotReady     = "not ready"
	healthShuttingDown = "shutting down"
)

// storageCheckTimeout bounds the token storage read in /readyz.
const storageCheckTimeout = 2 * time.Second

var (
	errNotReady     = errors.New(healthNotReady)
	errShuttingDown = errors.New(healthShuttingDown)
)

// readinessCheck is one named entry of the /readyz report.
type readinessCheck struct {
	name string
	run  func(ctx context.Context) error
}

// HealthChecker serves the liveness and readiness endpoints. Readiness covers the
// drain flag, server shutdown and the token storage. The Google and backend
// APIs are not checked: an outage there is reported per request instead.
type HealthChecker struct {
	sc      *ServerContext
	started time.Time
	ready   atomic.Bool
	checks  []readinessCheck
}

// NewHealthChecker creates a HealthChecker for sc. It starts ready.
func NewHealthChecker(sc *ServerContext) *HealthChecker {
	h := &HealthChecker{sc: sc, started: time.Now()}
	h.ready.Store(true)
	h.checks = []readinessCheck{
		{name: "ready", run: h.checkReady},
		{name: "shutdown", run: h.checkShutdown},
		{name: "storage", run: h.checkStorage},
	}
	return h
}

// SetReady toggles readiness; the serve command clears it before draining.
func (h *HealthChecker) SetReady(ready bool) {
	h.ready.Store(ready)
}

func (h *HealthChecker) IsReady() bool {
	return h.ready.Load()
}

func (h *HealthChecker) checkReady(context.Context) error {
	if !h.ready.Load() {
		return errNotReady
	}
	return nil
}

func (h *HealthChecker) checkShutdown(context.Context) error {
	if h.sc != nil && h.sc.IsShutdown() {
		return errShuttingDown
	}
	return nil
}

// checkStorage reads the token slot. An empty slot passes.
func (h *HealthChecker) checkStorage(ctx context.Context) error {
	if h.sc == nil || h.sc.Session() == nil || h.sc.Session().Tokens == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, storageCheckTimeout)
	defer cancel()
	_, err := h.sc.Session().Tokens.GetStoredToken(ctx)
	return err
}

// HealthResponse is the body of /healthz and /readyz.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// DetailedHealthResponse is the body of /healthz/detailed.
type DetailedHealthResponse struct {
	Status         string     `json:"status"`
	Uptime         string     `json:"uptime"`
	ReadOnly       bool       `json:"readOnly"`
	Authenticated  bool       `json:"authenticated"`
	TokenExpiresAt *time.Time `json:"tokenExpiresAt,omitempty"`
	FlowState      string     `json:"flowState,omitempty"`
}

// LivenessHandler always answers ok while the process serves requests.
func (h *HealthChecker) LivenessHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, HealthResponse{Status: healthOK})
	})
}

// ReadinessHandler runs every readiness check and answers 503 if any fails.
func (h *HealthChecker) ReadinessHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := HealthResponse{Status: healthOK, Checks: make(map[string]string, len(h.checks))}
		status := http.StatusOK
		for _, c := range h.checks {
			if err := c.run(r.Context()); err != nil {
				resp.Checks[c.name] = err.Error()
				resp.Status = healthNotReady
				status = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[c.name] = healthOK
		}
		writeJSON(w, status, resp)
	})
}

// DetailedHealthHandler adds uptime and the authorization state.
func (h *HealthChecker) DetailedHealthHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := DetailedHealthResponse{
			Status: healthOK,
			Uptime: time.Since(h.started).Truncate(time.Second).String(),
		}
		if h.sc != nil {
			resp.ReadOnly = h.sc.ReadOnly()
			h.describeSession(r.Context(), &resp)
		}

		status := http.StatusOK
		for _, check := range []func(context.Context) error{h.checkReady, h.checkShutdown} {
			if err := check(r.Context()); err != nil {
				resp.Status = err.Error()
				status = http.StatusServiceUnavailable
				break
			}
		}
		writeJSON(w, status, resp)
	})
}

func (h *HealthChecker) describeSession(ctx context.Context, resp *DetailedHealthResponse) {
	sess := h.sc.Session()
	if sess == nil {
		return
	}
	if sess.Flow != nil {
		resp.FlowState = string(sess.Flow.State())
	}
	if sess.Tokens == nil {
		return
	}
	rec, err := sess.Tokens.GetStoredToken(ctx)
	if err != nil || rec == nil {
		return
	}
	expiry := rec.Expiry()
	resp.TokenExpiresAt = &expiry
	resp.Authenticated = !sess.Tokens.IsTokenExpired(rec)
}

// RegisterHealthEndpoints mounts the health routes on r.
func (h *HealthChecker) RegisterHealthEndpoints(r chi.Router) {
	r.Method(http.MethodGet, "/healthz", h.LivenessHandler())
	r.Method(http.MethodGet, "/readyz", h.ReadinessHandler())
	r.Method(http.MethodGet, "/healthz/detailed", h.DetailedHealthHandler())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
