package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/teemow/healthcal/internal/instrumentation"
	"github.com/teemow/healthcal/internal/logging"
)

// DefaultMetricsAddr is where serve exposes /metrics unless configured.
const DefaultMetricsAddr = ":9090"

// DefaultShutdownTimeout bounds the graceful drain of the HTTP servers.
const DefaultShutdownTimeout = 30 * time.Second

// MetricsServer exposes the provider's Prometheus metrics on a listener of
// its own so scrapes never share the API port.
type MetricsServer struct {
	addr    string
	metrics http.Handler
	logger  logging.Logger

	mu       sync.Mutex
	srv      *http.Server
	listener net.Listener
}

// NewMetricsServer creates a metrics server for provider on addr (empty
// means DefaultMetricsAddr). The provider must be enabled.
func NewMetricsServer(addr string, provider *instrumentation.Provider, logger logging.Logger) (*MetricsServer, error) {
	switch {
	case provider == nil:
		return nil, errors.New("instrumentation provider is required for metrics server")
	case !provider.Enabled():
		return nil, errors.New("instrumentation provider is not enabled")
	}
	if addr == "" {
		addr = DefaultMetricsAddr
	}

	metrics := provider.MetricsHandler()
	if metrics == nil {
		// push exporters: still expose the process collectors
		metrics = promhttp.Handler()
	}
	return &MetricsServer{addr: addr, metrics: metrics, logger: logging.OrDefault(logger)}, nil
}

// Routes serves /metrics and a trivial /healthz.
func (s *MetricsServer) Routes() http.Handler {
	r := chi.NewRouter()
	r.Method(http.MethodGet, "/metrics", s.metrics)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	return r
}

// Start listens and serves until Shutdown, returning nil after a graceful
// shutdown.
func (s *MetricsServer) Start() error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	srv := &http.Server{
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       time.Minute,
	}

	s.mu.Lock()
	s.srv, s.listener = srv, listener
	s.mu.Unlock()

	s.logger.Info("metrics server listening", "addr", listener.Addr().String())
	if err := srv.Serve(listener); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops a started server. Before Start it does nothing.
func (s *MetricsServer) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.srv
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

// Addr is the bound address once listening, the configured one before.
func (s *MetricsServer) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return s.addr
	}
	return s.listener.Addr().String()
}
