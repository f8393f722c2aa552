package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/teemow/healthcal/internal/config"
	"github.com/teemow/healthcal/internal/instrumentation"
	"github.com/teemow/healthcal/internal/logging"
	"github.com/teemow/healthcal/internal/resources"
	"github.com/teemow/healthcal/internal/server"
	"github.com/teemow/healthcal/internal/session"
	"github.com/teemow/healthcal/internal/tools/calendar_tools"
)

// Transports accepted by --transport.
const (
	TransportStdio = "stdio"
	TransportHTTP  = "http"
)

type serveOptions struct {
	transport      string
	httpAddr       string
	yolo           bool
	metricsEnabled bool
	metricsAddr    string
}

func newServeCmd(flags *globalFlags) *cobra.Command {
	opts := &serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server or the HTTP API",
		Long: `Start healthcal as a long-running server.

Transports:
  - stdio: MCP over standard input/output (default). Logs go to stderr.
  - http:  REST API under /api, the OAuth callback at the redirect path,
           MCP streamable HTTP at /mcp, and /healthz, /readyz. Prometheus
           metrics are served on a separate address.

Safety Mode:
  By default the server is read-only. Use --yolo to enable the tools and
  routes that create or delete calendar events.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, flags)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if cmd.Flags().Changed("http-addr") {
				cfg.Server.HTTPAddr = opts.httpAddr
			}
			if cmd.Flags().Changed("metrics-addr") {
				cfg.Server.MetricsAddr = opts.metricsAddr
			}
			if cmd.Flags().Changed("metrics-enabled") {
				cfg.Server.MetricsEnabled = opts.metricsEnabled
			}
			return runServe(cmd.Context(), cfg, opts.transport, !opts.yolo)
		},
	}

	cmd.Flags().StringVar(&opts.transport, "transport", TransportStdio, "Transport type: stdio or http")
	cmd.Flags().StringVar(&opts.httpAddr, "http-addr", ":8080", "HTTP server address (http transport). Can also use HEALTHCAL_HTTP_ADDR.")
	cmd.Flags().BoolVar(&opts.yolo, "yolo", false, "Enable write operations (create and delete events). Default is read-only mode.")
	cmd.Flags().BoolVar(&opts.metricsEnabled, "metrics-enabled", true, "Serve Prometheus metrics on a dedicated address (http transport). Can also use METRICS_ENABLED.")
	cmd.Flags().StringVar(&opts.metricsAddr, "metrics-addr", server.DefaultMetricsAddr, "Metrics server address. Can also use METRICS_ADDR.")
	return cmd
}

func runServe(ctx context.Context, cfg config.Config, transport string, readOnly bool) error {
	if transport != TransportStdio && transport != TransportHTTP {
		return fmt.Errorf("unsupported transport type: %s (supported: stdio, http)", transport)
	}

	shutdownCtx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	slogger := newLogger(cfg)
	logger := logging.NewSlogAdapter(slogger)

	instrConfig := cfg.Instrumentation(version)
	provider, err := instrumentation.NewProvider(shutdownCtx, instrConfig)
	if err != nil {
		return fmt.Errorf("failed to create instrumentation provider: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := provider.Shutdown(flushCtx); err != nil {
			logger.Warn("instrumentation shutdown failed", logging.Err(err))
		}
	}()

	sess, err := session.New(shutdownCtx, cfg,
		session.WithLogger(logger),
		session.WithMetrics(provider.Metrics()),
	)
	if err != nil {
		return err
	}
	defer sess.Close()

	serverContext := server.NewServerContext(shutdownCtx, sess, readOnly)
	if provider.Enabled() {
		serverContext.SetAuditLogger(instrumentation.NewAuditLogger(slogger, instrConfig.AuditLogging))
	}
	defer func() { _ = serverContext.Shutdown() }()

	if readOnly {
		logger.Info("starting server in READ-ONLY mode (use --yolo to enable write operations)", "transport", transport)
	} else {
		logger.Info("starting server with WRITE operations enabled", "transport", transport)
	}

	mcpSrv, err := newMCPServer(serverContext)
	if err != nil {
		return err
	}

	if transport == TransportStdio {
		return runStdioServer(mcpSrv)
	}
	return runHTTPServer(shutdownCtx, serverContext, mcpSrv, provider, logger)
}

// newMCPServer creates the MCP server with every tool and resource.
func newMCPServer(sc *server.ServerContext) (*mcpserver.MCPServer, error) {
	mcpSrv := mcpserver.NewMCPServer("healthcal", version,
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithResourceCapabilities(false, false),
	)

	registrations := []struct {
		name     string
		register func() error
	}{
		{name: "Calendar tools", register: func() error { return calendar_tools.RegisterCalendarTools(mcpSrv, sc) }},
		{name: "Calendar resources", register: func() error { return resources.RegisterCalendarResources(mcpSrv, sc) }},
	}
	for _, reg := range registrations {
		if err := reg.register(); err != nil {
			return nil, fmt.Errorf("failed to register %s: %w", reg.name, err)
		}
	}
	return mcpSrv, nil
}

func runStdioServer(mcpSrv *mcpserver.MCPServer) error {
	if err := mcpserver.ServeStdio(mcpSrv); err != nil {
		return fmt.Errorf("server stopped with error: %w", err)
	}
	return nil
}

func runHTTPServer(ctx context.Context, sc *server.ServerContext, mcpSrv *mcpserver.MCPServer, provider *instrumentation.Provider, logger logging.Logger) error {
	cfg := sc.Session().Config
	if err := server.ValidateRedirectHost(cfg.Google.RedirectURL); err != nil {
		return err
	}
	if !sameListenPort(cfg.Google.RedirectURL, cfg.Server.HTTPAddr) {
		logger.Warn("redirect URI is not served by this listener; browser logins started via /api/auth/login will not complete",
			"redirect_uri", cfg.Google.RedirectURL, "http_addr", cfg.Server.HTTPAddr)
	}

	errCh := make(chan error, 2)

	var metricsServer *server.MetricsServer
	if cfg.Server.MetricsEnabled && provider.Enabled() {
		var err error
		metricsServer, err = server.NewMetricsServer(cfg.Server.MetricsAddr, provider, logger)
		if err != nil {
			return fmt.Errorf("failed to create metrics server: %w", err)
		}
		go func() {
			if err := metricsServer.Start(); err != nil {
				errCh <- fmt.Errorf("metrics server: %w", err)
			}
		}()
	}

	health := server.NewHealthChecker(sc)
	httpServer := server.NewHTTPServer(server.NewAPI(sc, health), mcpSrv)
	go func() {
		logger.Info("starting HTTP server", "addr", cfg.Server.HTTPAddr, "mcp_endpoint", server.MCPEndpointPath)
		if err := httpServer.Start(cfg.Server.HTTPAddr); err != nil {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case runErr = <-errCh:
	}

	health.SetReady(false)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), server.DefaultShutdownTimeout)
	defer cancel()

	var errs []error
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("http server shutdown: %w", err))
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("metrics server shutdown: %w", err))
		}
	}
	return errors.Join(append([]error{runErr}, errs...)...)
}


// sameListenPort reports whether redirectURL points at the port addr binds.
func sameListenPort(redirectURL, addr string) bool {
	u, err := url.Parse(redirectURL)
	if err != nil {
		return false
	}
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	redirectPort := u.Port()
	if redirectPort == "" {
		redirectPort = map[string]string{"http": "80", "https": "443"}[u.Scheme]
	}
	return redirectPort == port
}
