package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"
)

// MCPEndpointPath is where the streamable HTTP MCP transport is mounted.
const MCPEndpointPath = "/mcp"

// HTTPServer serves the REST API, the OAuth callback and, when an MCP
// server is given, the MCP streamable HTTP transport on one listener.
type HTTPServer struct {
	api       *API
	mcpServer *mcpserver.MCPServer

	mu         sync.Mutex
	httpServer *http.Server
	listener   net.Listener
}

// NewHTTPServer creates an HTTPServer. mcpServer may be nil.
func NewHTTPServer(api *API, mcpServer *mcpserver.MCPServer) *HTTPServer {
	return &HTTPServer{api: api, mcpServer: mcpServer}
}

// Handler returns the composed router.
func (s *HTTPServer) Handler() http.Handler {
	r := s.api.Routes()
	if s.mcpServer != nil {
		r.Handle(MCPEndpointPath, mcpserver.NewStreamableHTTPServer(s.mcpServer,
			mcpserver.WithEndpointPath(MCPEndpointPath),
		))
	}
	return r
}

// Start listens on addr and serves until Shutdown. It blocks.
func (s *HTTPServer) Start(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	s.mu.Lock()
	s.httpServer = srv
	s.listener = listener
	s.mu.Unlock()

	err = srv.Serve(listener)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Addr returns the bound address, or "" before Start.
func (s *HTTPServer) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Shutdown gracefully shuts down the server
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.httpServer
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

// ValidateRedirectHost checks that the OAuth redirect URL points at a
// loopback host when it is plain HTTP. Google only accepts http redirects
// for loopback clients.
func ValidateRedirectHost(redirectURL string) error {
	if redirectURL == "" {
		return fmt.Errorf("redirect URL cannot be empty")
	}

	u, err := url.Parse(redirectURL)
	if err != nil {
		return fmt.Errorf("invalid redirect URL: %w", err)
	}

	switch u.Scheme {
	case "https":
		return nil
	case "http":
		host := u.Hostname()
		if host != "localhost" && host != "127.0.0.1" && host != "::1" {
			return fmt.Errorf("plain HTTP redirect must use a loopback host (got: %s). Use HTTPS or localhost", redirectURL)
		}
		return nil
	default:
		return fmt.Errorf("invalid URL scheme: %s. Must be http (localhost only) or https", u.Scheme)
	}
}
