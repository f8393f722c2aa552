package oauthflow

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/teemow/healthcal/internal/logging"
	"github.com/teemow/healthcal/internal/token"
)

// CodeExchanger trades an authorization code for a stored token.
type CodeExchanger interface {
	ExchangeCodeForToken(ctx context.Context, code string) (*token.TokenRecord, error)
}

// CallbackServer handles the OAuth redirect. It exchanges the code and
// posts the outcome to the bus, then renders a page that closes itself.
type CallbackServer struct {
	exchanger CodeExchanger
	bus       *MessageBus
	origin    string
	path      string
	host      string
	logger    logging.Logger

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
}

// NewCallbackServer creates a callback handler for redirectURL. Messages
// are posted with the redirect URL's origin.
func NewCallbackServer(redirectURL string, exchanger CodeExchanger, bus *MessageBus, logger logging.Logger) (*CallbackServer, error) {
	u, err := url.Parse(redirectURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redirect URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid redirect URL %q: scheme and host are required", redirectURL)
	}
	path := u.Path
	if path == "" {
		path = "/"
	}
	return &CallbackServer{
		exchanger: exchanger,
		bus:       bus,
		origin:    u.Scheme + "://" + u.Host,
		path:      path,
		host:      u.Host,
		logger:    logging.OrDefault(logger),
	}, nil
}

// Origin returns the origin posted with every message.
func (s *CallbackServer) Origin() string {
	return s.origin
}

// Path returns the redirect path the handler serves.
func (s *CallbackServer) Path() string {
	return s.path
}

// ServeHTTP handles one redirect from the authorization server.
func (s *CallbackServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	state := q.Get("state")

	if !s.bus.ValidState(state) {
		s.logger.Warn("callback with unknown state rejected")
		s.render(w, http.StatusBadRequest, false, "invalid state parameter")
		return
	}

	if errParam := q.Get("error"); errParam != "" {
		s.post(MessageError, errParam, state)
		s.render(w, http.StatusOK, false, errParam)
		return
	}

	code := q.Get("code")
	if code == "" {
		s.post(MessageError, NoCodeMessage, state)
		s.render(w, http.StatusOK, false, NoCodeMessage)
		return
	}

	if _, err := s.exchanger.ExchangeCodeForToken(r.Context(), code); err != nil {
		s.post(MessageError, err.Error(), state)
		s.render(w, http.StatusOK, false, err.Error())
		return
	}

	s.post(MessageSuccess, "", state)
	s.render(w, http.StatusOK, true, "")
}

func (s *CallbackServer) post(t MessageType, errMsg, state string) {
	s.bus.Post(Message{Origin: s.origin, Type: t, Error: errMsg, State: state})
}

var callbackPage = template.Must(template.New("callback").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>healthcal - Google Calendar</title>
<style>
body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; display: flex; justify-content: center; align-items: center; height: 100vh; margin: 0; background: #FAFAFA; }
.box { text-align: center; background: white; padding: 48px 64px; border-radius: 16px; border: 1px solid #C7C8CC; }
h1 { margin: 0 0 8px 0; font-size: 22px; color: {{if .Success}}#1E7D32{{else}}#B3261E{{end}}; }
p { color: #7B8088; margin: 0; }
</style>
</head>
<body>
<div class="box">
{{if .Success}}<h1>Calendar connected</h1>
<p>This window will close automatically.</p>
{{else}}<h1>Authorization failed</h1>
<p>{{.Error}}</p>
{{end}}
</div>
<script>setTimeout(function () { window.close(); }, {{.CloseAfterMillis}});</script>
</body>
</html>`))

// CloseAfter is how long the callback page stays open.
const CloseAfter = 2 * time.Second

func (s *CallbackServer) render(w http.ResponseWriter, status int, success bool, errMsg string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_ = callbackPage.Execute(w, struct {
		Success          bool
		Error            string
		CloseAfterMillis int64
	}{success, errMsg, CloseAfter.Milliseconds()})
}

// Start listens on the redirect URL's host and serves the callback path.
func (s *CallbackServer) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server != nil {
		return errors.New("callback server already started")
	}

	mux := http.NewServeMux()
	mux.Handle(s.path, s)

	listener, err := net.Listen("tcp", s.host)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.host, err)
	}
	s.listener = listener
	s.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("callback server stopped", logging.Err(err))
		}
	}()
	return nil
}

// Addr returns the listening address once started.
func (s *CallbackServer) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop shuts the listener down.
func (s *CallbackServer) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server == nil {
		return nil
	}
	err := s.server.Shutdown(ctx)
	s.server = nil
	s.listener = nil
	return err
}
