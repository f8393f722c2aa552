// Package session assembles the token store, OAuth client, authorization
// flow and API clients from a Config. A Session is built once at startup
// and passed to every surface; nothing is kept in package state.
package session

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"golang.org/x/oauth2"

	"github.com/teemow/healthcal/internal/backend"
	"github.com/teemow/healthcal/internal/calendar"
	"github.com/teemow/healthcal/internal/config"
	"github.com/teemow/healthcal/internal/google"
	"github.com/teemow/healthcal/internal/instrumentation"
	"github.com/teemow/healthcal/internal/logging"
	"github.com/teemow/healthcal/internal/oauthflow"
	"github.com/teemow/healthcal/internal/token"
)

// Session holds the wired components for one process.
type Session struct {
	Config config.Config

	Storage  token.Storage
	Tokens   *token.Store
	OAuth    *oauth2.Config
	Google   *google.Client
	Bus      *oauthflow.MessageBus
	Callback *oauthflow.CallbackServer
	Flow     *oauthflow.Controller
	Calendar *calendar.Client
	Backend  *backend.Client

	Logger  logging.Logger
	Metrics *instrumentation.Metrics
}

type options struct {
	logger     logging.Logger
	metrics    *instrumentation.Metrics
	storage    token.Storage
	opener     oauthflow.Opener
	httpClient *http.Client
	clock      func() time.Time
	out        io.Writer
}

// Option configures New.
type Option func(*options)

// WithLogger sets the logger shared by all components.
func WithLogger(l logging.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithMetrics sets the metrics recorder shared by all components.
func WithMetrics(m *instrumentation.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithStorage uses s instead of opening the configured backend.
func WithStorage(s token.Storage) Option {
	return func(o *options) { o.storage = s }
}

// WithOpener replaces the browser-then-print window opener.
func WithOpener(op oauthflow.Opener) Option {
	return func(o *options) { o.opener = op }
}

// WithHTTPClient sets the client used for Google and backend requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(o *options) { o.httpClient = hc }
}

// WithClock overrides the token store's time source.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.clock = now }
}

// WithOutput sets where the fallback opener prints the consent URL.
// Defaults to stderr.
func WithOutput(w io.Writer) Option {
	return func(o *options) { o.out = w }
}

// New validates cfg and builds a Session. The caller must Close it.
func New(ctx context.Context, cfg config.Config, opts ...Option) (*Session, error) {
	o := &options{out: os.Stderr}
	for _, opt := range opts {
		opt(o)
	}
	logger := logging.OrDefault(o.logger)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	storage := o.storage
	if storage == nil {
		openOpts, err := cfg.OpenOptions()
		if err != nil {
			return nil, err
		}
		storage, err = token.Open(ctx, openOpts)
		if err != nil {
			return nil, fmt.Errorf("failed to open token storage: %w", err)
		}
	}

	storeOpts := []token.Option{token.WithLogger(logger)}
	if o.clock != nil {
		storeOpts = append(storeOpts, token.WithClock(o.clock))
	}
	tokens := token.NewStore(storage, storeOpts...)

	oauthConf := google.NewOAuthConfig(cfg.OAuthSettings())
	googleOpts := []google.ClientOption{google.WithLogger(logger), google.WithMetrics(o.metrics)}
	if o.httpClient != nil {
		googleOpts = append(googleOpts, google.WithHTTPClient(o.httpClient))
	}
	gc := google.NewClient(oauthConf, tokens, googleOpts...)

	bus := oauthflow.NewMessageBus()
	callback, err := oauthflow.NewCallbackServer(cfg.Google.RedirectURL, gc, bus, logger)
	if err != nil {
		_ = storage.Close()
		return nil, err
	}

	opener := o.opener
	if opener == nil {
		opener = oauthflow.FallbackOpener{
			Primary:   oauthflow.BrowserOpener{},
			Secondary: oauthflow.PrintOpener{W: o.out},
		}
	}
	flow := oauthflow.NewController(oauthflow.Config{
		Store:        tokens,
		AuthURL:      gc.AuthURL,
		Opener:       opener,
		Bus:          bus,
		Origin:       callback.Origin(),
		PollInterval: time.Duration(cfg.Calendar.PollInterval),
		Logger:       logger,
		Metrics:      o.metrics,
	})

	calOpts := []calendar.Option{
		calendar.WithCalendarID(cfg.Google.CalendarID),
		calendar.WithWriteRate(cfg.Calendar.WriteRate),
		calendar.WithLogger(logger),
		calendar.WithMetrics(o.metrics),
	}
	if cfg.Google.CalendarEndpoint != "" {
		calOpts = append(calOpts, calendar.WithEndpoint(cfg.Google.CalendarEndpoint))
	}
	if o.httpClient != nil {
		calOpts = append(calOpts, calendar.WithHTTPClient(o.httpClient))
	}

	backendOpts := []backend.Option{backend.WithLogger(logger), backend.WithMetrics(o.metrics)}
	if o.httpClient != nil {
		backendOpts = append(backendOpts, backend.WithHTTPClient(o.httpClient))
	}

	return &Session{
		Config:   cfg,
		Storage:  storage,
		Tokens:   tokens,
		OAuth:    oauthConf,
		Google:   gc,
		Bus:      bus,
		Callback: callback,
		Flow:     flow,
		Calendar: calendar.NewClient(gc, calOpts...),
		Backend:  backend.NewClient(cfg.Backend.URL, backendOpts...),
		Logger:   logger,
		Metrics:  o.metrics,
	}, nil
}

// Login runs the authorization flow with the loopback callback server
// listening for the redirect. It returns once the flow is terminal. A
// valid stored token short-circuits without opening a listener.
func (s *Session) Login(ctx context.Context) (oauthflow.AuthFlowResult, error) {
	if s.Tokens.IsAuthenticated(ctx) {
		return s.Flow.Authenticate(ctx), nil
	}
	if err := s.Config.RequireClient(); err != nil {
		return oauthflow.AuthFlowResult{}, err
	}
	if err := s.Callback.Start(); err != nil {
		return oauthflow.AuthFlowResult{}, fmt.Errorf("failed to start callback server: %w", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := s.Callback.Stop(stopCtx); err != nil {
			s.Logger.Warn("failed to stop callback server", logging.Err(err))
		}
	}()
	return s.Flow.Authenticate(ctx), nil
}

// Close releases the token storage.
func (s *Session) Close() error {
	return s.Storage.Close()
}
