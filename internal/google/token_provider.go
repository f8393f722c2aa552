package google

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"github.com/teemow/healthcal/internal/instrumentation"
	"github.com/teemow/healthcal/internal/logging"
	"github.com/teemow/healthcal/internal/token"
)

// TokenProvider supplies the stored credential and renews it on demand.
type TokenProvider interface {
	// GetStoredToken returns the stored record or nil when there is none.
	GetStoredToken(ctx context.Context) (*token.TokenRecord, error)

	// RefreshToken renews the stored access token and reports success.
	RefreshToken(ctx context.Context) bool
}

// Client performs code exchange and token refresh against the token
// endpoint and persists the results.
type Client struct {
	conf       *oauth2.Config
	store      *token.Store
	httpClient *http.Client
	logger     logging.Logger
	metrics    *instrumentation.Metrics
}

var _ TokenProvider = (*Client)(nil)

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets the client used to reach the token endpoint.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger sets the logger.
func WithLogger(l logging.Logger) ClientOption {
	return func(c *Client) { c.logger = l }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *instrumentation.Metrics) ClientOption {
	return func(c *Client) { c.metrics = m }
}

// NewClient creates a Client for conf that stores tokens in store.
func NewClient(conf *oauth2.Config, store *token.Store, opts ...ClientOption) *Client {
	c := &Client{conf: conf, store: store}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = NewHTTPClient()
	}
	c.logger = logging.OrDefault(c.logger)
	return c
}

// Config returns the OAuth configuration.
func (c *Client) Config() *oauth2.Config {
	return c.conf
}

// Store returns the token store.
func (c *Client) Store() *token.Store {
	return c.store
}

// AuthURL returns the consent URL for state.
func (c *Client) AuthURL(state string) string {
	return AuthURL(c.conf, state)
}

// GetStoredToken implements TokenProvider.
func (c *Client) GetStoredToken(ctx context.Context) (*token.TokenRecord, error) {
	return c.store.GetStoredToken(ctx)
}

func (c *Client) oauthContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
}

// ExchangeCodeForToken trades an authorization code for a token, stores
// the resulting record and returns it. A non-2xx response from the token
// endpoint yields a *TokenEndpointError.
func (c *Client) ExchangeCodeForToken(ctx context.Context, code string) (*token.TokenRecord, error) {
	start := time.Now()
	ctx, span := instrumentation.StartClientSpan(ctx, instrumentation.ServiceOAuth, instrumentation.OperationExchange)

	rec, err := c.exchange(ctx, code)

	status := instrumentation.StatusSuccess
	if err != nil {
		status = instrumentation.StatusError
		c.logger.Error("code exchange failed", logging.Operation("oauth.exchange"), logging.Err(err))
	}
	c.metrics.RecordGoogleAPIOperation(ctx, instrumentation.ServiceOAuth, instrumentation.OperationExchange, status, time.Since(start))
	instrumentation.EndSpan(span, err)
	return rec, err
}

func (c *Client) exchange(ctx context.Context, code string) (*token.TokenRecord, error) {
	tok, err := c.conf.Exchange(c.oauthContext(ctx), code)
	if err != nil {
		return nil, endpointError("failed to exchange auth code", err)
	}

	rec, err := c.store.StoreToken(ctx, token.ResponseFromOAuth2(tok))
	if err != nil {
		return nil, err
	}
	c.logger.Info("authorization code exchanged",
		logging.Operation("oauth.exchange"),
		"has_refresh_token", rec.RefreshToken != "")
	return rec, nil
}

// RefreshToken renews the stored access token using its refresh token.
// Returned fields replace the stored ones; refresh token, scope and token
// type are kept when the response omits them. It returns false, leaving
// storage untouched, when there is no stored refresh token or the endpoint
// rejects the request.
func (c *Client) RefreshToken(ctx context.Context) bool {
	op := logging.Operation("oauth.refresh")

	rec, err := c.store.GetStoredToken(ctx)
	if err != nil {
		c.logger.Warn("cannot read stored token", op, logging.Err(err))
		c.metrics.RecordOAuthTokenRefresh(ctx, instrumentation.OAuthResultFailure)
		return false
	}
	if rec == nil || rec.RefreshToken == "" {
		c.logger.Debug("no refresh token available", op)
		c.metrics.RecordOAuthTokenRefresh(ctx, instrumentation.OAuthResultSkipped)
		return false
	}

	start := time.Now()
	ctx, span := instrumentation.StartClientSpan(ctx, instrumentation.ServiceOAuth, instrumentation.OperationRefresh)
	err = c.refresh(ctx, rec)
	instrumentation.EndSpan(span, err)

	status, result := instrumentation.StatusSuccess, instrumentation.OAuthResultSuccess
	if err != nil {
		status, result = instrumentation.StatusError, instrumentation.OAuthResultFailure
		c.logger.Warn("token refresh failed", op, logging.Err(err))
	} else {
		c.logger.Info("token refreshed", op)
	}
	c.metrics.RecordGoogleAPIOperation(ctx, instrumentation.ServiceOAuth, instrumentation.OperationRefresh, status, time.Since(start))
	c.metrics.RecordOAuthTokenRefresh(ctx, result)
	return err == nil
}

func (c *Client) refresh(ctx context.Context, rec *token.TokenRecord) error {
	// an empty access token forces the source to hit the endpoint
	src := c.conf.TokenSource(c.oauthContext(ctx), &oauth2.Token{RefreshToken: rec.RefreshToken})
	tok, err := src.Token()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrRefreshFailed, endpointError("refresh request failed", err))
	}

	now := c.store.Now()
	resp := token.ResponseFromOAuth2(tok)
	merged := &token.TokenRecord{
		AccessToken:  resp.AccessToken,
		RefreshToken: firstNonEmpty(resp.RefreshToken, rec.RefreshToken),
		ExpiresAt:    now.UnixMilli() + resp.ExpiresIn*1000,
		TokenType:    firstNonEmpty(resp.TokenType, rec.TokenType),
		Scope:        firstNonEmpty(resp.Scope, rec.Scope),
	}
	return c.store.Save(ctx, merged)
}

// Logout removes the stored token.
func (c *Client) Logout(ctx context.Context) error {
	return c.store.ClearToken(ctx)
}

func endpointError(msg string, err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) && re.Response != nil {
		return &TokenEndpointError{Status: re.Response.StatusCode, Body: string(re.Body)}
	}
	return fmt.Errorf("%s: %w", msg, err)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
