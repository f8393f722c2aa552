package oauthflow

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/teemow/healthcal/internal/instrumentation"
	"github.com/teemow/healthcal/internal/logging"
	"github.com/teemow/healthcal/internal/token"
)

// DefaultPollInterval is how often the window is checked for closure.
const DefaultPollInterval = time.Second

// Config wires a Controller.
type Config struct {
	// Store provides the fast path and the token written by the callback.
	Store *token.Store
	// AuthURL builds the consent URL for a state value.
	AuthURL func(state string) string
	Opener  Opener
	Bus     *MessageBus
	// Origin is the only message origin accepted.
	Origin       string
	PollInterval time.Duration
	Logger       logging.Logger
	Metrics      *instrumentation.Metrics
}

// Controller runs authorization flows. It is safe for concurrent use, but
// only one flow runs at a time.
type Controller struct {
	cfg     Config
	logger  logging.Logger
	mu      sync.Mutex
	state   FlowState
	running bool
}

// NewController creates a Controller in the IDLE state.
func NewController(cfg Config) *Controller {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.Bus == nil {
		cfg.Bus = NewMessageBus()
	}
	return &Controller{
		cfg:    cfg,
		logger: logging.OrDefault(cfg.Logger),
		state:  StateIdle,
	}
}

// State returns the controller's current flow state.
func (c *Controller) State() FlowState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Bus returns the message bus the controller listens on.
func (c *Controller) Bus() *MessageBus {
	return c.cfg.Bus
}

func (c *Controller) setState(s FlowState) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

type outcomeKind int

const (
	outcomeSuccess outcomeKind = iota
	outcomeError
	outcomeCancelled
)

type outcome struct {
	kind outcomeKind
	msg  string
}

// Authenticate returns the stored token when it is still valid. Otherwise
// it opens the consent window and waits for the callback or for the
// window to close. Failures are reported in the result, never as a panic.
//
// A stored token is trusted until it expires even if it was revoked
// upstream; the first API call that gets a 401 will surface that.
func (c *Controller) Authenticate(ctx context.Context) AuthFlowResult {
	ctx, span := instrumentation.StartSpan(ctx, "oauth.authenticate")
	res := c.authenticate(ctx)
	span.SetAttributes(attribute.String(instrumentation.SpanAttrFlowState, string(res.State)))
	var spanErr error
	if !res.Success {
		spanErr = errors.New(res.Error)
	}
	instrumentation.EndSpan(span, spanErr)
	return res
}

func (c *Controller) authenticate(ctx context.Context) AuthFlowResult {
	op := logging.Operation("oauth.authenticate")

	rec, err := c.cfg.Store.GetStoredToken(ctx)
	if err != nil {
		c.logger.Warn("cannot read stored token, starting authorization", op, logging.Err(err))
	}
	if rec != nil && !c.cfg.Store.IsTokenExpired(rec) {
		c.setState(StateSuccess)
		c.cfg.Metrics.RecordOAuthAuth(ctx, instrumentation.OAuthResultCached)
		return AuthFlowResult{Success: true, Token: rec, State: StateSuccess}
	}

	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return AuthFlowResult{Error: ErrFlowInProgress.Error(), State: StateError}
	}
	c.running = true
	c.state = StateAwaitingUser
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
	}()

	state, err := newState()
	if err != nil {
		return c.finish(ctx, StateError, instrumentation.OAuthResultFailure, fmt.Sprintf("generating state: %v", err), nil)
	}

	bus := c.cfg.Bus
	bus.ExpectState(state)
	defer bus.ForgetState(state)

	// subscribe before the window exists so an instant callback is not lost
	msgs, unsubscribe := bus.Subscribe()
	defer unsubscribe()

	win, err := c.cfg.Opener.Open(ctx, c.cfg.AuthURL(state))
	if err != nil || win == nil {
		reason := "window could not be opened"
		if err != nil {
			reason = err.Error()
		}
		c.logger.Warn("authorization window blocked", op, "reason", reason)
		return c.finish(ctx, StateError, instrumentation.OAuthResultBlocked, fmt.Sprintf("%s: %s", ErrPopupBlocked, reason), nil)
	}
	c.logger.Info("waiting for user authorization", op)

	out := c.await(ctx, win, msgs, state)

	switch out.kind {
	case outcomeSuccess:
		closeWindow(win)
		rec, err := c.cfg.Store.GetStoredToken(ctx)
		if err != nil || rec == nil {
			msg := "authorization succeeded but no token was stored"
			if err != nil {
				msg = err.Error()
			}
			return c.finish(ctx, StateError, instrumentation.OAuthResultFailure, msg, nil)
		}
		return c.finish(ctx, StateSuccess, instrumentation.OAuthResultSuccess, "", rec)

	case outcomeError:
		closeWindow(win)
		return c.finish(ctx, StateError, instrumentation.OAuthResultFailure, out.msg, nil)

	default:
		if ctx.Err() != nil {
			closeWindow(win)
		}
		return c.finish(ctx, StateCancelled, instrumentation.OAuthResultCancelled, out.msg, nil)
	}
}

// await races the message watcher against the window poller. Both run
// under one derived context and have exited when await returns.
func (c *Controller) await(ctx context.Context, win Window, msgs <-chan Message, state string) outcome {
	watchCtx, cancel := context.WithCancel(ctx)
	outcomes := make(chan outcome, 2)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		c.watchMessages(watchCtx, msgs, state, outcomes)
	}()
	go func() {
		defer wg.Done()
		c.watchWindow(watchCtx, win, outcomes)
	}()

	var out outcome
	select {
	case out = <-outcomes:
	case <-ctx.Done():
		out = outcome{kind: outcomeCancelled, msg: fmt.Sprintf("%s: %v", ErrUserCancelled, ctx.Err())}
	}

	cancel()
	wg.Wait()
	return out
}

func (c *Controller) watchMessages(ctx context.Context, msgs <-chan Message, state string, out chan<- outcome) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			if msg.Origin != c.cfg.Origin {
				c.logger.Debug("ignoring message from unexpected origin", "origin", msg.Origin)
				continue
			}
			if msg.State != "" && msg.State != state {
				c.logger.Debug("ignoring message for another flow")
				continue
			}
			switch msg.Type {
			case MessageSuccess:
				out <- outcome{kind: outcomeSuccess}
				return
			case MessageError:
				out <- outcome{kind: outcomeError, msg: msg.Error}
				return
			}
		}
	}
}

func (c *Controller) watchWindow(ctx context.Context, win Window, out chan<- outcome) {
	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if win.Closed() {
				out <- outcome{kind: outcomeCancelled, msg: ErrUserCancelled.Error()}
				return
			}
		}
	}
}

func (c *Controller) finish(ctx context.Context, state FlowState, result, errMsg string, rec *token.TokenRecord) AuthFlowResult {
	c.setState(state)
	c.cfg.Metrics.RecordOAuthAuth(ctx, result)

	switch state {
	case StateSuccess:
		c.logger.Info("authorization completed", logging.Status(logging.StatusSuccess))
	case StateCancelled:
		c.logger.Info("authorization cancelled", "reason", errMsg)
	default:
		c.logger.Warn("authorization failed", logging.Status(logging.StatusError), "reason", errMsg)
	}

	return AuthFlowResult{
		Success: state == StateSuccess,
		Token:   rec,
		Error:   errMsg,
		State:   state,
	}
}

func closeWindow(w Window) {
	_ = w.Close()
}

func newState() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
