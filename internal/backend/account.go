package backend

import (
	"context"
	"errors"
	"net/http"
	"net/mail"

	"github.com/teemow/healthcal/internal/instrumentation"
)

// MinPasswordLength mirrors the backend's registration rule.
const MinPasswordLength = 6

// Register creates a backend account and returns its session.
func (c *Client) Register(ctx context.Context, req RegisterRequest) (*AuthResult, error) {
	if req.Username == "" {
		return nil, errors.New("username is required")
	}
	if err := validateCredentials(req.Email, req.Password); err != nil {
		return nil, err
	}
	if len(req.Password) < MinPasswordLength {
		return nil, errors.New("password must be at least 6 characters long")
	}
	var out AuthResult
	if err := c.do(ctx, instrumentation.OperationAuth, http.MethodPost, "/api/auth/register", req, "", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Login exchanges email and password for a backend session token. The
// token is unrelated to the Google credential.
func (c *Client) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	if err := validateCredentials(email, password); err != nil {
		return nil, err
	}
	var out AuthResult
	req := LoginRequest{Email: email, Password: password}
	if err := c.do(ctx, instrumentation.OperationAuth, http.MethodPost, "/api/auth/login", req, "", &out); err != nil {
		return nil, err
	}
	if out.AccessToken == "" {
		return nil, errors.New("backend returned no session token")
	}
	return &out, nil
}

// Session returns the user behind sessionToken. An expired or unknown
// token is an *APIError with status 401.
func (c *Client) Session(ctx context.Context, sessionToken string) (*SessionInfo, error) {
	if sessionToken == "" {
		return nil, errNoSession
	}
	var out SessionInfo
	if err := c.do(ctx, instrumentation.OperationAuth, http.MethodGet, "/api/auth/session", nil, sessionToken, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Logout ends the backend session.
func (c *Client) Logout(ctx context.Context, sessionToken string) error {
	if sessionToken == "" {
		return errNoSession
	}
	return c.do(ctx, instrumentation.OperationAuth, http.MethodPost, "/api/auth/logout", nil, sessionToken, nil)
}

func validateCredentials(email, password string) error {
	if email == "" || password == "" {
		return errors.New("email and password are required")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return errors.New("invalid email format")
	}
	return nil
}
