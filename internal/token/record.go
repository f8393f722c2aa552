package token

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"golang.org/x/oauth2"

	"github.com/teemow/healthcal/internal/logging"
)

// StorageKey is the single slot the calendar credential is kept under.
const StorageKey = "google_calendar_token"

// TokenRecord is the locally persisted OAuth credential bundle.
// ExpiresAt is epoch milliseconds.
type TokenRecord struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ExpiresAt    int64  `json:"expires_at"`
	TokenType    string `json:"token_type"`
	Scope        string `json:"scope"`
}

// TokenResponse is the token endpoint payload. ExpiresIn is in seconds.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ExpiresIn    int64  `json:"expires_in"`
	TokenType    string `json:"token_type"`
	Scope        string `json:"scope"`
}

// ResponseFromOAuth2 converts an oauth2.Token returned by the token endpoint.
// When the wire expires_in is missing it is derived from Expiry, which
// oauth2 sets from the wall clock, so the difference is taken against
// time.Now and not against a Store clock.
func ResponseFromOAuth2(tok *oauth2.Token) TokenResponse {
	resp := TokenResponse{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresIn:    tok.ExpiresIn,
		TokenType:    tok.TokenType,
	}
	if resp.ExpiresIn == 0 && !tok.Expiry.IsZero() {
		resp.ExpiresIn = int64(time.Until(tok.Expiry).Round(time.Second) / time.Second)
	}
	if scope, ok := tok.Extra("scope").(string); ok {
		resp.Scope = scope
	}
	return resp
}

// Expiry returns ExpiresAt as a time.Time.
func (r *TokenRecord) Expiry() time.Time {
	return time.UnixMilli(r.ExpiresAt)
}

// OAuth2Token converts the record for use with oauth2 transports.
func (r *TokenRecord) OAuth2Token() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  r.AccessToken,
		RefreshToken: r.RefreshToken,
		TokenType:    r.TokenType,
		Expiry:       r.Expiry(),
	}
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithLogger sets the logger used for warnings about unreadable records.
func WithLogger(l logging.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// Store reads and writes the single token slot in a Storage backend.
type Store struct {
	storage Storage
	now     func() time.Time
	logger  logging.Logger
}

// NewStore creates a Store over the given backend.
func NewStore(storage Storage, opts ...Option) *Store {
	s := &Store{
		storage: storage,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logging.OrDefault(s.logger)
	return s
}

// Now returns the store's current time.
func (s *Store) Now() time.Time {
	return s.now()
}

// GetStoredToken returns the stored record, or nil when the slot is empty
// or holds something that does not decode as a record.
func (s *Store) GetStoredToken(ctx context.Context) (*TokenRecord, error) {
	data, err := s.storage.Get(ctx, StorageKey)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read token: %w", err)
	}

	var rec TokenRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		s.logger.Warn("stored token is malformed, treating as absent", logging.Err(err))
		return nil, nil
	}
	if rec.AccessToken == "" {
		s.logger.Warn("stored token has no access token, treating as absent")
		return nil, nil
	}
	return &rec, nil
}

// StoreToken builds a record from a token endpoint response and overwrites
// the slot. ExpiresAt is now plus ExpiresIn seconds.
func (s *Store) StoreToken(ctx context.Context, resp TokenResponse) (*TokenRecord, error) {
	rec := &TokenRecord{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		ExpiresAt:    s.now().UnixMilli() + resp.ExpiresIn*1000,
		TokenType:    resp.TokenType,
		Scope:        resp.Scope,
	}
	if err := s.Save(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Save overwrites the slot with rec.
func (s *Store) Save(ctx context.Context, rec *TokenRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode token: %w", err)
	}
	if err := s.storage.Set(ctx, StorageKey, data); err != nil {
		return fmt.Errorf("failed to store token: %w", err)
	}
	s.logger.Debug("token stored",
		logging.Token("access_token", rec.AccessToken),
		"has_refresh_token", rec.RefreshToken != "")
	return nil
}

// IsTokenExpired reports whether now >= rec.ExpiresAt. A nil record counts
// as expired.
func (s *Store) IsTokenExpired(rec *TokenRecord) bool {
	if rec == nil {
		return true
	}
	return s.now().UnixMilli() >= rec.ExpiresAt
}

// ClearToken deletes the slot. Clearing an empty slot succeeds.
func (s *Store) ClearToken(ctx context.Context) error {
	if err := s.storage.Delete(ctx, StorageKey); err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("failed to clear token: %w", err)
	}
	return nil
}

// IsAuthenticated reports whether a stored, unexpired token exists.
func (s *Store) IsAuthenticated(ctx context.Context) bool {
	rec, err := s.GetStoredToken(ctx)
	if err != nil || rec == nil {
		return false
	}
	return !s.IsTokenExpired(rec)
}
