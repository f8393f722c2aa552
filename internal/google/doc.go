// Package google talks to Google's OAuth 2.0 endpoints on behalf of the
// calendar client.
//
// Client exchanges authorization codes for tokens and refreshes stored
// tokens, persisting both through a token.Store. It implements
// TokenProvider, which the calendar client uses to obtain bearer tokens and
// to request a single refresh after a 401.
package google
