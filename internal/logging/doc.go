// Package logging builds healthcal's slog loggers and the small Logger
// interface that token storage, the OAuth flow and the calendar client
// accept.
//
// Loggers from NewLogger mask credential attributes (access_token,
// refresh_token, id_token, client_secret, code) by key, so a stray
// token in a log call prints as its length only:
//
//	logger.Debug("token stored", logging.Token("access_token", rec.AccessToken))
//
// Components hold a Logger rather than *slog.Logger; tests pass Discard.
package logging
