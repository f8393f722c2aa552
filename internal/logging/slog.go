package logging

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// Attribute keys shared by healthcal's log records.
const (
	KeyOperation = "operation"
	KeyStatus    = "status"
	KeyError     = "error"
)

// Status values. instrumentation keeps its own copies for metric labels.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Output formats accepted by NewLogger.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// secretKeys are masked by every logger NewLogger builds, whatever value
// the caller passed.
var secretKeys = map[string]bool{
	"access_token":  true,
	"refresh_token": true,
	"id_token":      true,
	"client_secret": true,
	"code":          true,
	"password":      true,
	"session_token": true,
}

// NewLogger builds the process logger writing to w. Format is FormatText
// or FormatJSON, case-insensitive; anything else is text.
func NewLogger(w io.Writer, format string, debug bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo, ReplaceAttr: maskSecrets}
	if debug {
		opts.Level = slog.LevelDebug
	}
	if strings.EqualFold(format, FormatJSON) {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func maskSecrets(_ []string, a slog.Attr) slog.Attr {
	if !secretKeys[a.Key] || a.Value.Kind() != slog.KindString {
		return a
	}
	if v := a.Value.String(); !isMasked(v) {
		a.Value = slog.StringValue(SanitizeToken(v))
	}
	return a
}

func isMasked(v string) bool {
	return v == "<empty>" || strings.HasPrefix(v, "[token:")
}

// Operation is the operation attribute, e.g. "calendar.list".
func Operation(op string) slog.Attr {
	return slog.String(KeyOperation, op)
}

func Status(status string) slog.Attr {
	return slog.String(KeyStatus, status)
}

// Err is the error attribute. A nil err yields an empty group, which
// handlers drop, so Err(maybeNil) is always safe.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Group("")
	}
	return slog.String(KeyError, err.Error())
}

// SanitizeToken describes a credential by length only.
func SanitizeToken(token string) string {
	if token == "" {
		return "<empty>"
	}
	return fmt.Sprintf("[token:%d chars]", len(token))
}

// Token is a masked credential attribute under key.
func Token(key, token string) slog.Attr {
	return slog.String(key, SanitizeToken(token))
}
