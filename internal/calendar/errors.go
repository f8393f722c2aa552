package calendar

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNoToken is returned when no credential is stored.
	ErrNoToken = errors.New("no token")

	// ErrUnauthorized matches an *HTTPError with status 401.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrNetwork wraps transport failures.
	ErrNetwork = errors.New("network error")

	errNullEvent = errors.New("event is null")
)

// HTTPError is a non-2xx response from the Calendar API.
type HTTPError struct {
	Status  int
	Message string
}

func (e *HTTPError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("HTTP error! status: %d, message: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("HTTP error! status: %d", e.Status)
}

// Is lets errors.Is(err, ErrUnauthorized) match a 401.
func (e *HTTPError) Is(target error) bool {
	return target == ErrUnauthorized && e.Status == http.StatusUnauthorized
}
