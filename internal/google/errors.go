package google

import (
	"errors"
	"fmt"
)

// ErrRefreshFailed reports that the token endpoint rejected a refresh.
var ErrRefreshFailed = errors.New("token refresh failed")

// TokenEndpointError is a non-2xx response from the token endpoint. Body
// is the raw response body.
type TokenEndpointError struct {
	Status int
	Body   string
}

func (e *TokenEndpointError) Error() string {
	return fmt.Sprintf("token endpoint returned %d: %s", e.Status, e.Body)
}
