package oauthflow

import (
	"errors"

	"github.com/teemow/healthcal/internal/token"
)

// FlowState is the controller's position in the authorization flow.
type FlowState string

const (
	StateIdle         FlowState = "IDLE"
	StateAwaitingUser FlowState = "AWAITING_USER"
	StateSuccess      FlowState = "SUCCESS"
	StateError        FlowState = "ERROR"
	StateCancelled    FlowState = "CANCELLED"
)

// Terminal reports whether s ends a flow.
func (s FlowState) Terminal() bool {
	return s == StateSuccess || s == StateError || s == StateCancelled
}

// MessageType identifies a callback message.
type MessageType string

const (
	MessageSuccess MessageType = "OAUTH_SUCCESS"
	MessageError   MessageType = "OAUTH_ERROR"
)

// Message is posted by the callback handler to the waiting controller.
type Message struct {
	Origin string      `json:"origin"`
	Type   MessageType `json:"type"`
	Error  string      `json:"error,omitempty"`
	State  string      `json:"state,omitempty"`
}

// AuthFlowResult is the single terminal outcome of Authenticate.
type AuthFlowResult struct {
	Success bool               `json:"success"`
	Token   *token.TokenRecord `json:"-"`
	Error   string             `json:"error,omitempty"`
	State   FlowState          `json:"state"`
}

var (
	// ErrPopupBlocked reports that the authorization window could not be opened.
	ErrPopupBlocked = errors.New("popup blocked")

	// ErrUserCancelled reports that the window closed before a callback arrived.
	ErrUserCancelled = errors.New("authentication cancelled by user")

	// ErrFlowInProgress is returned when Authenticate is called while a flow is running.
	ErrFlowInProgress = errors.New("authentication already in progress")
)

// NoCodeMessage is the callback error text used when the redirect carried
// no authorization code.
const NoCodeMessage = "No authorization code received"
