package backend

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/teemow/healthcal/internal/instrumentation"
)

// Chat history paging bounds enforced by the backend.
const (
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 100
)

var errNoSession = errors.New("a backend session token is required, run 'healthcal account login'")

// SendChat sends one message to the health assistant. With includeContext
// the backend adds the user's stored health insights to the prompt.
func (c *Client) SendChat(ctx context.Context, sessionToken, message string, includeContext bool) (*ChatReply, error) {
	if sessionToken == "" {
		return nil, errNoSession
	}
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, errors.New("message is required")
	}
	req := ChatRequest{Message: message, IncludeHealthContext: includeContext}
	var out ChatReply
	if err := c.do(ctx, instrumentation.OperationChat, http.MethodPost, "/api/chat/health-chat", req, sessionToken, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ChatHistory returns one page of the user's conversation. A limit outside
// 1..MaxHistoryLimit uses DefaultHistoryLimit and a negative offset is 0.
func (c *Client) ChatHistory(ctx context.Context, sessionToken string, limit, offset int) (*ChatHistory, error) {
	if sessionToken == "" {
		return nil, errNoSession
	}
	if limit < 1 || limit > MaxHistoryLimit {
		limit = DefaultHistoryLimit
	}
	offset = max(offset, 0)

	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	q.Set("offset", strconv.Itoa(offset))

	var out ChatHistory
	if err := c.do(ctx, instrumentation.OperationList, http.MethodGet, "/api/chat/chat-history?"+q.Encode(), nil, sessionToken, &out); err != nil {
		return nil, err
	}
	if out.Messages == nil {
		out.Messages = []ChatMessage{}
	}
	for i := range out.Messages {
		out.Messages[i].Content = c.sanitize(out.Messages[i].Content)
	}
	return &out, nil
}

// ClearChatHistory deletes the user's conversation.
func (c *Client) ClearChatHistory(ctx context.Context, sessionToken string) (*StatusResult, error) {
	if sessionToken == "" {
		return nil, errNoSession
	}
	var out StatusResult
	if err := c.do(ctx, instrumentation.OperationDelete, http.MethodDelete, "/api/chat/clear-chat-history", nil, sessionToken, &out); err != nil {
		return nil, err
	}
	if !out.Success {
		return nil, fmt.Errorf("backend did not clear the chat history: %s", out.Message)
	}
	return &out, nil
}
