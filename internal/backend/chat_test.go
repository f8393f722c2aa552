package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendChat(t *testing.T) {
	var got ChatRequest
	c := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/chat/health-chat", r.URL.Path)
		assert.Equal(t, "Bearer session-1", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"success": true, "response": "Drink water.", "health_context_included": true}`))
	})

	reply, err := c.SendChat(context.Background(), "session-1", "  how am I doing?  ", true)
	require.NoError(t, err)
	assert.Equal(t, ChatRequest{Message: "how am I doing?", IncludeHealthContext: true}, got)
	assert.Equal(t, "Drink water.", reply.Response)
	assert.True(t, reply.HealthContextIncluded)
}

func TestSendChat_Validation(t *testing.T) {
	c := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request %s", r.URL.Path)
	})

	_, err := c.SendChat(context.Background(), "", "hi", false)
	assert.ErrorIs(t, err, errNoSession)

	_, err = c.SendChat(context.Background(), "session-1", "   ", false)
	assert.EqualError(t, err, "message is required")
}

func TestChatHistory_ClampsPaging(t *testing.T) {
	tests := []struct {
		name          string
		limit, offset int
		wantQuery     string
	}{
		{name: "defaults", limit: 0, offset: 0, wantQuery: "limit=50&offset=0"},
		{name: "in range", limit: 10, offset: 20, wantQuery: "limit=10&offset=20"},
		{name: "too large", limit: 500, offset: -3, wantQuery: "limit=50&offset=0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/api/chat/chat-history", r.URL.Path)
				assert.Equal(t, tt.wantQuery, r.URL.RawQuery)
				_, _ = w.Write([]byte(`{"success": true, "total": 0}`))
			})

			h, err := c.ChatHistory(context.Background(), "session-1", tt.limit, tt.offset)
			require.NoError(t, err)
			assert.NotNil(t, h.Messages)
		})
	}
}

func TestClearChatHistory(t *testing.T) {
	c := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		_, _ = w.Write([]byte(`{"success": true, "message": "Chat history cleared successfully"}`))
	})

	res, err := c.ClearChatHistory(context.Background(), "session-1")
	require.NoError(t, err)
	assert.Equal(t, "Chat history cleared successfully", res.Message)
}

func TestClearChatHistory_ServerErrorMessage(t *testing.T) {
	c := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"success": false, "message": "Internal server error: db down"}`))
	})

	_, err := c.ClearChatHistory(context.Background(), "session-1")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "Internal server error: db down", apiErr.Message)
}
