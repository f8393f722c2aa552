package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogin(t *testing.T) {
	var got LoginRequest
	c := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/auth/login", r.URL.Path)
		assert.Empty(t, r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"message": "Login successful", "user": {"id": "u1", "email": "a@example.com", "username": "a"}, "access_token": "jwt-1"}`))
	})

	res, err := c.Login(context.Background(), "a@example.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, LoginRequest{Email: "a@example.com", Password: "secret1"}, got)
	assert.Equal(t, "jwt-1", res.AccessToken)
	assert.Equal(t, "u1", res.User.ID)
}

func TestLogin_Rejected(t *testing.T) {
	c := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error": "Invalid email or password"}`))
	})

	_, err := c.Login(context.Background(), "a@example.com", "wrong")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	assert.Equal(t, "Invalid email or password", apiErr.Message)
}

func TestRegister_Validation(t *testing.T) {
	c := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request %s", r.URL.Path)
	})

	tests := []struct {
		name    string
		req     RegisterRequest
		wantErr string
	}{
		{name: "no username", req: RegisterRequest{Email: "a@example.com", Password: "secret1"}, wantErr: "username is required"},
		{name: "no password", req: RegisterRequest{Email: "a@example.com", Username: "a"}, wantErr: "email and password are required"},
		{name: "bad email", req: RegisterRequest{Email: "nope", Password: "secret1", Username: "a"}, wantErr: "invalid email format"},
		{name: "short password", req: RegisterRequest{Email: "a@example.com", Password: "12345", Username: "a"}, wantErr: "password must be at least 6 characters long"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Register(context.Background(), tt.req)
			assert.EqualError(t, err, tt.wantErr)
		})
	}
}

func TestRegister(t *testing.T) {
	c := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/auth/register", r.URL.Path)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"message": "User registered successfully", "user": {"id": "u2"}, "access_token": "jwt-2"}`))
	})

	res, err := c.Register(context.Background(), RegisterRequest{Email: "b@example.com", Password: "secret1", Username: "b"})
	require.NoError(t, err)
	assert.Equal(t, "jwt-2", res.AccessToken)
}

func TestSessionAndLogout(t *testing.T) {
	var paths []string
	c := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.Method+" "+r.URL.Path)
		assert.Equal(t, "Bearer jwt-1", r.Header.Get("Authorization"))
		if r.URL.Path == "/api/auth/session" {
			_, _ = w.Write([]byte(`{"message": "Session valid", "user": {"id": "u1", "email": "a@example.com"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"message": "Logout successful"}`))
	})

	info, err := c.Session(context.Background(), "jwt-1")
	require.NoError(t, err)
	assert.Equal(t, "a@example.com", info.User.Email)

	require.NoError(t, c.Logout(context.Background(), "jwt-1"))
	assert.Equal(t, []string{"GET /api/auth/session", "POST /api/auth/logout"}, paths)

	assert.ErrorIs(t, c.Logout(context.Background(), ""), errNoSession)
}
