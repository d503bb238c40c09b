package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func authServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.Header.Get("Content-Type") != "application/json" {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var req loginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		switch {
		case req.Username == "alice" && req.Password == "secret":
			_ = json.NewEncoder(w).Encode(map[string]string{"token": "tok-123"})
		case req.Username == "notoken":
			_ = json.NewEncoder(w).Encode(map[string]string{})
		default:
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "invalid username or password"})
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestLoginSuccess(t *testing.T) {
	srv := authServer(t)
	c := NewClient(srv.URL, zerolog.Nop())

	creds, err := c.Login(context.Background(), " alice ", "secret")
	require.NoError(t, err)
	assert.Equal(t, Credentials{Username: "alice", Token: "tok-123"}, creds)

	user, token := creds.Credentials()
	assert.Equal(t, "alice", user)
	assert.Equal(t, "tok-123", token)
}

func TestLoginRefused(t *testing.T) {
	srv := authServer(t)
	c := NewClient(srv.URL, zerolog.Nop())

	_, err := c.Login(context.Background(), "alice", "wrong")
	require.ErrorIs(t, err, ErrLoginFailed)
	assert.Contains(t, err.Error(), "invalid username or password")
}

func TestLoginWithoutToken(t *testing.T) {
	srv := authServer(t)
	c := NewClient(srv.URL, zerolog.Nop())

	_, err := c.Login(context.Background(), "notoken", "x")
	assert.ErrorIs(t, err, ErrLoginFailed)
}

func TestLoginValidatesInput(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", zerolog.Nop())

	_, err := c.Login(context.Background(), "  ", "secret")
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = c.Login(context.Background(), "alice", "")
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestLoginUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := NewClient(url, zerolog.Nop())
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := c.Login(ctx, "alice", "secret")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrLoginFailed)
}
