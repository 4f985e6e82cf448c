package ai

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

func TestAskSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/ask", r.URL.Path)

		var req askRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "u1", req.UserID)
		assert.Equal(t, "g1", req.GroupID)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(askResponse{Response: "echo: " + req.Message})
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL}, zerolog.Nop())
	answer, err := c.Ask(context.Background(), "hello", "u1", "g1")
	require.NoError(t, err)
	assert.Equal(t, "echo: hello", answer)
}

func TestAskServiceError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(askResponse{Error: "model unavailable"})
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL}, zerolog.Nop())
	_, err := c.Ask(context.Background(), "hello", "u1", "g1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model unavailable")
}

func TestAskBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL}, zerolog.Nop())
	_, err := c.Ask(context.Background(), "hello", "u1", "g1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestAskUnreachable(t *testing.T) {
	c := New(Config{BaseURL: "http://127.0.0.1:1", Timeout: 200 * time.Millisecond}, zerolog.Nop())
	_, err := c.Ask(context.Background(), "hello", "u1", "g1")
	require.Error(t, err)
}
