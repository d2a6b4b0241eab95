// ABOUTME: Tests for the inference gateway HTTP client.
// ABOUTME: Covers reply decoding, the capacity signal, and failure classification.

package inference

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRespond_Reply(t *testing.T) {
	var gotBody request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		json.NewEncoder(w).Encode(map[string]any{"reply": "hello back"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second)
	result, err := c.Respond(context.Background(), "hello", "sess-1")
	require.NoError(t, err)

	assert.Equal(t, "hello back", result.Reply)
	assert.False(t, result.AtCapacity)
	assert.Equal(t, "hello", gotBody.Prompt)
	assert.Equal(t, "sess-1", gotBody.SessionID)
}

func TestRespond_CapacitySignal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"session_at_capacity": true})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second)
	result, err := c.Respond(context.Background(), "one more", "sess-1")
	require.NoError(t, err, "capacity is a signal, not a failure")

	assert.True(t, result.AtCapacity)
	assert.Empty(t, result.Reply)
}

func TestRespond_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second)
	_, err := c.Respond(context.Background(), "hello", "sess-1")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestRespond_Unreachable(t *testing.T) {
	c := NewClient("http://127.0.0.1:1/nope", 200*time.Millisecond)
	_, err := c.Respond(context.Background(), "hello", "sess-1")
	assert.ErrorIs(t, err, ErrUnavailable)
}
