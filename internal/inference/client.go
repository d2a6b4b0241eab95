// ABOUTME: HTTP client for the remote inference gateway.
// ABOUTME: Sends a prompt with its session id and decodes the reply or capacity signal.

package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// ErrUnavailable is returned when the gateway is unreachable or answers
// with a non-2xx status.
var ErrUnavailable = errors.New("inference gateway unavailable")

// Result is the gateway's answer to one exchange. AtCapacity set means
// the session has no more room for turns and must roll over; it is a
// protocol signal, not a failure, so Reply is empty and err is nil.
type Result struct {
	Reply      string
	AtCapacity bool
}

// Gateway is the inference boundary consumed by the message pipeline.
type Gateway interface {
	Respond(ctx context.Context, prompt, sessionID string) (*Result, error)
}

// Client implements Gateway over HTTP JSON.
type Client struct {
	url    string
	http   *http.Client
	logger *slog.Logger
}

// request is the JSON body sent to the inference endpoint.
type request struct {
	Prompt    string `json:"prompt"`
	SessionID string `json:"session_id"`
}

// response is the JSON body returned by the inference endpoint.
type response struct {
	Reply      string `json:"reply"`
	AtCapacity bool   `json:"session_at_capacity"`
}

// NewClient creates an inference client for the given endpoint URL.
func NewClient(url string, timeout time.Duration) *Client {
	return &Client{
		url:    url,
		http:   &http.Client{Timeout: timeout},
		logger: slog.Default().With("component", "inference"),
	}
}

// Respond sends one prompt and returns the reply or the capacity signal.
func (c *Client) Respond(ctx context.Context, prompt, sessionID string) (*Result, error) {
	body, err := json.Marshal(request{Prompt: prompt, SessionID: sessionID})
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain so the connection can be reused
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	var decoded response
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	if decoded.AtCapacity {
		c.logger.Debug("session at capacity", "session_id", sessionID)
		return &Result{AtCapacity: true}, nil
	}

	return &Result{Reply: decoded.Reply}, nil
}
