// Package ai calls the remote AI-answer service over HTTP. This is the
// one path in the session layer whose failures propagate to the caller.
package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"
)

// Config holds settings for the AI-answer client.
type Config struct {
	BaseURL string        // service base URL, e.g. "http://localhost:8090"
	Timeout time.Duration // per-request timeout, default 30s
}

// Client asks the AI-answer service over request/response HTTP.
type Client struct {
	http    *fasthttp.Client
	baseURL string
	timeout time.Duration
	logger  zerolog.Logger
}

// New creates an AI-answer client.
func New(cfg Config, logger zerolog.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		http:    &fasthttp.Client{},
		baseURL: cfg.BaseURL,
		timeout: cfg.Timeout,
		logger:  logger.With().Str("component", "ai-client").Logger(),
	}
}

type askRequest struct {
	Message string `json:"message"`
	UserID  string `json:"userId"`
	GroupID string `json:"groupId"`
}

type askResponse struct {
	Response string `json:"response"`
	Error    string `json:"error,omitempty"`
}

// Ask sends the message for the user's AI conversation and returns the
// generated answer. A context deadline shortens the default timeout.
func (c *Client) Ask(ctx context.Context, message, userID, groupID string) (string, error) {
	body, err := json.Marshal(askRequest{Message: message, UserID: userID, GroupID: groupID})
	if err != nil {
		return "", fmt.Errorf("ai: encode request: %w", err)
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.baseURL + "/ask")
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	req.SetBody(body)

	timeout := c.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}
	if err := c.http.DoTimeout(req, resp, timeout); err != nil {
		return "", fmt.Errorf("ai: request failed: %w", err)
	}
	if resp.StatusCode() != fasthttp.StatusOK {
		return "", fmt.Errorf("ai: unexpected status %d", resp.StatusCode())
	}

	var out askResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return "", fmt.Errorf("ai: decode response: %w", err)
	}
	if out.Error != "" {
		return "", fmt.Errorf("ai: service error: %s", out.Error)
	}
	return out.Response, nil
}
