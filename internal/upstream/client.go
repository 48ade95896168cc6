// Package upstream implements the transport boundary against the chat
// backend: a thin HTTP client plus the visitor, conversation, and message
// directories the core consumes. Every response travels in a
// {status,message,data} envelope.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/embedchat/widget-gateway/pkg/logger"
	"github.com/embedchat/widget-gateway/pkg/metrics"
)

// Envelope is the response wrapper used by every upstream endpoint.
type Envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// APIError is a non-2xx upstream response carrying the backend's own
// status and message fields.
type APIError struct {
	StatusCode int
	Status     string
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("upstream error (%d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("upstream error (%d)", e.StatusCode)
}

// NotFound reports whether err is an upstream 404.
func NotFound(err error) bool {
	apiErr, ok := err.(*APIError)
	return ok && apiErr.StatusCode == http.StatusNotFound
}

// Client performs HTTP calls against the upstream backend.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *logger.Logger
}

// NewClient creates an upstream client. timeout bounds each round trip.
func NewClient(baseURL string, timeout time.Duration, log *logger.Logger) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		logger:     log,
	}
}

func (c *Client) get(ctx context.Context, path, endpoint string) (*Envelope, error) {
	return c.do(ctx, http.MethodGet, path, nil, endpoint)
}

func (c *Client) post(ctx context.Context, path string, body any, endpoint string) (*Envelope, error) {
	return c.do(ctx, http.MethodPost, path, body, endpoint)
}

func (c *Client) del(ctx context.Context, path, endpoint string) (*Envelope, error) {
	return c.do(ctx, http.MethodDelete, path, nil, endpoint)
}

func (c *Client) do(ctx context.Context, method, path string, body any, endpoint string) (*Envelope, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.RecordUpstream(endpoint, "transport_error", time.Since(start).Seconds())
		return nil, fmt.Errorf("upstream request failed: %w", err)
	}
	defer resp.Body.Close()
	metrics.RecordUpstream(endpoint, strconv.Itoa(resp.StatusCode), time.Since(start).Seconds())

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	env := &Envelope{}
	if len(raw) > 0 {
		// Tolerate non-envelope bodies; the status code still decides.
		_ = json.Unmarshal(raw, env)
	}

	if resp.StatusCode >= 400 {
		return env, &APIError{
			StatusCode: resp.StatusCode,
			Status:     env.Status,
			Message:    env.Message,
		}
	}

	return env, nil
}
