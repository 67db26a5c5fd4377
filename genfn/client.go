package genfn

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"github.com/tidwall/gjson"
)

// Client calls the remote generation service. Transport failures and 5xx
// responses are retried with backoff; 4xx responses fail immediately. On
// any failure the caller's state is left unchanged.
type Client struct {
	endpoint   string
	httpClient *http.Client
	maxRetries uint64
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

// WithMaxRetries overrides the retry budget for transport/5xx failures.
func WithMaxRetries(n uint64) ClientOption {
	return func(c *Client) { c.maxRetries = n }
}

// NewClient creates a generation client for the given endpoint URL.
func NewClient(endpoint string, opts ...ClientOption) *Client {
	c := &Client{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		maxRetries: 2,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Generate posts a request and returns the generated function text plus
// the request correlation id.
func (c *Client) Generate(ctx context.Context, req Request) (string, string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", "", fmt.Errorf("encoding generation request: %w", err)
	}
	requestID := uuid.NewString()

	var text string
	backoff := retry.WithMaxRetries(c.maxRetries, retry.NewFibonacci(250*time.Millisecond))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
		if err != nil {
			return err
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("X-Request-Id", requestID)

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			return retry.RetryableError(err)
		}
		defer resp.Body.Close()

		payload, err := io.ReadAll(resp.Body)
		if err != nil {
			return retry.RetryableError(fmt.Errorf("reading generation response: %w", err))
		}
		if resp.StatusCode >= 500 {
			return retry.RetryableError(fmt.Errorf("generation service returned %d", resp.StatusCode))
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return fmt.Errorf("generation service returned %d", resp.StatusCode)
		}

		result := gjson.GetBytes(payload, "generatedFunctionText")
		if !result.Exists() {
			return fmt.Errorf("generation response missing generatedFunctionText")
		}
		text = result.String()
		return nil
	})
	if err != nil {
		return "", requestID, fmt.Errorf("generation request %s: %w", requestID, err)
	}
	return text, requestID, nil
}
