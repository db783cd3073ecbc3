package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// errorBodyLimit caps how much of an error response is kept in the
// classified error message.
const errorBodyLimit = 2048

// HTTPClient is the shared transport for the HTTP-based adapters. It
// provides connection pooling and status-code classification; retry is
// deliberately absent here because the dispatch engine owns the retry loop
// and rotates credentials between attempts.
type HTTPClient struct {
	provider Kind
	client   *http.Client
}

// HTTPClientConfig tunes the pooled transport.
type HTTPClientConfig struct {
	// Timeout is the whole-request timeout. Zero means no client-side
	// timeout; streaming calls rely on context cancellation instead.
	Timeout time.Duration

	// MaxIdleConns is the maximum number of idle connections in the pool.
	// Default: 100
	MaxIdleConns int

	// MaxIdleConnsPerHost is the maximum idle connections per host.
	// Default: 10
	MaxIdleConnsPerHost int

	// IdleConnTimeout is how long an idle connection remains in the pool.
	// Default: 90s
	IdleConnTimeout time.Duration
}

// NewHTTPClient creates a pooled HTTP client for one adapter kind.
func NewHTTPClient(provider Kind, cfg HTTPClientConfig) *HTTPClient {
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = 100
	}
	if cfg.MaxIdleConnsPerHost == 0 {
		cfg.MaxIdleConnsPerHost = 10
	}
	if cfg.IdleConnTimeout == 0 {
		cfg.IdleConnTimeout = 90 * time.Second
	}

	transport := &http.Transport{
		MaxIdleConns:        cfg.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
		IdleConnTimeout:     cfg.IdleConnTimeout,
		ForceAttemptHTTP2:   true,
	}

	return &HTTPClient{
		provider: provider,
		client: &http.Client{
			Transport: transport,
			Timeout:   cfg.Timeout,
		},
	}
}

// Do performs a request and returns the response if the status is 2xx.
// Any other status is drained, closed, and converted into a
// *ClassifiedError via ClassifyStatus. Transport failures are normalized
// through ClassifyErr.
//
// The caller owns resp.Body on success.
func (c *HTTPClient) Do(ctx context.Context, method, url string, body []byte, headers map[string]string) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	for key, value := range headers {
		req.Header.Set(key, value)
	}
	if req.Header.Get("Content-Type") == "" && body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	slog.Debug("sending request to provider",
		"provider", c.provider,
		"method", method,
		"url", url,
	)

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ClassifyErr(c.provider, ctx.Err())
		}
		return nil, ClassifyErr(c.provider, err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}

	errorBody, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))
	resp.Body.Close()

	return nil, ClassifyStatus(c.provider, resp.StatusCode, string(errorBody))
}

// DoJSON performs a JSON request and decodes the response into respBody.
func (c *HTTPClient) DoJSON(ctx context.Context, method, url string, reqBody, respBody interface{}, headers map[string]string) error {
	var bodyBytes []byte
	var err error
	if reqBody != nil {
		bodyBytes, err = json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
	}

	resp, err := c.Do(ctx, method, url, bodyBytes, headers)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	responseBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return ClassifyErr(c.provider, fmt.Errorf("failed to read response: %w", err))
	}

	if respBody != nil && len(responseBytes) > 0 {
		if err := json.Unmarshal(responseBytes, respBody); err != nil {
			return &ClassifiedError{
				Provider: c.provider,
				Class:    ClassFatal,
				Code:     CodeUnknown,
				Message:  "failed to decode response",
				Cause:    err,
			}
		}
	}

	return nil
}

// Close releases idle connections.
func (c *HTTPClient) Close() {
	c.client.CloseIdleConnections()
}
