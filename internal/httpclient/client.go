// Package httpclient provides the HTTP client used by REST connectors
package httpclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	// DefaultTimeout applies when a zero timeout is requested
	DefaultTimeout = 30 * time.Second

	// MaxResponseSize caps how much of a response body is read
	MaxResponseSize = 100 * 1024 * 1024

	// UserAgent is sent with every request
	UserAgent = "crmsync/1.0"
)

// Client performs HTTP requests against external systems
//
//go:generate mockgen -destination=mocks/mock_client.go -package=mocks github.com/stacklok/crmsync/internal/httpclient Client
type Client interface {
	// Get fetches url and returns the response body
	Get(ctx context.Context, url string) ([]byte, error)

	// Do sends a request with an optional JSON body and returns the response body.
	// Non-2xx responses are returned as *HTTPError.
	Do(ctx context.Context, method, url string, body []byte, header http.Header) ([]byte, error)
}

// DefaultClient is the net/http backed Client
type DefaultClient struct {
	client *http.Client
}

// NewDefaultClient creates a client with the given request timeout
func NewDefaultClient(timeout time.Duration) *DefaultClient {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &DefaultClient{
		client: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

// Get fetches url and returns the response body
func (c *DefaultClient) Get(ctx context.Context, url string) ([]byte, error) {
	return c.Do(ctx, http.MethodGet, url, nil, nil)
}

// Do sends the request and returns the response body
func (c *DefaultClient) Do(ctx context.Context, method, url string, body []byte, header http.Header) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	for key, values := range header {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to perform request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.ContentLength > MaxResponseSize {
		return nil, fmt.Errorf("response size %d bytes exceeds maximum allowed size of %.2f MB",
			resp.ContentLength, float64(MaxResponseSize)/(1024*1024))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if len(data) > MaxResponseSize {
		return nil, fmt.Errorf("response body exceeds maximum allowed size of %.2f MB",
			float64(MaxResponseSize)/(1024*1024))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		httpErr := NewHTTPError(resp.StatusCode, url, http.StatusText(resp.StatusCode))
		httpErr.Header = resp.Header.Clone()
		return nil, httpErr
	}

	return data, nil
}
