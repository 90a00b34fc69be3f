package httpclient_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/crmsync/internal/httpclient"
)

// newTestServer creates a new test server with keep-alives disabled.
// Closing a server with keep-alives enabled can affect parallel tests sharing the transport.
func newTestServer(handler http.Handler) *httptest.Server {
	server := httptest.NewServer(handler)
	server.Config.SetKeepAlivesEnabled(false)
	return server
}

func TestNewDefaultClient(t *testing.T) {
	t.Parallel()

	for _, timeout := range []time.Duration{0, 5 * time.Second, 10 * time.Minute} {
		client := httpclient.NewDefaultClient(timeout)
		require.NotNil(t, client)
	}
}

func TestDefaultClient_Get(t *testing.T) {
	t.Parallel()

	var receivedUserAgent, receivedAccept, receivedMethod string
	server := newTestServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		receivedUserAgent = r.Header.Get("User-Agent")
		receivedAccept = r.Header.Get("Accept")
		receivedMethod = r.Method
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"message": "success"}`))
	}))
	defer server.Close()

	client := httpclient.NewDefaultClient(30 * time.Second)
	data, err := client.Get(context.Background(), server.URL)

	require.NoError(t, err)
	assert.JSONEq(t, `{"message": "success"}`, string(data))
	assert.Equal(t, httpclient.UserAgent, receivedUserAgent)
	assert.Equal(t, "application/json", receivedAccept)
	assert.Equal(t, http.MethodGet, receivedMethod)
}

func TestDefaultClient_Do_SendsBodyAndHeaders(t *testing.T) {
	t.Parallel()

	var receivedBody, receivedAuth, receivedContentType string
	server := newTestServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		receivedBody = string(body)
		receivedAuth = r.Header.Get("Authorization")
		receivedContentType = r.Header.Get("Content-Type")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"x1"}`))
	}))
	defer server.Close()

	client := httpclient.NewDefaultClient(30 * time.Second)
	header := http.Header{}
	header.Set("Authorization", "Bearer token-1")

	data, err := client.Do(context.Background(), http.MethodPost, server.URL, []byte(`{"a":1}`), header)

	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"x1"}`, string(data))
	assert.Equal(t, `{"a":1}`, receivedBody)
	assert.Equal(t, "Bearer token-1", receivedAuth)
	assert.Equal(t, "application/json", receivedContentType)
}

func TestDefaultClient_Get_HTTPErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		statusCode int
		retryAfter string
		wantDelay  time.Duration
	}{
		{name: "not found", statusCode: http.StatusNotFound},
		{name: "unauthorized", statusCode: http.StatusUnauthorized},
		{name: "server error", statusCode: http.StatusInternalServerError},
		{name: "rate limited with retry-after", statusCode: http.StatusTooManyRequests, retryAfter: "7", wantDelay: 7 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			server := newTestServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				if tt.retryAfter != "" {
					w.Header().Set("Retry-After", tt.retryAfter)
				}
				w.WriteHeader(tt.statusCode)
			}))
			defer server.Close()

			client := httpclient.NewDefaultClient(30 * time.Second)
			_, err := client.Get(context.Background(), server.URL)

			require.Error(t, err)
			var httpErr *httpclient.HTTPError
			require.True(t, errors.As(err, &httpErr))
			assert.Equal(t, tt.statusCode, httpErr.StatusCode)
			assert.Contains(t, err.Error(), fmt.Sprintf("HTTP %d", tt.statusCode))
			assert.Equal(t, tt.wantDelay, httpErr.RetryAfter(time.Now()))
		})
	}
}

func TestDefaultClient_Get_ContextCancelled(t *testing.T) {
	t.Parallel()

	server := newTestServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	client := httpclient.NewDefaultClient(30 * time.Second)
	_, err := client.Get(ctx, server.URL)

	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDefaultClient_Get_InvalidURL(t *testing.T) {
	t.Parallel()

	client := httpclient.NewDefaultClient(30 * time.Second)
	_, err := client.Get(context.Background(), "://bad-url")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create request")
}

func TestDefaultClient_Get_ResponseSizeLimit(t *testing.T) {
	t.Parallel()

	server := newTestServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Length", fmt.Sprintf("%d", 101*1024*1024))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := httpclient.NewDefaultClient(30 * time.Second)
	_, err := client.Get(context.Background(), server.URL)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds maximum allowed size")
	assert.Contains(t, err.Error(), "100.00 MB")
}
