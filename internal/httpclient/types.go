package httpclient

import (
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// HTTPError is returned for any non-2xx response
type HTTPError struct {
	StatusCode int
	URL        string
	Message    string
	Header     http.Header
}

// NewHTTPError creates a new HTTPError
func NewHTTPError(statusCode int, url, message string) *HTTPError {
	return &HTTPError{
		StatusCode: statusCode,
		URL:        url,
		Message:    message,
	}
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d for URL %s: %s", e.StatusCode, e.URL, e.Message)
}

// RetryAfter parses the Retry-After header in its delay-seconds or HTTP-date form.
// Returns zero when the header is absent or malformed.
func (e *HTTPError) RetryAfter(now time.Time) time.Duration {
	if e.Header == nil {
		return 0
	}
	value := e.Header.Get("Retry-After")
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil && at.After(now) {
		return at.Sub(now)
	}
	return 0
}
