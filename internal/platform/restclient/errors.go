package restclient

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNotFound signals HTTP 404. Delete-type operations treat it as
	// "nothing to do", not a failure.
	ErrNotFound = errors.New("resource not found")

	// ErrGatewayTimeout signals HTTP 504, which gets a short fixed-interval
	// retry rather than exponential backoff.
	ErrGatewayTimeout = errors.New("gateway timeout")
)

// HTTPError is returned for any non-2xx response. Body holds the decoded
// error payload when the service returned JSON, or the raw text otherwise.
type HTTPError struct {
	StatusCode int
	Method     string
	URL        string
	Body       string
}

func (e *HTTPError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s %s: HTTP %d", e.Method, e.URL, e.StatusCode)
	}
	return fmt.Sprintf("%s %s: HTTP %d: %s", e.Method, e.URL, e.StatusCode, e.Body)
}

// Unwrap maps the distinguished status codes onto their sentinels so
// callers can use errors.Is without inspecting status codes.
func (e *HTTPError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusGatewayTimeout:
		return ErrGatewayTimeout
	}
	return nil
}
