package errors

import (
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// HTTPError carries the status of a failed HTTP exchange so classification
// can branch on it. Resource fetch strategies produce these for non-2xx
// responses.
type HTTPError struct {
	Status     int
	Code       string
	Message    string
	RetryAfter time.Duration
}

// Error implements the error interface.
func (e *HTTPError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("http %d: %s", e.Status, http.StatusText(e.Status))
}

// NewHTTPError creates an HTTPError for a status code with an optional
// message.
func NewHTTPError(status int, message ...string) *HTTPError {
	he := &HTTPError{Status: status}
	if len(message) > 0 {
		he.Message = message[0]
	}
	return he
}

// HTTPErrorFromResponse builds an HTTPError from a non-2xx response,
// honoring a Retry-After header expressed in seconds.
func HTTPErrorFromResponse(resp *http.Response) *HTTPError {
	he := &HTTPError{Status: resp.StatusCode}
	if ra := resp.Header.Get("Retry-After"); ra != "" {
		if secs, err := strconv.Atoi(ra); err == nil && secs > 0 {
			he.RetryAfter = time.Duration(secs) * time.Second
		}
	}
	return he
}
