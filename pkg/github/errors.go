package github

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for API operations. Check them with errors.Is.
var (
	// ErrRateLimitThreshold is returned instead of spending the last part
	// of the rate-limit budget.
	ErrRateLimitThreshold = errors.New("rate limit threshold reached")

	// ErrUnexpectedContent is returned when a successful reply is not JSON
	ErrUnexpectedContent = errors.New("unexpected content type")
)

// APIError is any non-success reply from the API. It keeps the request
// identity and the response for diagnosis.
type APIError struct {
	Method     string
	URL        string
	StatusCode int
	Message    string
	Response   *Resource
	Err        error
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s %s: %s", e.Method, e.URL, msg)
	}
	return fmt.Sprintf("%s %s: %d %s", e.Method, e.URL, e.StatusCode, msg)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// Temporary reports whether retrying the same request may succeed
func (e *APIError) Temporary() bool {
	return e.StatusCode >= http.StatusInternalServerError
}

// NotFoundError signals absence rather than failure: a missing settings
// file, ref or repository.
type NotFoundError struct {
	APIError
}

func (e *NotFoundError) Error() string {
	return "not found: " + e.APIError.Error()
}

// IsNotFound reports whether err is or wraps a *NotFoundError
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsNotModified reports whether err is a 304 reply that could not be served
// from the cache
func IsNotModified(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotModified
}
