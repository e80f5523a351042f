package fetch

import (
	"errors"
	"fmt"
	"unicode/utf8"
)

// maxErrorBody bounds the response excerpt kept on a RequestError
const maxErrorBody = 512

// ThrottledError is returned when every attempt was throttled
type ThrottledError struct {
	Attempts       int
	LastStatus     *ThrottleStatus
	LastHTTPStatus int
}

func (e *ThrottledError) Error() string {
	if e.LastStatus != nil {
		return fmt.Sprintf("fetch: throttled after %d attempts (HTTP %d, available %.0f/%.0f, restore %.1f/s)",
			e.Attempts, e.LastHTTPStatus, e.LastStatus.CurrentlyAvailable,
			e.LastStatus.MaximumAvailable, e.LastStatus.RestoreRate)
	}
	return fmt.Sprintf("fetch: throttled after %d attempts (HTTP %d)", e.Attempts, e.LastHTTPStatus)
}

// NetworkError is returned when the transport kept failing (DNS, connection,
// timeout, or a 5xx response)
type NetworkError struct {
	Attempts int
	Err      error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("fetch: network failure after %d attempts: %v", e.Attempts, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// RequestError is a non-retryable 4xx response
type RequestError struct {
	StatusCode int
	Body       string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("fetch: request rejected with HTTP %d: %s", e.StatusCode, e.Body)
}

func newRequestError(status int, body []byte) *RequestError {
	return &RequestError{StatusCode: status, Body: truncateBody(body, maxErrorBody)}
}

// truncateBody cuts body to at most limit bytes on a rune boundary
func truncateBody(body []byte, limit int) string {
	if len(body) <= limit {
		return string(body)
	}
	cut := limit
	for cut > 0 && cut > limit-utf8.UTFMax && !utf8.RuneStart(body[cut]) {
		cut--
	}
	return string(body[:cut]) + "..."
}

// ValidationError reports a missing or malformed identifier needed to build a request
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("fetch: invalid %s: %s", e.Field, e.Message)
}

// IsRetryable reports whether err is worth retrying later (throttling or transport)
func IsRetryable(err error) bool {
	var throttled *ThrottledError
	var network *NetworkError
	return errors.As(err, &throttled) || errors.As(err, &network)
}
