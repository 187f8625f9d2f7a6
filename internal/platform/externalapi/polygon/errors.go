package polygon

import (
	"errors"
	"fmt"
)

var (
	// ErrRateLimited matches a request that was still rate limited after every retry.
	ErrRateLimited = errors.New("polygon: rate limited")

	// ErrProvider matches a response whose body reports status "ERROR".
	ErrProvider = errors.New("polygon: provider error")
)

// RateLimitedError is returned when every attempt for an endpoint got HTTP 429.
type RateLimitedError struct {
	Endpoint string
	Attempts int
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("polygon %s: rate limited after %d attempts", e.Endpoint, e.Attempts)
}

func (e *RateLimitedError) Is(target error) bool { return target == ErrRateLimited }

// HTTPError is a non-retryable HTTP status (>= 400, other than 429).
type HTTPError struct {
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("polygon %s: http %d: %s", e.Endpoint, e.StatusCode, e.Body)
}

// NetworkError wraps a transport failure. It is not retried.
type NetworkError struct {
	Endpoint string
	Err      error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("polygon %s: %v", e.Endpoint, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// ProviderError carries the error message of a response with status "ERROR".
type ProviderError struct {
	Endpoint string
	Status   string
	Message  string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("polygon %s: status %s: %s", e.Endpoint, e.Status, e.Message)
}

func (e *ProviderError) Is(target error) bool { return target == ErrProvider }
