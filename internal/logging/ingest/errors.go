package ingest

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ConnectError means the ingestion endpoint could not be reached at all.
type ConnectError struct {
	Err error
}

func (e *ConnectError) Error() string { return fmt.Sprintf("connection failed: %v", e.Err) }
func (e *ConnectError) Unwrap() error { return e.Err }

// TimeoutError means a single attempt ran past the request timeout.
type TimeoutError struct {
	Timeout time.Duration
	Err     error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("request timed out after %s: %v", e.Timeout, e.Err)
}
func (e *TimeoutError) Unwrap() error { return e.Err }

type TransportError struct {
	Err error
}

func (e *TransportError) Error() string { return fmt.Sprintf("request failed: %v", e.Err) }
func (e *TransportError) Unwrap() error { return e.Err }

// StatusError carries a non-2xx answer from the server.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.ServerError() {
		return fmt.Sprintf("server error (HTTP %d): %s", e.StatusCode, e.Body)
	}
	return fmt.Sprintf("client error (HTTP %d): %s", e.StatusCode, e.Body)
}

func (e *StatusError) ServerError() bool { return e.StatusCode >= 500 }

type ParseError struct {
	Err error
}

func (e *ParseError) Error() string { return fmt.Sprintf("failed to parse response: %v", e.Err) }
func (e *ParseError) Unwrap() error { return e.Err }

type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid client config: %s: %s", e.Field, e.Message)
}

type RetriesExhaustedError struct {
	Attempts  int
	LastError string
	last      error
}

func (e *RetriesExhaustedError) Error() string {
	return fmt.Sprintf("all %d attempts failed, last error: %s", e.Attempts, e.LastError)
}
func (e *RetriesExhaustedError) Unwrap() error { return e.last }

// IsRetryable reports whether another attempt could succeed. Transport
// failures, 5xx and 429 are retryable; other statuses, malformed responses,
// configuration problems and caller cancellation are not.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var (
		exhausted    *RetriesExhaustedError
		connectErr   *ConnectError
		timeoutErr   *TimeoutError
		transportErr *TransportError
		statusErr    *StatusError
	)
	switch {
	case errors.As(err, &exhausted):
		return false
	case errors.As(err, &connectErr), errors.As(err, &timeoutErr), errors.As(err, &transportErr):
		return true
	case errors.As(err, &statusErr):
		return statusErr.ServerError() || statusErr.StatusCode == http.StatusTooManyRequests
	default:
		return false
	}
}
