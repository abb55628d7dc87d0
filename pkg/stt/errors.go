package stt

import (
	"errors"
	"fmt"
)

// Sentinel errors for the stt package.
var (
	// ErrMissingAPIKey indicates the API key was not provided.
	ErrMissingAPIKey = errors.New("stt: API key is required")

	// ErrNotConnected indicates the session is closed.
	ErrNotConnected = errors.New("stt: not connected")

	// ErrInvalidMessage indicates a malformed message was received.
	ErrInvalidMessage = errors.New("stt: invalid message")
)

// APIError is an error event reported by the provider.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("stt: API error (HTTP %d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("stt: API error: %s", e.Message)
}

// IsUnauthorized reports whether the provider rejected the credentials.
func (e *APIError) IsUnauthorized() bool {
	return e.StatusCode == 401 || e.StatusCode == 403
}

// ConnectionError represents a websocket connection failure.
type ConnectionError struct {
	// Reason describes why the connection failed.
	Reason string

	// Cause is the underlying error.
	Cause error

	// Retryable indicates if reconnection could succeed.
	Retryable bool
}

func (e *ConnectionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("stt: connection error: %s: %v", e.Reason, e.Cause)
	}
	return fmt.Sprintf("stt: connection error: %s", e.Reason)
}

// Unwrap returns the underlying cause.
func (e *ConnectionError) Unwrap() error {
	return e.Cause
}

// NewConnectionError creates a new ConnectionError.
func NewConnectionError(reason string, cause error, retryable bool) *ConnectionError {
	return &ConnectionError{
		Reason:    reason,
		Cause:     cause,
		Retryable: retryable,
	}
}

// IsRetryable returns true if the error can be retried.
func IsRetryable(err error) bool {
	var connErr *ConnectionError
	if errors.As(err, &connErr) {
		return connErr.Retryable
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429 || apiErr.StatusCode >= 500
	}
	return false
}
