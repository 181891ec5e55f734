package remote

import (
	"errors"
	"fmt"
)

// NetworkError covers connection failures, timeouts and 5xx responses.
// Always retryable; the dispatcher absorbs it with backoff.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error during %s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// ValidationError is a 4xx rejection. Never retried; the command is parked
// as failed for operator action.
type ValidationError struct {
	StatusCode int
	Message    string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("remote rejected request (%d): %s", e.StatusCode, e.Message)
}

func IsNetwork(err error) bool {
	var ne *NetworkError
	return errors.As(err, &ne)
}

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
