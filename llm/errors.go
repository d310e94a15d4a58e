package llm

import (
	"errors"
	"fmt"
)

// Error types for classifying oracle errors.

// TransientError represents a temporary error that may succeed on retry.
type TransientError struct {
	err error
}

func (e *TransientError) Error() string {
	return e.err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.err
}

// NewTransientError wraps an error as transient (retryable).
func NewTransientError(err error) error {
	return &TransientError{err: err}
}

// FatalError represents a permanent error that should not be retried.
type FatalError struct {
	err error
}

func (e *FatalError) Error() string {
	return e.err.Error()
}

func (e *FatalError) Unwrap() error {
	return e.err
}

// NewFatalError wraps an error as fatal (non-retryable).
func NewFatalError(err error) error {
	return &FatalError{err: err}
}

// UnavailableError means every endpoint in a capability's fallback
// chain failed. Callers receiving it must switch to their
// deterministic fallback; the oracle is advisory only.
type UnavailableError struct {
	// Capability is the capability that could not be served.
	Capability string

	// Err is the last endpoint error, if any.
	Err error
}

func (e *UnavailableError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("oracle unavailable for capability %s", e.Capability)
	}
	return fmt.Sprintf("oracle unavailable for capability %s: %v", e.Capability, e.Err)
}

func (e *UnavailableError) Unwrap() error {
	return e.Err
}

// IsTransient returns true if the error is transient and should be retried.
func IsTransient(err error) bool {
	var transient *TransientError
	return errors.As(err, &transient)
}

// IsFatal returns true if the error is fatal and should not be retried.
func IsFatal(err error) bool {
	var fatal *FatalError
	return errors.As(err, &fatal)
}

// IsUnavailable returns true if the oracle could not be reached at all.
func IsUnavailable(err error) bool {
	var unavailable *UnavailableError
	return errors.As(err, &unavailable)
}
