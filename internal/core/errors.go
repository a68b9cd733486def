package core

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConfigured is returned when no account config matches the
	// requested scope and no global fallback exists. Non-retryable.
	ErrNotConfigured = errors.New("no account configuration found")

	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("record not found")
)

// TransportError wraps a connect, auth or network failure talking to an
// external collaborator. Retryable: workers back off and try again on
// the next tick rather than propagating it to the scheduler.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport failure during %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// NewTransportError wraps err as a retryable transport failure.
func NewTransportError(op string, err error) error {
	return &TransportError{Op: op, Err: err}
}

// IsTransport reports whether err is (or wraps) a transport failure.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
