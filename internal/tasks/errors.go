package tasks

import (
	"errors"
	"fmt"
)

var (
	ErrNoSession      = errors.New("no active session")
	ErrSessionChanged = errors.New("session changed while the request was in flight")
)

// ValidationError rejects an operation before any network call is made.
// Err, when set, is the sentinel behind the rejection.
type ValidationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}
