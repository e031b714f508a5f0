package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors forming the error taxonomy shared across components.
// Callers branch with errors.Is.
var (
	ErrInvalidKey             = errors.New("invalid api key")
	ErrInsufficientPermission = errors.New("insufficient permission")
	ErrNotFound               = errors.New("not found")
	ErrCapacity               = errors.New("capacity exceeded")
	ErrTimeout                = errors.New("operation timed out")
	ErrClosed                 = errors.New("logger is closed")
)

// ValidationError reports a malformed query or payload shape.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %q: %s", e.Field, e.Reason)
}
