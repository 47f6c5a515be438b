package recurring

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation is wrapped by every *ValidationError
	ErrValidation = errors.New("validation error")
	// ErrNotFound is returned for an unknown order id
	ErrNotFound = errors.New("recurring order not found")
	// ErrOrderCancelled is returned when mutating a cancelled order
	ErrOrderCancelled = errors.New("recurring order is cancelled")
)

// ValidationError describes rejected input to Add or Update
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Unwrap lets errors.Is(err, ErrValidation) match
func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

func notFound(id string) error {
	return fmt.Errorf("%w: %s", ErrNotFound, id)
}
