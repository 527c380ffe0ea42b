package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks a single malformed unit: a bad VTEC, a missing
	// office, an out-of-range coordinate. The unit is rejected and the batch
	// continues.
	ErrValidation = errors.New("validation error")

	// ErrNotFound is returned when a key has no stored record.
	ErrNotFound = errors.New("not found")

	// ErrTransientFetch wraps upstream failures that may succeed on a later run.
	ErrTransientFetch = errors.New("transient fetch error")

	// ErrGeometry marks a polygon that could not be repaired.
	ErrGeometry = errors.New("geometry error")
)

// Validationf returns an error wrapping ErrValidation.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// NotFoundf returns an error wrapping ErrNotFound.
func NotFoundf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}
