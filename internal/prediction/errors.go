package prediction

import (
	"errors"
	"fmt"
)

// ErrModelUnavailable is returned for a model that failed to load at startup.
var ErrModelUnavailable = errors.New("model unavailable")

// ValidationError reports a missing, wrong-typed or malformed input field.
type ValidationError struct {
	Field  string
	Reason string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

// NewValidationError builds a ValidationError for field.
func NewValidationError(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// TransformError reports a decoding or encoding failure while building a
// feature vector, e.g. an undecodable image.
type TransformError struct {
	Stage string
	Err   error
}

// Error implements the error interface.
func (e *TransformError) Error() string {
	if e.Err == nil {
		return e.Stage
	}
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

// Unwrap returns the underlying cause.
func (e *TransformError) Unwrap() error { return e.Err }

// IsValidation reports whether err carries a ValidationError.
func IsValidation(err error) bool {
	var vErr *ValidationError
	return errors.As(err, &vErr)
}
