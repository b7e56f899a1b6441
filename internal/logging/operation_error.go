package logging

import (
	"fmt"
	"strings"
)

// OperationError annotates an error with the operation, model and request
// it occurred in.
type OperationError struct {
	Operation string
	Model     string
	RequestID string
	Err       error
}

// Error implements the error interface.
func (e *OperationError) Error() string {
	if e == nil || e.Err == nil {
		return ""
	}
	var tags []string
	if e.Model != "" {
		tags = append(tags, "model="+e.Model)
	}
	if e.RequestID != "" {
		tags = append(tags, "request_id="+e.RequestID)
	}
	if len(tags) == 0 {
		return fmt.Sprintf("%s: %v", e.Operation, e.Err)
	}
	return fmt.Sprintf("%s (%s): %v", e.Operation, strings.Join(tags, " "), e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *OperationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewOperationError wraps err with the operation and request it belongs to.
// A nil err stays nil.
func NewOperationError(operation, requestID string, err error) error {
	if err == nil {
		return nil
	}
	return &OperationError{Operation: operation, RequestID: requestID, Err: err}
}

// NewModelError is NewOperationError for a failure tied to one model.
func NewModelError(operation, model, requestID string, err error) error {
	if err == nil {
		return nil
	}
	return &OperationError{Operation: operation, Model: model, RequestID: requestID, Err: err}
}
