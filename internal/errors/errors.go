package errors

import "fmt"

// ErrorCode represents a Tempo error code.
type ErrorCode string

const (
	ErrInvalidRequest ErrorCode = "INVALID_REQUEST" // 400
	ErrNotFound       ErrorCode = "NOT_FOUND"       // 404
	// ErrCycleDetected is informational only. Chain traversal truncates
	// at the revisited id and reports it on the result; it never fails.
	ErrCycleDetected ErrorCode = "CYCLE_DETECTED"
	ErrInternal       ErrorCode = "INTERNAL"        // 500
)

// TempoError represents a structured error with code, status, and details.
type TempoError struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any
}

// Error implements the error interface.
func (e *TempoError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewInvalidRequest creates a 400 error for invalid request parameters.
func NewInvalidRequest(msg string) *TempoError {
	return &TempoError{
		Code:    ErrInvalidRequest,
		Status:  400,
		Message: msg,
	}
}

// NewNotFound creates a 404 error for when a snapshot cannot be found.
func NewNotFound(id string) *TempoError {
	return &TempoError{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("snapshot not found: %s", id),
		Details: map[string]any{"id": id},
	}
}

// NewInternal creates a 500 error for unexpected internal errors.
func NewInternal(err error) *TempoError {
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	return &TempoError{
		Code:    ErrInternal,
		Status:  500,
		Message: msg,
	}
}

// Is checks if an error is a TempoError with the given code.
func Is(err error, code ErrorCode) bool {
	if tErr, ok := err.(*TempoError); ok {
		return tErr.Code == code
	}
	return false
}
