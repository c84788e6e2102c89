package types

import "fmt"

// ErrorCode represents a unified error code across the orchestration core.
type ErrorCode string

// Core error codes
const (
	ErrNotFound        ErrorCode = "NOT_FOUND"
	ErrInvalidState    ErrorCode = "INVALID_STATE"
	ErrValidation      ErrorCode = "VALIDATION"
	ErrExecutorFailure ErrorCode = "EXECUTOR_FAILURE"
	ErrNoPrimaryAgent  ErrorCode = "NO_PRIMARY_AGENT"
	ErrQuorumNotMet    ErrorCode = "QUORUM_NOT_MET"
	ErrIterationLimit  ErrorCode = "ITERATION_LIMIT"
	ErrInternal        ErrorCode = "INTERNAL"
)

// Error represents a structured error with code, message, and cause.
type Error struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Cause   error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// NewErrorf creates a new Error with a formatted message.
func NewErrorf(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// NotFound builds a NOT_FOUND error for an entity id.
func NotFound(entity, id string) *Error {
	return NewErrorf(ErrNotFound, "%s not found: %s", entity, id)
}

// InvalidState builds an INVALID_STATE error.
func InvalidState(message string) *Error {
	return NewError(ErrInvalidState, message)
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) ErrorCode {
	if e, ok := err.(*Error); ok {
		return e.Code
	}
	return ""
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code ErrorCode) bool {
	return GetErrorCode(err) == code
}
