package errx

import (
	"errors"
	"fmt"
)

// Error is a rich error carrying a stable code, category and HTTP status.
type Error struct {
	// Code is the unique, prefixed error code (e.g. "ENROLL_INVALID_ROLE")
	Code string `json:"code"`

	// Message is the human-readable error message
	Message string `json:"message"`

	// Type categorizes the error
	Type Type `json:"type"`

	// HTTPStatus is the suggested HTTP status code
	HTTPStatus int `json:"http_status"`

	// Details contains additional context (identifiers, never secrets)
	Details map[string]interface{} `json:"details,omitempty"`

	// Err is the underlying cause (not exported in JSON)
	Err error `json:"-"`
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Err
}

// WithDetail adds a detail and returns the error for chaining
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// WithStatus overrides the suggested HTTP status (e.g. 403 on an
// authorization error that is a permission problem, not a missing token).
func (e *Error) WithStatus(status int) *Error {
	e.HTTPStatus = status
	return e
}

// WithCause attaches the underlying error.
func (e *Error) WithCause(err error) *Error {
	e.Err = err
	return e
}

// New creates a new Error of the given type.
func New(message string, errType Type) *Error {
	return &Error{
		Code:       string(errType),
		Message:    message,
		Type:       errType,
		HTTPStatus: typeToHTTPStatus(errType),
		Details:    make(map[string]interface{}),
	}
}

// Wrap wraps an existing error with additional context. A wrapped *Error
// keeps its original code and details.
func Wrap(err error, message string, errType Type) *Error {
	if err == nil {
		return nil
	}

	var existing *Error
	if errors.As(err, &existing) {
		return &Error{
			Code:       existing.Code,
			Message:    message,
			Type:       errType,
			HTTPStatus: existing.HTTPStatus,
			Details:    existing.Details,
			Err:        err,
		}
	}

	return &Error{
		Code:       string(errType),
		Message:    message,
		Type:       errType,
		HTTPStatus: typeToHTTPStatus(errType),
		Details:    make(map[string]interface{}),
		Err:        err,
	}
}

// Wrapf wraps an error with a formatted message
func Wrapf(err error, errType Type, format string, args ...interface{}) *Error {
	return Wrap(err, fmt.Sprintf(format, args...), errType)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// ============================================================================
// Convenience constructors
// ============================================================================

// Internal creates an internal server error
func Internal(message string) *Error { return New(message, TypeInternal) }

// Validation creates a validation error
func Validation(message string) *Error { return New(message, TypeValidation) }

// NotFound creates a not found error
func NotFound(message string) *Error { return New(message, TypeNotFound) }

// Unauthorized creates an authorization error
func Unauthorized(message string) *Error { return New(message, TypeAuthorization) }

// Conflict creates a conflict error
func Conflict(message string) *Error { return New(message, TypeConflict) }

// External creates an upstream service error
func External(message string) *Error { return New(message, TypeExternal) }
