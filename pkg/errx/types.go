package errx

import "net/http"

// Type categorizes an error for status mapping and logging.
type Type string

const (
	// TypeInternal represents unexpected internal errors
	TypeInternal Type = "INTERNAL"

	// TypeValidation represents malformed or missing input
	TypeValidation Type = "VALIDATION"

	// TypeAuthorization represents authentication/authorization failures
	TypeAuthorization Type = "AUTHORIZATION"

	// TypeNotFound represents missing resources
	TypeNotFound Type = "NOT_FOUND"

	// TypeConflict represents duplicate/conflicting resources
	TypeConflict Type = "CONFLICT"

	// TypeExternal represents failures reported by upstream services
	TypeExternal Type = "EXTERNAL"
)

// String returns the string representation of the error type
func (t Type) String() string {
	return string(t)
}

// typeToHTTPStatus maps error types to default HTTP status codes.
func typeToHTTPStatus(t Type) int {
	switch t {
	case TypeValidation:
		return http.StatusBadRequest
	case TypeAuthorization:
		return http.StatusUnauthorized
	case TypeNotFound:
		return http.StatusNotFound
	case TypeConflict:
		return http.StatusConflict
	case TypeExternal:
		return http.StatusBadGateway
	case TypeInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
