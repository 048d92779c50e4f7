package dto

import "net/http"

// Error code constants organized by category
// Format: ERR_<CATEGORY>_<DESCRIPTION>

// General error codes
const (
	// ErrCodeUnknown is used when the error type is unknown
	ErrCodeUnknown = "ERR_UNKNOWN"
	// ErrCodeInternal is used for internal server errors
	ErrCodeInternal = "ERR_INTERNAL"
)

// Validation error codes
const (
	ErrCodeValidation = "ERR_VALIDATION"
	// ErrCodeInvalidInput is used for an operation argument the operation rejects
	ErrCodeInvalidInput = "ERR_INVALID_INPUT"
	ErrCodeInvalidJSON  = "ERR_INVALID_JSON"
)

// Authentication error codes
const (
	ErrCodeUnauthorized = "ERR_UNAUTHORIZED"
	ErrCodeForbidden    = "ERR_FORBIDDEN"
)

// Resource error codes
const (
	// ErrCodeNotFound is used for unknown operations and unregistered sources
	ErrCodeNotFound = "ERR_NOT_FOUND"
	// ErrCodeConflict is used when a source run is already in progress
	ErrCodeConflict = "ERR_CONFLICT"
	// ErrCodeInvalidState is used for disabled sources and unsupported capabilities
	ErrCodeInvalidState = "ERR_INVALID_STATE"
)

// Runtime error codes
const (
	// ErrCodeUpstream is used when a source refused or could not be reached
	ErrCodeUpstream = "ERR_UPSTREAM"
	// ErrCodeTimeout is used when an operation exceeded its time budget
	ErrCodeTimeout = "ERR_TIMEOUT"
	// ErrCodeUnavailable is used when a dependency fails its health check
	ErrCodeUnavailable = "ERR_UNAVAILABLE"
	ErrCodeTooLarge    = "ERR_REQUEST_TOO_LARGE"
)

// ErrorCodeHTTPStatus maps error codes to HTTP status codes
var ErrorCodeHTTPStatus = map[string]int{
	ErrCodeUnknown:  http.StatusInternalServerError,
	ErrCodeInternal: http.StatusInternalServerError,

	ErrCodeValidation:   http.StatusBadRequest,
	ErrCodeInvalidInput: http.StatusBadRequest,
	ErrCodeInvalidJSON:  http.StatusBadRequest,

	ErrCodeUnauthorized: http.StatusUnauthorized,
	ErrCodeForbidden:    http.StatusForbidden,

	ErrCodeNotFound:     http.StatusNotFound,
	ErrCodeConflict:     http.StatusConflict,
	ErrCodeInvalidState: http.StatusUnprocessableEntity,

	ErrCodeUpstream:    http.StatusBadGateway,
	ErrCodeTimeout:     http.StatusGatewayTimeout,
	ErrCodeUnavailable: http.StatusServiceUnavailable,
	ErrCodeTooLarge:    http.StatusRequestEntityTooLarge,
}

// GetHTTPStatus returns the HTTP status code for an error code
// Returns 500 Internal Server Error if the error code is not found
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}
