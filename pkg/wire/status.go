package wire

import (
	"errors"
	"fmt"
	"net/http"
)

// Status is a canonical RPC status name carried in error responses
type Status string

const (
	StatusInvalidArgument    Status = "INVALID_ARGUMENT"
	StatusNotFound           Status = "NOT_FOUND"
	StatusAlreadyExists      Status = "ALREADY_EXISTS"
	StatusFailedPrecondition Status = "FAILED_PRECONDITION"
	StatusPermissionDenied   Status = "PERMISSION_DENIED"
	StatusAborted            Status = "ABORTED"
	StatusInternal           Status = "INTERNAL"
)

// HTTPCode maps a status to its HTTP response code
func (s Status) HTTPCode() int {
	switch s {
	case StatusInvalidArgument, StatusAlreadyExists, StatusFailedPrecondition:
		return http.StatusBadRequest
	case StatusNotFound:
		return http.StatusNotFound
	case StatusPermissionDenied:
		return http.StatusForbidden
	case StatusAborted:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// StatusError is an error carrying a canonical status
type StatusError struct {
	Status  Status
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: %s", e.Status, e.Message)
}

// NewStatusError creates a status error with a formatted message
func NewStatusError(status Status, format string, args ...interface{}) *StatusError {
	return &StatusError{Status: status, Message: fmt.Sprintf(format, args...)}
}

// InvalidArgument creates an INVALID_ARGUMENT error
func InvalidArgument(format string, args ...interface{}) *StatusError {
	return NewStatusError(StatusInvalidArgument, format, args...)
}

// NotFound creates a NOT_FOUND error
func NotFound(format string, args ...interface{}) *StatusError {
	return NewStatusError(StatusNotFound, format, args...)
}

// AlreadyExists creates an ALREADY_EXISTS error
func AlreadyExists(format string, args ...interface{}) *StatusError {
	return NewStatusError(StatusAlreadyExists, format, args...)
}

// FailedPrecondition creates a FAILED_PRECONDITION error
func FailedPrecondition(format string, args ...interface{}) *StatusError {
	return NewStatusError(StatusFailedPrecondition, format, args...)
}

// PermissionDenied creates a PERMISSION_DENIED error
func PermissionDenied(format string, args ...interface{}) *StatusError {
	return NewStatusError(StatusPermissionDenied, format, args...)
}

// Aborted creates an ABORTED error
func Aborted(format string, args ...interface{}) *StatusError {
	return NewStatusError(StatusAborted, format, args...)
}

// Internal creates an INTERNAL error
func Internal(format string, args ...interface{}) *StatusError {
	return NewStatusError(StatusInternal, format, args...)
}

// AsStatus extracts the StatusError from err, wrapping unknown errors as
// INTERNAL so every failure maps onto the response taxonomy.
func AsStatus(err error) *StatusError {
	var se *StatusError
	if errors.As(err, &se) {
		return se
	}
	return &StatusError{Status: StatusInternal, Message: err.Error()}
}

// ErrorBody is the JSON error envelope of the REST API
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail carries the code, message and status of a failed request
type ErrorDetail struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  Status `json:"status"`
}

// Body renders the error response envelope
func (e *StatusError) Body() ErrorBody {
	return ErrorBody{Error: ErrorDetail{
		Code:    e.Status.HTTPCode(),
		Message: e.Message,
		Status:  e.Status,
	}}
}
