package types

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode represents a unified error code across the platform.
type ErrorCode string

// Protocol error codes
const (
	ErrValidation       ErrorCode = "VALIDATION_ERROR"
	ErrNotFound         ErrorCode = "NOT_FOUND"
	ErrPermissionDenied ErrorCode = "PERMISSION_DENIED"
	ErrRateLimited      ErrorCode = "RATE_LIMITED"
	ErrTimeout          ErrorCode = "TIMEOUT"
	ErrTransport        ErrorCode = "TRANSPORT_ERROR"
	ErrConflict         ErrorCode = "CONFLICT"
	ErrTaskFailed       ErrorCode = "TASK_FAILED"
)

// Request / platform error codes
const (
	ErrInvalidRequest     ErrorCode = "INVALID_REQUEST"
	ErrUnauthorized       ErrorCode = "UNAUTHORIZED"
	ErrForbidden          ErrorCode = "FORBIDDEN"
	ErrInternalError      ErrorCode = "INTERNAL_ERROR"
	ErrServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"http_status,omitempty"`
	Retryable  bool      `json:"retryable"`
	Cause      error     `json:"-"`
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

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithHTTPStatus sets the HTTP status code.
func (e *Error) WithHTTPStatus(status int) *Error {
	e.HTTPStatus = status
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// NewValidationError reports missing or malformed input.
func NewValidationError(format string, args ...any) *Error {
	return NewError(ErrValidation, fmt.Sprintf(format, args...)).WithHTTPStatus(http.StatusBadRequest)
}

// NewNotFoundError reports an unknown capability or request.
func NewNotFoundError(format string, args ...any) *Error {
	return NewError(ErrNotFound, fmt.Sprintf(format, args...)).WithHTTPStatus(http.StatusNotFound)
}

// NewPermissionError reports a policy refusal.
func NewPermissionError(format string, args ...any) *Error {
	return NewError(ErrPermissionDenied, fmt.Sprintf(format, args...)).WithHTTPStatus(http.StatusForbidden)
}

// NewRateLimitError reports an exceeded inbound or outbound quota.
func NewRateLimitError(format string, args ...any) *Error {
	return NewError(ErrRateLimited, fmt.Sprintf(format, args...)).
		WithHTTPStatus(http.StatusTooManyRequests).
		WithRetryable(true)
}

// NewTimeoutError reports a missing terminal response within the bound.
func NewTimeoutError(format string, args ...any) *Error {
	return NewError(ErrTimeout, fmt.Sprintf(format, args...)).
		WithHTTPStatus(http.StatusGatewayTimeout).
		WithRetryable(true)
}

// NewTransportError wraps a delivery failure.
func NewTransportError(cause error, format string, args ...any) *Error {
	return NewError(ErrTransport, fmt.Sprintf(format, args...)).
		WithHTTPStatus(http.StatusBadGateway).
		WithRetryable(true).
		WithCause(cause)
}

// AsError extracts a *Error from the chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	if e, ok := AsError(err); ok {
		return e.Retryable
	}
	return false
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) ErrorCode {
	if e, ok := AsError(err); ok {
		return e.Code
	}
	return ""
}

// IsErrorCode reports whether err carries the given code.
func IsErrorCode(err error, code ErrorCode) bool {
	return err != nil && GetErrorCode(err) == code
}
