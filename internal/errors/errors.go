package errors

import (
	"errors"
	"fmt"
	"time"
)

// ErrorCode represents a category of client error.
type ErrorCode string

const (
	// ErrCodeNoRefreshToken indicates there is no session to refresh. Terminal, requires re-login.
	ErrCodeNoRefreshToken ErrorCode = "no_refresh_token"
	// ErrCodeRefreshFailed indicates the refresh transport rejected or errored. The session was cleared.
	ErrCodeRefreshFailed ErrorCode = "refresh_failed"
	// ErrCodeUnauthenticated indicates a request still failed after one refresh-and-retry.
	ErrCodeUnauthenticated ErrorCode = "unauthenticated"
	// ErrCodeForbidden indicates the caller is authenticated but not authorized.
	ErrCodeForbidden ErrorCode = "forbidden"
	// ErrCodeRateLimited indicates the backend throttled the request.
	ErrCodeRateLimited ErrorCode = "rate_limited"
	// ErrCodeStreamUnavailable indicates the real-time stream could not be used.
	ErrCodeStreamUnavailable ErrorCode = "stream_unavailable"
	// ErrCodeMalformedMessage indicates a stream or poll payload had an unexpected shape.
	ErrCodeMalformedMessage ErrorCode = "malformed_message"
	// ErrCodeUpstream indicates any other non-2xx response from the backend.
	ErrCodeUpstream ErrorCode = "upstream"
	// ErrCodeValidation indicates invalid input data.
	ErrCodeValidation ErrorCode = "validation"
	// ErrCodeInternal indicates an internal error.
	ErrCodeInternal ErrorCode = "internal"
	// ErrCodeTimeout indicates a timeout occurred.
	ErrCodeTimeout ErrorCode = "timeout"
	// ErrCodeCanceled indicates the operation was canceled.
	ErrCodeCanceled ErrorCode = "canceled"
)

// AppError represents a structured client error with a code, message, and optional cause.
// It supports error wrapping and unwrapping for use with errors.Is and errors.As.
type AppError struct {
	// Code categorizes the error type
	Code ErrorCode
	// Message is a human-readable error message
	Message string
	// Cause is the underlying error that caused this error (optional)
	Cause error
	// Field is the specific field that caused the error (optional, for validation errors)
	Field string
	// Status is the HTTP status that produced the error, if any
	Status int
	// RetryAfter is the server supplied Retry-After hint for rate limited responses
	RetryAfter time.Duration
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause, enabling errors.Is and errors.As.
func (e *AppError) Unwrap() error {
	return e.Cause
}

func newError(code ErrorCode, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

// NoRefreshToken creates a new NoRefreshToken error.
func NoRefreshToken() *AppError {
	return newError(ErrCodeNoRefreshToken, "no refresh token available")
}

// RefreshFailed wraps the reason a refresh attempt failed.
func RefreshFailed(cause error) *AppError {
	return &AppError{
		Code:    ErrCodeRefreshFailed,
		Message: "token refresh failed",
		Cause:   cause,
	}
}

// Unauthenticated creates a new Unauthenticated error.
func Unauthenticated(message string, cause error) *AppError {
	return &AppError{
		Code:    ErrCodeUnauthenticated,
		Message: message,
		Cause:   cause,
		Status:  401,
	}
}

// Forbidden creates a new Forbidden error for the given request target.
func Forbidden(method, path string) *AppError {
	return &AppError{
		Code:    ErrCodeForbidden,
		Message: fmt.Sprintf("permission denied: %s %s", method, path),
		Status:  403,
	}
}

// RateLimited creates a new RateLimited error carrying the Retry-After hint.
func RateLimited(method, path string, retryAfter time.Duration) *AppError {
	return &AppError{
		Code:       ErrCodeRateLimited,
		Message:    fmt.Sprintf("rate limit exceeded: %s %s", method, path),
		Status:     429,
		RetryAfter: retryAfter,
	}
}

// Upstream creates an error for any other non-2xx response.
func Upstream(status int, body string) *AppError {
	return &AppError{
		Code:    ErrCodeUpstream,
		Message: fmt.Sprintf("unexpected status %d: %s", status, body),
		Status:  status,
	}
}

// StreamUnavailable wraps a stream dial or read failure.
func StreamUnavailable(cause error) *AppError {
	return &AppError{
		Code:    ErrCodeStreamUnavailable,
		Message: "stream unavailable",
		Cause:   cause,
	}
}

// MalformedMessage creates a new MalformedMessage error.
func MalformedMessage(message string, cause error) *AppError {
	return &AppError{
		Code:    ErrCodeMalformedMessage,
		Message: message,
		Cause:   cause,
	}
}

// Validation creates a new Validation error.
func Validation(message string) *AppError {
	return newError(ErrCodeValidation, message)
}

// ValidationField creates a new Validation error for a specific field.
func ValidationField(field, message string) *AppError {
	return &AppError{
		Code:    ErrCodeValidation,
		Message: message,
		Field:   field,
	}
}

// Internal creates a new Internal error.
func Internal(message string) *AppError {
	return newError(ErrCodeInternal, message)
}

// Wrap wraps an existing error with an AppError, preserving the cause.
func Wrap(err error, code ErrorCode, message string) *AppError {
	if err == nil {
		return nil
	}
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// Wrapf wraps an existing error with an AppError and formatted message.
func Wrapf(err error, code ErrorCode, format string, args ...any) *AppError {
	return Wrap(err, code, fmt.Sprintf(format, args...))
}

// isCode checks if any AppError in the chain has the given code.
func isCode(err error, code ErrorCode) bool {
	var appErr *AppError
	for errors.As(err, &appErr) {
		if appErr.Code == code {
			return true
		}
		err = appErr.Cause
	}
	return false
}

// IsNoRefreshToken checks if an error is a NoRefreshToken error.
func IsNoRefreshToken(err error) bool {
	return isCode(err, ErrCodeNoRefreshToken)
}

// IsRefreshFailed checks if an error is a RefreshFailed error.
func IsRefreshFailed(err error) bool {
	return isCode(err, ErrCodeRefreshFailed)
}

// IsUnauthenticated checks if an error is an Unauthenticated error.
func IsUnauthenticated(err error) bool {
	return isCode(err, ErrCodeUnauthenticated)
}

// IsForbidden checks if an error is a Forbidden error.
func IsForbidden(err error) bool {
	return isCode(err, ErrCodeForbidden)
}

// IsRateLimited checks if an error is a RateLimited error.
func IsRateLimited(err error) bool {
	return isCode(err, ErrCodeRateLimited)
}

// IsStreamUnavailable checks if an error is a StreamUnavailable error.
func IsStreamUnavailable(err error) bool {
	return isCode(err, ErrCodeStreamUnavailable)
}

// IsMalformedMessage checks if an error is a MalformedMessage error.
func IsMalformedMessage(err error) bool {
	return isCode(err, ErrCodeMalformedMessage)
}

// IsValidation checks if an error is a Validation error.
func IsValidation(err error) bool {
	return isCode(err, ErrCodeValidation)
}

// IsSessionTerminal reports whether the error means the user must log in again.
func IsSessionTerminal(err error) bool {
	return IsNoRefreshToken(err) || IsRefreshFailed(err) || IsUnauthenticated(err)
}

// GetCode returns the ErrorCode from an error, or empty string if not an AppError.
func GetCode(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// GetStatus returns the HTTP status carried by an AppError, or 0.
func GetStatus(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Status
	}
	return 0
}
