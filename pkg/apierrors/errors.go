// Package apierrors implements the gateway's HTTP error taxonomy: a small
// set of typed codes, each mapped to a status, and a JSON envelope shape
// shared by every route handler in pkg/gatewayapi.
package apierrors

import "net/http"

// Code identifies one of the gateway's error categories. Route handlers
// never invent ad-hoc error strings; they return one of these.
type Code string

// The full taxonomy. Every route handler's error path resolves to one of
// these before a response is written.
const (
	Unauthorized         Code = "UNAUTHORIZED"
	Forbidden            Code = "FORBIDDEN"
	NotFound             Code = "NOT_FOUND"
	ValidationError      Code = "VALIDATION_ERROR"
	RateLimited          Code = "RATE_LIMITED"
	FeatureNotSupported  Code = "FEATURE_NOT_SUPPORTED"
	ServerUnreachable    Code = "SERVER_UNREACHABLE"
	Timeout              Code = "TIMEOUT"
	Internal             Code = "INTERNAL_ERROR"
)

var statusByCode = map[Code]int{
	Unauthorized:        http.StatusUnauthorized,
	Forbidden:           http.StatusForbidden,
	NotFound:            http.StatusNotFound,
	ValidationError:     http.StatusBadRequest,
	RateLimited:         http.StatusTooManyRequests,
	FeatureNotSupported: http.StatusBadRequest,
	ServerUnreachable:   http.StatusBadGateway,
	Timeout:             http.StatusGatewayTimeout,
	Internal:            http.StatusInternalServerError,
}

// HTTPStatus maps a Code to the status it must be reported as.
func HTTPStatus(code Code) int {
	if status, ok := statusByCode[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// Error is the typed error every gateway component returns. It carries a
// taxonomy Code instead of an HTTP status directly, so the same value can
// be tested and logged independently of how it is eventually transported.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

// New constructs an Error. Cause may be nil.
func New(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return string(e.Code) + ": " + e.Message + ": " + e.Cause.Error()
	}
	return string(e.Code) + ": " + e.Message
}

// Unwrap allows errors.Is/errors.As to see through to Cause.
func (e *Error) Unwrap() error { return e.Cause }

// Status returns the HTTP status this error should be reported as.
func (e *Error) Status() int { return HTTPStatus(e.Code) }

// Convenience constructors, one per taxonomy entry.

func NewUnauthorized(message string, cause error) *Error {
	return New(Unauthorized, message, cause)
}

func NewForbidden(message string, cause error) *Error {
	return New(Forbidden, message, cause)
}

func NewNotFound(message string, cause error) *Error {
	return New(NotFound, message, cause)
}

func NewValidationError(message string, cause error) *Error {
	return New(ValidationError, message, cause)
}

func NewRateLimited(message string, cause error) *Error {
	return New(RateLimited, message, cause)
}

func NewFeatureNotSupported(message string, cause error) *Error {
	return New(FeatureNotSupported, message, cause)
}

func NewServerUnreachable(message string, cause error) *Error {
	return New(ServerUnreachable, message, cause)
}

func NewTimeout(message string, cause error) *Error {
	return New(Timeout, message, cause)
}

func NewInternal(message string, cause error) *Error {
	return New(Internal, message, cause)
}

// As extracts an *Error from err, returning a generic INTERNAL_ERROR wrapper
// if err is not already one of ours. Route handlers use this at the final
// error-to-response boundary so every path, including unexpected stdlib
// errors bubbling up from a dependency, ends in a taxonomy code.
func As(err error) *Error {
	if err == nil {
		return nil
	}
	if e, ok := err.(*Error); ok {
		return e
	}
	return New(Internal, "unexpected error", err)
}
