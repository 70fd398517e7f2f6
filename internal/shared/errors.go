package shared

import (
	"errors"
	"fmt"
)

// Code classifies a failure so transport layers can map it to a status code.
type Code string

const (
	// CodeUnauthenticated means no caller identity could be resolved.
	CodeUnauthenticated Code = "UNAUTHENTICATED"
	// CodePermissionDenied means the caller is unregistered or lacks a role.
	CodePermissionDenied Code = "PERMISSION_DENIED"
	// CodeInvalidArgument means a request field or document payload is malformed.
	CodeInvalidArgument Code = "INVALID_ARGUMENT"
	// CodeNotFound means a referenced document is absent.
	CodeNotFound Code = "NOT_FOUND"
	// CodeFailedPrecondition means a posting guard failed: wrong status, number
	// already assigned, or insufficient balance.
	CodeFailedPrecondition Code = "FAILED_PRECONDITION"
	// CodeUnavailable means transaction retries were exhausted on conflicts.
	CodeUnavailable Code = "UNAVAILABLE"
	// CodeInternal is the fallback for unclassified failures.
	CodeInternal Code = "INTERNAL"
)

// Error pairs a taxonomy code with a caller-facing message. Messages are
// surfaced verbatim, so they must name the offending field, key or quantities.
type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string { return e.Message }

// NewError builds a coded error with a fixed message.
func NewError(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Errorf builds a coded error with a formatted message.
func Errorf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// CodeOf extracts the taxonomy code from err, or CodeInternal if uncoded.
func CodeOf(err error) Code {
	var coded *Error
	if errors.As(err, &coded) {
		return coded.Code
	}
	return CodeInternal
}

var (
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = NewError(CodeUnauthenticated, "invalid credentials")
	// ErrCSRFTokenMissing occurs when CSRF token missing.
	ErrCSRFTokenMissing = errors.New("csrf token missing")
	// ErrCSRFTokenMismatch occurs when CSRF tokens do not match.
	ErrCSRFTokenMismatch = errors.New("csrf token mismatch")
)
