// Package apperr defines the error taxonomy shared by services and the HTTP layer.
//
// Every failure that reaches a client is an *Error carrying a Kind (which fixes
// the HTTP status and log severity), an optional machine-readable Code and a
// human-readable Message. Wrapped causes stay reachable through errors.Is/As.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
)

// Kind classifies an error.
type Kind string

const (
	KindValidation     Kind = "VALIDATION_ERROR"
	KindAuthentication Kind = "AUTHENTICATION_ERROR"
	KindAuthorization  Kind = "AUTHORIZATION_ERROR"
	KindNotFound       Kind = "NOT_FOUND"
	KindConflict       Kind = "CONFLICT"
	KindRateLimit      Kind = "RATE_LIMIT_EXCEEDED"
	KindDatabase       Kind = "DATABASE_ERROR"
	KindInternal       Kind = "INTERNAL_ERROR"
)

// Severity is attached to every logged error.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// Status returns the HTTP status code for k.
func (k Kind) Status() int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindAuthentication:
		return http.StatusUnauthorized
	case KindAuthorization:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindRateLimit:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Severity returns the default log severity for k.
func (k Kind) Severity() Severity {
	switch k {
	case KindValidation, KindNotFound:
		return SeverityLow
	case KindConflict, KindRateLimit:
		return SeverityMedium
	case KindAuthentication, KindAuthorization, KindDatabase:
		return SeverityHigh
	default:
		return SeverityCritical
	}
}

// Error is the structured application error.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Details any
	Err     error

	stack []byte
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Status is shorthand for e.Kind.Status().
func (e *Error) Status() int { return e.Kind.Status() }

// Stack returns the goroutine stack captured for server-side failures, if any.
func (e *Error) Stack() []byte { return e.stack }

// WithDetails attaches structured details (e.g. field errors) and returns e.
func (e *Error) WithDetails(details any) *Error {
	e.Details = details
	return e
}

// New builds an error of the given kind.
func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// Wrap builds an error of the given kind around cause.
func Wrap(kind Kind, cause error, message string) *Error {
	e := &Error{Kind: kind, Message: message, Err: cause}
	if kind == KindDatabase || kind == KindInternal {
		e.stack = debug.Stack()
	}
	return e
}

func Validation(message string) *Error {
	return New(KindValidation, "", message)
}

func Validationf(format string, args ...any) *Error {
	return New(KindValidation, "", fmt.Sprintf(format, args...))
}

func Unauthenticated(code, message string) *Error {
	return New(KindAuthentication, code, message)
}

func Forbidden(message string) *Error {
	return New(KindAuthorization, "FORBIDDEN", message)
}

func NotFound(message string) *Error {
	return New(KindNotFound, "", message)
}

func Conflict(code, message string) *Error {
	return New(KindConflict, code, message)
}

// Database wraps a store failure.
func Database(cause error, message string) *Error {
	return Wrap(KindDatabase, cause, message)
}

// Internal wraps an unclassified failure.
func Internal(cause error) *Error {
	return Wrap(KindInternal, cause, "internal server error")
}

// From converts any error into an *Error. Unknown errors become INTERNAL.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Internal(err)
}

// IsKind reports whether err is an *Error of kind k.
func IsKind(err error, k Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == k
}
