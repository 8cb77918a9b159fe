// Package apperr is the error taxonomy shared by the core and its collaborators.
// Errors carry a Kind plus a structured payload; translation to HTTP status
// and body happens only at the transport edge.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for the caller
type Kind string

const (
	Validation        Kind = "VALIDATION_ERROR"
	Unauthorized      Kind = "UNAUTHORIZED"
	Forbidden         Kind = "FORBIDDEN"
	NotYetAvailable   Kind = "NOT_YET_AVAILABLE"
	Expired           Kind = "EXPIRED"
	PasswordRequired  Kind = "PASSWORD_REQUIRED"
	IncorrectPassword Kind = "INCORRECT_PASSWORD"
	PayloadTooLarge   Kind = "PAYLOAD_TOO_LARGE"
	NotFound          Kind = "NOT_FOUND"
	Conflict          Kind = "CONFLICT"
	Internal          Kind = "INTERNAL_ERROR"
)

var statusByKind = map[Kind]int{
	Validation:        http.StatusBadRequest,
	Unauthorized:      http.StatusUnauthorized,
	Forbidden:         http.StatusForbidden,
	NotYetAvailable:   http.StatusLocked,
	Expired:           http.StatusGone,
	PasswordRequired:  http.StatusForbidden,
	IncorrectPassword: http.StatusForbidden,
	PayloadTooLarge:   http.StatusRequestEntityTooLarge,
	NotFound:          http.StatusNotFound,
	Conflict:          http.StatusConflict,
	Internal:          http.StatusInternalServerError,
}

var titleByKind = map[Kind]string{
	Validation:        "Validation error",
	Unauthorized:      "Unauthorized",
	Forbidden:         "Access denied",
	NotYetAvailable:   "File not yet available",
	Expired:           "File expired",
	PasswordRequired:  "Password required",
	IncorrectPassword: "Incorrect password",
	PayloadTooLarge:   "Payload too large",
	NotFound:          "Not found",
	Conflict:          "Conflict",
	Internal:          "Internal error",
}

// Status returns the HTTP status hint for a kind
func Status(k Kind) int {
	if s, ok := statusByKind[k]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// Title returns the short human label for a kind
func Title(k Kind) string {
	if t, ok := titleByKind[k]; ok {
		return t
	}
	return titleByKind[Internal]
}

// Error is an application error with a reason code and structured context
type Error struct {
	Kind    Kind
	Message string
	Details map[string]any
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches another *Error of the same kind, so errors.Is(err, apperr.New(apperr.NotFound, ""))
// works as a kind check.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// With attaches a detail and returns the same error for chaining
func (e *Error) With(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// Status returns the HTTP status hint for this error
func (e *Error) Status() int {
	return Status(e.Kind)
}

// New creates an error of the given kind
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates an error of the given kind with a formatted message
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an error of the given kind around cause
func Wrap(kind Kind, cause error, message string) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// KindOf returns the kind of err, or Internal when err is not an *Error
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// IsKind reports whether err carries the given kind
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// From returns err as an *Error, wrapping unknown errors as Internal
func From(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(Internal, err, "internal server error")
}
