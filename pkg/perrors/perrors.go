// Package perrors defines the error kinds surfaced by the daemon and a
// small structured error type that carries one of those kinds plus a
// human-readable message, wrapping an optional cause via
// github.com/pkg/errors so the original stack survives for logging.
package perrors

import (
	"errors"
	"fmt"

	pkgerrors "github.com/pkg/errors"
)

// Kind classifies a failure the way callers across the daemon need to branch
// on it (timeouts get retried by nothing, NotFound maps to 404, etc).
type Kind string

const (
	NotReady        Kind = "NotReady"
	Timeout         Kind = "Timeout"
	ControllerError Kind = "ControllerError"
	ProtocolError   Kind = "ProtocolError"
	InvalidState    Kind = "InvalidState"
	NotFound        Kind = "NotFound"
	Cancelled       Kind = "Cancelled"
	ParseError      Kind = "ParseError"
	IOError         Kind = "IOError"
)

// Error is the structured failure returned to callers and, at the HTTP
// boundary, rendered as a JSON error payload instead of a stack trace.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the cause chain to errors.Is/errors.As.
func (e *Error) Unwrap() error { return e.Cause }

// New creates a kinded error with no cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates a kinded error with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and message to a lower-level cause, preserving a
// stack trace on the cause via pkg/errors so logs retain the origin.
func Wrap(kind Kind, cause error, message string) *Error {
	if cause == nil {
		return New(kind, message)
	}
	return &Error{Kind: kind, Message: message, Cause: pkgerrors.WithStack(cause)}
}

// Is reports whether err carries the given Kind anywhere in its chain.
func Is(err error, kind Kind) bool {
	var pe *Error
	for errors.As(err, &pe) {
		if pe.Kind == kind {
			return true
		}
		err = pe.Cause
	}
	return false
}
