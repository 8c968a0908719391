// Package apperr defines the error taxonomy shared by all registry
// operations. Every error that leaves the registry boundary is one of the
// kinds below; raw store or oracle errors are wrapped, never exposed.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an operation failure.
type Kind int

const (
	// Internal covers unexpected downstream failures (store, oracle,
	// notifier). Callers may retry.
	Internal Kind = iota

	// InvalidInput covers malformed or unknown input: unknown system,
	// unparseable project spec, unknown target group.
	InvalidInput

	// Conflict covers duplicate project names and stale metadata.
	// Callers must not blindly retry.
	Conflict

	// NotAuthenticated means no requester identity was supplied.
	NotAuthenticated

	// NotAuthorized means the requester is known but lacks membership in
	// the required group. Callers must not blindly retry.
	NotAuthorized

	// NotFound means the addressed project does not exist.
	NotFound
)

// String returns the canonical name of the kind.
func (k Kind) String() string {
	switch k {
	case InvalidInput:
		return "invalid_input"
	case Conflict:
		return "conflict"
	case NotAuthenticated:
		return "not_authenticated"
	case NotAuthorized:
		return "not_authorized"
	case NotFound:
		return "not_found"
	default:
		return "internal"
	}
}

// Error is a classified operation failure with optional detail and cause.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the wrapped cause, if any.
func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a classified error without a cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates a classified error with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates a classified error around a cause.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf extracts the kind from err. Unclassified errors are Internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
