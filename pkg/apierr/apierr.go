// Package apierr defines the machine-readable error kinds surfaced through
// the HTTP envelope and daemon logs.
package apierr

import (
	"errors"
	"fmt"
)

// Kind is one of the closed set of error categories the control plane
// produces.
type Kind string

const (
	InvalidInput  Kind = "INVALID_INPUT"
	NotFound      Kind = "NOT_FOUND"
	Unauthorised  Kind = "UNAUTHORISED"
	Mismatch      Kind = "MISMATCH"
	Expired       Kind = "EXPIRED"
	Conflict      Kind = "CONFLICT"
	RPCError      Kind = "RPC_ERROR"
	Timeout       Kind = "TIMEOUT"
	Internal      Kind = "INTERNAL"
)

// Error pairs a Kind with a human-readable message. It is the error type
// returned across package boundaries whenever a failure must be classified.
type Error struct {
	Kind    Kind
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New builds an Error of the given kind.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an Error of the given kind, preserving cause for %w chains.
func Wrap(kind Kind, cause error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), cause: cause}
}

// KindOf extracts the Kind from err if it (or something it wraps) is an
// *Error; otherwise returns Internal, since an unclassified error is a bug
// in the caller, not a known failure mode.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}
