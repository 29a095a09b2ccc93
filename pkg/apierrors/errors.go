// Package apierrors implements the error taxonomy shared by every core
// component: Invalid, Unauthorized, NotFound, Conflict, Unavailable, and
// Internal. Callers classify an error with errors.Is against the sentinel
// kinds; components that need a message wrap a kind with fmt.Errorf("...: %w").
package apierrors

import (
	"errors"
	"fmt"
)

// Kind identifies one of the taxonomy buckets from the error handling design.
type Kind string

const (
	KindInvalid      Kind = "invalid"
	KindUnauthorized Kind = "unauthorized"
	KindNotFound     Kind = "not_found"
	KindConflict     Kind = "conflict"
	KindUnavailable  Kind = "unavailable"
	KindInternal     Kind = "internal"
)

// Error carries a Kind plus a human-readable message. It wraps an optional
// underlying cause so callers can still unwrap to driver-level errors.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether target is the sentinel for this error's Kind, so
// errors.Is(err, apierrors.NotFound) works without exposing *Error fields.
func (e *Error) Is(target error) bool {
	s, ok := target.(*sentinel)
	return ok && s.kind == e.Kind
}

// sentinel is a zero-cause marker value used as the comparison target for
// errors.Is; it is never returned directly by constructors.
type sentinel struct{ kind Kind }

func (s *sentinel) Error() string { return string(s.kind) }

var (
	// NotFound is the comparison target: errors.Is(err, apierrors.NotFound).
	NotFound     = &sentinel{KindNotFound}
	Invalid      = &sentinel{KindInvalid}
	Unauthorized = &sentinel{KindUnauthorized}
	Conflict     = &sentinel{KindConflict}
	Unavailable  = &sentinel{KindUnavailable}
	Internal     = &sentinel{KindInternal}
)

func newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// NewInvalid builds an Invalid error (request fails schema/bounds/referential checks).
func NewInvalid(format string, args ...any) error { return newf(KindInvalid, format, args...) }

// NewUnauthorized builds an Unauthorized error (caller lacks required role or group membership).
func NewUnauthorized(format string, args ...any) error {
	return newf(KindUnauthorized, format, args...)
}

// NewNotFound builds a NotFound error. Visibility failures collapse to NotFound
// to avoid leaking existence to a caller without access.
func NewNotFound(format string, args ...any) error { return newf(KindNotFound, format, args...) }

// NewConflict builds a Conflict error (optimistic state violation).
func NewConflict(format string, args ...any) error { return newf(KindConflict, format, args...) }

// NewUnavailable builds an Unavailable error (transient backend failure, retry safe).
func NewUnavailable(format string, args ...any) error { return newf(KindUnavailable, format, args...) }

// NewInternal builds an Internal error (invariant violation observed at runtime).
func NewInternal(format string, args ...any) error { return newf(KindInternal, format, args...) }

// Wrap attaches kind to an existing error, preserving it as the unwrap cause.
func Wrap(kind Kind, cause error, format string, args ...any) error {
	if cause == nil {
		return newf(kind, format, args...)
	}
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// Is reports whether the first *Error in err's chain carries the given
// Kind; a deeper *Error wrapped as its Cause is not consulted.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// KindOf extracts the Kind of err, defaulting to KindInternal for
// unclassified errors so callers never have to special-case "unknown".
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
