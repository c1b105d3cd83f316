// Package errs defines the typed error kinds used across the gateway to
// translate service-layer failures into HTTP status codes and JSON-RPC
// error envelopes at the outermost adapter only.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies an error for the purposes of external translation.
// See spec §7 for the full propagation table.
type Kind string

const (
	BadRequest          Kind = "bad_request"
	Unauthenticated     Kind = "unauthenticated"
	Forbidden           Kind = "forbidden"
	NotFound            Kind = "not_found"
	Conflict            Kind = "conflict"
	UpstreamUnavailable Kind = "upstream_unavailable"
	TransientBackend    Kind = "transient_backend"
	UpstreamTimeout     Kind = "upstream_timeout"
	Internal            Kind = "internal"
)

// Error wraps an underlying cause with a Kind and a message meant for
// the caller. Service code should construct one of these at the point
// it first recognizes a failure category; it should never be re-wrapped
// with a different Kind as it propagates upward.
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

func (e *Error) Unwrap() error { return e.Cause }

// New constructs an *Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap constructs an *Error of the given kind around a cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// KindOf extracts the Kind of err if it is (or wraps) an *Error, defaulting
// to Internal for anything else — an un-translated error must never leak
// a 200 or a bare 500 with no classification.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// Is reports whether err is (or wraps) an *Error of the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
