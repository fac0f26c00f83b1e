// Package apperr defines the error taxonomy shared across the core: the kind
// of an error determines how a caller surfaces it (HTTP status, log level,
// retry behavior) without coupling core packages to any transport.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for the purposes of surfacing and retry policy.
type Kind int

const (
	// KindValidation is a malformed input, missing required field, or a
	// date-range inversion. Surfaced to the caller; never logged as error.
	KindValidation Kind = iota
	// KindNotFound is an unknown site, unknown review id, and similar.
	KindNotFound
	// KindConflict is a duplicate key / unique-violation hit during a race.
	// Swallowed inside Ingestion and the Session Reconstructor by design.
	KindConflict
	// KindDownstream is an audit write, reconciliation dispatch, or external
	// HTTP failure. Logged with context; never propagates to the primary
	// ingestion response.
	KindDownstream
	// KindTransient is store unavailability inside a scheduled batch.
	KindTransient
	// KindInvariant is a loud failure: a decision with no session, a
	// completed session with endTime < startTime, and similar. The
	// offending record is quarantined, not silently dropped.
	KindInvariant
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindDownstream:
		return "downstream"
	case KindTransient:
		return "transient"
	case KindInvariant:
		return "invariant"
	default:
		return "unknown"
	}
}

// Error wraps an underlying cause with a Kind and a short operation tag.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an *Error of the given kind.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Validation is a convenience constructor for KindValidation.
func Validation(op, msg string) *Error {
	return &Error{Kind: KindValidation, Op: op, Err: errors.New(msg)}
}

// NotFound is a convenience constructor for KindNotFound.
func NotFound(op, msg string) *Error {
	return &Error{Kind: KindNotFound, Op: op, Err: errors.New(msg)}
}

// Conflict is a convenience constructor for KindConflict.
func Conflict(op, msg string) *Error {
	return &Error{Kind: KindConflict, Op: op, Err: errors.New(msg)}
}

// Invariant is a convenience constructor for KindInvariant.
func Invariant(op, msg string) *Error {
	return &Error{Kind: KindInvariant, Op: op, Err: errors.New(msg)}
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
