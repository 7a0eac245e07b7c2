// Package verr defines the closed set of error variants used across the
// lifecycle engine. Every failure surfaced by the engine carries a kind, a
// message, an optional details map and the time at which it occurred,
// allowing callers to branch on the kind without inspecting message text.
package verr

import (
	"errors"
	"fmt"
	"time"
)

type Kind int

const (
	// Validation indicates bad input (size/type/required-field) rejected
	// before any side effect occurred.
	Validation Kind = iota

	// Processing indicates an extraction or probe failure; ingestion is
	// aborted and no asset is created.
	Processing

	// Service indicates a remote provider failure after retries were
	// exhausted.
	Service

	// Configuration indicates missing or invalid external configuration.
	// Fatal at startup, never per-request.
	Configuration

	// InvalidTransition indicates an illegal asset status transition. This
	// is a programming or race defect and is never silently swallowed.
	InvalidTransition

	// NotFound indicates an unknown asset identifier.
	NotFound
)

func (k Kind) String() string {
	switch k {
	case Validation:
		return "validation"
	case Processing:
		return "processing"
	case Service:
		return "service"
	case Configuration:
		return "configuration"
	case InvalidTransition:
		return "invalid_transition"
	case NotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

type Error struct {
	Kind      Kind
	Message   string
	Details   map[string]any
	Timestamp time.Time

	cause error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}

	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// Is reports whether target is a verr.Error of the same kind, which lets
// callers use errors.Is with a bare New(kind, ...) sentinel.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return e.Kind == other.Kind
	}

	return false
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message, Timestamp: time.Now()}
}

func Newf(kind Kind, format string, args ...any) *Error {
	return New(kind, fmt.Sprintf(format, args...))
}

func Wrap(kind Kind, cause error, message string) *Error {
	err := New(kind, message)
	err.cause = cause
	return err
}

func Wrapf(kind Kind, cause error, format string, args ...any) *Error {
	return Wrap(kind, cause, fmt.Sprintf(format, args...))
}

// WithDetail attaches a key/value pair to the errors details map and
// returns the same error for chaining.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}

	e.Details[key] = value
	return e
}

// KindOf extracts the kind from an error if it is (or wraps) a verr.Error.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}

	return 0, false
}

func IsKind(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}
