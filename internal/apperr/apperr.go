// Package apperr defines the error taxonomy shared across every
// component: a Kind classifies an error for retry/propagation policy
// without committing callers to concrete sentinel types per package.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for retry and propagation policy.
type Kind string

const (
	Validation       Kind = "validation"
	NotFound         Kind = "not_found"
	Conflict         Kind = "conflict"
	Budget           Kind = "budget"
	Transient        Kind = "transient"
	ProviderSemantic Kind = "provider_semantic"
	ToolFailure      Kind = "tool_failure"
	Cancelled        Kind = "cancelled"
	Internal         Kind = "internal"
)

// Retryable reports whether errors of this kind should be retried with
// backoff before being surfaced as Unavailable.
func (k Kind) Retryable() bool {
	return k == Transient
}

// AbortsLoop reports whether an error of this kind should abort the
// tool-calling loop (spec §7 propagation policy). ToolFailure is
// absorbed by the loop and becomes conversational instead.
func (k Kind) AbortsLoop() bool {
	switch k {
	case Cancelled, Budget, Validation, ProviderSemantic, Internal, Transient:
		return true
	default:
		return false
	}
}

// Error wraps an underlying cause with a Kind and a caller-facing
// message. Use Is/As via errors.Is(err, apperr.Validation) style
// helpers below, or errors.As(err, &appErr) to recover the Kind.
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

// Wrap constructs an *Error of the given kind around an existing cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// KindOf recovers the Kind from err, defaulting to Internal when err
// does not carry one.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return Internal
}

// Is reports whether err (or a wrapped cause) is an *Error of kind k.
func Is(err error, k Kind) bool {
	var appErr *Error
	return errors.As(err, &appErr) && appErr.Kind == k
}
