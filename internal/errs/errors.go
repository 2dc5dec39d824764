// Package errs defines Leon's error taxonomy (§7): a small set of
// structured error kinds every subsystem classifies failures into, so
// callers can decide what to retry, what to surface, and what to log and
// swallow without string-matching messages. Grounded on
// internal/agent/errors.go's ToolError (Type/Message/Cause/Retryable
// shape), generalized from tool-execution failures to every subsystem.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies an error for retry/propagation policy (§7).
type Kind string

const (
	KindValidation        Kind = "validation"
	KindNotFound          Kind = "not_found"
	KindConflict          Kind = "conflict"
	KindTransientUpstream Kind = "transient_upstream"
	KindCorruption        Kind = "corruption"
	KindFatal             Kind = "fatal"
)

// Retryable reports whether errors of this kind are worth retrying
// locally with backoff (§7: only TransientUpstream is).
func (k Kind) Retryable() bool {
	return k == KindTransientUpstream
}

// Error is Leon's structured error type. It implements Unwrap so
// errors.Is/errors.As see through to Cause, and carries a Kind so
// subsystems can branch on classification instead of message content.
type Error struct {
	Kind    Kind
	Op      string // subsystem/operation that produced the error, e.g. "resolver.Resolve"
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return e.Message
}

// Unwrap exposes Cause to errors.Is/errors.As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Retryable reports whether this error's kind suggests a retry may help.
func (e *Error) Retryable() bool {
	return e.Kind.Retryable()
}

// New constructs a structured error.
func New(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

// Wrap constructs a structured error carrying an underlying cause.
func Wrap(kind Kind, op, message string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Message: message, Cause: cause}
}

// Is reports whether err is an *Error of the given kind, checking the
// whole chain via errors.As.
func Is(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}

// Sentinel errors for conditions common enough to warrant errors.Is
// comparisons without constructing a Kind lookup (§4.2, §8 invariants).
var (
	// ErrSandboxUnavailable is returned by the resolver when a lease
	// fails to converge to an active observed state before its deadline
	// (§4.2 step 3).
	ErrSandboxUnavailable = New(KindConflict, "resolver.Resolve", "sandbox unavailable: lease did not converge before deadline")

	// ErrAlreadyRunning is returned when a thread already has an active
	// run (§8 invariant).
	ErrAlreadyRunning = New(KindConflict, "runsupervisor.StartRun", "thread already has a running run")

	// ErrLeaseBusy is returned when a reconcile step is requested while
	// another is already in flight for the same lease.
	ErrLeaseBusy = New(KindConflict, "resolver.Reconcile", "lease is busy")
)
