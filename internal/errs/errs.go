// Package errs classifies the engine's command-facing errors into the
// taxonomy enumerated in spec.md: validation, authorization, state,
// concurrency, external, and integrity. Command handlers return these
// instead of leaking bare errors, per the "no exceptions for control flow"
// design note.
package errs

import "fmt"

// Kind is a coarse error classification, not a distinct Go type per error.
type Kind int

const (
	// Validation marks inputs that violate a stated constraint.
	Validation Kind = iota
	// Authorization marks banned users, non-admins, non-participants.
	Authorization
	// State marks double-queueing, reporting a terminal match, and similar.
	State
	// Concurrency marks a request overtaken by a racing mutation.
	Concurrency
	// External marks a downstream failure (DB, chat platform, parser).
	External
	// Integrity marks a violated invariant; the engine refuses to proceed.
	Integrity
)

func (k Kind) String() string {
	switch k {
	case Validation:
		return "validation"
	case Authorization:
		return "authorization"
	case State:
		return "state"
	case Concurrency:
		return "concurrency"
	case External:
		return "external"
	case Integrity:
		return "integrity"
	default:
		return "unknown"
	}
}

// Error is the structured result every command handler returns on failure.
// Message is user-visible; Err is the wrapped cause, logged but never
// surfaced to the caller directly.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a structured error with no wrapped cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds a structured error around an internal cause.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// Is reports whether err is a *Error of the given Kind. Mirrors the
// teacher's IsAPIKeyError predicate-over-sentinel-errors shape.
func Is(err error, kind Kind) bool {
	e, ok := err.(*Error)
	return ok && e.Kind == kind
}
