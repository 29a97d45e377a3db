package core

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrContextNotFound is returned when no version of a context id exists.
	ErrContextNotFound = errors.New("context not found")

	// ErrBudgetExhausted is returned when a task has no turns remaining.
	ErrBudgetExhausted = errors.New("turn budget exhausted")

	// ErrTerminalState is returned on any transition attempt against a task
	// that already reached a terminal status.
	ErrTerminalState = errors.New("task is in a terminal state")

	// ErrTaskNotFound is returned for unknown task ids.
	ErrTaskNotFound = errors.New("task not found")

	// ErrSessionAborted signals the external session time budget expired.
	// It is the only session-fatal error in the taxonomy.
	ErrSessionAborted = errors.New("session aborted")
)

// ProtocolErrorKind discriminates decode failures.
type ProtocolErrorKind string

const (
	// UnknownAction marks an unrecognized top-level tag.
	UnknownAction ProtocolErrorKind = "unknown_action"
	// MissingField marks a recognized tag lacking a required field.
	MissingField ProtocolErrorKind = "missing_field"
	// MalformedBlock marks an unterminated or unparseable block.
	MalformedBlock ProtocolErrorKind = "malformed_block"
	// MultipleActions marks output carrying more than one action block.
	MultipleActions ProtocolErrorKind = "multiple_actions"
)

// ProtocolError is a recoverable decode failure. It consumes a turn and is
// returned to the issuing worker as feedback.
type ProtocolError struct {
	Kind  ProtocolErrorKind
	Tag   string
	Field string
	Cause error
}

// Error implements error.
func (e *ProtocolError) Error() string {
	switch e.Kind {
	case UnknownAction:
		return fmt.Sprintf("protocol error: unknown action tag %q", e.Tag)
	case MissingField:
		return fmt.Sprintf("protocol error: action %q is missing required field %q", e.Tag, e.Field)
	case MultipleActions:
		return "protocol error: exactly one action block is accepted per turn"
	default:
		if e.Cause != nil {
			return fmt.Sprintf("protocol error: malformed %q block: %v", e.Tag, e.Cause)
		}
		return fmt.Sprintf("protocol error: malformed %q block", e.Tag)
	}
}

// Unwrap exposes the underlying parse error, if any.
func (e *ProtocolError) Unwrap() error { return e.Cause }

// CapabilityViolation is a recoverable policy rejection. It consumes no turn
// and the action's effect is never executed.
type CapabilityViolation struct {
	AgentType AgentType
	Verb      Verb
}

// Error implements error.
func (e *CapabilityViolation) Error() string {
	return fmt.Sprintf("capability violation: agent type %q may not issue %q", e.AgentType, e.Verb)
}

// MissingContextError reports context ids that could not be resolved.
type MissingContextError struct {
	IDs []string
}

// Error implements error.
func (e *MissingContextError) Error() string {
	return fmt.Sprintf("missing context: %s", strings.Join(e.IDs, ", "))
}

// BackendErrorKind classifies execution backend failures.
type BackendErrorKind string

const (
	// BackendIO covers filesystem and process launch failures.
	BackendIO BackendErrorKind = "io_error"
	// BackendTimeout covers command deadline expiry.
	BackendTimeout BackendErrorKind = "timeout"
	// BackendPermissionDenied covers OS-level permission failures.
	BackendPermissionDenied BackendErrorKind = "permission_denied"
)

// BackendError wraps a failure from the execution backend. It is recoverable:
// the dispatcher forwards it to the worker as turn-consuming feedback.
type BackendError struct {
	Kind BackendErrorKind
	Op   string
	Err  error
}

// Error implements error.
func (e *BackendError) Error() string {
	return fmt.Sprintf("backend %s: %s: %v", e.Kind, e.Op, e.Err)
}

// Unwrap exposes the underlying failure.
func (e *BackendError) Unwrap() error { return e.Err }

// ValidationFailure marks a terminal report missing required outputs. The
// task degrades to failed rather than silently completing.
type ValidationFailure struct {
	TaskID string
	Reason string
}

// Error implements error.
func (e *ValidationFailure) Error() string {
	return fmt.Sprintf("report validation failed for task %s: %s", e.TaskID, e.Reason)
}
