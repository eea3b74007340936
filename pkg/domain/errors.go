package domain

import "fmt"

// ErrorKind classifies failures across the orchestration core. Kinds are
// stable strings so they survive serialization in tool results and snapshots.
type ErrorKind string

const (
	// ErrProtocolViolation marks an unpaired invocation/result. Fatal to the
	// current turn and never silently ignored.
	ErrProtocolViolation ErrorKind = "protocol_violation"
	// ErrBudgetExceeded is the soft budget signal that triggers pruning.
	ErrBudgetExceeded ErrorKind = "budget_exceeded"
	// ErrBudgetCritical is the hard budget signal that triggers an emergency reset.
	ErrBudgetCritical ErrorKind = "budget_critical"
	// ErrToolNotFound marks an invocation of an unregistered tool name.
	ErrToolNotFound ErrorKind = "tool_not_found"
	// ErrInvalidParameters marks a schema mismatch, rejected before execution.
	ErrInvalidParameters ErrorKind = "invalid_parameters"
	// ErrToolExecution marks a per-invocation execution failure.
	ErrToolExecution ErrorKind = "tool_execution"
	// ErrRetryLoopBlocked marks an invocation rejected by the failure tracker.
	ErrRetryLoopBlocked ErrorKind = "retry_loop_blocked"
	// ErrCancelled marks an invocation stopped by cooperative cancellation.
	// Propagated as a distinct result status, not a crash.
	ErrCancelled ErrorKind = "cancelled"
)

// ProtocolViolationError reports a break of the invocation/result pairing
// protocol. A single violation aborts the conversation turn, so these are
// returned as typed errors rather than recorded as tool results.
type ProtocolViolationError struct {
	Reason string
}

func (e *ProtocolViolationError) Error() string {
	return "protocol violation: " + e.Reason
}

// ProtocolViolationf constructs a ProtocolViolationError.
func ProtocolViolationf(format string, args ...any) error {
	return &ProtocolViolationError{Reason: fmt.Sprintf(format, args...)}
}

// NewErrorRecord builds an ErrorRecord with the given kind.
func NewErrorRecord(kind ErrorKind, recoverable bool, format string, args ...any) *ErrorRecord {
	return &ErrorRecord{
		Kind:        kind,
		Message:     fmt.Sprintf(format, args...),
		Recoverable: recoverable,
	}
}
