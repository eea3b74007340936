package sandbox

import "context"

// Result represents the output of a sandbox command execution.
type Result struct {
	// Output is the combined stdout and stderr.
	Output string `json:"output,omitempty"`
	// ExitCode is the command's exit code.
	ExitCode int `json:"exit_code"`
}

// SessionLister lists session IDs for sandbox reconciliation.
// This is a minimal interface to avoid importing the store package.
type SessionLister interface {
	ListIDs(ctx context.Context) ([]string, error)
}

// Manager defines the interface for managing container sandboxes.
// Each session gets its own sandbox container.
type Manager interface {
	// Run starts a long-running reconciliation loop that keeps sandbox
	// containers in sync with known sessions. It periodically lists sessions
	// and ensures each has a running container. Containers for unknown
	// sessions are stopped. Blocks until ctx is cancelled.
	Run(ctx context.Context, sessions SessionLister) error

	// Ensure makes sure a running sandbox exists for the session, creating
	// and starting one if needed.
	Ensure(ctx context.Context, sessionID string) error

	// RunCommand executes a shell command within the session's sandbox.
	// The sandbox must already be running.
	RunCommand(ctx context.Context, sessionID, command string) (*Result, error)

	// Status returns the current status of the sandbox for the given session.
	// Returns one of: "running", "stopped", "unknown".
	Status(ctx context.Context, sessionID string) (string, error)

	// Close releases any resources held by the manager (e.g. docker client).
	Close() error
}

// SessionRunner adapts a Manager to the shell tool's Runner interface,
// binding command execution to one session's container.
type SessionRunner struct {
	Manager   Manager
	SessionID string
}

func (r *SessionRunner) Run(ctx context.Context, command string) (string, int, error) {
	if err := r.Manager.Ensure(ctx, r.SessionID); err != nil {
		return "", 0, err
	}
	res, err := r.Manager.RunCommand(ctx, r.SessionID, command)
	if err != nil {
		return "", 0, err
	}
	return res.Output, res.ExitCode, nil
}
