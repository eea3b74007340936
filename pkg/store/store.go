package store

import (
	"context"

	"github.com/nstogner/overseer/pkg/domain"
)

// SessionStore manages the persistence of conversation sessions.
type SessionStore interface {
	// CreateSession persists a new session. The ID field must be set by the caller.
	CreateSession(ctx context.Context, sess *domain.Session) error

	// GetSession retrieves a session by its unique ID.
	// Returns an error if the session does not exist.
	GetSession(ctx context.Context, id string) (*domain.Session, error)

	// ListSessions returns all sessions, ordered by creation time descending.
	ListSessions(ctx context.Context) ([]domain.Session, error)

	// UpdateSession persists changes to an existing session.
	UpdateSession(ctx context.Context, sess *domain.Session) error

	// DeleteSession removes a session and its transcript by ID.
	DeleteSession(ctx context.Context, id string) error
}

// TranscriptStore persists conversation snapshots for crash recovery. A
// snapshot is the complete message history at a consistent point; the loader
// validates invocation/result pairing before handing it back to a
// conversation, so a corrupt snapshot is rejected rather than repaired.
type TranscriptStore interface {
	// SaveTranscript atomically replaces the stored transcript for a session.
	// Written after every completed exchange, so the stored view always pairs
	// invocations with results.
	SaveTranscript(ctx context.Context, sessionID string, messages []*domain.Message) error

	// LoadTranscript returns the stored transcript in sequence order.
	// An unknown session yields an empty transcript, not an error.
	LoadTranscript(ctx context.Context, sessionID string) ([]*domain.Message, error)
}
