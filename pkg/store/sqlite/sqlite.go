package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/nstogner/overseer/pkg/domain"
	"github.com/nstogner/overseer/pkg/store"
)

// Store implements SessionStore and TranscriptStore using SQLite.
type Store struct {
	db *sql.DB
}

// Verify interface compliance at compile time.
var _ store.SessionStore = (*Store)(nil)
var _ store.TranscriptStore = (*Store)(nil)

// New opens (or creates) a SQLite database at the given path and runs migrations.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// ListIDs returns just the IDs of all sessions (used by sandbox reconciliation).
func (s *Store) ListIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM sessions`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		task TEXT NOT NULL DEFAULT '',
		model TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS transcript_messages (
		id TEXT NOT NULL,
		session_id TEXT NOT NULL,
		role TEXT NOT NULL,
		seq INTEGER NOT NULL,
		blocks TEXT NOT NULL DEFAULT '[]',
		model TEXT NOT NULL DEFAULT '',
		timestamp DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (session_id, seq),
		FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// --- SessionStore ---

func (s *Store) CreateSession(ctx context.Context, sess *domain.Session) error {
	now := time.Now().UTC()
	sess.CreatedAt = now
	sess.UpdatedAt = now
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, task, model, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)`,
		sess.ID, sess.Task, sess.Model, sess.CreatedAt, sess.UpdatedAt,
	)
	return err
}

func (s *Store) GetSession(ctx context.Context, id string) (*domain.Session, error) {
	sess := &domain.Session{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, task, model, created_at, updated_at FROM sessions WHERE id = ?`, id,
	).Scan(&sess.ID, &sess.Task, &sess.Model, &sess.CreatedAt, &sess.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("session not found: %s", id)
	}
	return sess, err
}

func (s *Store) ListSessions(ctx context.Context) ([]domain.Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, task, model, created_at, updated_at FROM sessions ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []domain.Session
	for rows.Next() {
		var sess domain.Session
		if err := rows.Scan(&sess.ID, &sess.Task, &sess.Model, &sess.CreatedAt, &sess.UpdatedAt); err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

func (s *Store) UpdateSession(ctx context.Context, sess *domain.Session) error {
	sess.UpdatedAt = time.Now().UTC()
	result, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET task=?, model=?, updated_at=? WHERE id=?`,
		sess.Task, sess.Model, sess.UpdatedAt, sess.ID,
	)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("session not found: %s", sess.ID)
	}
	return nil
}

func (s *Store) DeleteSession(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id=?`, id)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("session not found: %s", id)
	}
	_, err = s.db.ExecContext(ctx, `DELETE FROM transcript_messages WHERE session_id=?`, id)
	return err
}

// --- TranscriptStore ---

func (s *Store) SaveTranscript(ctx context.Context, sessionID string, messages []*domain.Message) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// Pruning and resets shrink the history, so replace rather than append.
	if _, err := tx.ExecContext(ctx, `DELETE FROM transcript_messages WHERE session_id=?`, sessionID); err != nil {
		return err
	}

	for _, msg := range messages {
		blocks, err := json.Marshal(msg.Blocks)
		if err != nil {
			return fmt.Errorf("marshal blocks for message %s: %w", msg.ID, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO transcript_messages (id, session_id, role, seq, blocks, model, timestamp)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			msg.ID, sessionID, msg.Role, msg.Seq, string(blocks), msg.Model, msg.Timestamp,
		); err != nil {
			return err
		}
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE sessions SET updated_at=? WHERE id=?`, time.Now().UTC(), sessionID,
	); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) LoadTranscript(ctx context.Context, sessionID string) ([]*domain.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, role, seq, blocks, model, timestamp
		 FROM transcript_messages WHERE session_id=? ORDER BY seq ASC`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []*domain.Message
	for rows.Next() {
		msg := &domain.Message{}
		var blocks string
		if err := rows.Scan(&msg.ID, &msg.Role, &msg.Seq, &blocks, &msg.Model, &msg.Timestamp); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(blocks), &msg.Blocks); err != nil {
			return nil, fmt.Errorf("unmarshal blocks for message %s: %w", msg.ID, err)
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}
