// Package sqlite implements ports.MemoryStore on a SQLite database, using
// the pure Go modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/canopy/internal/logging"
	"github.com/aretw0/canopy/pkg/domain"
	"github.com/aretw0/canopy/pkg/memory"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	participant_id  INTEGER NOT NULL,
	conversation_id INTEGER NOT NULL,
	snapshot        TEXT    NOT NULL,
	saved_at        INTEGER NOT NULL,
	PRIMARY KEY (participant_id, conversation_id)
)`

// Store keeps one row per session holding its JSON snapshot.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// Open opens (or creates) the database at path. ":memory:" gives a private
// in-memory database.
func Open(path string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite serializes writers; one connection avoids SQLITE_BUSY and keeps
	// ":memory:" databases shared.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create sessions table: %w", err)
	}

	s := &Store{db: db, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	s.logger.Debug("sqlite store opened", "path", path)
	return s, nil
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Save(ctx context.Context, id domain.Identity, snap *memory.Snapshot) error {
	js, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (participant_id, conversation_id, snapshot, saved_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (participant_id, conversation_id)
		DO UPDATE SET snapshot = excluded.snapshot, saved_at = excluded.saved_at`,
		id.ParticipantID, id.ConversationID, string(js), time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to save session %s: %w", id, err)
	}
	return nil
}

func (s *Store) Load(ctx context.Context, id domain.Identity) (*memory.Snapshot, error) {
	var js string
	err := s.db.QueryRowContext(ctx,
		`SELECT snapshot FROM sessions WHERE participant_id = ? AND conversation_id = ?`,
		id.ParticipantID, id.ConversationID).Scan(&js)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session %s: %w", id, err)
	}
	snap := &memory.Snapshot{}
	if err := json.Unmarshal([]byte(js), snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	return snap, nil
}

func (s *Store) Delete(ctx context.Context, id domain.Identity) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE participant_id = ? AND conversation_id = ?`,
		id.ParticipantID, id.ConversationID)
	if err != nil {
		return fmt.Errorf("failed to delete session %s: %w", id, err)
	}
	return nil
}

// List returns the stored identities, least recently saved first.
func (s *Store) List(ctx context.Context) ([]domain.Identity, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT participant_id, conversation_id FROM sessions ORDER BY saved_at, participant_id, conversation_id`)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	ids := make([]domain.Identity, 0, 32)
	for rows.Next() {
		var id domain.Identity
		if err := rows.Scan(&id.ParticipantID, &id.ConversationID); err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return ids, nil
}
