// Package bolt provides a ports.MemoryStore backed by a single bbolt file.
//
// Every snapshot lives under the "sessions" bucket keyed by the session
// identity ("<participant>:<conversation>"). bbolt takes an exclusive file
// lock, so one process owns the database at a time; use the redis store
// when several replicas must share sessions.
package bolt

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/canopy/internal/logging"
	"github.com/aretw0/canopy/pkg/domain"
	"github.com/aretw0/canopy/pkg/memory"
	bolt "go.etcd.io/bbolt"
)

var bucket = []byte("sessions")

// Store implements ports.MemoryStore on top of bbolt.
type Store struct {
	db     *bolt.DB
	logger *slog.Logger
}

type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// Open opens (or creates) the database at path. It waits at most one
// second for the file lock held by another process.
func Open(path string, opts ...Option) (*Store, error) {
	db, err := bolt.Open(path, 0644, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt database %s: %w", path, err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucket)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create sessions bucket: %w", err)
	}

	s := &Store{db: db, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close releases the database file.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Save(ctx context.Context, id domain.Identity, snap *memory.Snapshot) error {
	js, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).Put([]byte(id.String()), js)
	})
}

func (s *Store) Load(ctx context.Context, id domain.Identity) (*memory.Snapshot, error) {
	var snap *memory.Snapshot
	err := s.db.View(func(tx *bolt.Tx) error {
		bs := tx.Bucket(bucket).Get([]byte(id.String()))
		if bs == nil {
			return domain.ErrSessionNotFound
		}
		// bs is only valid inside the transaction; Unmarshal copies it.
		snap = &memory.Snapshot{}
		if err := json.Unmarshal(bs, snap); err != nil {
			return fmt.Errorf("failed to unmarshal snapshot: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

func (s *Store) Delete(ctx context.Context, id domain.Identity) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).Delete([]byte(id.String()))
	})
}

func (s *Store) List(ctx context.Context) ([]domain.Identity, error) {
	ids := make([]domain.Identity, 0, 32)
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucket).Cursor()
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			id, err := domain.ParseIdentity(string(k))
			if err != nil {
				s.logger.Warn("skipping malformed session key", "key", string(k), "error", err)
				continue
			}
			ids = append(ids, id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}
