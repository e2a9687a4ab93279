package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"log/slog"

	"github.com/aretw0/canopy/internal/logging"
	"github.com/aretw0/canopy/pkg/domain"
	"github.com/aretw0/canopy/pkg/memory"
	"github.com/aretw0/canopy/pkg/ports"
)

// DefaultLockTTL bounds how long a distributed snapshot lock survives a crashed holder.
const DefaultLockTTL = 30 * time.Second

// lockEntry holds the mutex and the reference count.
type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// Manager orchestrates snapshot persistence, ensuring safe concurrent operations.
// It uses Reference Counting to garbage collect unused locks.
type Manager struct {
	store ports.MemoryStore

	mu    sync.Mutex            // Global lock for the map
	locks map[string]*lockEntry // Map of active locks

	locker  ports.DistributedLocker // Optional distributed locker
	lockTTL time.Duration
	logger  *slog.Logger // Logger for internal events (like deferred errors)
}

// ManagerOption configures the Manager.
type ManagerOption func(*Manager)

// WithLocker enables distributed locking.
func WithLocker(locker ports.DistributedLocker) ManagerOption {
	return func(m *Manager) {
		m.locker = locker
	}
}

// WithLockTTL overrides DefaultLockTTL.
func WithLockTTL(ttl time.Duration) ManagerOption {
	return func(m *Manager) {
		m.lockTTL = ttl
	}
}

// WithManagerLogger configures a logger for the Manager.
func WithManagerLogger(logger *slog.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = logger
	}
}

// NewManager creates a new persistence Manager with the given snapshot store.
func NewManager(store ports.MemoryStore, opts ...ManagerOption) *Manager {
	m := &Manager{
		store:   store,
		locks:   make(map[string]*lockEntry),
		lockTTL: DefaultLockTTL,
		logger:  logging.NewNop(), // Default to no-op
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// acquire gets or creates a lock entry and increments its reference count.
// The caller MUST Lock the entry.mu, and then call release(key) after unlocking.
func (m *Manager) acquire(key string) *lockEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[key]
	if !exists {
		entry = &lockEntry{}
		m.locks[key] = entry
	}
	entry.refs++
	return entry
}

// release decrements the reference count and deletes the entry if it reaches zero.
func (m *Manager) release(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[key]
	if !exists {
		return // Should not happen if paired correctly
	}

	entry.refs--
	if entry.refs <= 0 {
		delete(m.locks, key)
	}
}

// Load retrieves a snapshot from the store.
func (m *Manager) Load(ctx context.Context, id domain.Identity) (*memory.Snapshot, error) {
	var snap *memory.Snapshot
	err := m.WithLock(ctx, id, func(ctx context.Context) error {
		var err error
		snap, err = m.store.Load(ctx, id)
		return err
	})
	return snap, err
}

// Restore loads the snapshot of id and rebuilds its memory against root.
// Returns domain.ErrSessionNotFound when nothing is stored.
func (m *Manager) Restore(ctx context.Context, root *domain.Element, id domain.Identity) (*memory.Memory, error) {
	snap, err := m.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	mem, err := memory.Restore(root, snap)
	if err != nil {
		return nil, fmt.Errorf("failed to restore session %s: %w", id, err)
	}
	return mem, nil
}

// Save persists a snapshot.
func (m *Manager) Save(ctx context.Context, id domain.Identity, snap *memory.Snapshot) error {
	return m.WithLock(ctx, id, func(ctx context.Context) error {
		return m.store.Save(ctx, id, snap)
	})
}

// Delete removes the snapshot from the store. A missing snapshot is not an error.
func (m *Manager) Delete(ctx context.Context, id domain.Identity) error {
	return m.WithLock(ctx, id, func(ctx context.Context) error {
		err := m.store.Delete(ctx, id)
		if errors.Is(err, domain.ErrSessionNotFound) {
			return nil
		}
		return err
	})
}

// List delegates to the store.
func (m *Manager) List(ctx context.Context) ([]domain.Identity, error) {
	return m.store.List(ctx)
}

// Store returns the underlying snapshot store.
func (m *Manager) Store() ports.MemoryStore {
	return m.store
}

// WithLock executes a function while holding the lock for the session.
func (m *Manager) WithLock(ctx context.Context, id domain.Identity, fn func(context.Context) error) error {
	key := id.String()
	entry := m.acquire(key)
	entry.mu.Lock()
	defer func() {
		entry.mu.Unlock()
		m.release(key)
	}()

	// Distributed Locking
	if m.locker != nil {
		unlock, err := m.locker.Lock(ctx, key, m.lockTTL)
		if err != nil {
			return fmt.Errorf("failed to acquire distributed lock: %w", err)
		}
		defer func() {
			if err := unlock(ctx); err != nil {
				m.logger.Warn("Failed to release distributed lock (will expire via TTL)",
					"session", key,
					"err", err,
				)
			}
		}()
	}

	return fn(ctx)
}
