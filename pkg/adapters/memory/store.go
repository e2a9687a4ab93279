package memory

import (
	"context"
	"maps"
	"sync"

	"github.com/aretw0/canopy/pkg/domain"
	"github.com/aretw0/canopy/pkg/memory"
)

// Store implements ports.MemoryStore in memory.
// Safe for concurrent use.
type Store struct {
	data map[domain.Identity]*memory.Snapshot
	mu   sync.RWMutex
}

// NewStore creates a new in-memory store.
func NewStore() *Store {
	return &Store{
		data: make(map[domain.Identity]*memory.Snapshot),
	}
}

// Save persists the snapshot in memory.
func (s *Store) Save(ctx context.Context, id domain.Identity, snap *memory.Snapshot) error {
	// Copy to ensure isolation, similar to serialization
	copied := clone(snap)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[id] = copied
	return nil
}

// Load retrieves the snapshot from memory.
func (s *Store) Load(ctx context.Context, id domain.Identity) (*memory.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap, ok := s.data[id]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	// Copy on read so the caller can't mutate store state through the pointer
	return clone(snap), nil
}

// Delete removes the snapshot.
func (s *Store) Delete(ctx context.Context, id domain.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, id)
	return nil
}

// List returns the stored identities.
func (s *Store) List(ctx context.Context) ([]domain.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]domain.Identity, 0, len(s.data))
	for id := range s.data {
		ids = append(ids, id)
	}
	return ids, nil
}

// clone copies the containers of snap. Values stored inside Vars are shared.
func clone(snap *memory.Snapshot) *memory.Snapshot {
	c := *snap
	c.Vars = maps.Clone(snap.Vars)
	c.Stack = append([]string(nil), snap.Stack...)
	c.Waiting = append([]string(nil), snap.Waiting...)
	c.ActionMessages = maps.Clone(snap.ActionMessages)
	c.Callers = maps.Clone(snap.Callers)
	c.Keyboards = append([]memory.KeyboardSnapshot(nil), snap.Keyboards...)
	if snap.Registries != nil {
		c.Registries = make(map[string][]domain.MessageRef, len(snap.Registries))
		for k, v := range snap.Registries {
			c.Registries[k] = append([]domain.MessageRef(nil), v...)
		}
	}
	if snap.LastSent != nil {
		ref := *snap.LastSent
		c.LastSent = &ref
	}
	return &c
}
