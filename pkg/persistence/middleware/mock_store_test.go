package middleware_test

import (
	"context"

	"github.com/aretw0/canopy/pkg/domain"
	"github.com/aretw0/canopy/pkg/memory"
	"github.com/aretw0/canopy/pkg/ports"
)

// MockStore is a simple map-based store for testing middleware.
type MockStore struct {
	data map[domain.Identity]*memory.Snapshot
}

func NewMockStore() *MockStore {
	return &MockStore{
		data: make(map[domain.Identity]*memory.Snapshot),
	}
}

func (s *MockStore) Save(_ context.Context, id domain.Identity, snap *memory.Snapshot) error {
	s.data[id] = snap
	return nil
}

func (s *MockStore) Load(_ context.Context, id domain.Identity) (*memory.Snapshot, error) {
	snap, ok := s.data[id]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return snap, nil
}

func (s *MockStore) Delete(_ context.Context, id domain.Identity) error {
	delete(s.data, id)
	return nil
}

func (s *MockStore) List(_ context.Context) ([]domain.Identity, error) {
	ids := make([]domain.Identity, 0, len(s.data))
	for id := range s.data {
		ids = append(ids, id)
	}
	return ids, nil
}

var _ ports.MemoryStore = (*MockStore)(nil)
