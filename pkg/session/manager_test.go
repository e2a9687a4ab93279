package session_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aretw0/canopy/pkg/domain"
	"github.com/aretw0/canopy/pkg/dsl"
	"github.com/aretw0/canopy/pkg/memory"
	"github.com/aretw0/canopy/pkg/ports"
	"github.com/aretw0/canopy/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// SlowStore simulates latency and records overlapping writes per identity.
type SlowStore struct {
	mu      sync.Mutex
	data    map[domain.Identity]*memory.Snapshot
	inside  map[domain.Identity]int
	overlap atomic.Bool
}

func (s *SlowStore) enter(id domain.Identity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inside == nil {
		s.inside = make(map[domain.Identity]int)
	}
	s.inside[id]++
	if s.inside[id] > 1 {
		s.overlap.Store(true)
	}
}

func (s *SlowStore) leave(id domain.Identity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inside[id]--
}

func (s *SlowStore) Save(_ context.Context, id domain.Identity, snap *memory.Snapshot) error {
	s.enter(id)
	defer s.leave(id)
	time.Sleep(5 * time.Millisecond) // Simulate IO

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data == nil {
		s.data = make(map[domain.Identity]*memory.Snapshot)
	}
	s.data[id] = snap
	return nil
}

func (s *SlowStore) Load(_ context.Context, id domain.Identity) (*memory.Snapshot, error) {
	s.enter(id)
	defer s.leave(id)
	time.Sleep(5 * time.Millisecond) // Simulate IO

	s.mu.Lock()
	defer s.mu.Unlock()
	if snap, ok := s.data[id]; ok {
		return snap, nil
	}
	return nil, domain.ErrSessionNotFound
}

func (s *SlowStore) Delete(_ context.Context, id domain.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[id]; !ok {
		return domain.ErrSessionNotFound
	}
	delete(s.data, id)
	return nil
}

func (s *SlowStore) List(context.Context) ([]domain.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]domain.Identity, 0, len(s.data))
	for id := range s.data {
		ids = append(ids, id)
	}
	return ids, nil
}

func TestManager_Locking(t *testing.T) {
	store := &SlowStore{}
	manager := session.NewManager(store)
	ctx := context.Background()
	id := domain.NewIdentity(1, 1)

	var wg sync.WaitGroup
	for i := range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			snap := &memory.Snapshot{Identity: id, EventSeq: uint64(i)}
			assert.NoError(t, manager.Save(ctx, id, snap))
			_, err := manager.Load(ctx, id)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.False(t, store.overlap.Load(), "store access for one identity must be serialized")
}

func TestManager_Restore(t *testing.T) {
	root := dsl.Root(
		dsl.Tree("greet").Commands("/start").Branches(
			dsl.Branch("name").Keys("name").Branches(dsl.Branch("x").Keys("x")),
		),
	).MustBuild()
	manager := session.NewManager(&SlowStore{})
	ctx := context.Background()
	id := domain.NewIdentity(3, 4)

	_, err := manager.Restore(ctx, root, id)
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)

	require.NoError(t, manager.Save(ctx, id, &memory.Snapshot{
		Identity: id,
		Stack:    []string{"greet", "greet/name"},
		Vars:     map[string]any{"lang": "pt"},
	}))
	mem, err := manager.Restore(ctx, root, id)
	require.NoError(t, err)
	assert.Equal(t, []string{"", "greet", "greet/name"}, mem.StackPaths())
	v, _ := mem.Get("lang")
	assert.Equal(t, "pt", v)

	// A snapshot that no longer fits the hierarchy is rejected.
	require.NoError(t, manager.Save(ctx, id, &memory.Snapshot{Identity: id, Stack: []string{"gone"}}))
	_, err = manager.Restore(ctx, root, id)
	assert.Error(t, err)
}

func TestManager_DeleteMissingIsNoop(t *testing.T) {
	manager := session.NewManager(&SlowStore{})
	assert.NoError(t, manager.Delete(context.Background(), domain.NewIdentity(9, 9)))
}

// countingLocker is a local DistributedLocker that counts leases.
type countingLocker struct {
	mu       sync.Mutex
	locked   int
	unlocked int
	fail     error
}

func (l *countingLocker) Lock(_ context.Context, _ string, _ time.Duration) (ports.UnlockFunc, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fail != nil {
		return nil, l.fail
	}
	l.locked++
	return func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.unlocked++
		return nil
	}, nil
}

func TestManager_DistributedLocker(t *testing.T) {
	locker := &countingLocker{}
	manager := session.NewManager(&SlowStore{}, session.WithLocker(locker), session.WithLockTTL(time.Second))
	ctx := context.Background()
	id := domain.NewIdentity(5, 5)

	require.NoError(t, manager.Save(ctx, id, &memory.Snapshot{Identity: id}))
	_, err := manager.Load(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 2, locker.locked)
	assert.Equal(t, 2, locker.unlocked)

	locker.fail = errors.New("lease unavailable")
	err = manager.Save(ctx, id, &memory.Snapshot{Identity: id})
	assert.ErrorIs(t, err, locker.fail)
}
