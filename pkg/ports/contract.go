package ports

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/canopy/pkg/domain"
	"github.com/aretw0/canopy/pkg/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunMemoryStoreContract runs a suite of tests to verify that a MemoryStore implementation
// adheres to the defined interface contract.
func RunMemoryStoreContract(t *testing.T, store MemoryStore) {
	ctx := context.Background()
	base := time.Now().UnixNano() % 1_000_000_000
	id := domain.NewIdentity(base, base)

	t.Run("Save and Load", func(t *testing.T) {
		// 1. Create a snapshot
		snap := &memory.Snapshot{
			Identity: id,
			Vars:     map[string]any{"foo": "bar", "count": 42},
			Stack:    []string{"greet", "greet/name"},
			Role:     "admin",
			Language: "en",
			Registries: map[string][]domain.MessageRef{
				"menu": {{ConversationID: id.ConversationID, MessageID: 7}},
			},
			Callers:  map[string]string{"help": "greet"},
			EventSeq: 3,
		}

		// 2. Save
		err := store.Save(ctx, id, snap)
		require.NoError(t, err, "Save should not return error")

		// 3. Load
		loaded, err := store.Load(ctx, id)
		require.NoError(t, err, "Load should not return error")
		assert.Equal(t, id, loaded.Identity)
		assert.Equal(t, snap.Stack, loaded.Stack)
		assert.Equal(t, "bar", loaded.Vars["foo"])
		// JSON backed stores turn numbers into float64; only existence is part of the contract.
		assert.NotNil(t, loaded.Vars["count"])
		assert.Equal(t, "admin", loaded.Role)
		assert.Equal(t, "en", loaded.Language)
		assert.Equal(t, "greet", loaded.Callers["help"])
		assert.EqualValues(t, 3, loaded.EventSeq)
		require.Len(t, loaded.Registries["menu"], 1)
		assert.EqualValues(t, 7, loaded.Registries["menu"][0].MessageID)
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := store.Load(ctx, domain.NewIdentity(-base, base))
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		// Setup
		err := store.Save(ctx, id, &memory.Snapshot{Identity: id})
		require.NoError(t, err)

		// Delete
		err = store.Delete(ctx, id)
		require.NoError(t, err, "Delete should not return error")

		// Verify gone
		_, err = store.Load(ctx, id)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound, "Load after Delete should return ErrSessionNotFound")
	})

	t.Run("List", func(t *testing.T) {
		// Setup: Create 2 sessions
		id1 := domain.NewIdentity(base+1, base+1)
		id2 := domain.NewIdentity(base+2, -(base + 2))
		_ = store.Save(ctx, id1, &memory.Snapshot{Identity: id1})
		_ = store.Save(ctx, id2, &memory.Snapshot{Identity: id2})

		// Ensure cleanup
		defer func() {
			_ = store.Delete(ctx, id1)
			_ = store.Delete(ctx, id2)
		}()

		// List
		sessions, err := store.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, sessions, id1)
		assert.Contains(t, sessions, id2)
	})
}
