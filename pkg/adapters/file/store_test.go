package file_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/aretw0/canopy/pkg/adapters/file"
	"github.com/aretw0/canopy/pkg/domain"
	"github.com/aretw0/canopy/pkg/memory"
	"github.com/aretw0/canopy/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Ensure Store implements MemoryStore
var _ ports.MemoryStore = (*file.Store)(nil)

func TestFileStore_Contract(t *testing.T) {
	ports.RunMemoryStoreContract(t, file.New(t.TempDir()))
}

func TestFileStore_Layout(t *testing.T) {
	dir := t.TempDir()
	store := file.New(dir)
	ctx := context.Background()
	id := domain.NewIdentity(42, -100)

	require.NoError(t, store.Save(ctx, id, &memory.Snapshot{Identity: id}))
	_, err := os.Stat(filepath.Join(dir, "42_-100.json"))
	require.NoError(t, err, "one file per session")

	// Foreign files are ignored by List.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "junk.json"), []byte("{}"), 0644))

	ids, err := store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []domain.Identity{id}, ids)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 3, "no temp files left behind")
}

func TestFileStore_ListMissingDir(t *testing.T) {
	ids, err := file.New(filepath.Join(t.TempDir(), "missing")).List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, ids)
}
