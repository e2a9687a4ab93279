package ports

import (
	"context"

	"github.com/aretw0/canopy/pkg/domain"
	"github.com/aretw0/canopy/pkg/memory"
)

// MemoryStore defines the interface for persisting session snapshots.
// This allows sessions to survive a process restart.
type MemoryStore interface {
	// Save persists the snapshot of the session id.
	Save(ctx context.Context, id domain.Identity, snap *memory.Snapshot) error

	// Load retrieves the snapshot of the session id.
	// Returns domain.ErrSessionNotFound if the session does not exist.
	Load(ctx context.Context, id domain.Identity) (*memory.Snapshot, error)

	// Delete removes the snapshot of the session id.
	Delete(ctx context.Context, id domain.Identity) error

	// List returns the identities of every stored session.
	List(ctx context.Context) ([]domain.Identity, error)
}
