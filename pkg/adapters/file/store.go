package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/aretw0/canopy/pkg/domain"
	"github.com/aretw0/canopy/pkg/memory"
)

const ext = ".json"

// Store implements ports.MemoryStore using the local filesystem.
// It stores one JSON snapshot per session in a configured directory.
type Store struct {
	BasePath string
}

// New creates a new Store with the given base path.
// If basePath is empty, it defaults to ".canopy/sessions".
func New(basePath string) *Store {
	if basePath == "" {
		basePath = filepath.Join(".canopy", "sessions")
	}
	return &Store{BasePath: basePath}
}

// fileName maps an identity to "<participant>_<conversation>.json";
// the colon of Identity.String is not portable in file names.
func fileName(id domain.Identity) string {
	return strconv.FormatInt(id.ParticipantID, 10) + "_" + strconv.FormatInt(id.ConversationID, 10) + ext
}

func parseFileName(name string) (domain.Identity, bool) {
	base, ok := strings.CutSuffix(name, ext)
	if !ok {
		return domain.Identity{}, false
	}
	id, err := domain.ParseIdentity(strings.Replace(base, "_", ":", 1))
	if err != nil {
		return domain.Identity{}, false
	}
	return id, true
}

// Save persists the snapshot to a JSON file atomically.
// It writes to a temporary file first, syncs via fsync, and then renames it to the destination.
func (s *Store) Save(ctx context.Context, id domain.Identity, snap *memory.Snapshot) error {
	if err := os.MkdirAll(s.BasePath, 0755); err != nil {
		return fmt.Errorf("failed to ensure session directory: %w", err)
	}

	destPath := filepath.Join(s.BasePath, fileName(id))

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	// 1. Create Temp File in the same directory (atomic rename needs the same filesystem)
	tmpFile, err := os.CreateTemp(s.BasePath, "tmp-*"+ext+".part")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer func() {
		_ = tmpFile.Close()
		_ = os.Remove(tmpPath) // no-op once renamed
	}()

	// 2. Write Data
	if _, err := tmpFile.Write(data); err != nil {
		return fmt.Errorf("failed to write to temp file: %w", err)
	}

	// 3. Fsync to ensure durability
	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("failed to fsync temp file: %w", err)
	}

	// 4. Close File (cannot rename open file on Windows)
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	// 5. Atomic Rename. On Windows, os.Rename fails if dest exists.
	if _, err := os.Stat(destPath); err == nil {
		if err := os.Remove(destPath); err != nil {
			return fmt.Errorf("failed to remove existing session file for overwrite: %w", err)
		}
	}
	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to rename temp file to session file: %w", err)
	}
	return nil
}

// Load retrieves the snapshot from its JSON file.
func (s *Store) Load(ctx context.Context, id domain.Identity) (*memory.Snapshot, error) {
	data, err := os.ReadFile(filepath.Join(s.BasePath, fileName(id)))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}

	var snap memory.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	return &snap, nil
}

// Delete removes the session file.
func (s *Store) Delete(ctx context.Context, id domain.Identity) error {
	err := os.Remove(filepath.Join(s.BasePath, fileName(id)))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete session file: %w", err)
	}
	return nil
}

// List returns the identities of every stored session.
func (s *Store) List(ctx context.Context) ([]domain.Identity, error) {
	entries, err := os.ReadDir(s.BasePath)
	if err != nil {
		if os.IsNotExist(err) {
			return []domain.Identity{}, nil
		}
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	var ids []domain.Identity
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if id, ok := parseFileName(entry.Name()); ok {
			ids = append(ids, id)
		}
	}
	return ids, nil
}
