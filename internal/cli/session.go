package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/aretw0/canopy/pkg/domain"
	"github.com/aretw0/canopy/pkg/ports"
)

// ListSessions prints the identities stored in store.
func ListSessions(ctx context.Context, store ports.MemoryStore, w io.Writer) error {
	ids, err := store.List(ctx)
	if err != nil {
		return fmt.Errorf("error listing sessions: %w", err)
	}
	if len(ids) == 0 {
		fmt.Fprintln(w, "No stored sessions found.")
		return nil
	}
	fmt.Fprintln(w, "Stored Sessions:")
	for _, id := range ids {
		fmt.Fprintln(w, "- "+id.String())
	}
	return nil
}

// InspectSession pretty prints the snapshot of id.
func InspectSession(ctx context.Context, store ports.MemoryStore, id domain.Identity, w io.Writer) error {
	snap, err := store.Load(ctx, id)
	if err != nil {
		return fmt.Errorf("error loading session '%s': %w", id, err)
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("error marshaling snapshot: %w", err)
	}
	fmt.Fprintln(w, string(data))
	return nil
}

// RemoveSessions deletes every id, reporting each one, and returns the
// joined failures.
func RemoveSessions(ctx context.Context, store ports.MemoryStore, ids []domain.Identity, w io.Writer) error {
	var errs []error
	for _, id := range ids {
		if err := store.Delete(ctx, id); err != nil {
			fmt.Fprintf(w, "Error removing '%s': %v\n", id, err)
			errs = append(errs, err)
			continue
		}
		fmt.Fprintf(w, "Removed session '%s'\n", id)
	}
	return errors.Join(errs...)
}

// ParseIdentities parses every argument as a session identity.
func ParseIdentities(args []string) ([]domain.Identity, error) {
	ids := make([]domain.Identity, 0, len(args))
	for _, a := range args {
		id, err := domain.ParseIdentity(a)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}
