package ports

import (
	"context"

	"github.com/aretw0/arbor/pkg/domain"
)

// Storage persists snapshots of the whitelisted part of the state tree.
type Storage interface {
	// Save persists the snapshot under key, replacing any previous one.
	Save(ctx context.Context, key string, snapshot *domain.Snapshot) error

	// Load retrieves the snapshot stored under key.
	// Returns domain.ErrSnapshotNotFound if nothing is stored.
	Load(ctx context.Context, key string) (*domain.Snapshot, error)

	// Delete removes the snapshot stored under key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// List returns the keys with a stored snapshot.
	List(ctx context.Context) ([]string, error)
}
