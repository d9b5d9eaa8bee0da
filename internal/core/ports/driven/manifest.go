package driven

import (
	"context"

	"github.com/custodia-labs/ragbot/internal/core/domain"
)

// ManifestStore remembers which files were indexed into which collection,
// so unchanged files can be skipped.
type ManifestStore interface {
	// Get returns the entry for a file, or domain.ErrNotFound.
	Get(ctx context.Context, collection, path string) (*domain.ManifestEntry, error)

	// Put inserts or replaces the entry for a file.
	Put(ctx context.Context, entry domain.ManifestEntry) error

	// Delete removes the entry for a file.
	Delete(ctx context.Context, collection, path string) error

	// List returns all entries for a collection ordered by path.
	List(ctx context.Context, collection string) ([]domain.ManifestEntry, error)

	// Close releases resources.
	Close() error
}
