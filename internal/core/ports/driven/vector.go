package driven

import (
	"context"

	"github.com/custodia-labs/ragbot/internal/core/domain"
)

// VectorIndex provides named vector collections with cosine similarity search.
// Every call is self-contained; there is no partial-write visibility.
type VectorIndex interface {
	// Upsert writes records into the collection, creating it with the
	// dimension of the first vector if absent. Records with an existing ID
	// replace the earlier record. All vectors are validated before any
	// write: a wrong dimension fails with DimensionMismatchError and a
	// foreign fingerprint with FingerprintMismatchError, writing nothing.
	Upsert(ctx context.Context, collection string, records []domain.IndexedRecord) (int, error)

	// Query returns at most q.K records ordered by non-increasing
	// similarity, ties in insertion order. A missing collection fails with
	// ErrCollectionNotFound; an empty one returns no results.
	Query(ctx context.Context, collection string, q domain.VectorQuery) ([]domain.ScoredRecord, error)

	// DeleteSource removes every record whose source equals source.
	DeleteSource(ctx context.Context, collection, source string) error

	// Count returns the number of records in the collection.
	Count(ctx context.Context, collection string) (int, error)

	// Close releases resources.
	Close() error
}
