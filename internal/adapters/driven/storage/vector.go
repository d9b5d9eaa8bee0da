// Package storage holds helpers shared by the vector index adapters.
package storage

import (
	"fmt"
	"math"

	"github.com/custodia-labs/ragbot/internal/core/domain"
)

// Payload keys written by every vector backend.
const (
	PayloadText        = "text"
	PayloadSource      = "source"
	PayloadMetadata    = "metadata"
	PayloadFingerprint = "embedding_fingerprint"
)

// CollectionState is what a backend knows about an existing collection.
// Zero Dimensions means the collection does not exist yet.
type CollectionState struct {
	Dimensions  int
	Fingerprint string
}

// CheckBatch validates all records against state before anything is
// written and returns the state the collection has after the write.
func CheckBatch(collection string, state CollectionState, records []domain.IndexedRecord) (CollectionState, error) {
	if len(records) == 0 {
		return state, nil
	}
	if state.Dimensions == 0 {
		state.Dimensions = len(records[0].Vector)
	}
	if state.Fingerprint == "" {
		state.Fingerprint = records[0].Fingerprint
	}
	if state.Dimensions == 0 {
		return state, fmt.Errorf("%w: record %q has an empty vector", domain.ErrInvalidInput, records[0].ID)
	}

	for _, r := range records {
		if r.ID == "" {
			return state, fmt.Errorf("%w: record without id", domain.ErrInvalidInput)
		}
		if len(r.Vector) != state.Dimensions {
			return state, &domain.DimensionMismatchError{
				Collection: collection, Expected: state.Dimensions, Got: len(r.Vector),
			}
		}
		if r.Fingerprint != "" && state.Fingerprint != "" && r.Fingerprint != state.Fingerprint {
			return state, &domain.FingerprintMismatchError{
				Collection: collection, Expected: state.Fingerprint, Got: r.Fingerprint,
			}
		}
	}
	return state, nil
}

// CheckQuery validates a query against an existing collection.
func CheckQuery(collection string, state CollectionState, q domain.VectorQuery) error {
	if state.Dimensions > 0 && len(q.Vector) != state.Dimensions {
		return &domain.DimensionMismatchError{
			Collection: collection, Expected: state.Dimensions, Got: len(q.Vector),
		}
	}
	if q.Fingerprint != "" && state.Fingerprint != "" && q.Fingerprint != state.Fingerprint {
		return &domain.FingerprintMismatchError{
			Collection: collection, Expected: state.Fingerprint, Got: q.Fingerprint,
		}
	}
	return nil
}

// Cosine returns the cosine similarity of a and b, or 0 if either is zero.
func Cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// Matches reports whether r satisfies every filter entry. The key "source"
// addresses the record source; other keys address metadata, compared in
// their string form.
func Matches(r domain.IndexedRecord, filter map[string]string) bool {
	for k, want := range filter {
		if k == PayloadSource {
			if r.Source != want {
				return false
			}
			continue
		}
		v, ok := r.Metadata[k]
		if !ok || fmt.Sprint(v) != want {
			return false
		}
	}
	return true
}
