package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/custodia-labs/ragbot/internal/adapters/driven/storage"
	"github.com/custodia-labs/ragbot/internal/core/domain"
	"github.com/custodia-labs/ragbot/internal/core/ports/driven"
)

// Ensure VectorIndex implements the interface.
var _ driven.VectorIndex = (*VectorIndex)(nil)

type collection struct {
	state   storage.CollectionState
	records []domain.IndexedRecord
	// byID maps record IDs to their position in records.
	byID map[string]int
}

// VectorIndex is an in-memory brute-force cosine index.
type VectorIndex struct {
	mu          sync.RWMutex
	collections map[string]*collection
}

// NewVectorIndex creates an empty index.
func NewVectorIndex() *VectorIndex {
	return &VectorIndex{
		collections: make(map[string]*collection),
	}
}

// Upsert validates the whole batch, then writes it. A replaced record
// keeps its original insertion position.
func (v *VectorIndex) Upsert(ctx context.Context, name string, records []domain.IndexedRecord) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if len(records) == 0 {
		return 0, nil
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	c := v.collections[name]
	var state storage.CollectionState
	if c != nil {
		state = c.state
	}
	state, err := storage.CheckBatch(name, state, records)
	if err != nil {
		return 0, err
	}

	if c == nil {
		c = &collection{byID: make(map[string]int)}
		v.collections[name] = c
	}
	c.state = state

	for _, r := range records {
		r = cloneRecord(r)
		if i, ok := c.byID[r.ID]; ok {
			c.records[i] = r
			continue
		}
		c.byID[r.ID] = len(c.records)
		c.records = append(c.records, r)
	}
	return len(records), nil
}

// Query scores every record and returns the best q.K.
func (v *VectorIndex) Query(ctx context.Context, name string, q domain.VectorQuery) ([]domain.ScoredRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	v.mu.RLock()
	defer v.mu.RUnlock()

	c, ok := v.collections[name]
	if !ok {
		return nil, domain.CollectionNotFound(name)
	}
	if len(c.records) == 0 || q.K <= 0 {
		return []domain.ScoredRecord{}, nil
	}
	if err := storage.CheckQuery(name, c.state, q); err != nil {
		return nil, err
	}

	scored := make([]domain.ScoredRecord, 0, len(c.records))
	for _, r := range c.records {
		if !storage.Matches(r, q.Filter) {
			continue
		}
		scored = append(scored, domain.ScoredRecord{Record: r, Score: storage.Cosine(q.Vector, r.Vector)})
	}

	// Stable sort keeps insertion order among equal scores.
	slices.SortStableFunc(scored, func(a, b domain.ScoredRecord) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		default:
			return 0
		}
	})
	if len(scored) > q.K {
		scored = scored[:q.K]
	}

	out := make([]domain.ScoredRecord, len(scored))
	for i, s := range scored {
		out[i] = domain.ScoredRecord{Record: cloneRecord(s.Record), Score: s.Score}
	}
	return out, nil
}

// DeleteSource removes every record of source. A missing collection is
// not an error.
func (v *VectorIndex) DeleteSource(ctx context.Context, name, source string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	c, ok := v.collections[name]
	if !ok {
		return nil
	}
	kept := c.records[:0]
	for _, r := range c.records {
		if r.Source != source {
			kept = append(kept, r)
		}
	}
	clear(c.records[len(kept):])
	c.records = kept

	c.byID = make(map[string]int, len(kept))
	for i, r := range kept {
		c.byID[r.ID] = i
	}
	return nil
}

// Count returns the number of records in the collection.
func (v *VectorIndex) Count(_ context.Context, name string) (int, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	c, ok := v.collections[name]
	if !ok {
		return 0, domain.CollectionNotFound(name)
	}
	return len(c.records), nil
}

// Close is a no-op.
func (v *VectorIndex) Close() error {
	return nil
}

func cloneRecord(r domain.IndexedRecord) domain.IndexedRecord {
	r.Vector = slices.Clone(r.Vector)
	r.Metadata = domain.CopyMetadata(r.Metadata)
	return r
}
