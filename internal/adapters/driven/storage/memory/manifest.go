package memory

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/custodia-labs/ragbot/internal/core/domain"
	"github.com/custodia-labs/ragbot/internal/core/ports/driven"
)

// Ensure ManifestStore implements the interface.
var _ driven.ManifestStore = (*ManifestStore)(nil)

type manifestKey struct {
	collection string
	path       string
}

// ManifestStore is an in-memory implementation of driven.ManifestStore.
type ManifestStore struct {
	mu      sync.RWMutex
	entries map[manifestKey]domain.ManifestEntry
}

// NewManifestStore creates a new in-memory manifest store.
func NewManifestStore() *ManifestStore {
	return &ManifestStore{
		entries: make(map[manifestKey]domain.ManifestEntry),
	}
}

// Get retrieves the entry for a file.
func (s *ManifestStore) Get(_ context.Context, collection, path string) (*domain.ManifestEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[manifestKey{collection, path}]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &entry, nil
}

// Put stores or replaces the entry for a file.
func (s *ManifestStore) Put(_ context.Context, entry domain.ManifestEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[manifestKey{entry.Collection, entry.Path}] = entry
	return nil
}

// Delete removes the entry for a file.
func (s *ManifestStore) Delete(_ context.Context, collection, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, manifestKey{collection, path})
	return nil
}

// List returns the entries of a collection ordered by path.
func (s *ManifestStore) List(_ context.Context, collection string) ([]domain.ManifestEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.ManifestEntry
	for k, e := range s.entries {
		if k.collection == collection {
			out = append(out, e)
		}
	}
	slices.SortFunc(out, func(a, b domain.ManifestEntry) int { return strings.Compare(a.Path, b.Path) })
	return out, nil
}

// Close is a no-op.
func (s *ManifestStore) Close() error {
	return nil
}
