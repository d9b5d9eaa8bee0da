// Package chromem provides a driven.VectorIndex backed by an embedded,
// persistent chromem-go database. chromem does not enforce a dimension or
// embedding fingerprint per collection, so both are kept in a TOML sidecar
// next to the database.
package chromem

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/pelletier/go-toml/v2"
	"github.com/philippgille/chromem-go"

	"github.com/custodia-labs/ragbot/internal/adapters/driven/storage"
	"github.com/custodia-labs/ragbot/internal/core/domain"
	"github.com/custodia-labs/ragbot/internal/core/ports/driven"
)

// Ensure VectorIndex implements the interface.
var _ driven.VectorIndex = (*VectorIndex)(nil)

// Layout below the configured directory.
const (
	SidecarFile = "collections.toml"
	dbDir       = "db"
)

// metadataPrefix namespaces chunk metadata in chromem's flat string map.
const metadataPrefix = storage.PayloadMetadata + "."

// sidecar is the on-disk form of the collection states.
type sidecar struct {
	Collections map[string]sidecarEntry `toml:"collections"`
}

type sidecarEntry struct {
	Dimensions  int    `toml:"dimensions"`
	Fingerprint string `toml:"fingerprint"`
}

// VectorIndex stores records in chromem collections.
type VectorIndex struct {
	db  *chromem.DB
	dir string

	mu     sync.Mutex
	states map[string]storage.CollectionState
}

// New opens or creates the database under dir.
func New(dir string) (*VectorIndex, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create vector db directory: %w", err)
	}
	db, err := chromem.NewPersistentDB(filepath.Join(dir, dbDir), false)
	if err != nil {
		return nil, fmt.Errorf("%w: chromem: %w", domain.ErrVectorIndexUnavailable, err)
	}

	v := &VectorIndex{db: db, dir: dir, states: make(map[string]storage.CollectionState)}
	if err := v.loadSidecar(); err != nil {
		return nil, err
	}
	return v, nil
}

// PathFromURL extracts the directory from a chromem:// or file:// URL.
func PathFromURL(raw string) (string, error) {
	for _, scheme := range []string{"chromem://", "file://"} {
		if rest, ok := strings.CutPrefix(raw, scheme); ok {
			if rest == "" {
				break
			}
			return filepath.Clean(rest), nil
		}
	}
	return "", &domain.ConfigError{Field: "vector_db_url", Reason: fmt.Sprintf("expected chromem:///path, got %q", raw)}
}

func (v *VectorIndex) sidecarPath() string {
	return filepath.Join(v.dir, SidecarFile)
}

func (v *VectorIndex) loadSidecar() error {
	data, err := os.ReadFile(v.sidecarPath())
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", SidecarFile, err)
	}

	var sc sidecar
	if err := toml.Unmarshal(data, &sc); err != nil {
		return fmt.Errorf("parse %s: %w", SidecarFile, err)
	}
	for name, e := range sc.Collections {
		v.states[name] = storage.CollectionState{Dimensions: e.Dimensions, Fingerprint: e.Fingerprint}
	}
	return nil
}

// saveSidecar writes the states. Callers hold mu.
func (v *VectorIndex) saveSidecar() error {
	sc := sidecar{Collections: make(map[string]sidecarEntry, len(v.states))}
	for name, st := range v.states {
		sc.Collections[name] = sidecarEntry{Dimensions: st.Dimensions, Fingerprint: st.Fingerprint}
	}
	data, err := toml.Marshal(sc)
	if err != nil {
		return fmt.Errorf("encode %s: %w", SidecarFile, err)
	}

	tmp := v.sidecarPath() + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", SidecarFile, err)
	}
	return os.Rename(tmp, v.sidecarPath())
}

// Upsert validates the batch, then adds the documents. chromem replaces
// documents with an existing ID.
func (v *VectorIndex) Upsert(ctx context.Context, name string, records []domain.IndexedRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	before := v.states[name]
	after, err := storage.CheckBatch(name, before, records)
	if err != nil {
		return 0, err
	}

	coll, err := v.db.GetOrCreateCollection(name, nil, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: chromem create collection: %w", domain.ErrVectorIndexUnavailable, err)
	}

	docs := make([]chromem.Document, len(records))
	for i, r := range records {
		docs[i] = chromem.Document{
			ID:        r.ID,
			Content:   r.Text,
			Embedding: append([]float32(nil), r.Vector...),
			Metadata:  toMetadata(r),
		}
	}
	if err := coll.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return 0, fmt.Errorf("%w: chromem add documents: %w", domain.ErrVectorIndexUnavailable, err)
	}

	if after != before {
		v.states[name] = after
		if err := v.saveSidecar(); err != nil {
			return 0, err
		}
	}
	return len(records), nil
}

// Query returns the nearest documents. chromem rejects a result count
// larger than the collection, so K is clamped.
func (v *VectorIndex) Query(ctx context.Context, name string, q domain.VectorQuery) ([]domain.ScoredRecord, error) {
	v.mu.Lock()
	st, known := v.states[name]
	v.mu.Unlock()

	coll := v.db.GetCollection(name, nil)
	if coll == nil {
		return nil, domain.CollectionNotFound(name)
	}
	n := min(q.K, coll.Count())
	if n <= 0 {
		return []domain.ScoredRecord{}, nil
	}
	if known {
		if err := storage.CheckQuery(name, st, q); err != nil {
			return nil, err
		}
	}

	results, err := coll.QueryEmbedding(ctx, q.Vector, n, toWhere(q.Filter), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: chromem query: %w", domain.ErrVectorIndexUnavailable, err)
	}

	out := make([]domain.ScoredRecord, len(results))
	for i, res := range results {
		r := fromMetadata(res.Metadata)
		r.ID = res.ID
		r.Text = res.Content
		r.Vector = res.Embedding
		out[i] = domain.ScoredRecord{Record: r, Score: float64(res.Similarity)}
	}
	return out, nil
}

// DeleteSource removes every document of source.
func (v *VectorIndex) DeleteSource(ctx context.Context, name, source string) error {
	coll := v.db.GetCollection(name, nil)
	if coll == nil {
		return nil
	}
	if err := coll.Delete(ctx, map[string]string{storage.PayloadSource: source}, nil); err != nil {
		return fmt.Errorf("%w: chromem delete: %w", domain.ErrVectorIndexUnavailable, err)
	}
	return nil
}

// Count returns the number of documents in the collection.
func (v *VectorIndex) Count(_ context.Context, name string) (int, error) {
	coll := v.db.GetCollection(name, nil)
	if coll == nil {
		return 0, domain.CollectionNotFound(name)
	}
	return coll.Count(), nil
}

// Close is a no-op; chromem persists on every write.
func (v *VectorIndex) Close() error {
	return nil
}

// toMetadata flattens a record into chromem's string metadata. Chunk
// metadata values are stored in their string form.
func toMetadata(r domain.IndexedRecord) map[string]string {
	m := map[string]string{
		storage.PayloadSource:      r.Source,
		storage.PayloadFingerprint: r.Fingerprint,
	}
	for k, val := range r.Metadata {
		m[metadataPrefix+k] = fmt.Sprint(val)
	}
	return m
}

func fromMetadata(m map[string]string) domain.IndexedRecord {
	r := domain.IndexedRecord{
		Source:      m[storage.PayloadSource],
		Fingerprint: m[storage.PayloadFingerprint],
		Metadata:    map[string]any{},
	}
	for k, val := range m {
		if key, ok := strings.CutPrefix(k, metadataPrefix); ok {
			r.Metadata[key] = val
		}
	}
	return r
}

func toWhere(filter map[string]string) map[string]string {
	if len(filter) == 0 {
		return nil
	}
	where := make(map[string]string, len(filter))
	for k, val := range filter {
		if k == storage.PayloadSource {
			where[k] = val
			continue
		}
		where[metadataPrefix+k] = val
	}
	return where
}
