package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/ragbot/internal/core/domain"
	"github.com/custodia-labs/ragbot/internal/core/ports/driven"
	"github.com/custodia-labs/ragbot/internal/core/ports/driving"
	"github.com/custodia-labs/ragbot/internal/logger"
)

// Ensure IngestService implements the interface.
var _ driving.IngestService = (*IngestService)(nil)

// File outcomes passed to IngestMetrics.CountFile.
const (
	FileIndexed = "indexed"
	FileSkipped = "skipped"
	FileFailed  = "failed"
)

// recordNamespace seeds the UUIDv5 record IDs.
var recordNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/custodia-labs/ragbot/records"))

// IngestMetrics receives ingestion counters. All methods must be cheap.
type IngestMetrics interface {
	CountFile(status string)
	AddChunks(n int)
	ObserveEmbedBatch(start time.Time)
}

type noopMetrics struct{}

func (noopMetrics) CountFile(string)            {}
func (noopMetrics) AddChunks(int)               {}
func (noopMetrics) ObserveEmbedBatch(time.Time) {}

// IngestService runs the offline pipeline: list, read, normalise, chunk,
// embed and upsert.
type IngestService struct {
	source      driven.DocumentSource
	registry    driven.NormaliserRegistry
	chunker     driven.Chunker
	embedder    driven.EmbeddingService
	index       driven.VectorIndex
	manifest    driven.ManifestStore
	watcher     driven.ChangeWatcher
	metrics     IngestMetrics
	settings    domain.IndexSettings
	fingerprint string
	force       bool
	now         func() time.Time
}

// IngestOption configures optional collaborators.
type IngestOption func(*IngestService)

// WithManifest enables skipping unchanged files.
func WithManifest(m driven.ManifestStore) IngestOption {
	return func(s *IngestService) {
		s.manifest = m
	}
}

// WithWatcher enables Watch.
func WithWatcher(w driven.ChangeWatcher) IngestOption {
	return func(s *IngestService) {
		s.watcher = w
	}
}

// WithIngestMetrics reports counters to m.
func WithIngestMetrics(m IngestMetrics) IngestOption {
	return func(s *IngestService) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithForce re-indexes every file regardless of the manifest.
func WithForce(force bool) IngestOption {
	return func(s *IngestService) {
		s.force = force
	}
}

// NewIngestService creates an ingest service. Settings are validated here
// so a bad configuration fails before any file is touched.
func NewIngestService(
	source driven.DocumentSource,
	registry driven.NormaliserRegistry,
	chunker driven.Chunker,
	embedder driven.EmbeddingService,
	index driven.VectorIndex,
	settings domain.IndexSettings,
	fingerprint string,
	opts ...IngestOption,
) (*IngestService, error) {
	switch {
	case strings.TrimSpace(settings.CollectionName) == "":
		return nil, &domain.ConfigError{Field: "collection_name", Reason: "must not be empty"}
	case settings.BatchSize <= 0:
		return nil, &domain.ConfigError{Field: "batch_size", Reason: "must be positive"}
	case settings.Workers <= 0:
		return nil, &domain.ConfigError{Field: "workers", Reason: "must be positive"}
	}

	s := &IngestService{
		source:      source,
		registry:    registry,
		chunker:     chunker,
		embedder:    embedder,
		index:       index,
		metrics:     noopMetrics{},
		settings:    settings,
		fingerprint: fingerprint,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// loaded is one file after the concurrent read phase.
type loaded struct {
	file  domain.SourceFile
	hash  string
	docs  []domain.Document
	prior *domain.ManifestEntry
	skip  bool
	err   error
}

// Ingest indexes everything under path, or the configured data path when
// path is empty.
//
// Per-file failures are recorded in the report. Errors that would affect
// every file (dimension or fingerprint mismatch, a missing collection,
// cancellation) abort the run and are returned with the partial report.
func (s *IngestService) Ingest(ctx context.Context, path string) (*domain.IngestReport, error) {
	start := s.now()
	if path == "" {
		path = s.settings.DataPath
	}
	report := &domain.IngestReport{}
	defer func() { report.Duration = s.now().Sub(start) }()

	logger.Section("Ingest")
	logger.Debug("path=%s collection=%s fingerprint=%s force=%v",
		path, s.settings.CollectionName, s.fingerprint, s.force)

	files, err := s.source.List(ctx, path)
	if err != nil {
		return report, fmt.Errorf("list files: %w", err)
	}
	report.Files = len(files)

	if err := s.prune(ctx, path, files, report); err != nil {
		return report, err
	}

	// Files are loaded a window at a time so at most Workers documents are
	// held in memory while earlier ones are embedded.
	for from := 0; from < len(files); from += s.settings.Workers {
		window := files[from:min(from+s.settings.Workers, len(files))]
		results, err := s.load(ctx, window)
		if err != nil {
			return report, err
		}

		for _, r := range results {
			if err := s.indexFile(ctx, r, report); err != nil {
				return report, err
			}
		}
	}

	logger.Info("Ingest complete: %d files, %d indexed, %d skipped, %d failed, %d chunks",
		report.Files, report.Indexed, report.Skipped, len(report.Failed), report.Chunks)
	return report, nil
}

// load reads and normalises files concurrently. Results keep file order.
func (s *IngestService) load(ctx context.Context, files []domain.SourceFile) ([]loaded, error) {
	results := make([]loaded, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.settings.Workers)
	for i, f := range files {
		g.Go(func() error {
			results[i] = s.loadFile(gctx, f)
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (s *IngestService) loadFile(ctx context.Context, f domain.SourceFile) loaded {
	r := loaded{file: f}

	if s.manifest != nil && !s.force {
		entry, err := s.manifest.Get(ctx, s.settings.CollectionName, f.Path)
		switch {
		case err == nil:
			r.prior = entry
			if entry.Unchanged(f) {
				r.skip = true
				return r
			}
		case !errors.Is(err, domain.ErrNotFound):
			logger.Warn("manifest lookup for %s: %v", f.Path, err)
		}
	}

	raw, err := s.source.Read(ctx, f)
	if err != nil {
		r.err = err
		return r
	}
	sum := sha256.Sum256(raw.Content)
	r.hash = hex.EncodeToString(sum[:])

	// Touched but identical content.
	if r.prior != nil && r.prior.ContentHash == r.hash {
		r.skip = true
		return r
	}

	result, err := s.registry.Normalise(ctx, raw)
	if err != nil {
		r.err = err
		return r
	}
	r.docs = result.Documents
	return r
}

// indexFile chunks, embeds and upserts one loaded file.
func (s *IngestService) indexFile(ctx context.Context, r loaded, report *domain.IngestReport) error {
	if r.skip {
		logger.Debug("unchanged: %s", r.file.Path)
		report.Skipped++
		s.metrics.CountFile(FileSkipped)
		if r.prior != nil && r.hash != "" {
			// Content matched; remember the new mtime so the next run
			// skips without reading.
			entry := *r.prior
			entry.Size, entry.ModTime = r.file.Size, r.file.ModTime
			s.putManifest(ctx, entry)
		}
		return nil
	}
	if r.err != nil {
		s.fail(report, r.file.Path, r.err)
		return nil
	}

	if r.prior != nil || s.force {
		if err := s.index.DeleteSource(ctx, s.settings.CollectionName, r.file.Path); err != nil {
			if fatal(err) {
				return err
			}
			s.fail(report, r.file.Path, fmt.Errorf("delete previous records: %w", err))
			return nil
		}
	}

	// Until every chunk is stored the entry carries no hash, so the file
	// is reindexed and its partial records deleted on the next run.
	entry := domain.ManifestEntry{
		Collection: s.settings.CollectionName,
		Path:       r.file.Path,
		Size:       r.file.Size,
		ModTime:    r.file.ModTime,
		IndexedAt:  s.now(),
	}
	s.putManifest(ctx, entry)

	chunks, written, itemErrs, err := s.embedAndUpsert(ctx, r)
	report.Chunks += chunks
	report.Records += written
	s.metrics.AddChunks(written)
	if err != nil {
		if fatal(err) {
			return err
		}
		s.fail(report, r.file.Path, err)
		return nil
	}
	for _, e := range itemErrs {
		report.Failed = append(report.Failed, domain.FileError{Path: r.file.Path, Err: e})
	}
	if written == 0 && len(itemErrs) > 0 {
		logger.Warn("skipping %s: none of %d chunks could be embedded", r.file.Path, chunks)
		s.metrics.CountFile(FileFailed)
		return nil
	}

	report.Indexed++
	s.metrics.CountFile(FileIndexed)
	logger.Debug("indexed %s: %d chunks, %d records", r.file.Path, chunks, written)

	if len(itemErrs) == 0 {
		entry.ContentHash, entry.Chunks = r.hash, chunks
		s.putManifest(ctx, entry)
	}
	return nil
}

// embedAndUpsert streams the file's chunks in batches. Each batch is
// embedded and upserted before the next one is produced.
func (s *IngestService) embedAndUpsert(ctx context.Context, r loaded) (int, int, []error, error) {
	var (
		chunks, written int
		itemErrs        []error
		batch           = make([]domain.IndexedRecord, 0, s.settings.BatchSize)
	)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		records, errs, err := s.embed(ctx, batch)
		itemErrs = append(itemErrs, errs...)
		if err != nil {
			return err
		}
		if len(records) > 0 {
			n, err := s.index.Upsert(ctx, s.settings.CollectionName, records)
			if err != nil {
				return fmt.Errorf("upsert: %w", err)
			}
			written += n
		}
		batch = batch[:0]
		return nil
	}

	for _, doc := range r.docs {
		for c := range s.chunker.Chunks(doc) {
			chunks++
			if strings.TrimSpace(c.Content) == "" {
				continue
			}
			batch = append(batch, s.record(c))
			if len(batch) == s.settings.BatchSize {
				if err := flush(); err != nil {
					return chunks, written, itemErrs, err
				}
			}
		}
	}
	if err := flush(); err != nil {
		return chunks, written, itemErrs, err
	}
	return chunks, written, itemErrs, nil
}

// embed fills in the vectors of a batch. When the batch call fails every
// item is retried alone and items that still fail are dropped.
func (s *IngestService) embed(ctx context.Context, batch []domain.IndexedRecord) ([]domain.IndexedRecord, []error, error) {
	texts := make([]string, len(batch))
	for i, r := range batch {
		texts[i] = r.Text
	}

	start := time.Now()
	vectors, err := s.embedder.EmbedBatch(ctx, texts)
	s.metrics.ObserveEmbedBatch(start)
	if err == nil {
		out := make([]domain.IndexedRecord, len(batch))
		for i, r := range batch {
			r.Vector = vectors[i]
			out[i] = r
		}
		return out, nil, nil
	}
	if ctx.Err() != nil {
		return nil, nil, ctx.Err()
	}

	logger.Warn("batch embed of %d chunks failed, retrying one by one: %v", len(batch), err)
	var (
		out  = make([]domain.IndexedRecord, 0, len(batch))
		errs []error
	)
	for _, r := range batch {
		v, err := s.embedder.Embed(ctx, r.Text)
		if err != nil {
			if ctx.Err() != nil {
				return nil, nil, ctx.Err()
			}
			logger.Warn("skipping chunk %s of %s: %v", r.ID, r.Source, err)
			errs = append(errs, fmt.Errorf("chunk %s: %w", r.ID, err))
			continue
		}
		r.Vector = v
		out = append(out, r)
	}
	return out, errs, nil
}

// record builds the record for a chunk with a deterministic ID.
func (s *IngestService) record(c domain.Chunk) domain.IndexedRecord {
	source := c.Source()
	return domain.IndexedRecord{
		ID:          RecordID(s.settings.CollectionName, source, pageOf(c), c.Position),
		Text:        c.Content,
		Source:      source,
		Metadata:    c.Metadata,
		Fingerprint: s.fingerprint,
	}
}

// RecordID returns the UUIDv5 of collection/source/page/position, so
// re-indexing the same content overwrites instead of duplicating.
func RecordID(collection, source string, page, position int) string {
	name := strings.Join([]string{collection, source, strconv.Itoa(page), strconv.Itoa(position)}, "/")
	return uuid.NewSHA1(recordNamespace, []byte(name)).String()
}

func pageOf(c domain.Chunk) int {
	switch p := c.Metadata[domain.MetaPageNumber].(type) {
	case int:
		return p
	case int64:
		return int(p)
	default:
		return 0
	}
}

// prune drops records of files that were indexed under root earlier but
// no longer exist.
func (s *IngestService) prune(ctx context.Context, root string, files []domain.SourceFile, report *domain.IngestReport) error {
	if s.manifest == nil {
		return nil
	}
	entries, err := s.manifest.List(ctx, s.settings.CollectionName)
	if err != nil {
		logger.Warn("manifest list: %v", err)
		return nil
	}

	present := make(map[string]bool, len(files))
	for _, f := range files {
		present[f.Path] = true
	}
	root = filepath.Clean(root)
	for _, e := range entries {
		if present[e.Path] || !within(root, e.Path) {
			continue
		}
		if err := s.index.DeleteSource(ctx, s.settings.CollectionName, e.Path); err != nil {
			if fatal(err) {
				return err
			}
			logger.Warn("remove records of %s: %v", e.Path, err)
			continue
		}
		if err := s.manifest.Delete(ctx, s.settings.CollectionName, e.Path); err != nil {
			logger.Warn("manifest delete %s: %v", e.Path, err)
		}
		logger.Debug("removed vanished file %s", e.Path)
		report.Removed++
	}
	return nil
}

func within(root, path string) bool {
	if path == root {
		return true
	}
	rel, err := filepath.Rel(root, path)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func (s *IngestService) putManifest(ctx context.Context, e domain.ManifestEntry) {
	if s.manifest == nil {
		return
	}
	if err := s.manifest.Put(ctx, e); err != nil {
		logger.Warn("manifest update for %s: %v", e.Path, err)
	}
}

func (s *IngestService) fail(report *domain.IngestReport, path string, err error) {
	logger.Warn("skipping %s: %v", path, err)
	report.Failed = append(report.Failed, domain.FileError{Path: path, Err: err})
	s.metrics.CountFile(FileFailed)
}

// fatal reports errors that would fail every remaining file.
func fatal(err error) bool {
	return errors.Is(err, domain.ErrDimensionMismatch) ||
		errors.Is(err, domain.ErrFingerprintMismatch) ||
		errors.Is(err, domain.ErrCollectionNotFound) ||
		errors.Is(err, domain.ErrVectorIndexUnavailable) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

// Watch runs Ingest once, then again after every batch of changes below
// path until ctx is cancelled. Each run is passed to onReport.
func (s *IngestService) Watch(ctx context.Context, path string, onReport func(*domain.IngestReport, error)) error {
	if s.watcher == nil {
		return errors.New("watch: no change watcher configured")
	}
	if path == "" {
		path = s.settings.DataPath
	}

	changes, err := s.watcher.Watch(ctx, path)
	if err != nil {
		return fmt.Errorf("watch %s: %w", path, err)
	}

	onReport(s.Ingest(ctx, path))
	for batch := range changes {
		logger.Debug("change detected: %v", batch)
		report, err := s.Ingest(ctx, path)
		if ctx.Err() != nil {
			break
		}
		onReport(report, err)
	}
	return ctx.Err()
}
