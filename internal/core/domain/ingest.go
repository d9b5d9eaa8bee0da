package domain

import "time"

// FileError records a file that could not be indexed.
type FileError struct {
	Path string
	Err  error
}

// IngestReport summarises one ingestion run.
type IngestReport struct {
	// Files is the number of files discovered.
	Files int

	// Indexed is the number of files whose chunks were written.
	Indexed int

	// Skipped is the number of unchanged files left alone.
	Skipped int

	// Removed is the number of vanished files whose records were deleted.
	Removed int

	// Failed lists files, or chunks of files, skipped because of an error.
	Failed []FileError

	// Chunks is the number of chunks produced.
	Chunks int

	// Records is the number of records written to the index.
	Records int

	// Duration is the wall-clock time of the run.
	Duration time.Duration
}

// ManifestEntry records what was indexed for one file.
type ManifestEntry struct {
	Collection  string
	Path        string
	Size        int64
	ModTime     time.Time
	ContentHash string
	Chunks      int
	IndexedAt   time.Time
}

// Unchanged reports whether f still matches the entry on size and mtime.
// An entry without a content hash records an incomplete run and never
// matches.
func (e ManifestEntry) Unchanged(f SourceFile) bool {
	return e.ContentHash != "" && e.Size == f.Size && e.ModTime.Equal(f.ModTime)
}
