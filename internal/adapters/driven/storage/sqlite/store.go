package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/custodia-labs/ragbot/internal/adapters/driven/storage/sqlite/migrations"
	"github.com/custodia-labs/ragbot/internal/core/domain"
	"github.com/custodia-labs/ragbot/internal/core/ports/driven"
)

// Ensure Store implements the interface.
var _ driven.ManifestStore = (*Store)(nil)

// DBFile is the database file name inside the data directory.
const DBFile = "manifest.db"

// Store is a SQLite-backed manifest store.
type Store struct {
	db   *sql.DB
	path string
}

// NewStore creates a new SQLite store at the specified data directory.
// If dataDir is empty, defaults to ~/.ragbot/data.
func NewStore(dataDir string) (*Store, error) {
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".ragbot", "data")
	}

	// Ensure directory exists
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, DBFile)

	// Open database with WAL mode for better concurrency
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{
		db:   db,
		path: dbPath,
	}

	// Run migrations
	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// migrate runs all pending migrations.
func (s *Store) migrate(fsys fs.FS) error {
	// Ensure schema_migrations table exists
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	// Get current version
	var currentVersion int
	row := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	// Find all up migrations
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	// Sort and run migrations
	var upFiles []string
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasSuffix(name, ".up.sql") {
			upFiles = append(upFiles, name)
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		// Extract version number (e.g., "001_manifest.up.sql" -> 1)
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue // Skip files that don't match pattern
		}

		if version <= currentVersion {
			continue // Already applied
		}

		// Read and execute migration
		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}

		if _, err := s.db.Exec(string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
	}

	return nil
}

// Get returns the entry for a file.
func (s *Store) Get(ctx context.Context, collection, path string) (*domain.ManifestEntry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT collection, path, size, mod_time, content_hash, chunks, indexed_at
		FROM manifest WHERE collection = ? AND path = ?
	`, collection, path)

	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying manifest: %w", err)
	}
	return &entry, nil
}

// Put inserts or replaces the entry for a file.
func (s *Store) Put(ctx context.Context, e domain.ManifestEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO manifest (collection, path, size, mod_time, content_hash, chunks, indexed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(collection, path) DO UPDATE SET
			size = excluded.size,
			mod_time = excluded.mod_time,
			content_hash = excluded.content_hash,
			chunks = excluded.chunks,
			indexed_at = excluded.indexed_at
	`, e.Collection, e.Path, e.Size, e.ModTime.UnixNano(), e.ContentHash, e.Chunks, e.IndexedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("saving manifest entry: %w", err)
	}
	return nil
}

// Delete removes the entry for a file.
func (s *Store) Delete(ctx context.Context, collection, path string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM manifest WHERE collection = ? AND path = ?", collection, path)
	if err != nil {
		return fmt.Errorf("deleting manifest entry: %w", err)
	}
	return nil
}

// List returns all entries for a collection ordered by path.
func (s *Store) List(ctx context.Context, collection string) ([]domain.ManifestEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT collection, path, size, mod_time, content_hash, chunks, indexed_at
		FROM manifest WHERE collection = ? ORDER BY path
	`, collection)
	if err != nil {
		return nil, fmt.Errorf("listing manifest: %w", err)
	}
	defer rows.Close()

	var entries []domain.ManifestEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning manifest entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (domain.ManifestEntry, error) {
	var (
		e                domain.ManifestEntry
		modTime, indexed int64
	)
	if err := row.Scan(&e.Collection, &e.Path, &e.Size, &modTime, &e.ContentHash, &e.Chunks, &indexed); err != nil {
		return e, err
	}
	e.ModTime = time.Unix(0, modTime)
	e.IndexedAt = time.Unix(0, indexed)
	return e, nil
}
