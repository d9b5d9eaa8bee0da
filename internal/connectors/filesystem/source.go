package filesystem

import (
	"context"
	"fmt"
	"io/fs"
	"mime"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/custodia-labs/ragbot/internal/core/domain"
	"github.com/custodia-labs/ragbot/internal/core/ports/driven"
)

// Ensure Source implements the interface.
var _ driven.DocumentSource = (*Source)(nil)

// DefaultMaxFileSize is the largest file read into memory (64 MiB).
const DefaultMaxFileSize = 64 << 20

// Source lists and reads files below a root path.
type Source struct {
	extensions  map[string]bool
	maxFileSize int64
}

// Option configures a Source.
type Option func(*Source)

// WithExtensions restricts directory listings to the given extensions.
func WithExtensions(exts ...string) Option {
	return func(s *Source) {
		s.extensions = make(map[string]bool, len(exts))
		for _, ext := range exts {
			ext = strings.ToLower(strings.TrimSpace(ext))
			if ext != "" && !strings.HasPrefix(ext, ".") {
				ext = "." + ext
			}
			s.extensions[ext] = true
		}
	}
}

// WithMaxFileSize sets the largest file Read accepts.
func WithMaxFileSize(n int64) Option {
	return func(s *Source) {
		s.maxFileSize = n
	}
}

// New creates a filesystem source.
func New(opts ...Option) *Source {
	s := &Source{maxFileSize: DefaultMaxFileSize}
	WithExtensions(domain.DefaultExtensions()...)(s)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// List returns the files under root in lexical path order.
// A root naming a single file is returned regardless of its extension.
// Hidden files and directories are skipped.
func (s *Source) List(ctx context.Context, root string) ([]domain.SourceFile, error) {
	info, err := os.Stat(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &domain.ConfigError{Field: "data_path", Reason: fmt.Sprintf("%q does not exist", root)}
		}
		return nil, fmt.Errorf("stat %s: %w", root, err)
	}
	if !info.IsDir() {
		return []domain.SourceFile{toSourceFile(root, info)}, nil
	}

	var files []domain.SourceFile
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if path != root && isHidden(d.Name()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		if !s.Accepts(path) {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			return err
		}
		files = append(files, toSourceFile(path, fi))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}

	slices.SortFunc(files, func(a, b domain.SourceFile) int {
		return strings.Compare(a.Path, b.Path)
	})
	return files, nil
}

// Accepts reports whether a file name has one of the configured extensions
// and is not hidden. Parent directories are not inspected.
func (s *Source) Accepts(path string) bool {
	if isHidden(filepath.Base(path)) {
		return false
	}
	return s.extensions[strings.ToLower(filepath.Ext(path))]
}

// Read loads a file into memory with its MIME type.
func (s *Source) Read(ctx context.Context, file domain.SourceFile) (*domain.RawDocument, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	info, err := os.Stat(file.Path)
	if err != nil {
		return nil, &domain.LoaderError{Path: file.Path, Err: err}
	}
	if s.maxFileSize > 0 && info.Size() > s.maxFileSize {
		return nil, &domain.LoaderError{
			Path: file.Path,
			Err:  fmt.Errorf("file is %d bytes, limit is %d", info.Size(), s.maxFileSize),
		}
	}

	content, err := os.ReadFile(file.Path)
	if err != nil {
		return nil, &domain.LoaderError{Path: file.Path, Err: err}
	}

	return &domain.RawDocument{
		URI:      file.Path,
		MIMEType: detectMIMEType(file.Path),
		Content:  content,
		Metadata: map[string]any{
			domain.MetaFilePath: file.Path,
		},
	}, nil
}

func toSourceFile(path string, info fs.FileInfo) domain.SourceFile {
	return domain.SourceFile{Path: path, Size: info.Size(), ModTime: info.ModTime()}
}

// fallbackMIMETypes covers extensions the platform MIME table may lack.
var fallbackMIMETypes = map[string]string{
	".md":       "text/markdown",
	".markdown": "text/markdown",
	".txt":      "text/plain",
	".text":     "text/plain",
	".log":      "text/plain",
	".doc":      "application/msword",
	".docx":     "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".pdf":      "application/pdf",
	".html":     "text/html",
	".htm":      "text/html",
}

// detectMIMEType returns the MIME type for a path, without parameters.
func detectMIMEType(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == "" {
		return "text/plain"
	}
	if m, ok := fallbackMIMETypes[ext]; ok {
		return m
	}
	if m := mime.TypeByExtension(ext); m != "" {
		base, _, _ := strings.Cut(m, ";")
		return strings.TrimSpace(base)
	}
	return "application/octet-stream"
}

// isHidden reports whether any element of path starts with a dot.
// "." and ".." are not hidden.
func isHidden(path string) bool {
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if len(part) > 1 && part[0] == '.' && part != ".." {
			return true
		}
	}
	return false
}
