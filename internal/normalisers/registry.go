package normalisers

import (
	"context"
	"errors"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/custodia-labs/ragbot/internal/core/domain"
	"github.com/custodia-labs/ragbot/internal/core/ports/driven"
	"github.com/custodia-labs/ragbot/internal/normalisers/docx"
	"github.com/custodia-labs/ragbot/internal/normalisers/html"
	"github.com/custodia-labs/ragbot/internal/normalisers/markdown"
	"github.com/custodia-labs/ragbot/internal/normalisers/msdoc"
	"github.com/custodia-labs/ragbot/internal/normalisers/pdf"
	"github.com/custodia-labs/ragbot/internal/normalisers/plaintext"
)

// Ensure Registry implements the interface.
var _ driven.NormaliserRegistry = (*Registry)(nil)

// Registry dispatches raw documents to the highest priority normaliser
// that claims their MIME type, then their extension. Normalisers with a
// priority below 10 act as fallbacks for anything unclaimed.
type Registry struct {
	mu          sync.RWMutex
	normalisers []driven.Normaliser
}

// NewRegistry creates an empty registry.
func NewRegistry(normalisers ...driven.Normaliser) *Registry {
	r := &Registry{}
	for _, n := range normalisers {
		r.Register(n)
	}
	return r
}

// NewDefaultRegistry creates a registry with every built-in normaliser.
func NewDefaultRegistry() *Registry {
	return NewRegistry(
		plaintext.New(),
		markdown.New(),
		html.New(),
		docx.New(),
		msdoc.New(),
		pdf.New(),
	)
}

// Register adds a normaliser to the registry.
func (r *Registry) Register(n driven.Normaliser) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.normalisers = append(r.normalisers, n)
	slices.SortStableFunc(r.normalisers, func(a, b driven.Normaliser) int {
		return b.Priority() - a.Priority()
	})
}

// SupportedExtensions returns all extensions claimed by a normaliser, sorted.
func (r *Registry) SupportedExtensions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var exts []string
	for _, n := range r.normalisers {
		for _, ext := range n.SupportedExtensions() {
			exts = append(exts, strings.ToLower(ext))
		}
	}
	slices.Sort(exts)
	return slices.Compact(exts)
}

// Select returns the normaliser for a path and MIME type.
func (r *Registry) Select(path, mimeType string) (driven.Normaliser, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if mimeType != "" {
		base, _, _ := strings.Cut(mimeType, ";")
		base = strings.TrimSpace(strings.ToLower(base))
		for _, n := range r.normalisers {
			if slices.Contains(n.SupportedMIMETypes(), base) {
				return n, nil
			}
		}
	}

	ext := strings.ToLower(filepath.Ext(path))
	if ext != "" {
		for _, n := range r.normalisers {
			if slices.Contains(n.SupportedExtensions(), ext) {
				return n, nil
			}
		}
	}

	for i := len(r.normalisers) - 1; i >= 0; i-- {
		if n := r.normalisers[i]; n.Priority() < 10 {
			return n, nil
		}
	}
	return nil, domain.ErrUnsupportedType
}

// Normalise transforms a raw document with the selected normaliser.
// Failures are reported as *domain.LoaderError for the document's URI.
func (r *Registry) Normalise(ctx context.Context, raw *domain.RawDocument) (*driven.NormaliseResult, error) {
	if raw == nil {
		return nil, domain.ErrInvalidInput
	}

	n, err := r.Select(raw.URI, raw.MIMEType)
	if err != nil {
		return nil, &domain.LoaderError{Path: raw.URI, Err: err}
	}

	result, err := n.Normalise(ctx, raw)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		var le *domain.LoaderError
		if errors.As(err, &le) {
			return nil, err
		}
		return nil, &domain.LoaderError{Path: raw.URI, Err: err}
	}
	return result, nil
}
