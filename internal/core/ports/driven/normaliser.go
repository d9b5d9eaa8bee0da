package driven

import (
	"context"

	"github.com/custodia-labs/ragbot/internal/core/domain"
)

// Normaliser transforms raw file bytes into documents.
// Each normaliser handles specific formats (e.g., PDF, Markdown).
type Normaliser interface {
	// SupportedMIMETypes returns the MIME types this normaliser handles.
	SupportedMIMETypes() []string

	// SupportedExtensions returns file extensions (with leading dot)
	// this normaliser handles.
	SupportedExtensions() []string

	// Priority returns the selection priority (higher = preferred).
	// Format normalisers should return 50-89.
	// Fallback normalisers should return 1-9.
	Priority() int

	// Normalise transforms a raw document into one or more documents.
	Normalise(ctx context.Context, raw *domain.RawDocument) (*NormaliseResult, error)
}

// NormaliseResult contains the output of normalisation.
// Paged formats produce one Document per page; everything else produces one.
// Chunking happens later in the ingestion pipeline.
type NormaliseResult struct {
	Documents []domain.Document
}

// NormaliserRegistry selects the appropriate normaliser for a document.
// It keeps normalisers ordered by priority and dispatches on MIME type,
// then file extension, then the fallback.
type NormaliserRegistry interface {
	// Normalise transforms a raw document using the best matching normaliser.
	Normalise(ctx context.Context, raw *domain.RawDocument) (*NormaliseResult, error)

	// Register adds a normaliser to the registry.
	Register(normaliser Normaliser)

	// SupportedExtensions returns every extension some normaliser handles.
	SupportedExtensions() []string
}
