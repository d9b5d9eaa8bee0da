// Package plaintext provides the fallback normaliser for text files.
package plaintext

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/custodia-labs/ragbot/internal/core/domain"
	"github.com/custodia-labs/ragbot/internal/core/ports/driven"
)

// Ensure Normaliser implements the interface.
var _ driven.Normaliser = (*Normaliser)(nil)

// Normaliser handles plain text documents.
type Normaliser struct{}

// New creates a new plain text normaliser.
func New() *Normaliser {
	return &Normaliser{}
}

// SupportedMIMETypes returns the MIME types this normaliser handles.
func (n *Normaliser) SupportedMIMETypes() []string {
	return []string{
		"text/plain",
		"text/csv",
		"text/x-log",
		"application/json",
		"application/xml",
	}
}

// SupportedExtensions returns the file extensions this normaliser handles.
func (n *Normaliser) SupportedExtensions() []string {
	return []string{".txt", ".text", ".log", ".csv", ".json", ".xml"}
}

// Priority returns the selection priority.
func (n *Normaliser) Priority() int {
	return 5 // Fallback normaliser
}

// Normalise converts raw bytes to a single document.
// Invalid UTF-8 sequences are replaced rather than rejected.
func (n *Normaliser) Normalise(_ context.Context, raw *domain.RawDocument) (*driven.NormaliseResult, error) {
	if raw == nil {
		return nil, domain.ErrInvalidInput
	}

	content := string(raw.Content)
	if !utf8.ValidString(content) {
		content = strings.ToValidUTF8(content, "\uFFFD")
	}
	content = strings.TrimPrefix(content, "\uFEFF")

	doc := raw.NewDocument(raw.URI, raw.Title(), content, "text")
	return &driven.NormaliseResult{Documents: []domain.Document{doc}}, nil
}
