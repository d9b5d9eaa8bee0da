// Package pdf provides a Normaliser for PDF files. Each page with a
// content stream becomes its own document carrying page_number and
// total_pages metadata.
package pdf

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/custodia-labs/ragbot/internal/core/domain"
	"github.com/custodia-labs/ragbot/internal/core/ports/driven"
	"github.com/custodia-labs/ragbot/internal/logger"
)

// Ensure Normaliser implements the interface.
var _ driven.Normaliser = (*Normaliser)(nil)

// Pages gives access to the text of a parsed PDF.
type Pages interface {
	// NumPage returns the number of pages.
	NumPage() int

	// PageText returns the plain text of page i (1-based). ok is false
	// for pages without content.
	PageText(i int) (text string, ok bool, err error)
}

// Opener parses PDF bytes.
type Opener func(r io.ReaderAt, size int64) (Pages, error)

// Normaliser handles PDF documents.
type Normaliser struct {
	open Opener
}

// New creates a PDF normaliser backed by the pure Go PDF reader.
func New() *Normaliser {
	return NewWithOpener(openPDF)
}

// NewWithOpener creates a PDF normaliser with a custom parser (for testing).
func NewWithOpener(open Opener) *Normaliser {
	return &Normaliser{open: open}
}

// SupportedMIMETypes returns the MIME types this normaliser handles.
func (n *Normaliser) SupportedMIMETypes() []string {
	return []string{"application/pdf"}
}

// SupportedExtensions returns the file extensions this normaliser handles.
func (n *Normaliser) SupportedExtensions() []string {
	return []string{".pdf"}
}

// Priority returns the selection priority.
func (n *Normaliser) Priority() int {
	return 60
}

// Normalise extracts one document per page. Pages that fail to decode are
// skipped with a warning; a file whose every page fails is an error.
func (n *Normaliser) Normalise(ctx context.Context, raw *domain.RawDocument) (*driven.NormaliseResult, error) {
	if raw == nil {
		return nil, domain.ErrInvalidInput
	}

	pages, err := n.open(bytes.NewReader(raw.Content), int64(len(raw.Content)))
	if err != nil {
		return nil, fmt.Errorf("%w: parse pdf: %v", domain.ErrInvalidInput, err)
	}

	total := pages.NumPage()
	title := raw.Title()
	docs := make([]domain.Document, 0, total)
	var firstErr error

	for i := 1; i <= total; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		text, ok, err := pages.PageText(i)
		if err != nil {
			logger.Warn("pdf %s: skipping page %d: %v", raw.URI, i, err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if !ok {
			continue
		}

		doc := raw.NewDocument(fmt.Sprintf("%s#page=%d", raw.URI, i), title, strings.TrimSpace(text), "pdf")
		doc.Metadata[domain.MetaPageNumber] = i
		doc.Metadata[domain.MetaTotalPages] = total
		docs = append(docs, doc)
	}

	if len(docs) == 0 && firstErr != nil {
		return nil, fmt.Errorf("%w: no readable pages: %v", domain.ErrInvalidInput, firstErr)
	}
	return &driven.NormaliseResult{Documents: docs}, nil
}

// reader adapts *pdf.Reader to Pages.
type reader struct {
	r *pdf.Reader
}

func openPDF(r io.ReaderAt, size int64) (p Pages, err error) {
	// The parser panics on some malformed files.
	defer func() {
		if rec := recover(); rec != nil {
			p, err = nil, fmt.Errorf("malformed pdf: %v", rec)
		}
	}()

	pr, err := pdf.NewReader(r, size)
	if err != nil {
		return nil, err
	}
	return &reader{r: pr}, nil
}

func (r *reader) NumPage() int {
	return r.r.NumPage()
}

func (r *reader) PageText(i int) (text string, ok bool, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			text, ok, err = "", false, fmt.Errorf("malformed page: %v", rec)
		}
	}()

	page := r.r.Page(i)
	if page.V.IsNull() {
		return "", false, nil
	}
	text, err = page.GetPlainText(nil)
	if err != nil {
		return "", false, err
	}
	return text, true, nil
}
