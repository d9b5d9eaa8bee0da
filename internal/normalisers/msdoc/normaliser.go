// Package msdoc provides a Normaliser for legacy Word 97-2003 binary
// documents. The compound file is opened with mscfb and only the
// WordDocument stream and its table stream are read: the main document
// text is assembled from the piece table. Documents whose piece table
// cannot be read fall back to recovering runs of readable text from the
// WordDocument stream.
package msdoc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/richardlehane/mscfb"

	"github.com/custodia-labs/ragbot/internal/core/domain"
	"github.com/custodia-labs/ragbot/internal/core/ports/driven"
	"github.com/custodia-labs/ragbot/internal/logger"
)

// Ensure Normaliser implements the interface.
var _ driven.Normaliser = (*Normaliser)(nil)

// Stream names inside a Word binary document.
const (
	wordStream   = "WordDocument"
	table0Stream = "0Table"
	table1Stream = "1Table"
)

// DefaultMinRun is the minimum number of characters for a recovered text
// run to be kept.
const DefaultMinRun = 4

// Normaliser handles .doc files.
type Normaliser struct {
	minRun int
}

// New creates a new legacy Word normaliser.
func New() *Normaliser {
	return &Normaliser{minRun: DefaultMinRun}
}

// SupportedMIMETypes returns the MIME types this normaliser handles.
func (n *Normaliser) SupportedMIMETypes() []string {
	return []string{"application/msword"}
}

// SupportedExtensions returns the file extensions this normaliser handles.
func (n *Normaliser) SupportedExtensions() []string {
	return []string{".doc"}
}

// Priority returns the selection priority.
func (n *Normaliser) Priority() int {
	return 40
}

// Normalise extracts the main text of a .doc file as one document.
func (n *Normaliser) Normalise(_ context.Context, raw *domain.RawDocument) (*driven.NormaliseResult, error) {
	if raw == nil {
		return nil, domain.ErrInvalidInput
	}

	streams, err := readStreams(raw.Content)
	if err != nil {
		return nil, fmt.Errorf("%w: not a compound binary document: %v", domain.ErrInvalidInput, err)
	}
	word, ok := streams[wordStream]
	if !ok {
		return nil, fmt.Errorf("%w: no %s stream", domain.ErrInvalidInput, wordStream)
	}

	content, err := mainText(word, streams)
	switch {
	case errors.Is(err, errEncrypted):
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	case err != nil:
		logger.Debug("doc %s: %v, recovering text runs", raw.URI, err)
		content = n.recoverRuns(word)
	}
	if content == "" {
		return nil, fmt.Errorf("%w: no readable text", domain.ErrInvalidInput)
	}

	doc := raw.NewDocument(raw.URI, raw.Title(), content, "doc")
	return &driven.NormaliseResult{Documents: []domain.Document{doc}}, nil
}

// readStreams returns the WordDocument and table streams of a compound
// file. Other streams such as summary information are not read.
func readStreams(content []byte) (map[string][]byte, error) {
	doc, err := mscfb.New(bytes.NewReader(content))
	if err != nil {
		return nil, err
	}

	// Embedded objects carry their own streams of the same names, so the
	// shallowest match wins.
	streams := make(map[string][]byte, 2)
	depth := make(map[string]int, 2)
	for entry, err := doc.Next(); err == nil; entry, err = doc.Next() {
		switch entry.Name {
		case wordStream, table0Stream, table1Stream:
		default:
			continue
		}
		if d, seen := depth[entry.Name]; seen && d <= len(entry.Path) {
			continue
		}
		data, err := io.ReadAll(entry)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", entry.Name, err)
		}
		streams[entry.Name] = data
		depth[entry.Name] = len(entry.Path)
	}
	return streams, nil
}
