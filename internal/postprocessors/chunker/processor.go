// Package chunker splits document content into overlapping chunks,
// preferring paragraph, line, sentence and word boundaries over hard cuts.
package chunker

import (
	"iter"
	"slices"
	"strings"

	"github.com/custodia-labs/ragbot/internal/core/domain"
)

// DefaultChunkSize is the default number of characters per chunk.
const DefaultChunkSize = domain.DefaultChunkSize

// DefaultChunkOverlap is the default number of overlapping characters.
const DefaultChunkOverlap = domain.DefaultChunkOverlap

// Processor splits document content into chunks of at most chunkSize
// characters. Lengths are counted in runes.
type Processor struct {
	chunkSize  int
	overlap    int
	separators [][]rune
	hardCut    bool
}

// Option configures the chunker processor.
type Option func(*Processor)

// WithChunkSize sets the chunk size in characters.
func WithChunkSize(size int) Option {
	return func(p *Processor) {
		p.chunkSize = size
	}
}

// WithOverlap sets the overlap between chunks in characters.
func WithOverlap(overlap int) Option {
	return func(p *Processor) {
		p.overlap = overlap
	}
}

// WithSeparators sets the ordered boundary list, coarsest first.
// Including "" allows hard cuts at the chunk size; without it a token
// longer than the chunk size becomes its own oversized chunk.
func WithSeparators(separators ...string) Option {
	return func(p *Processor) {
		p.setSeparators(separators)
	}
}

// New creates a new chunker processor with the given options.
// It fails with a *domain.ConfigError when the sizes are inconsistent.
func New(opts ...Option) (*Processor, error) {
	p := &Processor{
		chunkSize: DefaultChunkSize,
		overlap:   DefaultChunkOverlap,
	}
	p.setSeparators(domain.DefaultSeparators())

	for _, opt := range opts {
		opt(p)
	}

	switch {
	case p.chunkSize <= 0:
		return nil, &domain.ConfigError{Field: "chunk_size", Reason: "must be positive"}
	case p.overlap < 0:
		return nil, &domain.ConfigError{Field: "chunk_overlap", Reason: "must not be negative"}
	case p.overlap >= p.chunkSize:
		return nil, &domain.ConfigError{Field: "chunk_overlap", Reason: "must be smaller than chunk_size"}
	}

	return p, nil
}

// FromSettings creates a processor from index settings.
func FromSettings(s domain.IndexSettings) (*Processor, error) {
	opts := []Option{WithChunkSize(s.ChunkSize), WithOverlap(s.ChunkOverlap)}
	if len(s.Separators) > 0 {
		opts = append(opts, WithSeparators(s.Separators...))
	}
	return New(opts...)
}

func (p *Processor) setSeparators(separators []string) {
	p.separators = p.separators[:0]
	p.hardCut = false
	for _, sep := range separators {
		if sep == "" {
			p.hardCut = true
			continue
		}
		p.separators = append(p.separators, []rune(sep))
	}
}

// Name returns the processor name.
func (p *Processor) Name() string {
	return "chunker"
}

// ChunkSize returns the configured chunk size.
func (p *Processor) ChunkSize() int {
	return p.chunkSize
}

// Overlap returns the configured overlap.
func (p *Processor) Overlap() int {
	return p.overlap
}

// Split returns all chunks of doc.
func (p *Processor) Split(doc domain.Document) []domain.Chunk {
	return slices.Collect(p.Chunks(doc))
}

// Chunks returns a lazy sequence over the chunks of doc. The sequence can be
// ranged over any number of times and always yields the same chunks.
//
// Invalid UTF-8 in the content is replaced with U+FFFD before splitting.
func (p *Processor) Chunks(doc domain.Document) iter.Seq[domain.Chunk] {
	return func(yield func(domain.Chunk) bool) {
		text := []rune(strings.ToValidUTF8(doc.Content, "\uFFFD"))
		n := len(text)

		start, prevEnd := 0, 0
		for position := 0; prevEnd < n; position++ {
			from, end := p.window(text, start, prevEnd)

			chunk := domain.Chunk{
				DocumentID: doc.ID,
				Content:    string(text[from:end]),
				Position:   position,
				Offset:     from,
				Overlap:    prevEnd - from,
				Metadata:   domain.CopyMetadata(doc.Metadata),
			}
			if !yield(chunk) {
				return
			}

			prevEnd = end
			start = max(end-p.overlap, from)
		}
	}
}

// window returns the bounds of the chunk that starts at or after start and
// ends strictly past prevEnd.
func (p *Processor) window(text []rune, start, prevEnd int) (int, int) {
	n := len(text)

	if start+p.chunkSize >= n {
		return start, n
	}
	if end, ok := p.boundary(text, start, start+p.chunkSize, prevEnd); ok {
		return start, end
	}

	// No cut fits while carrying the overlap; drop it for this chunk.
	if start < prevEnd {
		start = prevEnd
		if start+p.chunkSize >= n {
			return start, n
		}
		if end, ok := p.boundary(text, start, start+p.chunkSize, prevEnd); ok {
			return start, end
		}
	}

	// A single token longer than the chunk size.
	return start, p.tokenEnd(text, start)
}

// boundary finds the cut for the window [start, limit) using the coarsest
// separator that has an occurrence ending after minCut. The separator is
// kept at the end of the chunk.
func (p *Processor) boundary(text []rune, start, limit, minCut int) (int, bool) {
	for _, sep := range p.separators {
		if end, ok := lastCut(text, sep, start, limit); ok && end > minCut {
			return end, true
		}
	}
	if p.hardCut && limit > minCut {
		return limit, true
	}
	return 0, false
}

// tokenEnd returns the position after the first separator at or after
// start, or the end of text.
func (p *Processor) tokenEnd(text []rune, start int) int {
	best := len(text)
	for _, sep := range p.separators {
		for i := start; i+len(sep) <= len(text) && i < best; i++ {
			if hasPrefixAt(text, sep, i) {
				best = min(best, i+len(sep))
				break
			}
		}
	}
	return best
}

// lastCut returns the end of the last occurrence of sep within [start, limit).
func lastCut(text, sep []rune, start, limit int) (int, bool) {
	for i := limit - len(sep); i >= start; i-- {
		if hasPrefixAt(text, sep, i) {
			return i + len(sep), true
		}
	}
	return 0, false
}

func hasPrefixAt(text, sep []rune, i int) bool {
	if i < 0 || i+len(sep) > len(text) {
		return false
	}
	for j, r := range sep {
		if text[i+j] != r {
			return false
		}
	}
	return true
}

// Reconstruct joins chunks back into the original content by dropping each
// chunk's overlap.
func Reconstruct(chunks []domain.Chunk) string {
	var b strings.Builder
	for _, c := range chunks {
		runes := []rune(c.Content)
		b.WriteString(string(runes[min(c.Overlap, len(runes)):]))
	}
	return b.String()
}
