package driven

import (
	"iter"

	"github.com/custodia-labs/ragbot/internal/core/domain"
)

// Chunker splits document content into overlapping chunks.
type Chunker interface {
	// Name returns the chunker name for logging.
	Name() string

	// Chunks returns a lazy, restartable sequence over the chunks of doc.
	Chunks(doc domain.Document) iter.Seq[domain.Chunk]
}
