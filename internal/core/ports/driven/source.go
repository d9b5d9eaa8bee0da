package driven

import (
	"context"

	"github.com/custodia-labs/ragbot/internal/core/domain"
)

// DocumentSource discovers and reads source files.
type DocumentSource interface {
	// List returns the files under root in lexical order. A file root is
	// returned as is; a directory root is filtered by extension.
	List(ctx context.Context, root string) ([]domain.SourceFile, error)

	// Read returns the raw bytes of a file with its detected MIME type.
	Read(ctx context.Context, file domain.SourceFile) (*domain.RawDocument, error)
}

// ChangeWatcher reports changes below a root path.
type ChangeWatcher interface {
	// Watch emits the set of changed paths after each quiet period until
	// ctx is cancelled, then closes the channel.
	Watch(ctx context.Context, root string) (<-chan []string, error)
}
