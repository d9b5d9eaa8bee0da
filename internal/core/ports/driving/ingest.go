package driving

import (
	"context"

	"github.com/custodia-labs/ragbot/internal/core/domain"
)

// IngestService runs the offline indexing pipeline.
type IngestService interface {
	// Ingest loads, chunks, embeds and upserts everything under path.
	// Per-file failures are reported, not returned.
	Ingest(ctx context.Context, path string) (*domain.IngestReport, error)
}
