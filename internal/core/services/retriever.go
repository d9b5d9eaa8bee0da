package services

import (
	"context"
	"fmt"

	"github.com/custodia-labs/ragbot/internal/core/domain"
	"github.com/custodia-labs/ragbot/internal/core/ports/driven"
	"github.com/custodia-labs/ragbot/internal/logger"
)

// Retriever finds the chunks most similar to a question.
type Retriever struct {
	embedder    driven.EmbeddingService
	index       driven.VectorIndex
	collection  string
	fingerprint string
	defaultK    int
}

// NewRetriever creates a retriever over one collection. Queries carry
// fingerprint so vectors from another embedding configuration are
// rejected. A defaultK of zero or less uses domain.DefaultRetrievalK.
func NewRetriever(
	embedder driven.EmbeddingService,
	index driven.VectorIndex,
	collection, fingerprint string,
	defaultK int,
) *Retriever {
	if defaultK <= 0 {
		defaultK = domain.DefaultRetrievalK
	}
	return &Retriever{
		embedder:    embedder,
		index:       index,
		collection:  collection,
		fingerprint: fingerprint,
		defaultK:    defaultK,
	}
}

// Retrieve returns at most k chunks for question, most similar first.
// k <= 0 uses the default.
func (r *Retriever) Retrieve(ctx context.Context, question string, k int) ([]domain.RetrievedChunk, error) {
	return r.RetrieveWhere(ctx, question, k, nil)
}

// RetrieveWhere is Retrieve restricted to records matching filter.
func (r *Retriever) RetrieveWhere(
	ctx context.Context,
	question string,
	k int,
	filter map[string]string,
) ([]domain.RetrievedChunk, error) {
	if k <= 0 {
		k = r.defaultK
	}

	vector, err := r.embedder.Embed(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("embed question: %w", err)
	}

	hits, err := r.index.Query(ctx, r.collection, domain.VectorQuery{
		Vector:      vector,
		K:           k,
		Filter:      filter,
		Fingerprint: r.fingerprint,
	})
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", r.collection, err)
	}

	chunks := make([]domain.RetrievedChunk, len(hits))
	for i, h := range hits {
		chunks[i] = domain.RetrievedChunk{
			Content:  h.Record.Text,
			Source:   h.Record.Source,
			Metadata: h.Record.Metadata,
			Score:    h.Score,
		}
	}
	logger.Debug("retrieved %d/%d chunks from %s", len(chunks), k, r.collection)
	return chunks, nil
}
