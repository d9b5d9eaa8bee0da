package ai

import (
	"context"
	"errors"
	"fmt"

	"github.com/custodia-labs/ragbot/internal/core/domain"
)

// CheckResult reports whether one configured component is usable.
type CheckResult struct {
	Component string
	Target    string
	Detail    string
	Err       error
}

// OK reports whether the check passed.
func (r CheckResult) OK() bool {
	return r.Err == nil
}

// Check builds every component from settings and pings it. It never stops
// at the first failure so the caller can report all of them.
func Check(ctx context.Context, s domain.Settings) []CheckResult {
	return []CheckResult{
		checkEmbedding(ctx, s.Embedding),
		checkLLM(ctx, s.LLM),
		checkVectorIndex(ctx, s.VectorDB, s.Index.CollectionName),
	}
}

func checkEmbedding(ctx context.Context, s domain.EmbeddingSettings) CheckResult {
	r := CheckResult{Component: "embedding", Target: fmt.Sprintf("%s/%s", s.Provider, s.Model)}
	svc, err := CreateAndValidateEmbeddingService(ctx, s)
	if err != nil {
		r.Err = err
		return r
	}
	defer svc.Close()
	r.Detail = fmt.Sprintf("%d dimensions", svc.Dimensions())
	return r
}

func checkLLM(ctx context.Context, s domain.LLMSettings) CheckResult {
	r := CheckResult{Component: "llm", Target: fmt.Sprintf("%s/%s", s.Provider, s.Model)}
	svc, err := CreateLLMService(s, nil)
	if err != nil {
		r.Err = err
		return r
	}
	defer svc.Close()

	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := svc.Ping(ctx); err != nil {
		r.Err = fmt.Errorf("%w: %s unreachable: %w", domain.ErrLLMUnavailable, s.Provider, err)
	}
	return r
}

func checkVectorIndex(ctx context.Context, s domain.VectorDBSettings, collection string) CheckResult {
	r := CheckResult{Component: "vector_db", Target: s.URL}
	idx, err := CreateVectorIndex(s)
	if err != nil {
		r.Err = err
		return r
	}
	defer idx.Close()

	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	n, err := idx.Count(ctx, collection)
	switch {
	case errors.Is(err, domain.ErrCollectionNotFound):
		r.Detail = fmt.Sprintf("collection %q not created yet", collection)
	case err != nil:
		r.Err = err
	default:
		r.Detail = fmt.Sprintf("collection %q holds %d records", collection, n)
	}
	return r
}
