// Package embedding holds helpers shared by the embedding adapters.
package embedding

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/custodia-labs/ragbot/internal/core/domain"
	"github.com/custodia-labs/ragbot/internal/core/ports/driven"
)

// CheckTexts rejects empty inputs before they reach a provider.
func CheckTexts(model string, texts []string) error {
	for i, t := range texts {
		if strings.TrimSpace(t) == "" {
			return &domain.EmbeddingError{Model: model, Err: fmt.Errorf("%w: text %d is empty", domain.ErrInvalidInput, i)}
		}
	}
	return nil
}

// L2Normalize scales v in place to unit length. Zero vectors are left as is.
func L2Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	inv := float32(1 / math.Sqrt(sum))
	for i := range v {
		v[i] *= inv
	}
	return v
}

// Ensure Normalized implements the interface.
var _ driven.EmbeddingService = (*Normalized)(nil)

// Normalized wraps an embedding service and L2-normalises its output.
type Normalized struct {
	driven.EmbeddingService
}

// NewNormalized wraps svc.
func NewNormalized(svc driven.EmbeddingService) *Normalized {
	return &Normalized{EmbeddingService: svc}
}

// Embed embeds text and normalises the vector.
func (n *Normalized) Embed(ctx context.Context, text string) ([]float32, error) {
	v, err := n.EmbeddingService.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	return L2Normalize(v), nil
}

// EmbedBatch embeds texts and normalises every vector.
func (n *Normalized) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vs, err := n.EmbeddingService.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, err
	}
	for _, v := range vs {
		L2Normalize(v)
	}
	return vs, nil
}

// ToFloat32 converts a float64 vector.
func ToFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(x)
	}
	return out
}
