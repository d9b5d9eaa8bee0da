package hashing

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/ragbot/internal/core/domain"
	"github.com/custodia-labs/ragbot/internal/core/ports/driven"
)

func cosine(a, b []float32) float64 {
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}

func TestNewEmbeddingService(t *testing.T) {
	svc := NewEmbeddingService(0)
	assert.Equal(t, DefaultDimensions, svc.Dimensions())
	assert.Equal(t, "hashing-384", svc.ModelName())

	assert.Equal(t, "hashing-768", NewEmbeddingService(768).ModelName())
}

func TestEmbed_DeterministicUnitVectors(t *testing.T) {
	svc := NewEmbeddingService(128)
	ctx := context.Background()

	a, err := svc.Embed(ctx, "The quick brown fox")
	require.NoError(t, err)
	b, err := svc.Embed(ctx, "the QUICK brown fox")
	require.NoError(t, err)

	assert.Len(t, a, 128)
	assert.Equal(t, a, b)

	var norm float64
	for _, x := range a {
		norm += float64(x) * float64(x)
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-5)
}

func TestEmbed_SimilarTextsScoreHigher(t *testing.T) {
	svc := NewEmbeddingService(DefaultDimensions)
	ctx := context.Background()

	query, _ := svc.Embed(ctx, "how do I reset my password")
	related, _ := svc.Embed(ctx, "To reset your password, open settings and choose reset password.")
	unrelated, _ := svc.Embed(ctx, "Quarterly revenue grew in the northern region.")

	assert.Greater(t, cosine(query, related), cosine(query, unrelated))
}

func TestEmbed_EmptyText(t *testing.T) {
	_, err := NewEmbeddingService(16).Embed(context.Background(), "   ")
	assert.ErrorIs(t, err, domain.ErrEmbedding)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestEmbedBatch(t *testing.T) {
	svc := NewEmbeddingService(32)
	ctx := context.Background()

	vs, err := svc.EmbedBatch(ctx, []string{"alpha", "beta"})
	require.NoError(t, err)
	require.Len(t, vs, 2)

	single, _ := svc.Embed(ctx, "beta")
	assert.Equal(t, single, vs[1])

	_, err = svc.EmbedBatch(ctx, []string{"ok", ""})
	assert.ErrorIs(t, err, domain.ErrEmbedding)
}

func TestEmbedBatch_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewEmbeddingService(8).EmbedBatch(ctx, []string{"a"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPingAndClose(t *testing.T) {
	svc := NewEmbeddingService(8)
	assert.NoError(t, svc.Ping(context.Background()))
	assert.NoError(t, svc.Close())
}

func TestInterfaceCompliance(t *testing.T) {
	var _ driven.EmbeddingService = (*EmbeddingService)(nil)
}
