// Package hashing provides an offline embedding service based on feature
// hashing. It needs no model or network and is deterministic, which makes
// it suitable for tests and air-gapped installs. Retrieval quality is
// lexical rather than semantic.
package hashing

import (
	"context"
	"hash/fnv"
	"regexp"
	"strconv"
	"strings"

	"github.com/custodia-labs/ragbot/internal/adapters/driven/embedding"
	"github.com/custodia-labs/ragbot/internal/core/domain"
	"github.com/custodia-labs/ragbot/internal/core/ports/driven"
)

// Ensure EmbeddingService implements the interface.
var _ driven.EmbeddingService = (*EmbeddingService)(nil)

// DefaultDimensions is the default vector size.
const DefaultDimensions = 384

// tokenPattern matches words, including digits and apostrophes.
var tokenPattern = regexp.MustCompile(`[\p{L}\p{N}]+(?:'[\p{L}]+)?`)

// EmbeddingService hashes unigrams and bigrams into a fixed-size vector.
type EmbeddingService struct {
	dimensions int
	model      string
}

// NewEmbeddingService creates a hashing embedder with the given size.
func NewEmbeddingService(dimensions int) *EmbeddingService {
	if dimensions <= 0 {
		dimensions = DefaultDimensions
	}
	return &EmbeddingService{
		dimensions: dimensions,
		model:      "hashing-" + strconv.Itoa(dimensions),
	}
}

// Embed returns the unit-length hashed feature vector of text.
func (s *EmbeddingService) Embed(_ context.Context, text string) ([]float32, error) {
	if err := embedding.CheckTexts(s.model, []string{text}); err != nil {
		return nil, err
	}
	return s.vector(text), nil
}

// EmbedBatch embeds each text.
func (s *EmbeddingService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := embedding.CheckTexts(s.model, texts); err != nil {
		return nil, err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if err := ctx.Err(); err != nil {
			return nil, &domain.EmbeddingError{Model: s.model, Err: err}
		}
		out[i] = s.vector(t)
	}
	return out, nil
}

func (s *EmbeddingService) vector(text string) []float32 {
	v := make([]float32, s.dimensions)
	tokens := tokenPattern.FindAllString(strings.ToLower(text), -1)
	for i, tok := range tokens {
		s.add(v, tok, 1)
		if i > 0 {
			s.add(v, tokens[i-1]+" "+tok, 0.5)
		}
	}
	return embedding.L2Normalize(v)
}

// add hashes a feature into a bucket with a hash-derived sign.
func (s *EmbeddingService) add(v []float32, feature string, weight float32) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(feature))
	sum := h.Sum64()
	idx := int(sum % uint64(s.dimensions))
	if sum>>63 == 1 {
		weight = -weight
	}
	v[idx] += weight
}

// Dimensions returns the embedding vector size.
func (s *EmbeddingService) Dimensions() int {
	return s.dimensions
}

// ModelName returns the synthetic model name, e.g. "hashing-384".
func (s *EmbeddingService) ModelName() string {
	return s.model
}

// Ping always succeeds.
func (s *EmbeddingService) Ping(context.Context) error {
	return nil
}

// Close releases resources.
func (s *EmbeddingService) Close() error {
	return nil
}
