// Package openai provides an embedding service adapter for the OpenAI API
// and OpenAI-compatible endpoints such as Gemini.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/custodia-labs/ragbot/internal/adapters/driven/embedding"
	"github.com/custodia-labs/ragbot/internal/adapters/driven/httperr"
	"github.com/custodia-labs/ragbot/internal/core/domain"
	"github.com/custodia-labs/ragbot/internal/core/ports/driven"
)

// Ensure EmbeddingService implements the interface.
var _ driven.EmbeddingService = (*EmbeddingService)(nil)

// Default configuration values.
const (
	DefaultBaseURL  = "https://api.openai.com/v1"
	DefaultModel    = "text-embedding-3-small"
	DefaultTimeout  = 60 * time.Second
	DefaultProvider = "openai"

	// GeminiBaseURL is Gemini's OpenAI-compatible endpoint.
	GeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta/openai"
)

// Config holds configuration for the OpenAI embedding service.
type Config struct {
	// APIKey is the API key (required).
	APIKey string

	// BaseURL is the API base URL (default: https://api.openai.com/v1).
	// Can be changed for Azure OpenAI or compatible APIs.
	BaseURL string

	// Model is the embedding model to use (default: text-embedding-3-small).
	Model string

	// Provider names the backend in errors (default: openai).
	Provider string

	// Timeout is the request timeout (default: 60s).
	Timeout time.Duration

	// Dimensions overrides the default dimension for the model.
	// Only applicable to text-embedding-3-* models.
	Dimensions int

	// HTTPClient overrides the default client.
	HTTPClient *http.Client
}

// EmbeddingService generates embeddings using the OpenAI API.
type EmbeddingService struct {
	client     *openai.Client
	provider   string
	model      string
	dimensions int
	// explicit is set when Dimensions was configured and must be sent.
	explicit bool
}

// NewEmbeddingService creates a new OpenAI embedding service.
func NewEmbeddingService(cfg Config) (*EmbeddingService, error) {
	if cfg.APIKey == "" {
		return nil, &domain.ConfigError{Field: "embedding.api_key", Reason: "required for " + providerName(cfg.Provider)}
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}

	dims, explicit := cfg.Dimensions, cfg.Dimensions > 0
	if !explicit {
		dims = domain.EmbeddingDimensions()[cfg.Model]
	}
	if dims == 0 {
		return nil, &domain.ConfigError{Field: "embedding.dimensions", Reason: "unknown for model " + cfg.Model}
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.HTTPClient != nil {
		clientCfg.HTTPClient = cfg.HTTPClient
	} else {
		clientCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}

	return &EmbeddingService{
		client:     openai.NewClientWithConfig(clientCfg),
		provider:   providerName(cfg.Provider),
		model:      cfg.Model,
		dimensions: dims,
		explicit:   explicit && strings.HasPrefix(cfg.Model, "text-embedding-3"),
	}, nil
}

func providerName(p string) string {
	if p == "" {
		return DefaultProvider
	}
	return p
}

// Embed generates a vector embedding for the given text.
func (s *EmbeddingService) Embed(ctx context.Context, text string) ([]float32, error) {
	vs, err := s.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vs[0], nil
}

// EmbedBatch generates embeddings for multiple texts in one request.
func (s *EmbeddingService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if err := embedding.CheckTexts(s.model, texts); err != nil {
		return nil, err
	}

	req := openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(s.model),
	}
	if s.explicit {
		req.Dimensions = s.dimensions
	}

	resp, err := s.client.CreateEmbeddings(ctx, req)
	if err != nil {
		return nil, &domain.EmbeddingError{Model: s.model, Err: httperr.FromOpenAI(s.provider, err)}
	}
	if len(resp.Data) != len(texts) {
		return nil, &domain.EmbeddingError{
			Model: s.model,
			Err:   fmt.Errorf("expected %d embeddings, got %d", len(texts), len(resp.Data)),
		}
	}

	// The API may return entries out of order.
	data := slices.Clone(resp.Data)
	slices.SortFunc(data, func(a, b openai.Embedding) int { return a.Index - b.Index })

	out := make([][]float32, len(texts))
	for i, d := range data {
		if d.Index != i {
			return nil, &domain.EmbeddingError{Model: s.model, Err: errors.New("response indices are not contiguous")}
		}
		out[i] = d.Embedding
	}
	return out, nil
}

// Dimensions returns the embedding vector size.
func (s *EmbeddingService) Dimensions() int {
	return s.dimensions
}

// ModelName returns the name of the embedding model being used.
func (s *EmbeddingService) ModelName() string {
	return s.model
}

// Ping validates the service is reachable by listing models.
func (s *EmbeddingService) Ping(ctx context.Context) error {
	if _, err := s.client.ListModels(ctx); err != nil {
		return fmt.Errorf("%s: ping failed: %w", s.provider, httperr.FromOpenAI(s.provider, err))
	}
	return nil
}

// Close releases resources.
func (s *EmbeddingService) Close() error {
	return nil
}
