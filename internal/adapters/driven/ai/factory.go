// Package ai provides factory functions for creating the driven adapters
// from settings.
package ai

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/custodia-labs/ragbot/internal/adapters/driven/config/file"
	"github.com/custodia-labs/ragbot/internal/adapters/driven/embedding"
	"github.com/custodia-labs/ragbot/internal/adapters/driven/embedding/hashing"
	"github.com/custodia-labs/ragbot/internal/adapters/driven/embedding/huggingface"
	ollamaembed "github.com/custodia-labs/ragbot/internal/adapters/driven/embedding/ollama"
	openaiembed "github.com/custodia-labs/ragbot/internal/adapters/driven/embedding/openai"
	anthropicllm "github.com/custodia-labs/ragbot/internal/adapters/driven/llm/anthropic"
	ollamallm "github.com/custodia-labs/ragbot/internal/adapters/driven/llm/ollama"
	openaillm "github.com/custodia-labs/ragbot/internal/adapters/driven/llm/openai"
	"github.com/custodia-labs/ragbot/internal/adapters/driven/llm/resilient"
	"github.com/custodia-labs/ragbot/internal/adapters/driven/storage/chromem"
	"github.com/custodia-labs/ragbot/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/ragbot/internal/adapters/driven/storage/qdrant"
	"github.com/custodia-labs/ragbot/internal/adapters/driven/storage/sqlite"
	"github.com/custodia-labs/ragbot/internal/core/domain"
	"github.com/custodia-labs/ragbot/internal/core/ports/driven"
)

// pingTimeout is the maximum time to wait for service connectivity validation.
const pingTimeout = 5 * time.Second

// Stack holds the adapters a command works with. Unused members stay nil.
type Stack struct {
	Embedder driven.EmbeddingService
	LLM      driven.LLMService
	Index    driven.VectorIndex
	Manifest driven.ManifestStore
	Prompts  driven.PromptStore
}

// Close releases all resources held by the stack.
func (s *Stack) Close() {
	if s.Embedder != nil {
		s.Embedder.Close()
	}
	if s.LLM != nil {
		s.LLM.Close()
	}
	if s.Index != nil {
		s.Index.Close()
	}
	if s.Manifest != nil {
		s.Manifest.Close()
	}
}

// CreateAndValidateEmbeddingService creates an embedding service and validates connectivity.
func CreateAndValidateEmbeddingService(ctx context.Context, settings domain.EmbeddingSettings) (driven.EmbeddingService, error) {
	svc, err := CreateEmbeddingService(settings)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := svc.Ping(ctx); err != nil {
		svc.Close()
		return nil, fmt.Errorf("%w: %s unreachable: %w", domain.ErrEmbeddingUnavailable, settings.Provider, err)
	}
	return svc, nil
}

// Fingerprint returns the fingerprint of records written by embedder. The
// model and dimensions come from the service, so a provider default that
// settings leave unset is still recorded.
func Fingerprint(settings domain.EmbeddingSettings, embedder driven.EmbeddingService) string {
	fp := settings.Fingerprint()
	fp.Model = embedder.ModelName()
	fp.Dimensions = embedder.Dimensions()
	return fp.String()
}

// CreateEmbeddingService creates the embedding service selected by settings.
// With Normalize set every vector is L2-normalised.
func CreateEmbeddingService(settings domain.EmbeddingSettings) (driven.EmbeddingService, error) {
	var (
		svc driven.EmbeddingService
		err error
	)

	switch settings.Provider {
	case domain.AIProviderOllama:
		svc = createOllamaEmbedding(settings)

	case domain.AIProviderOpenAI, domain.AIProviderGemini:
		svc, err = createOpenAIEmbedding(settings)

	case domain.AIProviderHuggingFace:
		svc = createHuggingFaceEmbedding(settings)

	case domain.AIProviderHashing:
		svc = hashing.NewEmbeddingService(settings.ResolvedDimensions())

	case domain.AIProviderAnthropic:
		// Anthropic does not support embeddings.
		return nil, &domain.ConfigError{Field: "embedding.provider", Reason: "anthropic does not support embeddings"}

	default:
		return nil, &domain.ConfigError{Field: "embedding.provider", Reason: "unsupported: " + settings.Provider.String()}
	}
	if err != nil {
		return nil, err
	}

	if settings.Normalize {
		return embedding.NewNormalized(svc), nil
	}
	return svc, nil
}

// CreateLLMService creates the LLM selected by settings, wrapped with the
// retry, timeout and rate-limit policy. observer may be nil.
func CreateLLMService(settings domain.LLMSettings, observer resilient.Observer) (driven.LLMService, error) {
	var (
		svc driven.LLMService
		err error
	)

	switch settings.Provider {
	case domain.AIProviderOllama:
		svc = ollamallm.NewLLMService(ollamallm.LLMConfig{
			BaseURL: settings.BaseURL,
			Model:   settings.Model,
		})

	case domain.AIProviderOpenAI, domain.AIProviderGemini:
		svc, err = createOpenAILLM(settings)

	case domain.AIProviderAnthropic:
		svc, err = anthropicllm.NewLLMService(anthropicllm.Config{
			APIKey:  settings.APIKey,
			BaseURL: settings.BaseURL,
			Model:   settings.Model,
		})

	default:
		return nil, &domain.ConfigError{Field: "llm.provider", Reason: "unsupported: " + settings.Provider.String()}
	}
	if err != nil {
		return nil, err
	}

	return resilient.New(svc, resilient.Config{
		Timeout:           settings.Timeout,
		MaxRetries:        settings.MaxRetries,
		RequestsPerSecond: settings.RequestsPerSecond,
		Observer:          observer,
	}), nil
}

// CreateVectorIndex opens the vector store addressed by the URL scheme:
// http(s) for Qdrant, chromem:// or file:// for the embedded store and
// memory:// for a process-local index.
func CreateVectorIndex(settings domain.VectorDBSettings) (driven.VectorIndex, error) {
	u, err := url.Parse(settings.URL)
	if err != nil {
		return nil, &domain.ConfigError{Field: "vector_db.url", Reason: err.Error()}
	}

	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		idx, err := qdrant.New(qdrant.Config{URL: settings.URL, APIKey: settings.APIKey})
		if err != nil {
			return nil, err
		}
		return idx, nil

	case "chromem", "file":
		dir, err := chromem.PathFromURL(settings.URL)
		if err != nil {
			return nil, err
		}
		idx, err := chromem.New(dir)
		if err != nil {
			return nil, err
		}
		return idx, nil

	case "memory":
		return memory.NewVectorIndex(), nil

	default:
		return nil, &domain.ConfigError{Field: "vector_db.url", Reason: fmt.Sprintf("unsupported scheme %q", u.Scheme)}
	}
}

// CreateManifestStore opens the SQLite manifest under stateDir. An empty
// stateDir keeps the manifest in memory, so every run re-indexes.
func CreateManifestStore(stateDir string) (driven.ManifestStore, error) {
	if stateDir == "" {
		return memory.NewManifestStore(), nil
	}
	store, err := sqlite.NewStore(stateDir)
	if err != nil {
		return nil, err
	}
	return store, nil
}

// CreatePromptStore opens the prompt directory.
func CreatePromptStore(promptsDir string) (driven.PromptStore, error) {
	store, err := file.NewPromptStore(promptsDir)
	if err != nil {
		return nil, err
	}
	return store, nil
}

// createOllamaEmbedding creates an Ollama embedding service.
func createOllamaEmbedding(settings domain.EmbeddingSettings) driven.EmbeddingService {
	dimensions := settings.ResolvedDimensions()
	if dimensions == 0 {
		dimensions = ollamaembed.DefaultDimensions
	}

	return ollamaembed.NewEmbeddingService(ollamaembed.Config{
		BaseURL:    settings.BaseURL,
		Model:      settings.Model,
		Dimensions: dimensions,
	})
}

// createHuggingFaceEmbedding creates a Hugging Face or TEI embedding service.
func createHuggingFaceEmbedding(settings domain.EmbeddingSettings) driven.EmbeddingService {
	return huggingface.NewEmbeddingService(huggingface.Config{
		BaseURL:    settings.BaseURL,
		APIKey:     settings.APIKey,
		Model:      settings.Model,
		Dimensions: settings.ResolvedDimensions(),
	})
}

// createOpenAIEmbedding creates an OpenAI or Gemini embedding service.
func createOpenAIEmbedding(settings domain.EmbeddingSettings) (driven.EmbeddingService, error) {
	baseURL := settings.BaseURL
	if baseURL == "" && settings.Provider == domain.AIProviderGemini {
		baseURL = openaiembed.GeminiBaseURL
	}

	return openaiembed.NewEmbeddingService(openaiembed.Config{
		APIKey:     settings.APIKey,
		BaseURL:    baseURL,
		Model:      settings.Model,
		Provider:   settings.Provider.String(),
		Dimensions: settings.Dimensions,
	})
}

// createOpenAILLM creates an OpenAI or Gemini LLM service.
func createOpenAILLM(settings domain.LLMSettings) (driven.LLMService, error) {
	baseURL := settings.BaseURL
	if baseURL == "" && settings.Provider == domain.AIProviderGemini {
		baseURL = openaillm.GeminiBaseURL
	}

	return openaillm.NewLLMService(openaillm.Config{
		APIKey:   settings.APIKey,
		BaseURL:  baseURL,
		Model:    settings.Model,
		Provider: settings.Provider.String(),
	})
}
