// Package huggingface provides an embedding service adapter for the
// Hugging Face Inference API and for self-hosted Text Embeddings
// Inference (TEI) servers. Base URLs on huggingface.co use the hosted
// feature-extraction pipeline; any other base URL is treated as TEI.
package huggingface

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/custodia-labs/ragbot/internal/adapters/driven/embedding"
	"github.com/custodia-labs/ragbot/internal/adapters/driven/httperr"
	"github.com/custodia-labs/ragbot/internal/core/domain"
	"github.com/custodia-labs/ragbot/internal/core/ports/driven"
)

// Ensure EmbeddingService implements the interface.
var _ driven.EmbeddingService = (*EmbeddingService)(nil)

const providerName = "huggingface"

// Default configuration values.
const (
	DefaultBaseURL    = "https://api-inference.huggingface.co"
	DefaultModel      = "sentence-transformers/all-MiniLM-L6-v2"
	DefaultTimeout    = 60 * time.Second
	DefaultDimensions = 384 // all-MiniLM-L6-v2
)

// Config holds configuration for the Hugging Face embedding service.
type Config struct {
	// BaseURL is the hosted API or a TEI server (default: hosted API).
	BaseURL string

	// APIKey is the access token. TEI servers usually run without one.
	APIKey string

	// Model is the hosted model id. TEI serves a single model and ignores it.
	Model string

	// Timeout is the request timeout (default: 60s).
	Timeout time.Duration

	// Dimensions is the embedding vector size (model-dependent).
	Dimensions int

	// HTTPClient overrides the default client.
	HTTPClient *http.Client
}

// EmbeddingService generates embeddings with Hugging Face.
type EmbeddingService struct {
	client     *http.Client
	baseURL    string
	apiKey     string
	model      string
	dimensions int
	hosted     bool
}

// hostedRequest is the feature-extraction pipeline request format.
type hostedRequest struct {
	Inputs  []string      `json:"inputs"`
	Options hostedOptions `json:"options"`
}

type hostedOptions struct {
	WaitForModel bool `json:"wait_for_model"`
}

// teiRequest is the TEI /embed request format. Normalisation is left to
// the embedding.normalize setting.
type teiRequest struct {
	Inputs    []string `json:"inputs"`
	Truncate  bool     `json:"truncate"`
	Normalize bool     `json:"normalize"`
}

// NewEmbeddingService creates a new Hugging Face embedding service.
func NewEmbeddingService(cfg Config) *EmbeddingService {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Dimensions == 0 {
		cfg.Dimensions = DefaultDimensions
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}

	return &EmbeddingService{
		client:     client,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		hosted:     isHosted(cfg.BaseURL),
	}
}

func isHosted(baseURL string) bool {
	u, err := url.Parse(baseURL)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	return host == "huggingface.co" || strings.HasSuffix(host, ".huggingface.co")
}

// Embed generates a vector embedding for the given text.
func (s *EmbeddingService) Embed(ctx context.Context, text string) ([]float32, error) {
	vs, err := s.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vs[0], nil
}

// EmbedBatch embeds texts in one request.
func (s *EmbeddingService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if err := embedding.CheckTexts(s.model, texts); err != nil {
		return nil, err
	}

	vs, err := s.embed(ctx, texts)
	if err != nil {
		return nil, &domain.EmbeddingError{Model: s.model, Err: err}
	}
	return vs, nil
}

func (s *EmbeddingService) embed(ctx context.Context, texts []string) ([][]float32, error) {
	var (
		endpoint string
		body     any
	)
	if s.hosted {
		endpoint = s.baseURL + "/pipeline/feature-extraction/" + s.model
		body = hostedRequest{Inputs: texts, Options: hostedOptions{WaitForModel: true}}
	} else {
		endpoint = s.baseURL + "/embed"
		body = teiRequest{Inputs: texts, Truncate: true}
	}

	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	s.authorize(req)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, httperr.FromResponse(providerName, resp)
	}

	// Both APIs answer with one vector per input.
	var vectors [][]float64
	if err := json.NewDecoder(resp.Body).Decode(&vectors); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(vectors))
	}

	out := make([][]float32, len(texts))
	for i, v := range vectors {
		out[i] = embedding.ToFloat32(v)
	}
	return out, nil
}

func (s *EmbeddingService) authorize(req *http.Request) {
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}
}

// Dimensions returns the embedding vector size.
func (s *EmbeddingService) Dimensions() int {
	return s.dimensions
}

// ModelName returns the name of the embedding model being used.
func (s *EmbeddingService) ModelName() string {
	return s.model
}

// Ping checks TEI's /health endpoint. The hosted API has no health
// endpoint, so a one word request is embedded instead.
func (s *EmbeddingService) Ping(ctx context.Context) error {
	if s.hosted {
		if _, err := s.embed(ctx, []string{"ping"}); err != nil {
			return fmt.Errorf("huggingface: ping failed: %w", err)
		}
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/health", http.NoBody)
	if err != nil {
		return fmt.Errorf("huggingface: failed to create ping request: %w", err)
	}
	s.authorize(req)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("huggingface: ping failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return httperr.FromResponse(providerName, resp)
	}
	return nil
}

// Close releases resources.
func (s *EmbeddingService) Close() error {
	return nil
}
