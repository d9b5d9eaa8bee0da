// Package openai provides an LLM service adapter for the OpenAI chat
// completions API and compatible endpoints such as Gemini.
package openai

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/custodia-labs/ragbot/internal/adapters/driven/httperr"
	"github.com/custodia-labs/ragbot/internal/core/domain"
	"github.com/custodia-labs/ragbot/internal/core/ports/driven"
)

// Ensure LLMService implements the interface.
var _ driven.LLMService = (*LLMService)(nil)

// Default configuration values.
const (
	DefaultBaseURL  = "https://api.openai.com/v1"
	DefaultModel    = "gpt-4o-mini"
	DefaultTimeout  = 120 * time.Second
	DefaultProvider = "openai"

	// GeminiBaseURL is Gemini's OpenAI-compatible endpoint.
	GeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta/openai"
)

// Config holds configuration for the OpenAI LLM service.
type Config struct {
	// APIKey is the API key (required).
	APIKey string

	// BaseURL is the API base URL (default: https://api.openai.com/v1).
	BaseURL string

	// Model is the LLM model to use (default: gpt-4o-mini).
	Model string

	// Provider names the backend in errors (default: openai).
	Provider string

	// Timeout is the request timeout (default: 120s).
	Timeout time.Duration

	// HTTPClient overrides the default client.
	HTTPClient *http.Client
}

// LLMService provides LLM operations using the chat completions API.
type LLMService struct {
	client   *openai.Client
	provider string
	model    string
}

// NewLLMService creates a new OpenAI LLM service.
func NewLLMService(cfg Config) (*LLMService, error) {
	if cfg.Provider == "" {
		cfg.Provider = DefaultProvider
	}
	if cfg.APIKey == "" {
		return nil, &domain.ConfigError{Field: "llm.api_key", Reason: "required for " + cfg.Provider}
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

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.HTTPClient != nil {
		clientCfg.HTTPClient = cfg.HTTPClient
	} else {
		clientCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}

	return &LLMService{
		client:   openai.NewClientWithConfig(clientCfg),
		provider: cfg.Provider,
		model:    cfg.Model,
	}, nil
}

// Generate sends the prompt as a single user message.
func (s *LLMService) Generate(ctx context.Context, prompt string, opts driven.GenerateOptions) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: s.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens:   opts.MaxTokens,
		Temperature: temperature(opts.Temperature),
	}

	resp, err := s.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", httperr.FromOpenAI(s.provider, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%s: no choices returned", s.provider)
	}

	content := resp.Choices[0].Message.Content
	if content == "" {
		return "", errors.New(s.provider + ": empty response content")
	}
	return content, nil
}

// temperature converts t for the wire. The request field is omitted when
// zero, so zero is sent as the smallest positive value instead.
func temperature(t float64) float32 {
	if t <= 0 {
		return math.SmallestNonzeroFloat32
	}
	return float32(t)
}

// ModelName returns the name of the LLM model being used.
func (s *LLMService) ModelName() string {
	return s.model
}

// Ping validates the API key by listing models.
func (s *LLMService) Ping(ctx context.Context) error {
	if _, err := s.client.ListModels(ctx); err != nil {
		return fmt.Errorf("%s: ping failed: %w", s.provider, httperr.FromOpenAI(s.provider, err))
	}
	return nil
}

// Close releases resources.
func (s *LLMService) Close() error {
	return nil
}
