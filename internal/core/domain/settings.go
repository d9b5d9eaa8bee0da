package domain

import (
	"strings"
	"time"
)

const unknownDescription = "Unknown"

// AIProvider identifies an AI service provider for embeddings or LLM.
type AIProvider string

// Available AI providers.
const (
	// AIProviderOllama is local Ollama instance.
	AIProviderOllama AIProvider = "ollama"

	// AIProviderOpenAI is OpenAI cloud API.
	AIProviderOpenAI AIProvider = "openai"

	// AIProviderGemini is Google Gemini through its OpenAI-compatible endpoint.
	AIProviderGemini AIProvider = "gemini"

	// AIProviderAnthropic is Anthropic cloud API.
	AIProviderAnthropic AIProvider = "anthropic"

	// AIProviderHashing is the offline feature-hashing embedder.
	AIProviderHashing AIProvider = "hashing"

	// AIProviderHuggingFace is the Hugging Face Inference API or a
	// self-hosted Text Embeddings Inference server.
	AIProviderHuggingFace AIProvider = "huggingface"
)

// IsValid returns true if the AI provider is recognised.
func (p AIProvider) IsValid() bool {
	switch p {
	case AIProviderOllama, AIProviderOpenAI, AIProviderGemini, AIProviderAnthropic, AIProviderHashing,
		AIProviderHuggingFace:
		return true
	default:
		return false
	}
}

// RequiresAPIKey returns true if this provider needs an API key.
func (p AIProvider) RequiresAPIKey() bool {
	return p == AIProviderOpenAI || p == AIProviderGemini || p == AIProviderAnthropic
}

// IsLocal returns true if this provider runs locally.
func (p AIProvider) IsLocal() bool {
	return p == AIProviderOllama || p == AIProviderHashing
}

// EmbeddingOnly returns true if the provider cannot serve as the LLM.
func (p AIProvider) EmbeddingOnly() bool {
	return p == AIProviderHashing || p == AIProviderHuggingFace
}

// APIKeyEnv returns the conventional environment variable holding the
// provider's API key.
func (p AIProvider) APIKeyEnv() string {
	switch p {
	case AIProviderOpenAI:
		return "OPENAI_API_KEY"
	case AIProviderGemini:
		return "GOOGLE_API_KEY"
	case AIProviderAnthropic:
		return "ANTHROPIC_API_KEY"
	case AIProviderHuggingFace:
		return "HF_TOKEN"
	default:
		return ""
	}
}

// String returns the string representation.
func (p AIProvider) String() string {
	return string(p)
}

// Description returns a human-readable description of the provider.
func (p AIProvider) Description() string {
	switch p {
	case AIProviderOllama:
		return "Ollama (local)"
	case AIProviderOpenAI:
		return "OpenAI (cloud)"
	case AIProviderGemini:
		return "Google Gemini (cloud)"
	case AIProviderAnthropic:
		return "Anthropic (cloud)"
	case AIProviderHashing:
		return "Feature hashing (offline)"
	case AIProviderHuggingFace:
		return "Hugging Face Inference (cloud or TEI)"
	default:
		return unknownDescription
	}
}

// IndexSettings controls ingestion.
type IndexSettings struct {
	// DataPath is the file or directory to index.
	DataPath string

	// CollectionName is the vector collection both pipelines address.
	CollectionName string

	// ChunkSize is the maximum chunk length in characters.
	ChunkSize int

	// ChunkOverlap is the number of characters carried between chunks.
	ChunkOverlap int

	// Separators is the ordered boundary list, coarsest first.
	// An empty string entry enables hard cuts at ChunkSize.
	Separators []string

	// Extensions selects files when DataPath is a directory.
	Extensions []string

	// BatchSize is the number of chunks embedded and upserted together.
	BatchSize int

	// Workers bounds concurrent file loading.
	Workers int
}

// VectorDBSettings addresses the vector store.
type VectorDBSettings struct {
	// URL selects the backend by scheme: http(s) for Qdrant,
	// chromem or file for the embedded store, memory for in-process.
	URL string

	// APIKey authenticates against Qdrant Cloud.
	APIKey string
}

// EmbeddingSettings holds embedding provider configuration.
type EmbeddingSettings struct {
	// Provider is the embedding service provider.
	Provider AIProvider

	// Model is the embedding model name.
	Model string

	// BaseURL is the API endpoint.
	BaseURL string

	// APIKey is the API key (for OpenAI).
	APIKey string

	// Dimensions overrides the known dimension for Model.
	Dimensions int

	// Normalize L2-normalises every vector after embedding.
	Normalize bool
}

// IsConfigured returns true if the embedding provider is set up.
func (e EmbeddingSettings) IsConfigured() bool {
	if !e.Provider.IsValid() || e.Provider == AIProviderAnthropic {
		return false
	}
	if e.Provider.RequiresAPIKey() && e.APIKey == "" {
		return false
	}
	return true
}

// ResolvedDimensions returns Dimensions, or the known size for Model.
func (e EmbeddingSettings) ResolvedDimensions() int {
	if e.Dimensions > 0 {
		return e.Dimensions
	}
	return EmbeddingDimensions()[e.Model]
}

// Fingerprint returns the embedding fingerprint for these settings.
func (e EmbeddingSettings) Fingerprint() EmbeddingFingerprint {
	return EmbeddingFingerprint{
		Provider:   e.Provider,
		Model:      e.Model,
		Dimensions: e.ResolvedDimensions(),
		Normalize:  e.Normalize,
	}
}

// LLMSettings holds LLM provider configuration.
type LLMSettings struct {
	// Provider is the LLM service provider.
	Provider AIProvider

	// Model is the LLM model name.
	Model string

	// BaseURL is the API endpoint.
	BaseURL string

	// APIKey is the API key (for OpenAI/Gemini/Anthropic).
	APIKey string

	// Temperature controls randomness.
	Temperature float64

	// Timeout bounds each attempt.
	Timeout time.Duration

	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int

	// RequestsPerSecond rate-limits calls. Zero disables the limit.
	RequestsPerSecond float64
}

// IsConfigured returns true if the LLM provider is set up.
func (l LLMSettings) IsConfigured() bool {
	if !l.Provider.IsValid() || l.Provider.EmbeddingOnly() {
		return false
	}
	if l.Provider.RequiresAPIKey() && l.APIKey == "" {
		return false
	}
	return true
}

// ChatSettings controls the query-time loop.
type ChatSettings struct {
	// K is the number of chunks retrieved per question.
	K int

	// MaxPromptChars is the prompt budget in characters.
	MaxPromptChars int

	// MaxHistoryTurns caps the turns rendered into the prompt. Zero keeps all.
	MaxHistoryTurns int

	// ExitKeyword ends the session, compared case-insensitively.
	ExitKeyword string
}

// Settings holds all application settings.
type Settings struct {
	Index     IndexSettings
	VectorDB  VectorDBSettings
	Embedding EmbeddingSettings
	LLM       LLMSettings
	Chat      ChatSettings

	// StateDir holds the ingestion manifest. Empty disables the manifest.
	StateDir string

	// PromptsDir holds user-editable prompt templates.
	PromptsDir string
}

// Default configuration values.
const (
	DefaultDataPath        = "./data"
	DefaultCollectionName  = "my_documents"
	DefaultChunkSize       = 500
	DefaultChunkOverlap    = 50
	DefaultBatchSize       = 64
	DefaultWorkers         = 4
	DefaultVectorDBURL     = "http://localhost:6333"
	DefaultRetrievalK      = 4
	DefaultMaxPromptChars  = 24000
	DefaultExitKeyword     = "exit"
	DefaultTemperature     = 0.7
	DefaultLLMTimeout      = 60 * time.Second
	DefaultLLMMaxRetries   = 3
	DefaultLLMRateLimit    = 2.0
	DefaultEmbeddingModel  = "nomic-embed-text"
	DefaultLLMModel        = "gemini-1.5-pro"
	DefaultEmbeddingVendor = AIProviderOllama
	DefaultLLMVendor       = AIProviderGemini
)

// DefaultSeparators returns the boundary list used by the chunker,
// from paragraph breaks down to a hard character cut.
func DefaultSeparators() []string {
	return []string{"\n\n", "\n", ". ", "! ", "? ", "; ", ", ", " ", ""}
}

// DefaultExtensions returns the file extensions indexed from a directory.
func DefaultExtensions() []string {
	return []string{".txt", ".pdf", ".docx", ".doc", ".md", ".markdown", ".html", ".htm"}
}

// DefaultSettings returns settings with sensible defaults.
func DefaultSettings() Settings {
	return Settings{
		Index: IndexSettings{
			DataPath:       DefaultDataPath,
			CollectionName: DefaultCollectionName,
			ChunkSize:      DefaultChunkSize,
			ChunkOverlap:   DefaultChunkOverlap,
			Separators:     DefaultSeparators(),
			Extensions:     DefaultExtensions(),
			BatchSize:      DefaultBatchSize,
			Workers:        DefaultWorkers,
		},
		VectorDB: VectorDBSettings{
			URL: DefaultVectorDBURL,
		},
		Embedding: EmbeddingSettings{
			Provider: DefaultEmbeddingVendor,
			Model:    DefaultEmbeddingModel,
		},
		LLM: LLMSettings{
			Provider:          DefaultLLMVendor,
			Model:             DefaultLLMModel,
			Temperature:       DefaultTemperature,
			Timeout:           DefaultLLMTimeout,
			MaxRetries:        DefaultLLMMaxRetries,
			RequestsPerSecond: DefaultLLMRateLimit,
		},
		Chat: ChatSettings{
			K:              DefaultRetrievalK,
			MaxPromptChars: DefaultMaxPromptChars,
			ExitKeyword:    DefaultExitKeyword,
		},
	}
}

// Validate checks settings that would make ingestion or chat meaningless.
// It returns a *ConfigError for the first offending field.
func (s Settings) Validate() error {
	switch {
	case s.Index.ChunkSize <= 0:
		return &ConfigError{Field: "chunk_size", Reason: "must be positive"}
	case s.Index.ChunkOverlap < 0:
		return &ConfigError{Field: "chunk_overlap", Reason: "must not be negative"}
	case s.Index.ChunkOverlap >= s.Index.ChunkSize:
		return &ConfigError{Field: "chunk_overlap", Reason: "must be smaller than chunk_size"}
	case strings.TrimSpace(s.Index.CollectionName) == "":
		return &ConfigError{Field: "collection_name", Reason: "must not be empty"}
	case s.Index.BatchSize <= 0:
		return &ConfigError{Field: "batch_size", Reason: "must be positive"}
	case s.Index.Workers <= 0:
		return &ConfigError{Field: "workers", Reason: "must be positive"}
	case strings.TrimSpace(s.VectorDB.URL) == "":
		return &ConfigError{Field: "vector_db_url", Reason: "must not be empty"}
	case !s.Embedding.Provider.IsValid() || s.Embedding.Provider == AIProviderAnthropic:
		return &ConfigError{Field: "embedding_provider", Reason: "unsupported: " + s.Embedding.Provider.String()}
	case s.Embedding.Model == "":
		return &ConfigError{Field: "embedding_model", Reason: "must not be empty"}
	case s.LLM.Temperature < 0 || s.LLM.Temperature > 2:
		return &ConfigError{Field: "temperature", Reason: "must be between 0 and 2"}
	case s.LLM.MaxRetries < 0:
		return &ConfigError{Field: "llm_max_retries", Reason: "must not be negative"}
	case s.Chat.K <= 0:
		return &ConfigError{Field: "retrieval_k", Reason: "must be positive"}
	case s.Chat.MaxPromptChars <= 0:
		return &ConfigError{Field: "max_prompt_chars", Reason: "must be positive"}
	case strings.TrimSpace(s.Chat.ExitKeyword) == "":
		return &ConfigError{Field: "exit_keyword", Reason: "must not be empty"}
	}
	return nil
}

// AllEmbeddingProviders returns providers that support embeddings.
func AllEmbeddingProviders() []AIProvider {
	return []AIProvider{
		AIProviderOllama,
		AIProviderOpenAI,
		AIProviderGemini,
		AIProviderHuggingFace,
		AIProviderHashing,
	}
}

// AllLLMProviders returns providers that support LLM operations.
func AllLLMProviders() []AIProvider {
	return []AIProvider{
		AIProviderGemini,
		AIProviderOpenAI,
		AIProviderOllama,
		AIProviderAnthropic,
	}
}

// DefaultLLMModels returns default models for each LLM provider.
func DefaultLLMModels() map[AIProvider]string {
	return map[AIProvider]string{
		AIProviderOllama:    "llama3.2",
		AIProviderOpenAI:    "gpt-4o-mini",
		AIProviderGemini:    "gemini-1.5-pro",
		AIProviderAnthropic: "claude-3-5-sonnet-latest",
	}
}

// EmbeddingDimensions returns the vector dimensions for known models.
func EmbeddingDimensions() map[string]int {
	return map[string]int{
		// Ollama models
		"nomic-embed-text":  768,
		"mxbai-embed-large": 1024,
		"all-minilm":        384,
		// OpenAI models
		"text-embedding-3-small": 1536,
		"text-embedding-3-large": 3072,
		"text-embedding-ada-002": 1536,
		// Gemini models
		"text-embedding-004": 768,
		// Hugging Face models
		"sentence-transformers/all-MiniLM-L6-v2":  384,
		"sentence-transformers/all-mpnet-base-v2": 768,
		"BAAI/bge-small-en-v1.5":                  384,
		"BAAI/bge-base-en-v1.5":                   768,
		// Hashing embedder presets
		"hashing-384": 384,
		"hashing-768": 768,
	}
}
