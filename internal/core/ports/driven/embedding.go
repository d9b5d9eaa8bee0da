package driven

import "context"

// EmbeddingService generates vector embeddings from text.
//
// Note: This is separate from VectorIndex which stores and searches vectors.
// EmbeddingService generates vectors; VectorIndex stores them. The same
// configuration must be used at ingestion and query time.
//
// Implementations may include:
//   - Ollama (nomic-embed-text, all-minilm)
//   - OpenAI (text-embedding-3-small, text-embedding-3-large)
//   - Feature hashing (offline, deterministic)
type EmbeddingService interface {
	// Embed generates a vector embedding for the given text.
	// Empty text fails with an EmbeddingError.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts.
	// The result has the same length and order as texts.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding vector size (e.g., 384, 768, 1536).
	// This is determined by the model and must match the collection.
	Dimensions() int

	// ModelName returns the name of the embedding model being used.
	ModelName() string

	// Ping validates the service is reachable by making a lightweight test request.
	Ping(ctx context.Context) error

	// Close releases resources.
	Close() error
}
