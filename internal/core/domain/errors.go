package domain

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnsupportedType indicates an unknown provider or document type.
	ErrUnsupportedType = errors.New("unsupported type")

	// ErrConfig indicates invalid configuration. It is fatal and raised
	// before any work starts.
	ErrConfig = errors.New("invalid configuration")

	// ErrLoader indicates a file could not be read or parsed.
	// Ingestion skips the file and continues.
	ErrLoader = errors.New("document loader failed")

	// ErrEmbedding indicates an embedding could not be produced, either
	// because the input was empty or the model was unreachable.
	ErrEmbedding = errors.New("embedding failed")

	// ErrEmbeddingUnavailable indicates the embedding service is not configured.
	ErrEmbeddingUnavailable = errors.New("embedding service unavailable")

	// ErrDimensionMismatch indicates a vector's length disagrees with the
	// collection's configured dimension.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")

	// ErrFingerprintMismatch indicates vectors from a different embedding
	// configuration were about to be mixed into a collection.
	ErrFingerprintMismatch = errors.New("embedding configuration mismatch")

	// ErrCollectionNotFound indicates a read against a collection that
	// does not exist.
	ErrCollectionNotFound = errors.New("collection not found")

	// ErrContextTooLarge indicates the prompt cannot fit the input budget
	// even after dropping every retrieved chunk.
	ErrContextTooLarge = errors.New("context too large")

	// ErrLLMUnavailable indicates the LLM could not be reached after retries,
	// or is not configured.
	ErrLLMUnavailable = errors.New("LLM service unavailable")

	// ErrVectorIndexUnavailable indicates the vector index is not configured.
	ErrVectorIndexUnavailable = errors.New("vector index unavailable")

	// ErrRateLimited indicates the API rate limit was exceeded.
	ErrRateLimited = errors.New("rate limited")
)

// ConfigError describes a single invalid setting.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s: %s %s", ErrConfig, e.Field, e.Reason)
}

// Is matches ErrConfig.
func (e *ConfigError) Is(target error) bool {
	return target == ErrConfig
}

// LoaderError wraps a failure to read or parse one file.
type LoaderError struct {
	Path string
	Err  error
}

func (e *LoaderError) Error() string {
	return fmt.Sprintf("load %s: %v", e.Path, e.Err)
}

// Is matches ErrLoader.
func (e *LoaderError) Is(target error) bool {
	return target == ErrLoader
}

func (e *LoaderError) Unwrap() error {
	return e.Err
}

// EmbeddingError wraps a failure to embed text.
type EmbeddingError struct {
	Model string
	Err   error
}

func (e *EmbeddingError) Error() string {
	if e.Model == "" {
		return fmt.Sprintf("%s: %v", ErrEmbedding, e.Err)
	}
	return fmt.Sprintf("%s (%s): %v", ErrEmbedding, e.Model, e.Err)
}

// Is matches ErrEmbedding.
func (e *EmbeddingError) Is(target error) bool {
	return target == ErrEmbedding
}

func (e *EmbeddingError) Unwrap() error {
	return e.Err
}

// DimensionMismatchError reports a vector whose length disagrees with
// the collection.
type DimensionMismatchError struct {
	Collection string
	Expected   int
	Got        int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("%s: collection %q expects %d dimensions, got %d",
		ErrDimensionMismatch, e.Collection, e.Expected, e.Got)
}

// Is matches ErrDimensionMismatch.
func (e *DimensionMismatchError) Is(target error) bool {
	return target == ErrDimensionMismatch
}

// FingerprintMismatchError reports an attempt to mix embedding configurations.
type FingerprintMismatchError struct {
	Collection string
	Expected   string
	Got        string
}

func (e *FingerprintMismatchError) Error() string {
	return fmt.Sprintf("%s: collection %q was built with %s, got %s",
		ErrFingerprintMismatch, e.Collection, e.Expected, e.Got)
}

// Is matches ErrFingerprintMismatch.
func (e *FingerprintMismatchError) Is(target error) bool {
	return target == ErrFingerprintMismatch
}

// ContextTooLargeError reports a prompt that exceeds its budget.
type ContextTooLargeError struct {
	Budget int
	Size   int
}

func (e *ContextTooLargeError) Error() string {
	return fmt.Sprintf("%s: prompt needs %d characters, budget is %d", ErrContextTooLarge, e.Size, e.Budget)
}

// Is matches ErrContextTooLarge.
func (e *ContextTooLargeError) Is(target error) bool {
	return target == ErrContextTooLarge
}

// CollectionNotFound returns an error for a missing collection.
func CollectionNotFound(name string) error {
	return fmt.Errorf("%w: %q", ErrCollectionNotFound, name)
}

// ProviderError is a non-success response from a remote AI provider.
type ProviderError struct {
	Provider   string
	StatusCode int
	RetryAfter time.Duration
	Body       string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s error (status %d): %s", e.Provider, e.StatusCode, e.Body)
}

// Temporary reports whether retrying the request may succeed.
func (e *ProviderError) Temporary() bool {
	switch {
	case e.StatusCode == http.StatusTooManyRequests, e.StatusCode == http.StatusRequestTimeout:
		return true
	case e.StatusCode >= http.StatusInternalServerError:
		return true
	default:
		return false
	}
}

// Is matches ErrRateLimited for 429 responses.
func (e *ProviderError) Is(target error) bool {
	return target == ErrRateLimited && e.StatusCode == http.StatusTooManyRequests
}
