// Package driven defines the interfaces that core calls OUT to infrastructure.
//
// These are the "driven" or "secondary" ports in hexagonal architecture.
// Core services depend on these interfaces, and infrastructure adapters
// implement them.
//
// # Required Interfaces
//
// These must be provided for the application to function:
//
//   - DocumentSource: Discovers and reads files under the data path
//   - Normaliser: Turns raw bytes into documents
//   - NormaliserRegistry: Selects the normaliser for a file
//   - EmbeddingService: Generates vector embeddings
//   - VectorIndex: Stores and searches vectors (Qdrant, chromem, memory)
//   - LLMService: Generates answers (chat only)
//
// # Optional Interfaces
//
// These can be nil - the application degrades gracefully:
//
//   - ManifestStore: Skips unchanged files on re-index. Without it every run re-indexes everything.
//   - PromptStore: User-editable prompt templates. Without it built-in defaults are used.
//
// # Import Rules
//
//   - Can Import: domain package only
//   - Cannot Import: Any adapter, connector, or normaliser package
package driven
