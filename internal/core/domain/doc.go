// Package domain defines the core business entities for ragbot.
//
// This package is part of the hexagonal architecture's innermost layer.
// It has NO external dependencies and defines the fundamental types:
//
//   - RawDocument: Opaque bytes read from a file
//   - Document: Normalised text of one file (or one PDF page)
//   - Chunk: A contiguous piece of a Document's text
//   - IndexedRecord: The persisted unit in a vector collection
//   - Turn: One utterance in a chat session
//   - Settings: Explicit configuration passed to every component
//
// # Architectural Position
//
// Domain is at the centre of the hexagon. It may only import
// the Go standard library. All other packages depend on domain,
// never the reverse.
//
// # Import Rules
//
//   - Can Import: Standard library only
//   - Cannot Import: Any internal/ package, any external dependency
package domain
