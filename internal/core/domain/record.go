package domain

// IndexedRecord is the persisted unit in a vector collection.
// Records are only inserted or deleted, never updated in place.
type IndexedRecord struct {
	// ID is a stable identifier; upserting the same ID twice replaces
	// the earlier record.
	ID string

	// Vector is the embedding of Text.
	Vector []float32

	// Text is the chunk content.
	Text string

	// Source is the file the chunk came from.
	Source string

	// Metadata is the chunk's source metadata.
	Metadata map[string]any

	// Fingerprint identifies the embedding configuration that produced Vector.
	Fingerprint string
}

// ScoredRecord is a record returned by a similarity query.
type ScoredRecord struct {
	Record IndexedRecord

	// Score is the cosine similarity between the query and the record.
	Score float64
}

// VectorQuery describes a nearest-neighbour lookup.
type VectorQuery struct {
	// Vector is the query embedding.
	Vector []float32

	// K is the maximum number of results.
	K int

	// Filter restricts results to records whose metadata (or source, under
	// the key "source") equals every given value. Nil means no filter.
	Filter map[string]string

	// Fingerprint, when set, must match the collection's records.
	Fingerprint string
}

// RetrievedChunk is a chunk returned by the retriever.
type RetrievedChunk struct {
	// Content is the chunk text.
	Content string

	// Source is the file the chunk came from.
	Source string

	// Metadata is the chunk's source metadata.
	Metadata map[string]any

	// Score is the similarity to the question, kept for ranking and debugging.
	Score float64
}
