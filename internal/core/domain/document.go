package domain

// Document is the normalised text of a source unit.
// Loaders produce one Document per file, or one per page for paged formats.
// Documents are immutable once loaded and discarded after chunking.
type Document struct {
	// ID identifies the document, usually the source path
	// with a page suffix for paged formats.
	ID string

	// URI is the original location (file path).
	URI string

	// Title is the human-readable title.
	Title string

	// Content is the full text before chunking.
	Content string

	// Metadata carries source details such as file_path, page_number
	// and format.
	Metadata map[string]any
}

// Chunk is a contiguous substring of a Document's content.
//
// Concatenating the chunks of a document, dropping the first Overlap
// characters of every chunk, reproduces the document content exactly.
type Chunk struct {
	// ID is the record identifier assigned at indexing time.
	ID string

	// DocumentID links to the parent Document.
	DocumentID string

	// Content is the text of this chunk.
	Content string

	// Position is the ordinal position within the document.
	Position int

	// Offset is the character (rune) offset of the chunk in the document.
	Offset int

	// Overlap is the number of leading characters shared with the
	// previous chunk.
	Overlap int

	// Metadata is inherited from the parent document.
	Metadata map[string]any
}

// Source returns the source path recorded in metadata, falling back to
// the document ID.
func (c Chunk) Source() string {
	if s, ok := c.Metadata[MetaFilePath].(string); ok && s != "" {
		return s
	}
	return c.DocumentID
}

// Well-known metadata keys.
const (
	MetaFilePath   = "file_path"
	MetaPageNumber = "page_number"
	MetaTotalPages = "total_pages"
	MetaFormat     = "format"
	MetaMIMEType   = "mime_type"
	MetaTitle      = "title"
)

// CopyMetadata returns a shallow copy of metadata.
func CopyMetadata(src map[string]any) map[string]any {
	dst := make(map[string]any, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
