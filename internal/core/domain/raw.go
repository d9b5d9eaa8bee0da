package domain

import (
	"path/filepath"
	"strings"
	"time"
)

// RawDocument represents opaque bytes read from a source file.
// It is the loader's input before normalisation.
type RawDocument struct {
	// URI is the original location (file path).
	URI string

	// MIMEType is the content type (e.g., "application/pdf").
	MIMEType string

	// Content is the raw bytes.
	Content []byte

	// Metadata contains source-specific key-value pairs.
	Metadata map[string]any
}

// SourceFile describes a file discovered under the data path.
type SourceFile struct {
	// Path is the file path as discovered.
	Path string

	// Size is the file size in bytes.
	Size int64

	// ModTime is the last modification time.
	ModTime time.Time
}

// Title returns the title from metadata if set, otherwise a readable form
// of the file name without its extension.
func (r *RawDocument) Title() string {
	if t, ok := r.Metadata[MetaTitle].(string); ok && t != "" {
		return t
	}
	name := filepath.Base(r.URI)
	name = strings.TrimSuffix(name, filepath.Ext(name))
	return strings.NewReplacer("_", " ", "-", " ").Replace(name)
}

// NewDocument builds a Document from the raw document, inheriting its
// metadata and recording the file path, MIME type and format.
func (r *RawDocument) NewDocument(id, title, content, format string) Document {
	meta := CopyMetadata(r.Metadata)
	if _, ok := meta[MetaFilePath]; !ok {
		meta[MetaFilePath] = r.URI
	}
	meta[MetaMIMEType] = r.MIMEType
	meta[MetaFormat] = format
	if title != "" {
		meta[MetaTitle] = title
	}
	return Document{
		ID:       id,
		URI:      r.URI,
		Title:    title,
		Content:  content,
		Metadata: meta,
	}
}
