package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRawDocument_Title(t *testing.T) {
	raw := &RawDocument{URI: "/data/release_notes-2024.txt"}
	assert.Equal(t, "release notes 2024", raw.Title())

	raw.Metadata = map[string]any{MetaTitle: "Release Notes"}
	assert.Equal(t, "Release Notes", raw.Title())
}

func TestRawDocument_NewDocument(t *testing.T) {
	raw := &RawDocument{
		URI:      "/data/guide.md",
		MIMEType: "text/markdown",
		Metadata: map[string]any{"custom": "value"},
	}

	doc := raw.NewDocument("/data/guide.md", "Guide", "body", "markdown")

	assert.Equal(t, "/data/guide.md", doc.ID)
	assert.Equal(t, "body", doc.Content)
	assert.Equal(t, "/data/guide.md", doc.Metadata[MetaFilePath])
	assert.Equal(t, "text/markdown", doc.Metadata[MetaMIMEType])
	assert.Equal(t, "markdown", doc.Metadata[MetaFormat])
	assert.Equal(t, "Guide", doc.Metadata[MetaTitle])
	assert.Equal(t, "value", doc.Metadata["custom"])
	assert.NotContains(t, raw.Metadata, MetaFormat)
}

func TestRawDocument_NewDocument_KeepsExistingFilePath(t *testing.T) {
	raw := &RawDocument{URI: "/abs/guide.md", Metadata: map[string]any{MetaFilePath: "data/guide.md"}}
	doc := raw.NewDocument("id", "", "", "text")
	assert.Equal(t, "data/guide.md", doc.Metadata[MetaFilePath])
	assert.NotContains(t, doc.Metadata, MetaTitle)
}
