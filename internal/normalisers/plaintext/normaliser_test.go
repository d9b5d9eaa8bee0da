package plaintext

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/ragbot/internal/core/domain"
	"github.com/custodia-labs/ragbot/internal/core/ports/driven"
)

func TestSupportedTypes(t *testing.T) {
	normaliser := New()
	assert.Contains(t, normaliser.SupportedMIMETypes(), "text/plain")
	assert.Contains(t, normaliser.SupportedExtensions(), ".txt")
	assert.Equal(t, 5, normaliser.Priority())
}

func TestNormalise_Success(t *testing.T) {
	raw := &domain.RawDocument{
		URI:      "/path/to/document.txt",
		MIMEType: "text/plain",
		Content:  []byte("This is plain text content."),
	}

	result, err := New().Normalise(context.Background(), raw)
	require.NoError(t, err)
	require.Len(t, result.Documents, 1)

	doc := result.Documents[0]
	assert.Equal(t, raw.URI, doc.ID)
	assert.Equal(t, raw.URI, doc.URI)
	assert.Equal(t, "document", doc.Title)
	assert.Equal(t, "This is plain text content.", doc.Content)
	assert.Equal(t, "text/plain", doc.Metadata[domain.MetaMIMEType])
	assert.Equal(t, "text", doc.Metadata[domain.MetaFormat])
	assert.Equal(t, raw.URI, doc.Metadata[domain.MetaFilePath])
}

func TestNormalise_NilDocument(t *testing.T) {
	result, err := New().Normalise(context.Background(), nil)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Nil(t, result)
}

func TestNormalise_EmptyContent(t *testing.T) {
	raw := &domain.RawDocument{URI: "/path/to/empty.txt", MIMEType: "text/plain"}

	result, err := New().Normalise(context.Background(), raw)
	require.NoError(t, err)
	require.Len(t, result.Documents, 1)
	assert.Empty(t, result.Documents[0].Content)
}

func TestNormalise_TitleExtraction(t *testing.T) {
	tests := []struct {
		name          string
		uri           string
		expectedTitle string
	}{
		{name: "simple filename", uri: "/path/to/document.txt", expectedTitle: "document"},
		{name: "underscores to spaces", uri: "/path/my_document_name.txt", expectedTitle: "my document name"},
		{name: "dashes to spaces", uri: "/path/my-document-name.txt", expectedTitle: "my document name"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			raw := &domain.RawDocument{URI: tc.uri, MIMEType: "text/plain", Content: []byte("content")}

			result, err := New().Normalise(context.Background(), raw)
			require.NoError(t, err)
			assert.Equal(t, tc.expectedTitle, result.Documents[0].Title)
		})
	}
}

func TestNormalise_MetadataPreserved(t *testing.T) {
	raw := &domain.RawDocument{
		URI:      "/path/to/document.txt",
		MIMEType: "text/plain",
		Content:  []byte("content"),
		Metadata: map[string]any{"author": "test", "line_count": 100},
	}

	result, err := New().Normalise(context.Background(), raw)
	require.NoError(t, err)

	doc := result.Documents[0]
	assert.Equal(t, "test", doc.Metadata["author"])
	assert.Equal(t, 100, doc.Metadata["line_count"])
}

func TestNormalise_UnicodeContent(t *testing.T) {
	content := "多语言文本测试\nこんにちは世界\nПривет мир\n🚀 Emoji test 🎉"
	raw := &domain.RawDocument{URI: "/path/unicode.txt", MIMEType: "text/plain", Content: []byte(content)}

	result, err := New().Normalise(context.Background(), raw)
	require.NoError(t, err)
	assert.Equal(t, content, result.Documents[0].Content)
}

func TestNormalise_InvalidUTF8AndBOM(t *testing.T) {
	raw := &domain.RawDocument{URI: "/path/bad.txt", Content: []byte("\xEF\xBB\xBFok\xffok")}

	result, err := New().Normalise(context.Background(), raw)
	require.NoError(t, err)
	assert.Equal(t, "ok\uFFFDok", result.Documents[0].Content)
}

func TestInterfaceCompliance(t *testing.T) {
	var _ driven.Normaliser = (*Normaliser)(nil)
}

func BenchmarkNormalise(b *testing.B) {
	normaliser := New()
	ctx := context.Background()
	raw := &domain.RawDocument{
		URI:      "/test/document.txt",
		MIMEType: "text/plain",
		Content:  []byte("This is test content for benchmarking."),
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = normaliser.Normalise(ctx, raw)
	}
}
