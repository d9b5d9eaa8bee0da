package filesystem

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/ragbot/internal/core/domain"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func paths(files []domain.SourceFile) []string {
	out := make([]string, len(files))
	for i, f := range files {
		out[i] = f.Path
	}
	return out
}

func TestSource_List(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "b.txt"), "b")
	writeFile(t, filepath.Join(root, "a.md"), "a")
	writeFile(t, filepath.Join(root, "sub", "c.pdf"), "c")
	writeFile(t, filepath.Join(root, "sub", "skip.go"), "package x")
	writeFile(t, filepath.Join(root, ".hidden.txt"), "h")
	writeFile(t, filepath.Join(root, ".git", "config.txt"), "g")
	writeFile(t, filepath.Join(root, "UPPER.TXT"), "u")

	files, err := New().List(context.Background(), root)
	require.NoError(t, err)

	assert.Equal(t, []string{
		filepath.Join(root, "UPPER.TXT"),
		filepath.Join(root, "a.md"),
		filepath.Join(root, "b.txt"),
		filepath.Join(root, "sub", "c.pdf"),
	}, paths(files))
	assert.Equal(t, int64(1), files[0].Size)
	assert.False(t, files[0].ModTime.IsZero())
}

func TestSource_List_CustomExtensions(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.txt"), "a")
	writeFile(t, filepath.Join(root, "b.rst"), "b")

	files, err := New(WithExtensions("rst")).List(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(root, "b.rst")}, paths(files))
}

func TestSource_List_SingleFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.rst")
	writeFile(t, path, "single")

	files, err := New().List(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, []string{path}, paths(files))
}

func TestSource_List_MissingRoot(t *testing.T) {
	_, err := New().List(context.Background(), filepath.Join(t.TempDir(), "nope"))

	var cfgErr *domain.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "data_path", cfgErr.Field)
}

func TestSource_List_CancelledContext(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.txt"), "a")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New().List(ctx, root)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSource_Read(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.md")
	writeFile(t, path, "# Title")

	raw, err := New().Read(context.Background(), domain.SourceFile{Path: path})
	require.NoError(t, err)
	assert.Equal(t, path, raw.URI)
	assert.Equal(t, "text/markdown", raw.MIMEType)
	assert.Equal(t, []byte("# Title"), raw.Content)
	assert.Equal(t, path, raw.Metadata[domain.MetaFilePath])
}

func TestSource_Read_Errors(t *testing.T) {
	dir := t.TempDir()

	t.Run("missing file", func(t *testing.T) {
		_, err := New().Read(context.Background(), domain.SourceFile{Path: filepath.Join(dir, "gone.txt")})
		assert.ErrorIs(t, err, domain.ErrLoader)
	})

	t.Run("too large", func(t *testing.T) {
		path := filepath.Join(dir, "big.txt")
		writeFile(t, path, "0123456789")

		_, err := New(WithMaxFileSize(5)).Read(context.Background(), domain.SourceFile{Path: path})
		var le *domain.LoaderError
		require.ErrorAs(t, err, &le)
		assert.Equal(t, path, le.Path)
	})
}

func TestSource_Accepts(t *testing.T) {
	s := New()
	assert.True(t, s.Accepts("/data/a.PDF"))
	assert.True(t, s.Accepts("/home/user/.config/data/a.txt"))
	assert.False(t, s.Accepts("/data/.a.txt"))
	assert.False(t, s.Accepts("/data/a.go"))
}

func TestDetectMIMEType(t *testing.T) {
	tests := []struct {
		filename     string
		expectedMIME string
	}{
		{"file", "text/plain"},
		{"doc.md", "text/markdown"},
		{"doc.markdown", "text/markdown"},
		{"FILE.MD", "text/markdown"},
		{"notes.txt", "text/plain"},
		{"report.pdf", "application/pdf"},
		{"memo.doc", "application/msword"},
		{"memo.docx", "application/vnd.openxmlformats-officedocument.wordprocessingml.document"},
		{"page.html", "text/html"},
		{"page.HTM", "text/html"},
		{"file.zzzzunknown", "application/octet-stream"},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			assert.Equal(t, tt.expectedMIME, detectMIMEType(tt.filename))
		})
	}
}

func TestIsHidden(t *testing.T) {
	tests := []struct {
		path     string
		expected bool
	}{
		{".hidden", true},
		{"path/to/.hidden", true},
		{"dir/.git/config", true},
		{".config/.cache/data", true},
		{"file.txt", false},
		{"path/to/file.txt", false},
		{".", false},
		{"..", false},
		{"path/../file", false},
		{"", false},
		{"file.hidden", false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.expected, isHidden(tt.path))
		})
	}
}
