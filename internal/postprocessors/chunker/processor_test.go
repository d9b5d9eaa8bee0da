package chunker

import (
	"math/rand"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/ragbot/internal/core/domain"
)

func mustNew(t *testing.T, opts ...Option) *Processor {
	t.Helper()
	p, err := New(opts...)
	require.NoError(t, err)
	return p
}

func TestNew(t *testing.T) {
	t.Run("default values", func(t *testing.T) {
		p := mustNew(t)
		assert.Equal(t, DefaultChunkSize, p.ChunkSize())
		assert.Equal(t, DefaultChunkOverlap, p.Overlap())
		assert.True(t, p.hardCut)
	})

	t.Run("custom sizes", func(t *testing.T) {
		p := mustNew(t, WithChunkSize(100), WithOverlap(10))
		assert.Equal(t, 100, p.ChunkSize())
		assert.Equal(t, 10, p.Overlap())
	})

	t.Run("overlap equal to chunk size", func(t *testing.T) {
		_, err := New(WithChunkSize(100), WithOverlap(100))
		assert.ErrorIs(t, err, domain.ErrConfig)
	})

	t.Run("overlap exceeds chunk size", func(t *testing.T) {
		_, err := New(WithChunkSize(100), WithOverlap(150))
		var cfgErr *domain.ConfigError
		require.ErrorAs(t, err, &cfgErr)
		assert.Equal(t, "chunk_overlap", cfgErr.Field)
	})

	t.Run("non-positive chunk size", func(t *testing.T) {
		_, err := New(WithChunkSize(0), WithOverlap(0))
		assert.ErrorIs(t, err, domain.ErrConfig)
	})

	t.Run("negative overlap", func(t *testing.T) {
		_, err := New(WithOverlap(-1))
		assert.ErrorIs(t, err, domain.ErrConfig)
	})
}

func TestFromSettings(t *testing.T) {
	s := domain.DefaultSettings().Index
	s.Separators = []string{" "}

	p, err := FromSettings(s)
	require.NoError(t, err)
	assert.Equal(t, 500, p.ChunkSize())
	assert.False(t, p.hardCut)
	assert.Len(t, p.separators, 1)

	s.ChunkOverlap = s.ChunkSize
	_, err = FromSettings(s)
	assert.ErrorIs(t, err, domain.ErrConfig)
}

func TestProcessor_Name(t *testing.T) {
	assert.Equal(t, "chunker", mustNew(t).Name())
}

func TestSplit_EmptyContent(t *testing.T) {
	chunks := mustNew(t).Split(domain.Document{ID: "empty"})
	assert.Empty(t, chunks)
}

func TestSplit_SmallContent(t *testing.T) {
	p := mustNew(t, WithChunkSize(100), WithOverlap(20))
	doc := domain.Document{
		ID:       "doc",
		Content:  "This is a small document.",
		Metadata: map[string]any{domain.MetaFilePath: "/data/small.txt"},
	}

	chunks := p.Split(doc)

	require.Len(t, chunks, 1)
	assert.Equal(t, doc.Content, chunks[0].Content)
	assert.Equal(t, "doc", chunks[0].DocumentID)
	assert.Equal(t, 0, chunks[0].Position)
	assert.Equal(t, 0, chunks[0].Overlap)
	assert.Equal(t, "/data/small.txt", chunks[0].Source())
}

func TestSplit_TwelveHundredCharacters(t *testing.T) {
	p := mustNew(t, WithChunkSize(500), WithOverlap(50))
	doc := domain.Document{ID: "long", Content: strings.Repeat("x", 1200)}

	chunks := p.Split(doc)

	require.Len(t, chunks, 3)
	for i, c := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(c.Content), 500)
		assert.Equal(t, i, c.Position)
	}
	assert.Equal(t, 0, chunks[0].Overlap)
	assert.Equal(t, 50, chunks[1].Overlap)
	assert.Equal(t, 50, chunks[2].Overlap)
	assert.Equal(t, chunks[0].Content[450:], chunks[1].Content[:50])
	assert.Equal(t, chunks[1].Content[450:], chunks[2].Content[:50])
	assert.Equal(t, doc.Content, Reconstruct(chunks))
}

func TestSplit_PrefersParagraphBoundary(t *testing.T) {
	p := mustNew(t, WithChunkSize(40), WithOverlap(0))
	first := "First paragraph is here."
	second := "Second paragraph follows on."
	doc := domain.Document{ID: "doc", Content: first + "\n\n" + second}

	chunks := p.Split(doc)

	require.Len(t, chunks, 2)
	assert.Equal(t, first+"\n\n", chunks[0].Content)
	assert.Equal(t, second, chunks[1].Content)
}

func TestSplit_PrefersSentenceOverWord(t *testing.T) {
	p := mustNew(t, WithChunkSize(30), WithOverlap(0))
	doc := domain.Document{ID: "doc", Content: "One two three. Four five six seven eight"}

	chunks := p.Split(doc)

	require.NotEmpty(t, chunks)
	assert.Equal(t, "One two three. ", chunks[0].Content)
	assert.Equal(t, doc.Content, Reconstruct(chunks))
}

func TestSplit_OversizedTokenWithoutHardCut(t *testing.T) {
	p := mustNew(t, WithChunkSize(10), WithOverlap(2), WithSeparators("\n\n", "\n", " "))
	token := strings.Repeat("z", 25)
	doc := domain.Document{ID: "doc", Content: "alpha " + token + " omega"}

	chunks := p.Split(doc)

	var oversized []domain.Chunk
	for _, c := range chunks {
		if utf8.RuneCountInString(c.Content) > 10 {
			oversized = append(oversized, c)
		}
	}
	require.Len(t, oversized, 1)
	assert.Equal(t, token+" ", oversized[0].Content)
	assert.Equal(t, 0, oversized[0].Overlap)
	assert.Equal(t, doc.Content, Reconstruct(chunks))
}

func TestSplit_HardCutSplitsLongToken(t *testing.T) {
	p := mustNew(t, WithChunkSize(10), WithOverlap(0))
	doc := domain.Document{ID: "doc", Content: strings.Repeat("z", 25)}

	chunks := p.Split(doc)

	require.Len(t, chunks, 3)
	assert.Equal(t, strings.Repeat("z", 5), chunks[2].Content)
}

func TestSplit_MultibyteContent(t *testing.T) {
	p := mustNew(t, WithChunkSize(8), WithOverlap(3))
	doc := domain.Document{ID: "doc", Content: "héllo wörld ñandú 日本語のテキスト 🙂🙂🙂"}

	chunks := p.Split(doc)

	for _, c := range chunks {
		assert.True(t, utf8.ValidString(c.Content))
		assert.LessOrEqual(t, utf8.RuneCountInString(c.Content), 8)
		assert.LessOrEqual(t, c.Overlap, 3)
	}
	assert.Equal(t, doc.Content, Reconstruct(chunks))
}

func TestSplit_InvalidUTF8IsReplaced(t *testing.T) {
	p := mustNew(t, WithChunkSize(5), WithOverlap(1))
	doc := domain.Document{ID: "doc", Content: "ab\xffcdefgh"}

	chunks := p.Split(doc)

	assert.Equal(t, "ab\uFFFDcdefgh", Reconstruct(chunks))
}

func TestSplit_ReconstructionProperty(t *testing.T) {
	words := []string{"lorem", "ipsum", "dolor", "sit", "amet", "consectetur", "é", "日本",
		"supercalifragilisticexpialidocious", ".", "!", "?", ";", ","}
	gaps := []string{" ", " ", " ", "\n", "\n\n", ". ", "! ", "? ", ", ", "; ", ""}

	rng := rand.New(rand.NewSource(7))
	configs := []struct{ size, overlap int }{
		{5, 0}, {10, 3}, {37, 12}, {100, 20}, {500, 50},
	}
	separatorSets := [][]string{
		domain.DefaultSeparators(),
		{"\n\n", "\n", " "},
		{""},
	}

	for trial := 0; trial < 40; trial++ {
		var b strings.Builder
		for i := rng.Intn(400); i > 0; i-- {
			b.WriteString(words[rng.Intn(len(words))])
			b.WriteString(gaps[rng.Intn(len(gaps))])
		}
		content := b.String()

		for _, cfg := range configs {
			for _, seps := range separatorSets {
				p := mustNew(t, WithChunkSize(cfg.size), WithOverlap(cfg.overlap), WithSeparators(seps...))
				chunks := p.Split(domain.Document{ID: "doc", Content: content})

				require.Equal(t, content, Reconstruct(chunks))
				for i, c := range chunks {
					require.LessOrEqual(t, c.Overlap, cfg.overlap)
					require.Equal(t, i, c.Position)
					if i > 0 {
						prev := []rune(chunks[i-1].Content)
						head := []rune(c.Content)[:c.Overlap]
						require.Equal(t, string(prev[len(prev)-c.Overlap:]), string(head))
					}
					if utf8.RuneCountInString(c.Content) > cfg.size {
						// Only possible for a single unsplittable token.
						require.NotContains(t, seps, "")
						require.Equal(t, 0, c.Overlap)
					}
				}
			}
		}
	}
}

func TestChunks_IsRestartable(t *testing.T) {
	p := mustNew(t, WithChunkSize(20), WithOverlap(5))
	doc := domain.Document{ID: "doc", Content: strings.Repeat("restartable sequence ", 10)}
	seq := p.Chunks(doc)

	var first, second []string
	for c := range seq {
		first = append(first, c.Content)
	}
	for c := range seq {
		second = append(second, c.Content)
	}

	assert.NotEmpty(t, first)
	assert.Equal(t, first, second)
}

func TestChunks_StopsEarly(t *testing.T) {
	p := mustNew(t, WithChunkSize(10), WithOverlap(0))
	doc := domain.Document{ID: "doc", Content: strings.Repeat("a", 100)}

	count := 0
	for range p.Chunks(doc) {
		count++
		if count == 2 {
			break
		}
	}
	assert.Equal(t, 2, count)
}

func TestSplit_MetadataIsCopied(t *testing.T) {
	p := mustNew(t, WithChunkSize(10), WithOverlap(0))
	doc := domain.Document{ID: "doc", Content: strings.Repeat("b", 30), Metadata: map[string]any{"k": "v"}}

	chunks := p.Split(doc)
	chunks[0].Metadata["k"] = "changed"

	assert.Equal(t, "v", doc.Metadata["k"])
	assert.Equal(t, "v", chunks[1].Metadata["k"])
}
