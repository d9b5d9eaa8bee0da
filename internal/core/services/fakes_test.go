package services

import (
	"context"
	"errors"
	"iter"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/custodia-labs/ragbot/internal/core/domain"
	"github.com/custodia-labs/ragbot/internal/core/ports/driven"
)

// --- Hand-written fakes shared by the service tests ---

// fakeSource serves files from memory, keyed by path.
type fakeSource struct {
	mu      sync.Mutex
	files   map[string]string
	modTime map[string]time.Time
	readErr map[string]error
	listErr error
	reads   []string
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		files:   make(map[string]string),
		modTime: make(map[string]time.Time),
		readErr: make(map[string]error),
	}
}

func (s *fakeSource) put(path, content string, mod time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[path] = content
	s.modTime[path] = mod
}

func (s *fakeSource) remove(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.files, path)
	delete(s.modTime, path)
}

func (s *fakeSource) readCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.reads)
}

func (s *fakeSource) List(ctx context.Context, root string) ([]domain.SourceFile, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.SourceFile
	for path, content := range s.files {
		if !strings.HasPrefix(path, root) {
			continue
		}
		out = append(out, domain.SourceFile{Path: path, Size: int64(len(content)), ModTime: s.modTime[path]})
	}
	slices.SortFunc(out, func(a, b domain.SourceFile) int { return strings.Compare(a.Path, b.Path) })
	return out, nil
}

func (s *fakeSource) Read(ctx context.Context, f domain.SourceFile) (*domain.RawDocument, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads = append(s.reads, f.Path)
	if err := s.readErr[f.Path]; err != nil {
		return nil, err
	}
	content, ok := s.files[f.Path]
	if !ok {
		return nil, &domain.LoaderError{Path: f.Path, Err: domain.ErrNotFound}
	}
	return &domain.RawDocument{
		URI:      f.Path,
		MIMEType: "text/plain",
		Content:  []byte(content),
		Metadata: map[string]any{},
	}, nil
}

// fakeRegistry turns every raw document into one text document.
type fakeRegistry struct {
	err error
}

func (r *fakeRegistry) Normalise(ctx context.Context, raw *domain.RawDocument) (*driven.NormaliseResult, error) {
	if r.err != nil {
		return nil, r.err
	}
	doc := raw.NewDocument(raw.URI, raw.Title(), string(raw.Content), "text")
	return &driven.NormaliseResult{Documents: []domain.Document{doc}}, nil
}

func (r *fakeRegistry) Register(driven.Normaliser) {}

func (r *fakeRegistry) SupportedExtensions() []string { return []string{".txt"} }

// paragraphChunker emits one chunk per blank-line separated paragraph.
type paragraphChunker struct{}

func (paragraphChunker) Name() string { return "paragraph" }

func (paragraphChunker) Chunks(doc domain.Document) iter.Seq[domain.Chunk] {
	return func(yield func(domain.Chunk) bool) {
		offset := 0
		for i, p := range strings.Split(doc.Content, "\n\n") {
			c := domain.Chunk{
				ID:         doc.ID + "#" + string(rune('a'+i)),
				DocumentID: doc.ID,
				Content:    p,
				Position:   i,
				Offset:     offset,
				Metadata:   domain.CopyMetadata(doc.Metadata),
			}
			offset += len(p) + 2
			if !yield(c) {
				return
			}
		}
	}
}

// fakeEmbedder returns a fixed-size vector derived from the text length.
// Texts containing any of failOn fail, both in batches and alone.
type fakeEmbedder struct {
	mu         sync.Mutex
	dims       int
	failOn     []string
	batchErr   error
	embedErr   error
	batchCalls int
	embedCalls int
}

func (e *fakeEmbedder) vector(text string) []float32 {
	v := make([]float32, e.dims)
	v[len(text)%e.dims] = 1
	return v
}

func (e *fakeEmbedder) failing(text string) bool {
	for _, f := range e.failOn {
		if strings.Contains(text, f) {
			return true
		}
	}
	return false
}

func (e *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	e.embedCalls++
	e.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if e.embedErr != nil {
		return nil, e.embedErr
	}
	if e.failing(text) {
		return nil, &domain.EmbeddingError{Model: "fake", Err: errors.New("rejected")}
	}
	return e.vector(text), nil
}

func (e *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	e.batchCalls++
	e.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if e.batchErr != nil {
		return nil, e.batchErr
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if e.failing(t) {
			return nil, &domain.EmbeddingError{Model: "fake", Err: errors.New("batch rejected")}
		}
		out[i] = e.vector(t)
	}
	return out, nil
}

func (e *fakeEmbedder) Dimensions() int                { return e.dims }
func (e *fakeEmbedder) ModelName() string              { return "fake" }
func (e *fakeEmbedder) Ping(ctx context.Context) error { return nil }
func (e *fakeEmbedder) Close() error                   { return nil }

// fakeWatcher hands out a channel the test drives.
type fakeWatcher struct {
	changes chan []string
	err     error
}

func (w *fakeWatcher) Watch(ctx context.Context, root string) (<-chan []string, error) {
	if w.err != nil {
		return nil, w.err
	}
	out := make(chan []string)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case batch, ok := <-w.changes:
				if !ok {
					return
				}
				select {
				case out <- batch:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// fakeLLM records prompts and replies with a canned answer.
type fakeLLM struct {
	mu      sync.Mutex
	answer  string
	err     error
	prompts []string
	opts    []driven.GenerateOptions
}

func (l *fakeLLM) Generate(ctx context.Context, prompt string, opts driven.GenerateOptions) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.prompts = append(l.prompts, prompt)
	l.opts = append(l.opts, opts)
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if l.err != nil {
		return "", l.err
	}
	return l.answer, nil
}

func (l *fakeLLM) ModelName() string              { return "fake-llm" }
func (l *fakeLLM) Ping(ctx context.Context) error { return nil }
func (l *fakeLLM) Close() error                   { return nil }

func (l *fakeLLM) lastPrompt() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.prompts) == 0 {
		return ""
	}
	return l.prompts[len(l.prompts)-1]
}

// fakeRetriever returns fixed chunks and records the arguments.
type fakeRetriever struct {
	chunks  []domain.RetrievedChunk
	err     error
	calls   int
	lastK   int
	lastQ   string
	filters []map[string]string
}

func (r *fakeRetriever) RetrieveWhere(ctx context.Context, q string, k int, filter map[string]string) ([]domain.RetrievedChunk, error) {
	r.calls++
	r.lastK = k
	r.lastQ = q
	r.filters = append(r.filters, filter)
	if r.err != nil {
		return nil, r.err
	}
	return r.chunks, nil
}

// fakeMetrics counts ingestion events.
type fakeMetrics struct {
	mu     sync.Mutex
	files  map[string]int
	chunks int
	embeds int
}

func (m *fakeMetrics) CountFile(status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.files == nil {
		m.files = make(map[string]int)
	}
	m.files[status]++
}

func (m *fakeMetrics) AddChunks(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chunks += n
}

func (m *fakeMetrics) ObserveEmbedBatch(time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.embeds++
}
