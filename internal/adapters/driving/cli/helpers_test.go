package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/ragbot/internal/core/domain"
	"github.com/custodia-labs/ragbot/internal/core/ports/driving"
	"github.com/custodia-labs/ragbot/internal/logger"
)

// executeCmd runs the root command with args and stdin, returning the
// combined output.
func executeCmd(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(args)
	defer func() {
		rootCmd.SetArgs(nil)
		rootCmd.SetIn(nil)
		resetFlags()
	}()

	err := rootCmd.Execute()
	return buf.String(), err
}

// resetFlags restores flag variables between executions of the shared
// root command.
func resetFlags() {
	configPath, verbose = "", false
	indexForce, indexWatch, indexMetricsAddr = false, false, ""
	chatK, chatTemperature, chatShowSources, chatSource = 0, 0, false, ""
	for _, name := range []string{"k", "temperature", "show-sources", "source"} {
		chatCmd.Flags().Lookup(name).Changed = false
	}
	logger.SetVerbose(false)
}

// workspace is a temporary data directory with a config file pointing
// every store into it.
type workspace struct {
	dir    string
	data   string
	config string
}

// newWorkspace writes a config using the offline hashing embedder, an
// embedded chromem store and an Ollama LLM at llmURL.
func newWorkspace(t *testing.T, llmURL string) *workspace {
	t.Helper()
	t.Setenv("HOME", t.TempDir())

	dir := t.TempDir()
	ws := &workspace{
		dir:    dir,
		data:   filepath.Join(dir, "data"),
		config: filepath.Join(dir, "config.toml"),
	}
	require.NoError(t, os.MkdirAll(ws.data, 0o755))

	if llmURL == "" {
		llmURL = "http://127.0.0.1:1"
	}
	cfg := fmt.Sprintf(`state_dir = %q
prompts_dir = %q

[index]
data_path = %q
collection_name = "notes"
workers = 2

[vector_db]
url = %q

[embedding]
provider = "hashing"
model = "hashing"
dimensions = 64

[llm]
provider = "ollama"
model = "llama3.2"
base_url = %q
max_retries = 0
requests_per_second = 0
`,
		filepath.Join(dir, "state"),
		filepath.Join(dir, "prompts"),
		ws.data,
		"chromem://"+filepath.Join(dir, "vectors"),
		llmURL,
	)
	require.NoError(t, os.WriteFile(ws.config, []byte(cfg), 0o600))
	return ws
}

func (w *workspace) write(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(w.data, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// ollamaServer answers /api/generate with answer and records prompts.
type ollamaServer struct {
	*httptest.Server
	mu      sync.Mutex
	prompts []string
}

func newOllamaServer(t *testing.T, answer string) *ollamaServer {
	t.Helper()
	s := &ollamaServer{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/generate":
			var req struct {
				Prompt string `json:"prompt"`
			}
			_ = json.NewDecoder(r.Body).Decode(&req)
			s.mu.Lock()
			s.prompts = append(s.prompts, req.Prompt)
			s.mu.Unlock()
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]any{"response": answer, "done": true})
		case "/api/tags":
			_, _ = w.Write([]byte(`{"models":[]}`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *ollamaServer) lastPrompt() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.prompts) == 0 {
		return ""
	}
	return s.prompts[len(s.prompts)-1]
}

// mockIndexer implements Indexer for testing.
type mockIndexer struct {
	report      *domain.IngestReport
	err         error
	watchRounds int
	paths       []string
}

func (m *mockIndexer) Ingest(_ context.Context, path string) (*domain.IngestReport, error) {
	m.paths = append(m.paths, path)
	return m.report, m.err
}

func (m *mockIndexer) Watch(ctx context.Context, path string, onReport func(*domain.IngestReport, error)) error {
	for range m.watchRounds {
		onReport(m.Ingest(ctx, path))
	}
	return context.Canceled
}

// mockChatService implements driving.ChatService for testing. Replies
// are returned in order; "exit" and blank lines behave like the real
// service.
type mockChatService struct {
	replies []driving.Reply
	err     error
	inputs  []string
}

func (m *mockChatService) HandleInput(_ context.Context, input string) (driving.Reply, error) {
	m.inputs = append(m.inputs, input)
	switch strings.TrimSpace(input) {
	case "":
		return driving.Reply{Skipped: true}, nil
	case "exit":
		return driving.Reply{Exit: true}, nil
	}
	if m.err != nil {
		return driving.Reply{}, m.err
	}
	if len(m.replies) == 0 {
		return driving.Reply{Text: "ok"}, nil
	}
	r := m.replies[0]
	m.replies = m.replies[1:]
	return r, nil
}

func (m *mockChatService) History() []domain.Turn { return nil }
