package file

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/ragbot/internal/core/ports/driven"
)

const instructionsFile = driven.PromptChatInstructions + ".txt"

func TestPromptStore_ImplementsInterface(t *testing.T) {
	var _ driven.PromptStore = (*PromptStore)(nil)
}

func TestNewPromptStore_WithCustomDir(t *testing.T) {
	dir := t.TempDir()

	store, err := NewPromptStore(dir)

	require.NoError(t, err)
	assert.Equal(t, dir, store.Dir())
}

func TestNewPromptStore_DefaultDir(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("cannot determine home directory")
	}

	store, err := NewPromptStore("")

	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".ragbot", "prompts"), store.Dir())
}

func TestPromptStore_Load_CreatesDefaultFiles(t *testing.T) {
	dir := t.TempDir()
	store, err := NewPromptStore(dir)
	require.NoError(t, err)

	// Load triggers lazy init
	_, err = store.Load(driven.PromptChatInstructions)
	require.NoError(t, err)

	for _, f := range []string{instructionsFile, "README.md"} {
		_, err := os.Stat(filepath.Join(dir, f))
		assert.NoError(t, err, "expected file %s to exist", f)
	}
}

func TestPromptStore_Load_ReturnsDefaultContent(t *testing.T) {
	store, err := NewPromptStore(t.TempDir())
	require.NoError(t, err)

	prompt, err := store.Load(driven.PromptChatInstructions)

	require.NoError(t, err)
	assert.Contains(t, prompt, "%INSTRUCTIONS:")
	assert.Contains(t, prompt, "personalized memory")
	def, ok := DefaultPrompt(driven.PromptChatInstructions)
	require.True(t, ok)
	assert.Equal(t, def, prompt)
}

func TestPromptStore_Load_ReturnsCustomContent(t *testing.T) {
	dir := t.TempDir()

	// Create custom prompt before store init
	customContent := "Answer like a pirate."
	require.NoError(t, os.WriteFile(filepath.Join(dir, instructionsFile), []byte(customContent), 0600))

	store, err := NewPromptStore(dir)
	require.NoError(t, err)

	prompt, err := store.Load(driven.PromptChatInstructions)

	require.NoError(t, err)
	assert.Equal(t, customContent, prompt)
}

func TestPromptStore_Load_FallsBackToDefault(t *testing.T) {
	dir := t.TempDir()
	store, err := NewPromptStore(dir)
	require.NoError(t, err)

	_, _ = store.Load(driven.PromptChatInstructions) // Trigger init
	require.NoError(t, os.Remove(filepath.Join(dir, instructionsFile)))
	store.Reload()

	prompt, err := store.Load(driven.PromptChatInstructions)

	require.NoError(t, err)
	assert.Contains(t, prompt, "personalized memory")
}

func TestPromptStore_Load_UnknownPrompt(t *testing.T) {
	store, err := NewPromptStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Load("nonexistent_prompt")

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "nonexistent_prompt")
}

func TestPromptStore_Load_CachesResults(t *testing.T) {
	dir := t.TempDir()
	store, err := NewPromptStore(dir)
	require.NoError(t, err)

	prompt1, err := store.Load(driven.PromptChatInstructions)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, instructionsFile), []byte("modified content"), 0600))

	// Second load should return cached value
	prompt2, err := store.Load(driven.PromptChatInstructions)
	require.NoError(t, err)
	assert.Equal(t, prompt1, prompt2)
}

func TestPromptStore_Reload_ClearsCache(t *testing.T) {
	dir := t.TempDir()
	store, err := NewPromptStore(dir)
	require.NoError(t, err)

	_, err = store.Load(driven.PromptChatInstructions)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, instructionsFile), []byte("modified content"), 0600))
	store.Reload()

	prompt, err := store.Load(driven.PromptChatInstructions)
	require.NoError(t, err)
	assert.Equal(t, "modified content", prompt)
}

func TestPromptStore_Load_ConcurrentAccess(t *testing.T) {
	store, err := NewPromptStore(t.TempDir())
	require.NoError(t, err)

	const goroutines = 50
	var wg sync.WaitGroup
	results := make([]string, goroutines)
	errs := make([]error, goroutines)

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = store.Load(driven.PromptChatInstructions)
		}(i)
	}
	wg.Wait()

	for i := range results {
		require.NoError(t, errs[i])
		assert.Equal(t, results[0], results[i])
	}
}

func TestPromptStore_DoesNotOverwriteExistingFiles(t *testing.T) {
	dir := t.TempDir()
	customContent := "pre-existing custom prompt"
	require.NoError(t, os.WriteFile(filepath.Join(dir, instructionsFile), []byte(customContent), 0600))

	store, err := NewPromptStore(dir)
	require.NoError(t, err)
	_, _ = store.Load(driven.PromptChatInstructions)

	data, err := os.ReadFile(filepath.Join(dir, instructionsFile))
	require.NoError(t, err)
	assert.Equal(t, customContent, string(data))
}

func TestPromptStore_TrimsWhitespace(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, instructionsFile), []byte("\n\n  prompt content  \n\n"), 0600))

	store, err := NewPromptStore(dir)
	require.NoError(t, err)

	prompt, err := store.Load(driven.PromptChatInstructions)
	require.NoError(t, err)
	assert.Equal(t, "prompt content", prompt)
}
