package cli

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/ragbot/internal/adapters/driven/ai"
	"github.com/custodia-labs/ragbot/internal/core/domain"
)

func TestConfigCmd_Use(t *testing.T) {
	assert.Equal(t, "config", configCmd.Use)
	assert.Equal(t, "show", configShowCmd.Use)
	assert.Equal(t, "set <key> <value>", configSetCmd.Use)
	assert.Equal(t, "check", configCheckCmd.Use)
}

func TestConfigCmd_ShowsSettings(t *testing.T) {
	ws := newWorkspace(t, "")

	for _, args := range [][]string{
		{"config", "--config", ws.config},
		{"config", "show", "--config", ws.config},
	} {
		out, err := executeCmd(t, "", args...)
		require.NoError(t, err)

		assert.Contains(t, out, "Current Settings")
		assert.Contains(t, out, "Config file: "+ws.config)
		assert.Contains(t, out, "[index]")
		assert.Contains(t, out, "[llm]")
		assert.Contains(t, out, `index.collection_name = "notes"`)
		assert.Contains(t, out, "embedding.dimensions = 64")
		assert.Contains(t, out, "llm.api_key = (not set)")
		assert.Contains(t, out, `index.extensions = [".txt", ".pdf"`)
	}
}

func TestConfigCmd_MasksAPIKeys(t *testing.T) {
	ws := newWorkspace(t, "")
	t.Setenv("RAGBOT_LLM_API_KEY", "sk-test-1234567890")

	out, err := executeCmd(t, "", "config", "--config", ws.config)
	require.NoError(t, err)
	assert.Contains(t, out, "llm.api_key = sk-t...7890")
	assert.NotContains(t, out, "sk-test-1234567890")
}

func TestConfigCmd_Set(t *testing.T) {
	ws := newWorkspace(t, "")

	out, err := executeCmd(t, "", "config", "set", "chat.k", "7", "--config", ws.config)
	require.NoError(t, err)
	assert.Contains(t, out, "Set chat.k = 7 in "+ws.config)

	data, err := os.ReadFile(ws.config)
	require.NoError(t, err)
	assert.Contains(t, string(data), "k = 7")
	assert.Contains(t, string(data), "collection_name", "other keys survive")
	assert.Contains(t, string(data), "notes")

	out, err = executeCmd(t, "", "config", "--config", ws.config)
	require.NoError(t, err)
	assert.Contains(t, out, "chat.k = 7")
}

func TestConfigCmd_SetList(t *testing.T) {
	ws := newWorkspace(t, "")

	out, err := executeCmd(t, "", "config", "set", "index.extensions", ".txt, .md", "--config", ws.config)
	require.NoError(t, err)
	assert.Contains(t, out, `index.extensions = [".txt", ".md"]`)
}

func TestConfigCmd_SetErrors(t *testing.T) {
	ws := newWorkspace(t, "")

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"unknown key", []string{"nope.key", "1"}, "unknown key"},
		{"bad integer", []string{"index.chunk_size", "big"}, "expected an integer"},
		{"bad duration", []string{"llm.timeout", "soon"}, "expected a duration"},
		{"missing value", []string{"chat.k"}, "accepts 2 arg(s)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"config", "set"}, tt.args...)
			_, err := executeCmd(t, "", append(args, "--config", ws.config)...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestConfigCmd_Check(t *testing.T) {
	ws := newWorkspace(t, "")
	old := runChecks
	runChecks = func(context.Context, domain.Settings) []ai.CheckResult {
		return []ai.CheckResult{
			{Component: "embedding", Target: "hashing/hashing", Detail: "64 dimensions"},
			{Component: "llm", Target: "ollama/llama3.2", Err: errors.New("connection refused")},
		}
	}
	defer func() { runChecks = old }()

	out, err := executeCmd(t, "", "config", "check", "--config", ws.config)
	require.Error(t, err)
	assert.Equal(t, "1 of 2 checks failed", err.Error())
	assert.Contains(t, out, "✓ embedding")
	assert.Contains(t, out, "(64 dimensions)")
	assert.Contains(t, out, "✗ llm")
	assert.Contains(t, out, "connection refused")
}

func TestConfigCmd_CheckPasses(t *testing.T) {
	ws := newWorkspace(t, "")
	old := runChecks
	runChecks = func(context.Context, domain.Settings) []ai.CheckResult {
		return []ai.CheckResult{{Component: "vector_db", Target: "chromem"}}
	}
	defer func() { runChecks = old }()

	out, err := executeCmd(t, "", "config", "check", "--config", ws.config)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ vector_db")
}

func TestFormatValue(t *testing.T) {
	tests := []struct {
		key   string
		value any
		want  string
	}{
		{"llm.model", "llama3.2", `"llama3.2"`},
		{"chat.k", 4, "4"},
		{"llm.temperature", 0.5, "0.5"},
		{"embedding.normalize", true, "true"},
		{"index.separators", []string{"\n\n", " "}, `["\n\n", " "]`},
		{"llm.api_key", "", "(not set)"},
		{"vector_db.api_key", "short", "****"},
		{"embedding.api_key", "sk-abcdefghijkl", "sk-a...ijkl"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			assert.Equal(t, tt.want, formatValue(tt.key, tt.value))
		})
	}
}

func TestMaskAPIKey(t *testing.T) {
	assert.Equal(t, "****", maskAPIKey("12345678"))
	assert.Equal(t, "1234...6789", maskAPIKey("123456789"))
}
