package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/ragbot/internal/adapters/driven/embedding/hashing"
	"github.com/custodia-labs/ragbot/internal/core/domain"
	"github.com/custodia-labs/ragbot/internal/core/ports/driven"
)

func newTestChat(retriever ContextRetriever, llm driven.LLMService, opts ...ChatOption) *ChatService {
	return NewChatService(
		retriever,
		NewPromptComposer("Answer from the context.", 0, 0),
		llm,
		NewConversationMemory(),
		testCollection,
		domain.ChatSettings{K: 3},
		opts...,
	)
}

func TestChat_AnswersAndRemembers(t *testing.T) {
	retriever := &fakeRetriever{chunks: []domain.RetrievedChunk{{Content: "Tea is a drink.", Source: "tea.txt", Score: 0.8}}}
	llm := &fakeLLM{answer: "  You like tea.\n"}
	chat := newTestChat(retriever, llm)

	reply, err := chat.HandleInput(context.Background(), "  What do I like?  ")
	require.NoError(t, err)

	assert.Equal(t, "You like tea.", reply.Text)
	assert.False(t, reply.Failed)
	assert.False(t, reply.Exit)
	require.Len(t, reply.Sources, 1)
	assert.Equal(t, "tea.txt", reply.Sources[0].Source)

	assert.Equal(t, "What do I like?", retriever.lastQ)
	assert.Equal(t, 3, retriever.lastK)
	assert.Contains(t, llm.lastPrompt(), "Tea is a drink.")

	history := chat.History()
	require.Len(t, history, 2)
	assert.Equal(t, domain.Turn{Role: domain.RoleUser, Text: "What do I like?"}, stripTime(history[0]))
	assert.Equal(t, domain.Turn{Role: domain.RoleAssistant, Text: "You like tea."}, stripTime(history[1]))
	assert.Equal(t, StateAwaitingInput, chat.State())
}

func stripTime(t domain.Turn) domain.Turn {
	t.Timestamp = time.Time{}
	return t
}

func TestChat_HistoryFeedsNextPrompt(t *testing.T) {
	llm := &fakeLLM{answer: "Noted."}
	chat := newTestChat(&fakeRetriever{}, llm)

	_, err := chat.HandleInput(context.Background(), "I like tea.")
	require.NoError(t, err)
	assert.Contains(t, llm.lastPrompt(), "<hs>\n\n</hs>", "the first turn has no history")

	_, err = chat.HandleInput(context.Background(), "What do I like?")
	require.NoError(t, err)
	assert.Contains(t, llm.lastPrompt(), "<hs>\nUser: I like tea.\nAI Assistant: Noted.\n</hs>")
	assert.NotContains(t, llm.lastPrompt(), "User: What do I like?", "the current question is not history")
}

func TestChat_BlankInputIsSkipped(t *testing.T) {
	retriever := &fakeRetriever{}
	llm := &fakeLLM{answer: "x"}
	chat := newTestChat(retriever, llm)

	for _, in := range []string{"", "   ", "\t\n"} {
		reply, err := chat.HandleInput(context.Background(), in)
		require.NoError(t, err)
		assert.True(t, reply.Skipped)
	}
	assert.Zero(t, retriever.calls)
	assert.Empty(t, llm.prompts)
	assert.Empty(t, chat.History())
}

func TestChat_ExitKeyword(t *testing.T) {
	tests := []struct {
		name     string
		settings domain.ChatSettings
		input    string
	}{
		{"default keyword", domain.ChatSettings{}, "exit"},
		{"case insensitive", domain.ChatSettings{}, "EXIT"},
		{"surrounding space", domain.ChatSettings{}, "  Exit "},
		{"custom keyword", domain.ChatSettings{ExitKeyword: "quit"}, "Quit"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			retriever := &fakeRetriever{}
			chat := NewChatService(retriever, NewPromptComposer("", 0, 0), &fakeLLM{}, NewConversationMemory(),
				testCollection, tt.settings)

			reply, err := chat.HandleInput(context.Background(), tt.input)
			require.NoError(t, err)
			assert.True(t, reply.Exit)
			assert.Equal(t, StateTerminated, chat.State())
			assert.Zero(t, retriever.calls)

			_, err = chat.HandleInput(context.Background(), "hello")
			assert.ErrorIs(t, err, ErrSessionTerminated)
		})
	}
}

func TestChat_ExitKeywordInsideSentenceIsAQuestion(t *testing.T) {
	retriever := &fakeRetriever{}
	chat := newTestChat(retriever, &fakeLLM{answer: "Use the door."})

	reply, err := chat.HandleInput(context.Background(), "where is the exit")
	require.NoError(t, err)
	assert.False(t, reply.Exit)
	assert.Equal(t, 1, retriever.calls)
}

func TestChat_FailedTurns(t *testing.T) {
	tests := []struct {
		name      string
		retriever *fakeRetriever
		llm       *fakeLLM
		composer  *PromptComposer
		contains  string
	}{
		{
			name:      "llm unavailable",
			retriever: &fakeRetriever{},
			llm:       &fakeLLM{err: fmt.Errorf("%w: %w", domain.ErrLLMUnavailable, &domain.ProviderError{Provider: "ollama", StatusCode: 503})},
			contains:  "not reachable",
		},
		{
			name:      "collection not indexed",
			retriever: &fakeRetriever{err: domain.CollectionNotFound(testCollection)},
			llm:       &fakeLLM{answer: "x"},
			contains:  "ragbot index",
		},
		{
			name:      "context too large",
			retriever: &fakeRetriever{},
			llm:       &fakeLLM{answer: "x"},
			composer:  NewPromptComposer("these instructions alone exceed the budget", 10, 0),
			contains:  "prompt budget",
		},
		{
			name:      "other error",
			retriever: &fakeRetriever{err: errors.New("disk on fire")},
			llm:       &fakeLLM{answer: "x"},
			contains:  "disk on fire",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			composer := tt.composer
			if composer == nil {
				composer = NewPromptComposer("", 0, 0)
			}
			chat := NewChatService(tt.retriever, composer, tt.llm, NewConversationMemory(),
				testCollection, domain.ChatSettings{})

			reply, err := chat.HandleInput(context.Background(), "question")
			require.NoError(t, err, "a failed turn does not end the session")
			assert.True(t, reply.Failed)
			assert.Error(t, reply.Err)
			assert.Contains(t, reply.Text, tt.contains)
			assert.Empty(t, chat.History(), "failed turns leave memory unchanged")
			assert.Equal(t, StateAwaitingInput, chat.State())
		})
	}
}

func TestChat_RecoversAfterFailure(t *testing.T) {
	llm := &fakeLLM{err: domain.ErrLLMUnavailable}
	chat := newTestChat(&fakeRetriever{}, llm)

	reply, err := chat.HandleInput(context.Background(), "first")
	require.NoError(t, err)
	require.True(t, reply.Failed)

	llm.err = nil
	llm.answer = "ok"
	reply, err = chat.HandleInput(context.Background(), "second")
	require.NoError(t, err)
	assert.Equal(t, "ok", reply.Text)
	assert.Len(t, chat.History(), 2)
}

func TestChat_CancelledContext(t *testing.T) {
	chat := newTestChat(&fakeRetriever{}, &fakeLLM{answer: "x"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	reply, err := chat.HandleInput(ctx, "question")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, reply.Failed)
	assert.Empty(t, chat.History())
}

func TestChat_Options(t *testing.T) {
	retriever := &fakeRetriever{}
	llm := &fakeLLM{answer: "x"}
	clock := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	chat := newTestChat(retriever, llm,
		WithRetrievalK(7),
		WithTemperature(0.1),
		WithMaxTokens(256),
		WithSourceFilter("/data/tea.txt"),
		WithClock(func() time.Time { return clock }),
	)

	_, err := chat.HandleInput(context.Background(), "question")
	require.NoError(t, err)

	assert.Equal(t, 7, retriever.lastK)
	assert.Equal(t, map[string]string{"source": "/data/tea.txt"}, retriever.filters[0])
	assert.Equal(t, driven.GenerateOptions{MaxTokens: 256, Temperature: 0.1}, llm.opts[0])
	assert.True(t, chat.History()[0].Timestamp.Equal(clock))
}

func TestChat_DefaultTemperature(t *testing.T) {
	llm := &fakeLLM{answer: "x"}
	chat := newTestChat(&fakeRetriever{}, llm)

	_, err := chat.HandleInput(context.Background(), "question")
	require.NoError(t, err)
	assert.InDelta(t, domain.DefaultTemperature, llm.opts[0].Temperature, 1e-9)
}

func TestChat_EndToEndWithRetriever(t *testing.T) {
	embedder := hashing.NewEmbeddingService(256)
	index := seedIndex(t, embedder, map[string]string{
		"tea.txt":  "The user's favourite drink is green tea.",
		"cars.txt": "Electric cars need charging stations.",
	})
	retriever := NewRetriever(embedder, index, testCollection, testFingerprint, 1)
	llm := &fakeLLM{answer: "Green tea."}
	chat := newTestChat(retriever, llm, WithRetrievalK(1))

	reply, err := chat.HandleInput(context.Background(), "What is my favourite drink?")
	require.NoError(t, err)
	assert.Equal(t, "Green tea.", reply.Text)
	require.Len(t, reply.Sources, 1)
	assert.Equal(t, "tea.txt", reply.Sources[0].Source)
	assert.Contains(t, llm.lastPrompt(), "favourite drink is green tea")
}
