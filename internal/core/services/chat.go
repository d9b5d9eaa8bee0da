package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/custodia-labs/ragbot/internal/core/domain"
	"github.com/custodia-labs/ragbot/internal/core/ports/driven"
	"github.com/custodia-labs/ragbot/internal/core/ports/driving"
	"github.com/custodia-labs/ragbot/internal/logger"
)

// Ensure ChatService implements the interface.
var _ driving.ChatService = (*ChatService)(nil)

// ErrSessionTerminated is returned for input after the exit keyword.
var ErrSessionTerminated = errors.New("chat session terminated")

// ChatState is a state of the chat loop.
type ChatState int

// States of the chat loop.
const (
	StateAwaitingInput ChatState = iota
	StateProcessing
	StateTerminated
)

// String returns the state name.
func (s ChatState) String() string {
	switch s {
	case StateAwaitingInput:
		return "awaiting_input"
	case StateProcessing:
		return "processing"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// ContextRetriever fetches context for a question.
type ContextRetriever interface {
	RetrieveWhere(ctx context.Context, question string, k int, filter map[string]string) ([]domain.RetrievedChunk, error)
}

// ChatService answers one question per input line, keeping the
// conversation in memory. It serves a single session.
type ChatService struct {
	retriever   ContextRetriever
	composer    *PromptComposer
	llm         driven.LLMService
	memory      *ConversationMemory
	collection  string
	exitKeyword string
	k           int
	filter      map[string]string
	generate    driven.GenerateOptions
	state       ChatState
	now         func() time.Time
}

// ChatOption configures a chat service.
type ChatOption func(*ChatService)

// WithRetrievalK overrides the number of chunks per question.
func WithRetrievalK(k int) ChatOption {
	return func(s *ChatService) {
		s.k = k
	}
}

// WithTemperature sets the generation temperature.
func WithTemperature(t float64) ChatOption {
	return func(s *ChatService) {
		s.generate.Temperature = t
	}
}

// WithMaxTokens caps the answer length. Zero leaves the provider default.
func WithMaxTokens(n int) ChatOption {
	return func(s *ChatService) {
		s.generate.MaxTokens = n
	}
}

// WithSourceFilter restricts retrieval to one source file.
func WithSourceFilter(source string) ChatOption {
	return func(s *ChatService) {
		if source != "" {
			s.filter = map[string]string{"source": source}
		}
	}
}

// WithClock replaces time.Now for turn timestamps.
func WithClock(now func() time.Time) ChatOption {
	return func(s *ChatService) {
		s.now = now
	}
}

// NewChatService creates a chat session.
func NewChatService(
	retriever ContextRetriever,
	composer *PromptComposer,
	llm driven.LLMService,
	memory *ConversationMemory,
	collection string,
	settings domain.ChatSettings,
	opts ...ChatOption,
) *ChatService {
	exit := strings.TrimSpace(settings.ExitKeyword)
	if exit == "" {
		exit = domain.DefaultExitKeyword
	}

	s := &ChatService{
		retriever:   retriever,
		composer:    composer,
		llm:         llm,
		memory:      memory,
		collection:  collection,
		exitKeyword: exit,
		k:           settings.K,
		generate:    driven.GenerateOptions{Temperature: domain.DefaultTemperature},
		state:       StateAwaitingInput,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns the current state.
func (s *ChatService) State() ChatState {
	return s.state
}

// History returns the turns recorded so far.
func (s *ChatService) History() []domain.Turn {
	return s.memory.History()
}

// HandleInput processes one line of user input.
//
// A failed turn returns a Reply with Failed set and a nil error; the
// session continues and memory is unchanged. The error is non-nil only
// when ctx was cancelled or the session has already terminated.
func (s *ChatService) HandleInput(ctx context.Context, input string) (driving.Reply, error) {
	if s.state == StateTerminated {
		return driving.Reply{Exit: true}, ErrSessionTerminated
	}

	question := strings.TrimSpace(input)
	switch {
	case question == "":
		return driving.Reply{Skipped: true}, nil
	case strings.EqualFold(question, s.exitKeyword):
		s.state = StateTerminated
		return driving.Reply{Exit: true}, nil
	}

	s.state = StateProcessing
	defer func() { s.state = StateAwaitingInput }()

	answer, sources, err := s.turn(ctx, question)
	if err != nil {
		if ctx.Err() != nil {
			return driving.Reply{Failed: true, Err: ctx.Err()}, ctx.Err()
		}
		logger.Warn("turn failed: %v", err)
		return driving.Reply{Text: s.failureMessage(err), Failed: true, Err: err}, nil
	}

	asked := s.now()
	s.memory.Append(
		domain.Turn{Role: domain.RoleUser, Text: question, Timestamp: asked},
		domain.Turn{Role: domain.RoleAssistant, Text: answer, Timestamp: s.now()},
	)
	return driving.Reply{Text: answer, Sources: sources}, nil
}

// turn runs retrieve, compose and generate without touching memory.
func (s *ChatService) turn(ctx context.Context, question string) (string, []domain.RetrievedChunk, error) {
	chunks, err := s.retriever.RetrieveWhere(ctx, question, s.k, s.filter)
	if err != nil {
		return "", nil, err
	}

	prompt, err := s.composer.Compose(chunks, s.memory.History(), question)
	if err != nil {
		return "", nil, err
	}
	logger.Debug("prompt: %d chars, %d chunks, %d turns", len(prompt), len(chunks), s.memory.Len())

	answer, err := s.llm.Generate(ctx, prompt, s.generate)
	if err != nil {
		return "", nil, err
	}
	return strings.TrimSpace(answer), chunks, nil
}

func (s *ChatService) failureMessage(err error) string {
	switch {
	case errors.Is(err, domain.ErrLLMUnavailable):
		return "Sorry, the language model is not reachable right now. Please try again in a moment."
	case errors.Is(err, domain.ErrCollectionNotFound):
		return fmt.Sprintf("The collection %q has not been indexed yet. Run 'ragbot index' first.", s.collection)
	case errors.Is(err, domain.ErrContextTooLarge):
		return fmt.Sprintf("Sorry, the question and history do not fit the prompt budget (%v). Try a shorter question.", err)
	default:
		return fmt.Sprintf("Sorry, something went wrong: %v", err)
	}
}
