package services

import (
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/custodia-labs/ragbot/internal/core/domain"
)

// Section delimiters of the composed prompt.
const (
	contextOpen  = "<ctx>"
	contextClose = "</ctx>"
	historyOpen  = "<hs>"
	historyClose = "</hs>"
	divider      = "------"
	answerCue    = "Answer:"

	userLabel      = "User"
	assistantLabel = "AI Assistant"
)

// PromptComposer renders instructions, context, history and question
// into one prompt within a character budget.
type PromptComposer struct {
	instructions    string
	budget          int
	maxHistoryTurns int
}

// NewPromptComposer creates a composer. A budget of zero or less uses
// domain.DefaultMaxPromptChars; maxHistoryTurns of zero keeps every turn.
func NewPromptComposer(instructions string, budget, maxHistoryTurns int) *PromptComposer {
	if budget <= 0 {
		budget = domain.DefaultMaxPromptChars
	}
	return &PromptComposer{
		instructions:    strings.TrimSpace(instructions),
		budget:          budget,
		maxHistoryTurns: max(maxHistoryTurns, 0),
	}
}

// Compose builds the prompt. Chunks are rendered in the given order.
//
// When the prompt exceeds the budget the lowest-scoring chunks are dropped
// one at a time; chunk text is never cut. If the prompt is still too large
// with no chunks left Compose fails with *domain.ContextTooLargeError.
func (c *PromptComposer) Compose(chunks []domain.RetrievedChunk, history []domain.Turn, question string) (string, error) {
	if c.maxHistoryTurns > 0 && len(history) > c.maxHistoryTurns {
		history = history[len(history)-c.maxHistoryTurns:]
	}
	hs := renderHistory(history)

	keep := slices.Clone(chunks)
	for {
		prompt := c.render(keep, hs, question)
		size := utf8.RuneCountInString(prompt)
		if size <= c.budget {
			return prompt, nil
		}
		if len(keep) == 0 {
			return "", &domain.ContextTooLargeError{Budget: c.budget, Size: size}
		}
		keep = dropLowest(keep)
	}
}

func (c *PromptComposer) render(chunks []domain.RetrievedChunk, history, question string) string {
	var b strings.Builder
	if c.instructions != "" {
		b.WriteString(c.instructions)
		b.WriteString("\n\n")
	}

	b.WriteString(contextOpen + "\n")
	for i, ch := range chunks {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(ch.Content)
	}
	b.WriteString("\n" + contextClose + "\n")

	b.WriteString(divider + "\n")
	b.WriteString(historyOpen + "\n")
	b.WriteString(history)
	b.WriteString("\n" + historyClose + "\n")

	b.WriteString(divider + "\n")
	b.WriteString(question)
	b.WriteString("\n" + answerCue)
	return b.String()
}

func renderHistory(turns []domain.Turn) string {
	lines := make([]string, 0, len(turns))
	for _, t := range turns {
		label := userLabel
		if t.Role == domain.RoleAssistant {
			label = assistantLabel
		}
		lines = append(lines, label+": "+t.Text)
	}
	return strings.Join(lines, "\n")
}

// dropLowest removes the lowest-scoring chunk, the last one on ties.
func dropLowest(chunks []domain.RetrievedChunk) []domain.RetrievedChunk {
	lowest := 0
	for i, ch := range chunks {
		if ch.Score <= chunks[lowest].Score {
			lowest = i
		}
	}
	return slices.Delete(chunks, lowest, lowest+1)
}
