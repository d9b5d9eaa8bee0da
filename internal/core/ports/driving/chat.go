package driving

import (
	"context"

	"github.com/custodia-labs/ragbot/internal/core/domain"
)

// ChatService answers questions one line at a time.
type ChatService interface {
	// HandleInput processes one line of user input.
	HandleInput(ctx context.Context, input string) (Reply, error)

	// History returns the turns recorded so far.
	History() []domain.Turn
}

// Reply is the outcome of one input line.
type Reply struct {
	// Text is the assistant's answer, or a failure message when Failed.
	Text string

	// Sources are the chunks the answer was grounded on.
	Sources []domain.RetrievedChunk

	// Exit is true when the input was the exit keyword.
	Exit bool

	// Skipped is true for blank input; nothing should be printed.
	Skipped bool

	// Failed is true when the turn could not be answered.
	// Conversation memory is unchanged.
	Failed bool

	// Err is the cause when Failed.
	Err error
}
