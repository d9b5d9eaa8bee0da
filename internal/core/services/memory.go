package services

import (
	"slices"
	"sync"

	"github.com/custodia-labs/ragbot/internal/core/domain"
)

// ConversationMemory holds the turns of one chat session in order.
// It is not persisted.
type ConversationMemory struct {
	mu    sync.RWMutex
	turns []domain.Turn
}

// NewConversationMemory creates an empty memory.
func NewConversationMemory() *ConversationMemory {
	return &ConversationMemory{}
}

// Append adds turns at the end.
func (m *ConversationMemory) Append(turns ...domain.Turn) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turns = append(m.turns, turns...)
}

// History returns a copy of the turns, oldest first.
func (m *ConversationMemory) History() []domain.Turn {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.turns)
}

// Len returns the number of turns.
func (m *ConversationMemory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.turns)
}

// Clear forgets every turn.
func (m *ConversationMemory) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turns = nil
}
