package domain

import "time"

// Role identifies who produced a conversation turn.
type Role string

// Conversation roles.
const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// IsValid returns true if the role is recognised.
func (r Role) IsValid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Turn is one utterance in a chat session.
type Turn struct {
	Role      Role
	Text      string
	Timestamp time.Time
}
