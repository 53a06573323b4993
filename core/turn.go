package core

import (
	"time"

	"github.com/google/uuid"
)

// Role tags the author of a turn.
type Role string

const (
	// RoleUser marks a turn written by the end user.
	RoleUser Role = "user"
	// RoleAssistant marks a turn produced by the model.
	RoleAssistant Role = "assistant"
	// RoleSystem marks an instruction turn.
	RoleSystem Role = "system"
)

// Valid reports whether r is one of the roles a conversation may store.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	default:
		return false
	}
}

// Turn is one message exchange unit within a conversation. After it has been
// appended to a store it should be treated as immutable.
type Turn struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// NewTurn creates a turn with a fresh id and a UTC timestamp.
func NewTurn(role Role, content string) Turn {
	return Turn{
		ID:        NewID(),
		Role:      role,
		Content:   content,
		Timestamp: time.Now().UTC(),
	}
}

// NewUserTurn creates a user-authored turn.
func NewUserTurn(content string) Turn { return NewTurn(RoleUser, content) }

// NewAssistantTurn creates a model-authored turn.
func NewAssistantTurn(content string) Turn { return NewTurn(RoleAssistant, content) }

// NewID generates a new unique identifier for turns and conversations.
func NewID() string { return uuid.NewString() }

// LastN returns a copy of the most recent n turns of history in their
// original order. A non-positive n yields an empty, non-nil slice; an n larger
// than the history yields all of it.
func LastN(history []Turn, n int) []Turn {
	if n <= 0 || len(history) == 0 {
		return []Turn{}
	}
	if n > len(history) {
		n = len(history)
	}
	out := make([]Turn, n)
	copy(out, history[len(history)-n:])
	return out
}
