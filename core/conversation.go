package core

import (
	"sync"
	"time"
)

// Conversation is the full ordered turn history addressed by one
// conversation id. It is safe for concurrent access.
//
// Contract:
//   - Turns are only ever appended, never edited or reordered
//   - Window and Turns return defensive copies
//   - Append updates the Updated timestamp
type Conversation struct {
	ID      string    `json:"id"`
	Created time.Time `json:"created"`
	Updated time.Time `json:"updated"`

	mu    sync.RWMutex
	turns []Turn
}

// NewConversation creates an empty conversation with the given id.
func NewConversation(id string) *Conversation {
	now := time.Now().UTC()
	return &Conversation{ID: id, Created: now, Updated: now, turns: []Turn{}}
}

// Append adds turns to the end of the history.
func (c *Conversation) Append(turns ...Turn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.turns = append(c.turns, turns...)
	c.Updated = time.Now().UTC()
}

// Window returns the most recent n turns in append order.
func (c *Conversation) Window(n int) []Turn {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return LastN(c.turns, n)
}

// Turns returns a copy of the full history.
func (c *Conversation) Turns() []Turn {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Turn, len(c.turns))
	copy(out, c.turns)
	return out
}

// Len returns the number of stored turns.
func (c *Conversation) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.turns)
}
