package testutil

import (
	"context"
	"time"

	"github.com/hupe1980/chatmesh/core"
)

// TurnBuilder provides a fluent helper for constructing turn sequences.
// Example:
//
//	turns := NewTurnBuilder().User("hi").Assistant("hello").Build()
//
// Timestamps increase by one second per turn starting at a fixed base, so
// sequences are deterministic.
type TurnBuilder struct {
	base  time.Time
	turns []core.Turn
}

// NewTurnBuilder creates an empty builder.
func NewTurnBuilder() *TurnBuilder {
	return &TurnBuilder{base: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

// User appends a user turn (chainable).
func (b *TurnBuilder) User(text string) *TurnBuilder { return b.add(core.RoleUser, text) }

// Assistant appends an assistant turn (chainable).
func (b *TurnBuilder) Assistant(text string) *TurnBuilder { return b.add(core.RoleAssistant, text) }

// System appends a system turn (chainable).
func (b *TurnBuilder) System(text string) *TurnBuilder { return b.add(core.RoleSystem, text) }

// Exchanges appends n user/assistant pairs "q<i>"/"a<i>" (chainable).
func (b *TurnBuilder) Exchanges(n int) *TurnBuilder {
	for i := 0; i < n; i++ {
		b.User("q" + itoa(i)).Assistant("a" + itoa(i))
	}
	return b
}

func (b *TurnBuilder) add(role core.Role, text string) *TurnBuilder {
	t := core.NewTurn(role, text)
	t.Timestamp = b.base.Add(time.Duration(len(b.turns)) * time.Second)
	b.turns = append(b.turns, t)
	return b
}

// Build returns a copy of the accumulated turns.
func (b *TurnBuilder) Build() []core.Turn {
	out := make([]core.Turn, len(b.turns))
	copy(out, b.turns)
	return out
}

// Seed appends the accumulated turns to conversationID in store.
func (b *TurnBuilder) Seed(ctx context.Context, store core.ConversationStore, conversationID string) error {
	h, err := store.GetOrCreate(ctx, conversationID)
	if err != nil {
		return err
	}
	for _, t := range b.turns {
		if err := store.AppendTurn(ctx, h, t); err != nil {
			return err
		}
	}
	return nil
}

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	var buf [20]byte
	pos := len(buf)
	for i > 0 {
		pos--
		buf[pos] = byte('0' + i%10)
		i /= 10
	}
	return string(buf[pos:])
}
