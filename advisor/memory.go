package advisor

import (
	"context"
	"fmt"

	"github.com/hupe1980/chatmesh/core"
)

// MemoryInjection prepends the conversation's most recent turns to the
// model input. A failing store yields an empty window and a warning.
type MemoryInjection struct {
	store core.ConversationStore
}

// NewMemoryInjection creates the injection step over store.
func NewMemoryInjection(store core.ConversationStore) *MemoryInjection {
	return &MemoryInjection{store: store}
}

func (*MemoryInjection) Name() string { return "memory_injection" }

func (m *MemoryInjection) Before(ctx context.Context, req *Request) error {
	req.History = []core.Turn{}

	h, err := m.store.GetOrCreate(ctx, req.ConversationID)
	if err != nil {
		req.AddWarning(m.Name(), err)
		return nil
	}
	window, err := m.store.ReadWindow(ctx, h, req.windowSize())
	if err != nil {
		req.AddWarning(m.Name(), err)
		return nil
	}
	req.History = window
	return nil
}

func (*MemoryInjection) After(context.Context, *Request, *Response) error { return nil }

// MemoryPersist appends the user turn and then the assistant turn after the
// model has answered. The user turn is the original message, never the
// rewritten retrieval query. An empty assistant reply (e.g. a stream
// cancelled before the first fragment) persists only the user turn.
type MemoryPersist struct {
	store core.ConversationStore
}

// NewMemoryPersist creates the persist step over store.
func NewMemoryPersist(store core.ConversationStore) *MemoryPersist {
	return &MemoryPersist{store: store}
}

func (*MemoryPersist) Name() string { return "memory_persist" }

func (*MemoryPersist) Before(context.Context, *Request) error { return nil }

func (m *MemoryPersist) After(ctx context.Context, req *Request, resp *Response) error {
	h, err := m.store.GetOrCreate(ctx, req.ConversationID)
	if err != nil {
		return err
	}
	if err := m.store.AppendTurn(ctx, h, core.NewUserTurn(req.UserText)); err != nil {
		return fmt.Errorf("persist user turn: %w", err)
	}
	if resp.Text == "" {
		return nil
	}
	if err := m.store.AppendTurn(ctx, h, core.NewAssistantTurn(resp.Text)); err != nil {
		return fmt.Errorf("persist assistant turn: %w", err)
	}
	return nil
}
