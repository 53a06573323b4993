package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/hupe1980/chatmesh/core"
)

// Interface compliance (compile-time assertion)
var _ core.ConversationStore = (*InMemoryStore)(nil)

// InMemoryStore is a process-local ConversationStore. Conversations live
// for the lifetime of the store value; create one per process and pass it
// explicitly to whoever needs it.
//
// Concurrency: the map is protected by an RWMutex, each conversation
// guards its own turns.
type InMemoryStore struct {
	mu            sync.RWMutex
	conversations map[string]*core.Conversation
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{conversations: make(map[string]*core.Conversation)}
}

// GetOrCreate implements core.ConversationStore.
func (s *InMemoryStore) GetOrCreate(_ context.Context, conversationID string) (core.ConversationHandle, error) {
	s.conversation(conversationID)
	return core.ConversationHandle{ConversationID: conversationID}, nil
}

// AppendTurn implements core.ConversationStore. Unknown ids are created.
func (s *InMemoryStore) AppendTurn(_ context.Context, h core.ConversationHandle, turn core.Turn) error {
	if !turn.Role.Valid() {
		return fmt.Errorf("append turn: invalid role %q", turn.Role)
	}
	s.conversation(h.ConversationID).Append(turn)
	return nil
}

// ReadWindow implements core.ConversationStore.
func (s *InMemoryStore) ReadWindow(_ context.Context, h core.ConversationHandle, maxTurns int) ([]core.Turn, error) {
	s.mu.RLock()
	conv, ok := s.conversations[h.ConversationID]
	s.mu.RUnlock()
	if !ok {
		return []core.Turn{}, nil
	}
	return conv.Window(maxTurns), nil
}

// Conversation returns the conversation for id, if it exists.
func (s *InMemoryStore) Conversation(id string) (*core.Conversation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conv, ok := s.conversations[id]
	return conv, ok
}

// IDs returns the known conversation ids in sorted order.
func (s *InMemoryStore) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.conversations))
	for id := range s.conversations {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (s *InMemoryStore) conversation(id string) *core.Conversation {
	s.mu.RLock()
	conv, ok := s.conversations[id]
	s.mu.RUnlock()
	if ok {
		return conv
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if conv, ok = s.conversations[id]; ok {
		return conv
	}
	conv = core.NewConversation(id)
	s.conversations[id] = conv
	return conv
}
