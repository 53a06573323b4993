package core

import "context"

// ConversationHandle addresses a conversation inside a ConversationStore.
// Handles obtained for the same id from the same store refer to the same
// underlying conversation.
type ConversationHandle struct {
	ConversationID string
}

// ConversationStore persists and retrieves per-conversation turn history.
// Implementations differ in durability and sharing (process memory, local
// files, a shared key-value store) but must all satisfy:
//   - ReadWindow after N AppendTurn calls returns the last min(N, maxTurns)
//     turns in original append order
//   - appends to different conversation ids never interfere
//   - I/O failures are reported as errors matching ErrMemoryBackendUnavailable
type ConversationStore interface {
	GetOrCreate(ctx context.Context, conversationID string) (ConversationHandle, error)
	AppendTurn(ctx context.Context, handle ConversationHandle, turn Turn) error
	ReadWindow(ctx context.Context, handle ConversationHandle, maxTurns int) ([]Turn, error)
}
