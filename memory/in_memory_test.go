package memory

import (
	"context"
	"testing"

	"github.com/hupe1980/chatmesh/core"
	"github.com/hupe1980/chatmesh/memory/memorytest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryStoreConformance(t *testing.T) {
	memorytest.Run(t, func(*testing.T) core.ConversationStore { return NewInMemoryStore() })
}

func TestInMemoryStoreEntropyConversation(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()

	h, err := store.GetOrCreate(ctx, "c1")
	require.NoError(t, err)
	require.NoError(t, store.AppendTurn(ctx, h, core.NewUserTurn("什么是熵？")))
	require.NoError(t, store.AppendTurn(ctx, h, core.NewAssistantTurn("熵是系统无序程度的度量。")))

	got, err := store.ReadWindow(ctx, h, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, core.RoleUser, got[0].Role)
	assert.Equal(t, core.RoleAssistant, got[1].Role)

	conv, ok := store.Conversation("c1")
	require.True(t, ok)
	assert.Equal(t, 2, conv.Len())
	assert.Equal(t, []string{"c1"}, store.IDs())
}

func TestInMemoryStoreWindowIsACopy(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	h, _ := store.GetOrCreate(ctx, "copy")
	require.NoError(t, store.AppendTurn(ctx, h, core.NewUserTurn("original")))

	got, err := store.ReadWindow(ctx, h, 1)
	require.NoError(t, err)
	got[0].Content = "mutated"

	again, err := store.ReadWindow(ctx, h, 1)
	require.NoError(t, err)
	assert.Equal(t, "original", again[0].Content)
}
