// Package memorytest provides the conformance suite every
// core.ConversationStore implementation runs from its own tests.
package memorytest

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/hupe1980/chatmesh/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory returns a fresh, empty store for one subtest.
type Factory func(t *testing.T) core.ConversationStore

// Run executes the conformance suite against stores produced by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Helper()

	t.Run("WindowReturnsLastTurnsInOrder", func(t *testing.T) { testWindow(t, newStore(t)) })
	t.Run("UnknownConversationIsEmpty", func(t *testing.T) { testUnknown(t, newStore(t)) })
	t.Run("GetOrCreateIsIdempotent", func(t *testing.T) { testIdempotent(t, newStore(t)) })
	t.Run("ConversationsAreIsolated", func(t *testing.T) { testIsolation(t, newStore(t)) })
	t.Run("TurnsRoundTrip", func(t *testing.T) { testRoundTrip(t, newStore(t)) })
	t.Run("InvalidRoleRejected", func(t *testing.T) { testInvalidRole(t, newStore(t)) })
	t.Run("LongMultibyteID", func(t *testing.T) { testLongID(t, newStore(t)) })
}

func testWindow(t *testing.T, store core.ConversationStore) {
	ctx := context.Background()
	for _, n := range []int{0, 1, 3, 12} {
		id := fmt.Sprintf("window-%d", n)
		h, err := store.GetOrCreate(ctx, id)
		require.NoError(t, err)

		var appended []string
		for i := 0; i < n; i++ {
			content := fmt.Sprintf("turn-%d", i)
			role := core.RoleUser
			if i%2 == 1 {
				role = core.RoleAssistant
			}
			require.NoError(t, store.AppendTurn(ctx, h, core.NewTurn(role, content)))
			appended = append(appended, content)
		}

		for _, max := range []int{-1, 0, 1, 5, 10, 20} {
			got, err := store.ReadWindow(ctx, h, max)
			require.NoError(t, err)

			want := min(n, max)
			if want < 0 {
				want = 0
			}
			require.Len(t, got, want, "n=%d max=%d", n, max)
			for i, turn := range got {
				assert.Equal(t, appended[n-want+i], turn.Content, "n=%d max=%d idx=%d", n, max, i)
			}
		}
	}
}

func testUnknown(t *testing.T, store core.ConversationStore) {
	got, err := store.ReadWindow(context.Background(), core.ConversationHandle{ConversationID: "never-seen"}, 10)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func testIdempotent(t *testing.T, store core.ConversationStore) {
	ctx := context.Background()
	h1, err := store.GetOrCreate(ctx, "same")
	require.NoError(t, err)
	require.NoError(t, store.AppendTurn(ctx, h1, core.NewUserTurn("hello")))

	h2, err := store.GetOrCreate(ctx, "same")
	require.NoError(t, err)
	assert.Equal(t, h1.ConversationID, h2.ConversationID)

	got, err := store.ReadWindow(ctx, h2, 10)
	require.NoError(t, err)
	require.Len(t, got, 1, "GetOrCreate must not reset an existing conversation")
	assert.Equal(t, "hello", got[0].Content)
}

func testIsolation(t *testing.T, store core.ConversationStore) {
	ctx := context.Background()
	const (
		conversations = 4
		perConv       = 10
	)

	var wg sync.WaitGroup
	errs := make(chan error, conversations*perConv)
	for c := 0; c < conversations; c++ {
		wg.Add(1)
		go func(c int) {
			defer wg.Done()
			id := fmt.Sprintf("iso-%d", c)
			h, err := store.GetOrCreate(ctx, id)
			if err != nil {
				errs <- err
				return
			}
			for i := 0; i < perConv; i++ {
				if err := store.AppendTurn(ctx, h, core.NewUserTurn(fmt.Sprintf("%s/%d", id, i))); err != nil {
					errs <- err
				}
			}
		}(c)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	for c := 0; c < conversations; c++ {
		id := fmt.Sprintf("iso-%d", c)
		got, err := store.ReadWindow(ctx, core.ConversationHandle{ConversationID: id}, 100)
		require.NoError(t, err)
		require.Len(t, got, perConv)
		for i, turn := range got {
			assert.Equal(t, fmt.Sprintf("%s/%d", id, i), turn.Content)
		}
	}
}

func testRoundTrip(t *testing.T, store core.ConversationStore) {
	ctx := context.Background()
	h, err := store.GetOrCreate(ctx, "会话/1?")
	require.NoError(t, err)

	in := []core.Turn{
		core.NewTurn(core.RoleSystem, "You are helpful."),
		core.NewUserTurn("什么是熵？"),
		core.NewAssistantTurn("熵是无序程度的度量。\n\n第二段"),
	}
	for _, turn := range in {
		require.NoError(t, store.AppendTurn(ctx, h, turn))
	}

	got, err := store.ReadWindow(ctx, h, len(in))
	require.NoError(t, err)
	require.Len(t, got, len(in))
	for i := range in {
		assert.Equal(t, in[i].ID, got[i].ID)
		assert.Equal(t, in[i].Role, got[i].Role)
		assert.Equal(t, in[i].Content, got[i].Content)
		assert.True(t, in[i].Timestamp.Equal(got[i].Timestamp), "timestamp %d", i)
	}
}

func testInvalidRole(t *testing.T, store core.ConversationStore) {
	ctx := context.Background()
	h, err := store.GetOrCreate(ctx, "roles")
	require.NoError(t, err)
	assert.Error(t, store.AppendTurn(ctx, h, core.Turn{ID: "x", Role: "robot", Content: "beep"}))
}

func testLongID(t *testing.T, store core.ConversationStore) {
	ctx := context.Background()
	id := strings.Repeat("会", 200)
	h, err := store.GetOrCreate(ctx, id)
	require.NoError(t, err)
	require.NoError(t, store.AppendTurn(ctx, h, core.NewUserTurn("q")))
	require.NoError(t, store.AppendTurn(ctx, h, core.NewAssistantTurn("a")))

	got, err := store.ReadWindow(ctx, h, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].Content)

	other, err := store.ReadWindow(ctx, core.ConversationHandle{ConversationID: strings.Repeat("会", 199)}, 10)
	require.NoError(t, err)
	assert.Empty(t, other)
}
