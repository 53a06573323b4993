package advisor

import (
	"context"
	"errors"
	"testing"

	"github.com/hupe1980/chatmesh/core"
	"github.com/hupe1980/chatmesh/internal/testutil"
	"github.com/hupe1980/chatmesh/memory"
	"github.com/hupe1980/chatmesh/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func storedTurns(t *testing.T, store core.ConversationStore, id string) []core.Turn {
	t.Helper()
	turns, err := store.ReadWindow(context.Background(), core.ConversationHandle{ConversationID: id}, 100)
	require.NoError(t, err)
	return turns
}

func TestStreamCollect(t *testing.T) {
	store := memory.NewInMemoryStore()
	m := testutil.NewScriptedModel("m", testutil.Step{Chunks: []string{"Hello ", "world"}})

	stream, err := defaultChain(m, store).Stream(context.Background(), NewRequest("s", "hi"))
	require.NoError(t, err)

	var chunks []string
	for chunk, err := range stream.Iter() {
		require.NoError(t, err)
		chunks = append(chunks, chunk)
	}
	assert.Equal(t, []string{"Hello ", "world"}, chunks)

	resp, err := stream.Response()
	require.NoError(t, err)
	assert.Equal(t, "Hello world", resp.Text)
	assert.False(t, resp.Interrupted)

	turns := storedTurns(t, store, "s")
	require.Len(t, turns, 2)
	assert.Equal(t, "Hello world", turns[1].Content)
	assert.True(t, m.Requests()[0].Stream)
}

func TestStreamIsLazy(t *testing.T) {
	m := testutil.Reply("m", "x")
	stream, err := NewChain(m).Stream(context.Background(), NewRequest("s", "hi"))
	require.NoError(t, err)
	assert.Zero(t, m.Calls())

	_, err = stream.Collect()
	require.NoError(t, err)
	assert.Equal(t, 1, m.Calls())
}

func TestStreamBreakPersistsPartialOutput(t *testing.T) {
	store := memory.NewInMemoryStore()
	m := testutil.NewScriptedModel("m", testutil.Step{Chunks: []string{"Hello ", "world"}})

	stream, err := defaultChain(m, store).Stream(context.Background(), NewRequest("s", "hi"))
	require.NoError(t, err)
	for chunk := range stream.Iter() {
		assert.Equal(t, "Hello ", chunk)
		break
	}

	resp, err := stream.Response()
	require.NoError(t, err)
	assert.True(t, resp.Interrupted)

	turns := storedTurns(t, store, "s")
	require.Len(t, turns, 2)
	assert.Equal(t, "hi", turns[0].Content)
	assert.Equal(t, "Hello ", turns[1].Content)
}

func TestStreamContextCancelPersistsPartialOutput(t *testing.T) {
	store := memory.NewInMemoryStore()
	m := testutil.NewScriptedModel("m", testutil.Step{Chunks: []string{"partial "}, Block: true})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream, err := defaultChain(m, store).Stream(ctx, NewRequest("s", "hi"))
	require.NoError(t, err)

	var got []string
	for chunk, err := range stream.Iter() {
		require.NoError(t, err)
		got = append(got, chunk)
		cancel()
	}
	assert.Equal(t, []string{"partial "}, got)

	resp, err := stream.Response()
	require.NoError(t, err)
	assert.True(t, resp.Interrupted)

	turns := storedTurns(t, store, "s")
	require.Len(t, turns, 2)
	assert.Equal(t, "partial ", turns[1].Content)
}

func TestStreamSecondIterationFails(t *testing.T) {
	stream, err := NewChain(testutil.Reply("m", "x")).Stream(context.Background(), NewRequest("s", "hi"))
	require.NoError(t, err)
	_, err = stream.Collect()
	require.NoError(t, err)

	for _, err := range stream.Iter() {
		require.ErrorIs(t, err, core.ErrStreamConsumed)
	}
	_, err = stream.Collect()
	require.ErrorIs(t, err, core.ErrStreamConsumed)
}

func TestStreamCloseWithoutIterationPersistsUserTurn(t *testing.T) {
	store := memory.NewInMemoryStore()
	m := testutil.Reply("m", "never")
	stream, err := defaultChain(m, store).Stream(context.Background(), NewRequest("s", "hi"))
	require.NoError(t, err)

	require.NoError(t, stream.Close())
	require.NoError(t, stream.Close())
	assert.Zero(t, m.Calls())

	turns := storedTurns(t, store, "s")
	require.Len(t, turns, 1)
	assert.Equal(t, core.RoleUser, turns[0].Role)
}

func TestStreamModelErrorWithoutOutput(t *testing.T) {
	store := memory.NewInMemoryStore()
	boom := errors.New("provider down")
	m := testutil.NewScriptedModel("m", testutil.Step{Err: boom})

	stream, err := defaultChain(m, store).Stream(context.Background(), NewRequest("s", "hi"))
	require.NoError(t, err)

	_, err = stream.Collect()
	require.ErrorIs(t, err, core.ErrModelInvocation)
	require.ErrorIs(t, err, boom)
	assert.Empty(t, storedTurns(t, store, "s"))
}

func TestStreamModelErrorAfterOutputPersistsPartial(t *testing.T) {
	store := memory.NewInMemoryStore()
	boom := errors.New("connection reset")
	m := testutil.NewScriptedModel("m", testutil.Step{Chunks: []string{"half an "}, Err: boom})

	stream, err := defaultChain(m, store).Stream(context.Background(), NewRequest("s", "hi"))
	require.NoError(t, err)

	resp, err := stream.Collect()
	require.ErrorIs(t, err, boom)
	require.NotNil(t, resp)
	assert.True(t, resp.Interrupted)

	turns := storedTurns(t, store, "s")
	require.Len(t, turns, 2)
	assert.Equal(t, "half an ", turns[1].Content)
}

func TestStreamNonStreamingModel(t *testing.T) {
	// no partial chunks, only a final response
	m := testutil.NewScriptedModel("m", testutil.Step{Response: model.Response{Text: "complete reply"}})
	stream, err := NewChain(m).Stream(context.Background(), NewRequest("s", "hi"))
	require.NoError(t, err)

	var chunks []string
	for chunk, err := range stream.Iter() {
		require.NoError(t, err)
		chunks = append(chunks, chunk)
	}
	assert.Equal(t, []string{"complete reply"}, chunks)
}
