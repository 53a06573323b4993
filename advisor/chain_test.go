package advisor

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/hupe1980/chatmesh/core"
	"github.com/hupe1980/chatmesh/internal/testutil"
	"github.com/hupe1980/chatmesh/logging"
	"github.com/hupe1980/chatmesh/memory"
	"github.com/hupe1980/chatmesh/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingAdvisor struct {
	name   string
	trace  *[]string
	before error
	after  error
	panics bool
}

func (a *recordingAdvisor) Name() string { return a.name }

func (a *recordingAdvisor) Before(context.Context, *Request) error {
	*a.trace = append(*a.trace, "before:"+a.name)
	return a.before
}

func (a *recordingAdvisor) After(context.Context, *Request, *Response) error {
	*a.trace = append(*a.trace, "after:"+a.name)
	if a.panics {
		panic("after exploded")
	}
	return a.after
}

func defaultChain(m model.Model, store core.ConversationStore, extra ...Advisor) *Chain {
	advisors := []Advisor{
		NewLogging(nil),
		NewMemoryPersist(store),
		NewMemoryInjection(store),
	}
	return NewChain(m, append(advisors, extra...)...)
}

func TestChainOrder(t *testing.T) {
	var trace []string
	chain := NewChain(testutil.Reply("m", "ok"),
		&recordingAdvisor{name: "a", trace: &trace},
		&recordingAdvisor{name: "b", trace: &trace},
		&recordingAdvisor{name: "c", trace: &trace},
	)

	_, err := chain.Invoke(context.Background(), NewRequest("c", "hi"))
	require.NoError(t, err)
	assert.Equal(t, []string{"before:a", "before:b", "before:c", "after:c", "after:b", "after:a"}, trace)
	assert.Equal(t, []string{"a", "b", "c"}, chain.Advisors())
}

func TestChainEntropyConversation(t *testing.T) {
	ctx := context.Background()
	store := memory.NewInMemoryStore()
	m := testutil.NewScriptedModel("m",
		testutil.Step{Chunks: []string{"熵是系统无序程度的度量。"}},
		testutil.Step{Chunks: []string{"例如冰融化成水，熵增加。"}},
	)
	chain := defaultChain(m, store)

	resp, err := chain.Invoke(ctx, NewRequest("c1", "什么是熵？"))
	require.NoError(t, err)
	assert.Equal(t, "熵是系统无序程度的度量。", resp.Text)
	assert.Empty(t, resp.Warnings)

	_, err = chain.Invoke(ctx, NewRequest("c1", "举个例子"))
	require.NoError(t, err)

	second := m.Requests()[1].Messages
	require.Len(t, second, 3, "two remembered turns plus the new message")
	assert.Equal(t, core.RoleUser, second[0].Role)
	assert.Equal(t, "什么是熵？", second[0].Content)
	assert.Equal(t, core.RoleAssistant, second[1].Role)
	assert.Equal(t, "举个例子", second[2].Content)

	turns, err := store.ReadWindow(ctx, core.ConversationHandle{ConversationID: "c1"}, 10)
	require.NoError(t, err)
	assert.Len(t, turns, 4)
}

func TestChainRespectsRetrieveSize(t *testing.T) {
	ctx := context.Background()
	store := memory.NewInMemoryStore()
	// 10 seeded turns; every invoke below persists two more
	require.NoError(t, testutil.NewTurnBuilder().Exchanges(5).Seed(ctx, store, "c"))
	m := testutil.Reply("m", "ok")
	chain := defaultChain(m, store)

	for _, tc := range []struct {
		size int
		want int
	}{{3, 3}, {0, 0}, {-2, 0}, {50, 16}} {
		req := NewRequest("c", "next")
		req.RetrieveSize = tc.size
		_, err := chain.Invoke(ctx, req)
		require.NoError(t, err)
		last := m.Requests()[len(m.Requests())-1]
		assert.Len(t, last.Messages, tc.want+1, "size %d", tc.size)
	}
}

func TestChainModelFailureDoesNotPersist(t *testing.T) {
	ctx := context.Background()
	store := memory.NewInMemoryStore()
	boom := errors.New("provider down")
	chain := defaultChain(testutil.NewScriptedModel("m", testutil.Step{Err: boom}), store)

	_, err := chain.Invoke(ctx, NewRequest("c", "hi"))
	require.ErrorIs(t, err, core.ErrModelInvocation)
	require.ErrorIs(t, err, boom)

	turns, _ := store.ReadWindow(ctx, core.ConversationHandle{ConversationID: "c"}, 10)
	assert.Empty(t, turns)
}

func TestChainPersistFailureIsWarning(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewFlakyStore(memory.NewInMemoryStore())
	store.FailAppend.Store(true)
	chain := defaultChain(testutil.Reply("m", "answer"), store)

	resp, err := chain.Invoke(ctx, NewRequest("c", "hi"))
	require.NoError(t, err)
	assert.Equal(t, "answer", resp.Text)
	require.Len(t, resp.Warnings, 1)
	assert.Equal(t, "memory_persist", resp.Warnings[0].Step)
	assert.ErrorIs(t, resp.Warnings[0], core.ErrMemoryBackendUnavailable)
}

func TestChainReadFailureInjectsEmptyWindow(t *testing.T) {
	ctx := context.Background()
	inner := memory.NewInMemoryStore()
	require.NoError(t, testutil.NewTurnBuilder().Exchanges(2).Seed(ctx, inner, "c"))
	store := testutil.NewFlakyStore(inner)
	store.FailRead.Store(true)
	m := testutil.Reply("m", "answer")

	resp, err := defaultChain(m, store).Invoke(ctx, NewRequest("c", "hi"))
	require.NoError(t, err)
	assert.Len(t, m.Requests()[0].Messages, 1)
	require.Len(t, resp.Warnings, 1)
	assert.Equal(t, "memory_injection", resp.Warnings[0].Step)

	turns, _ := inner.ReadWindow(ctx, core.ConversationHandle{ConversationID: "c"}, 10)
	assert.Len(t, turns, 6, "writes still succeed")
}

func TestChainCustomAdvisorVeto(t *testing.T) {
	var trace []string
	veto := errors.New("blocked by policy")
	m := testutil.Reply("m", "never")
	chain := NewChain(m, &recordingAdvisor{name: "policy", trace: &trace, before: veto})

	_, err := chain.Invoke(context.Background(), NewRequest("c", "hi"))
	require.ErrorIs(t, err, veto)
	assert.Zero(t, m.Calls())
}

func TestChainAfterErrorsAndPanicsBecomeWarnings(t *testing.T) {
	var trace []string
	chain := NewChain(testutil.Reply("m", "ok"),
		&recordingAdvisor{name: "outer", trace: &trace},
		&recordingAdvisor{name: "failing", trace: &trace, after: errors.New("nope")},
		&recordingAdvisor{name: "panicky", trace: &trace, panics: true},
	)

	resp, err := chain.Invoke(context.Background(), NewRequest("c", "hi"))
	require.NoError(t, err)
	require.Len(t, resp.Warnings, 2)
	assert.Equal(t, "panicky", resp.Warnings[0].Step)
	assert.Equal(t, "failing", resp.Warnings[1].Step)
	assert.Contains(t, trace, "after:outer", "later steps still run")
}

func TestLoggingAdvisorNeverFails(t *testing.T) {
	chain := NewChain(testutil.Reply("m", "ok"), NewLogging(testutil.PanicLogger{}))
	resp, err := chain.Invoke(context.Background(), NewRequest("c", "hi"))
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Text)
	assert.Empty(t, resp.Warnings)
}

func TestLoggingAdvisorRecords(t *testing.T) {
	logger := &testutil.RecordingLogger{}
	store := testutil.NewFlakyStore(memory.NewInMemoryStore())
	store.FailAppend.Store(true)
	chain := defaultChain(testutil.Reply("m", "ok"), store)
	chain.advisors[0] = NewLogging(logger)

	_, err := chain.Invoke(context.Background(), NewRequest("c", "hi"))
	require.NoError(t, err)
	assert.Equal(t, []string{"chat.request", "chat.response", "chat.degraded"}, logger.Messages())
}

func TestLoggingAdvisorChatLoggerModelCall(t *testing.T) {
	var buf bytes.Buffer
	cfg := logging.DefaultLoggerConfig()
	cfg.Output = &buf
	chain := NewChain(testutil.Reply("m", "ok"), NewLogging(logging.NewLogger(cfg)))
	req := NewRequest("c", "hi")
	req.Set(ModelKey, "gpt-4o-mini")

	_, err := chain.Invoke(context.Background(), req)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "model call completed")
	assert.Contains(t, buf.String(), `"model":"gpt-4o-mini"`)
}

func TestChainPassesToolsThrough(t *testing.T) {
	m := testutil.Reply("m", "ok")
	req := NewRequest("c", "hi")
	req.Tools = []model.ToolDefinition{{Name: "lookup"}}

	_, err := defaultChain(m, memory.NewInMemoryStore()).Invoke(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, req.Tools, m.Requests()[0].Tools)
}
