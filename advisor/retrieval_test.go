package advisor

import (
	"context"
	"testing"

	"github.com/hupe1980/chatmesh/core"
	"github.com/hupe1980/chatmesh/internal/testutil"
	"github.com/hupe1980/chatmesh/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func doc(id string, score float64, audience string) core.Document {
	return core.Document{
		ID:       id,
		Content:  "content of " + id,
		Score:    score,
		Metadata: map[string]string{core.AudienceKey: audience},
	}
}

func TestFilterByAudience(t *testing.T) {
	docs := []core.Document{
		doc("a", 0.9, "硕士生"),
		doc("b", 0.8, "本科生"),
		doc("c", 0.7, "硕士生"),
	}

	kept := FilterByAudience(docs, "硕士生")
	require.Len(t, kept, 2)
	assert.Equal(t, "a", kept[0].ID)
	assert.Equal(t, "c", kept[1].ID)
	assert.Len(t, docs, 3, "input untouched")

	assert.Len(t, FilterByAudience(docs, ""), 3)
	assert.Empty(t, FilterByAudience(docs, "博士生"))
	assert.NotNil(t, FilterByAudience(nil, "x"))
}

func TestFilterByAudienceOrdersByScoreStable(t *testing.T) {
	docs := []core.Document{
		doc("low", 0.1, "t"),
		doc("tie1", 0.5, "t"),
		doc("high", 0.9, "t"),
		doc("tie2", 0.5, "t"),
		{ID: "untagged", Score: 1.0},
	}
	kept := FilterByAudience(docs, "t")
	ids := make([]string, len(kept))
	for i, d := range kept {
		ids[i] = d.ID
	}
	assert.Equal(t, []string{"high", "tie1", "tie2", "low"}, ids)
}

func ragChain(t *testing.T, m *testutil.ScriptedModel, store core.ConversationStore, searcher core.Searcher, rewriter core.QueryRewriter, audience string) *Chain {
	t.Helper()
	r, err := NewRetrieval(searcher, rewriter, func(o *RetrievalOptions) {
		o.TopK = 3
		o.TargetAudience = audience
	})
	require.NoError(t, err)
	return defaultChain(m, store, r)
}

func TestRetrievalInjectsSurvivingDocuments(t *testing.T) {
	searcher := &testutil.RecordingSearcher{Docs: []core.Document{
		doc("a", 0.9, "硕士生"),
		doc("b", 0.8, "本科生"),
		doc("c", 0.7, "硕士生"),
	}}
	m := testutil.Reply("m", "grounded answer")
	chain := ragChain(t, m, memory.NewInMemoryStore(), searcher, nil, "硕士生")

	req := NewRequest("c", "what is entropy")
	req.System = "You are helpful."
	resp, err := chain.Invoke(context.Background(), req)
	require.NoError(t, err)

	require.Len(t, resp.Documents, 2)
	system := m.Requests()[0].Instructions
	assert.Contains(t, system, "You are helpful.")
	assert.Contains(t, system, "[1] content of a")
	assert.Contains(t, system, "[2] content of c")
	assert.NotContains(t, system, "content of b")
}

func TestRetrievalEmptyResultLeavesPromptUnchanged(t *testing.T) {
	m := testutil.Reply("m", "ok")
	chain := ragChain(t, m, memory.NewInMemoryStore(), &testutil.RecordingSearcher{}, nil, "硕士生")

	req := NewRequest("c", "q")
	req.System = "base prompt"
	resp, err := chain.Invoke(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "base prompt", m.Requests()[0].Instructions)
	assert.Empty(t, resp.Documents)
	assert.Empty(t, resp.Warnings)
}

func TestRetrievalAllFilteredLeavesPromptUnchanged(t *testing.T) {
	searcher := &testutil.RecordingSearcher{Docs: []core.Document{doc("b", 0.8, "本科生")}}
	m := testutil.Reply("m", "ok")
	chain := ragChain(t, m, memory.NewInMemoryStore(), searcher, nil, "硕士生")

	req := NewRequest("c", "q")
	req.System = "base prompt"
	_, err := chain.Invoke(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "base prompt", m.Requests()[0].Instructions)
}

func TestRetrievalSearchFailureDegrades(t *testing.T) {
	m := testutil.Reply("m", "ok")
	chain := ragChain(t, m, memory.NewInMemoryStore(), testutil.FailingSearcher{}, nil, "")

	resp, err := chain.Invoke(context.Background(), NewRequest("c", "q"))
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Text)
	require.Len(t, resp.Warnings, 1)
	assert.Equal(t, "retrieval", resp.Warnings[0].Step)
	assert.ErrorIs(t, resp.Warnings[0], core.ErrRetrievalFailure)
}

func TestRetrievalUsesRewrittenQueryButPersistsOriginal(t *testing.T) {
	ctx := context.Background()
	store := memory.NewInMemoryStore()
	searcher := &testutil.RecordingSearcher{}
	rewriter := testutil.RewriterFunc(func(context.Context, string) string { return "entropy definition thermodynamics" })
	m := testutil.Reply("m", "ok")

	_, err := ragChain(t, m, store, searcher, rewriter, "").Invoke(ctx, NewRequest("c", "熵是什么"))
	require.NoError(t, err)

	assert.Equal(t, []string{"entropy definition thermodynamics"}, searcher.Queries())
	assert.Equal(t, "熵是什么", m.Requests()[0].LastUserMessage())

	turns, _ := store.ReadWindow(ctx, core.ConversationHandle{ConversationID: "c"}, 10)
	require.Len(t, turns, 2)
	assert.Equal(t, "熵是什么", turns[0].Content)
}

func TestRetrievalEmptyRewriteFallsBackToOriginal(t *testing.T) {
	searcher := &testutil.RecordingSearcher{}
	rewriter := testutil.RewriterFunc(func(context.Context, string) string { return "   " })

	_, err := ragChain(t, testutil.Reply("m", "ok"), memory.NewInMemoryStore(), searcher, rewriter, "").
		Invoke(context.Background(), NewRequest("c", "original question"))
	require.NoError(t, err)
	assert.Equal(t, []string{"original question"}, searcher.Queries())
}

func TestNewRetrievalRejectsBadTemplate(t *testing.T) {
	_, err := NewRetrieval(&testutil.RecordingSearcher{}, nil, func(o *RetrievalOptions) { o.Template = "{{.Broken" })
	require.Error(t, err)
}
