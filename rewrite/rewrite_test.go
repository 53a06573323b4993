package rewrite

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/hupe1980/chatmesh/core"
	"github.com/hupe1980/chatmesh/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModelRewriter(t *testing.T) {
	m := testutil.Reply("rewriter", `"entropy definition in thermodynamics"`)
	r := NewModelRewriter(m)

	assert.Equal(t, "entropy definition in thermodynamics", r.Rewrite(context.Background(), "what's entropy"))

	req := m.Requests()[0]
	assert.Equal(t, DefaultInstruction, req.Instructions)
	assert.Equal(t, "what's entropy", req.LastUserMessage())
}

func TestModelRewriterFailureReturnsOriginal(t *testing.T) {
	logger := &testutil.RecordingLogger{}
	m := testutil.NewScriptedModel("rewriter", testutil.Step{Err: errors.New("rate limited")})
	r := NewModelRewriter(m, func(o *ModelOptions) { o.Logger = logger })

	assert.Equal(t, "什么是熵？", r.Rewrite(context.Background(), "什么是熵？"))
	assert.Equal(t, []string{"rewrite.failed"}, logger.Messages())

	_, err := r.TryRewrite(context.Background(), "q")
	require.ErrorIs(t, err, core.ErrRewriteFailure)
}

func TestModelRewriterEmptyOutputReturnsOriginal(t *testing.T) {
	m := testutil.NewScriptedModel("rewriter", testutil.Step{Chunks: []string{"   "}})
	r := NewModelRewriter(m)
	assert.Equal(t, "original", r.Rewrite(context.Background(), "original"))
}

func TestModelRewriterSkipsBlankQuery(t *testing.T) {
	m := testutil.Reply("rewriter", "x")
	assert.Equal(t, " ", NewModelRewriter(m).Rewrite(context.Background(), " "))
	assert.Zero(t, m.Calls())
}

func TestCached(t *testing.T) {
	var calls atomic.Int32
	inner := Func(func(_ context.Context, q string) string {
		calls.Add(1)
		return q + " (rewritten)"
	})
	c, err := NewCached(inner)
	require.NoError(t, err)
	defer c.Close()

	ctx := context.Background()
	assert.Equal(t, "q (rewritten)", c.Rewrite(ctx, "q"))
	c.Wait()
	assert.Equal(t, "q (rewritten)", c.Rewrite(ctx, "q"))
	assert.Equal(t, int32(1), calls.Load())
}

func TestCachedDoesNotCacheFailures(t *testing.T) {
	var calls atomic.Int32
	inner := Func(func(_ context.Context, q string) string {
		calls.Add(1)
		return q
	})
	c, err := NewCached(inner)
	require.NoError(t, err)
	defer c.Close()

	ctx := context.Background()
	c.Rewrite(ctx, "q")
	c.Wait()
	c.Rewrite(ctx, "q")
	assert.Equal(t, int32(2), calls.Load())
}
