package tool

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hupe1980/chatmesh/core"
	"github.com/hupe1980/chatmesh/internal/testutil"
	"github.com/hupe1980/chatmesh/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// -------------------- FunctionTool Tests --------------------

func sumTool() *FunctionTool {
	params := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"a": map[string]any{"type": "number"},
			"b": map[string]any{"type": "number"},
		},
		"required": []string{"a", "b"},
	}
	return NewFunctionTool("sum", "Add numbers", params, func(_ context.Context, args map[string]any) (any, error) {
		return args["a"].(float64) + args["b"].(float64), nil
	})
}

func TestFunctionTool_Success(t *testing.T) {
	result, err := sumTool().Call(context.Background(), map[string]any{"a": 2.0, "b": 3.0})
	assert.NoError(t, err)
	assert.Equal(t, 5.0, result)
}

func TestFunctionTool_ValidationError(t *testing.T) {
	_, err := sumTool().Call(context.Background(), map[string]any{"a": 1.0})
	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, CodeValidation, toolErr.Code)
}

func TestFunctionTool_ExecutionError(t *testing.T) {
	params := map[string]any{"type": "object", "properties": map[string]any{}}
	execTool := NewFunctionTool("fail", "Fails", params, func(context.Context, map[string]any) (any, error) {
		return nil, errors.New("boom")
	})
	_, err := execTool.Call(context.Background(), map[string]any{})
	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, CodeExecution, toolErr.Code)
}

func TestFunctionTool_ForwardsToolError(t *testing.T) {
	params := map[string]any{"type": "object"}
	custom := NewToolError("quota", "limit reached", "RATE_LIMIT")
	execTool := NewFunctionTool("quota", "Quota", params, func(context.Context, map[string]any) (any, error) {
		return nil, custom
	})
	_, err := execTool.Call(context.Background(), map[string]any{})
	assert.Same(t, custom, err)
}

func TestFunctionToolFromStruct(t *testing.T) {
	type lookupArgs struct {
		Term string `json:"term" description:"term to look up"`
	}
	lookup := NewFunctionToolFromStruct("lookup", "Look up a term", lookupArgs{}, func(_ context.Context, args map[string]any) (any, error) {
		return "definition of " + args["term"].(string), nil
	})

	defs := Definitions([]Tool{lookup})
	require.Len(t, defs, 1)
	assert.Equal(t, "lookup", defs[0].Name)
	assert.Equal(t, []string{"term"}, defs[0].Parameters["required"])
}

func TestToolErrorFormatting(t *testing.T) {
	err := NewToolError("demo", "something failed", "E123")
	assert.Contains(t, err.Error(), "E123")
	assert.Contains(t, err.Error(), "demo")
}

func TestStaticProvider(t *testing.T) {
	p := StaticProvider{sumTool()}
	tools, err := p.Tools(context.Background())
	require.NoError(t, err)
	assert.Len(t, tools, 1)
}

// -------------------- CallingModel Tests --------------------

func call(id, name, args string) model.ToolCall {
	return model.ToolCall{ID: id, Name: name, Arguments: json.RawMessage(args)}
}

func TestCallingModel_RunsToolLoop(t *testing.T) {
	inner := testutil.NewScriptedModel("m",
		testutil.Step{Response: model.Response{ToolCalls: []model.ToolCall{call("c1", "sum", `{"a":2,"b":3}`)}}},
		testutil.Step{Chunks: []string{"The sum is 5."}},
	)
	cm := NewCallingModel(inner, []Tool{sumTool()})

	resp, err := model.Complete(context.Background(), cm, model.Request{
		Messages: []model.Message{{Role: core.RoleUser, Content: "add 2 and 3"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "The sum is 5.", resp.Text)

	reqs := inner.Requests()
	require.Len(t, reqs, 2)
	require.Len(t, reqs[0].Tools, 1, "tool definitions are declared when the request has none")

	second := reqs[1].Messages
	require.Len(t, second, 3)
	assert.Equal(t, core.RoleAssistant, second[1].Role)
	assert.Equal(t, "c1", second[1].ToolCalls[0].ID)
	assert.Equal(t, model.RoleTool, second[2].Role)
	assert.Equal(t, "c1", second[2].ToolCallID)
	assert.Equal(t, "5", second[2].Content)
}

func TestCallingModel_PassesThroughWithoutToolCalls(t *testing.T) {
	inner := testutil.Reply("m", "plain answer")
	cm := NewCallingModel(inner, nil)

	resp, err := model.Complete(context.Background(), cm, model.Request{
		Messages: []model.Message{{Role: core.RoleUser, Content: "hi"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "plain answer", resp.Text)
	assert.Equal(t, 1, inner.Calls())
	assert.True(t, cm.Info().SupportsTools)
}

func TestCallingModel_MaxIterations(t *testing.T) {
	inner := testutil.NewScriptedModel("m",
		testutil.Step{Response: model.Response{ToolCalls: []model.ToolCall{call("c", "sum", `{"a":1,"b":1}`)}}},
	)
	cm := NewCallingModel(inner, []Tool{sumTool()}, func(o *CallingOptions) { o.MaxIterations = 3 })

	_, err := model.Complete(context.Background(), cm, model.Request{
		Messages: []model.Message{{Role: core.RoleUser, Content: "loop"}},
	})
	require.ErrorIs(t, err, core.ErrModelInvocation)
	assert.Equal(t, 3, inner.Calls())
}

func TestCallingModel_InnerErrorPropagates(t *testing.T) {
	boom := errors.New("provider down")
	inner := testutil.NewScriptedModel("m", testutil.Step{Err: boom})
	cm := NewCallingModel(inner, nil)

	_, err := model.Complete(context.Background(), cm, model.Request{
		Messages: []model.Message{{Role: core.RoleUser, Content: "hi"}},
	})
	require.ErrorIs(t, err, boom)
}

func TestExecute_PreservesOrderAndIsolatesFailures(t *testing.T) {
	var running, peak atomic.Int32
	slow := NewFunctionTool("slow", "Sleeps", map[string]any{"type": "object"}, func(_ context.Context, args map[string]any) (any, error) {
		n := running.Add(1)
		defer running.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		return map[string]any{"id": args["id"]}, nil
	})
	panicky := NewFunctionTool("panicky", "Panics", map[string]any{"type": "object"}, func(context.Context, map[string]any) (any, error) {
		panic("kaboom")
	})

	cm := NewCallingModel(testutil.Reply("m", "x"), []Tool{slow, panicky}, func(o *CallingOptions) { o.MaxParallel = 2 })
	msgs := cm.Execute(context.Background(), []model.ToolCall{
		call("1", "slow", `{"id":"one"}`),
		call("2", "missing", `{}`),
		call("3", "panicky", `{}`),
		call("4", "slow", `not json`),
		call("5", "slow", `{"id":"five"}`),
	})

	require.Len(t, msgs, 5)
	for i, id := range []string{"1", "2", "3", "4", "5"} {
		assert.Equal(t, id, msgs[i].ToolCallID)
		assert.Equal(t, model.RoleTool, msgs[i].Role)
	}
	assert.JSONEq(t, `{"id":"one"}`, msgs[0].Content)
	assert.Contains(t, msgs[1].Content, CodeNotFound)
	assert.Contains(t, msgs[2].Content, CodePanic)
	assert.Contains(t, msgs[3].Content, CodeBadArgs)
	assert.JSONEq(t, `{"id":"five"}`, msgs[4].Content)
	assert.LessOrEqual(t, peak.Load(), int32(2))
}
