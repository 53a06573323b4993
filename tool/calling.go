package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/hupe1980/chatmesh/core"
	"github.com/hupe1980/chatmesh/logging"
	"github.com/hupe1980/chatmesh/model"
)

// CallingOptions configure a CallingModel.
type CallingOptions struct {
	MaxIterations int // model round trips before giving up; default 8
	MaxParallel   int // 0 or <1 => no explicit limit (len(calls))
	Logger        logging.Logger
}

// CallingModel wraps a model and runs the tool-invocation loop: whenever
// the model answers with tool calls, the calls are executed, their results
// appended to the message history and the model is invoked again until it
// produces a plain answer. Callers see it as an ordinary model.Model.
type CallingModel struct {
	inner model.Model
	tools map[string]Tool
	list  []Tool
	opts  CallingOptions
}

// NewCallingModel constructs a CallingModel over tools.
func NewCallingModel(inner model.Model, tools []Tool, optFns ...func(o *CallingOptions)) *CallingModel {
	opts := CallingOptions{MaxIterations: 8}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = 8
	}
	opts.Logger = logging.OrNoOp(opts.Logger)

	byName := make(map[string]Tool, len(tools))
	for _, t := range tools {
		byName[t.Name()] = t
	}
	return &CallingModel{inner: inner, tools: byName, list: tools, opts: opts}
}

// Info implements model.Model.
func (m *CallingModel) Info() model.Info {
	info := m.inner.Info()
	info.SupportsTools = true
	return info
}

// Generate implements model.Model. Partial text chunks of every round trip
// are forwarded; the final chunk is the answer of the last round trip.
func (m *CallingModel) Generate(ctx context.Context, req model.Request) (<-chan model.Response, <-chan error) {
	out := make(chan model.Response, 32)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		if len(req.Tools) == 0 {
			req.Tools = Definitions(m.list)
		}
		msgs := append([]model.Message(nil), req.Messages...)
		limiter := core.NewModelLimiter(m.opts.MaxIterations)

		for {
			if err := limiter.Increment(); err != nil {
				errCh <- fmt.Errorf("tool loop: %w", err)
				return
			}
			req.Messages = msgs
			final, err := m.roundTrip(ctx, req, out)
			if err != nil {
				errCh <- err
				return
			}
			if len(final.ToolCalls) == 0 {
				model.Send(ctx, out, final)
				return
			}
			msgs = append(msgs, model.Message{
				Role:      core.RoleAssistant,
				Content:   final.Text,
				ToolCalls: final.ToolCalls,
			})
			msgs = append(msgs, m.Execute(ctx, final.ToolCalls)...)
		}
	}()

	return out, errCh
}

// roundTrip runs one inner generation, forwarding partials and returning the
// final chunk.
func (m *CallingModel) roundTrip(ctx context.Context, req model.Request, out chan<- model.Response) (model.Response, error) {
	respCh, errCh := m.inner.Generate(ctx, req)

	var (
		final    model.Response
		gotFinal bool
		text     []byte
	)
	for respCh != nil || errCh != nil {
		select {
		case <-ctx.Done():
			return model.Response{}, ctx.Err()
		case r, ok := <-respCh:
			if !ok {
				respCh = nil
				continue
			}
			if r.Partial {
				text = append(text, r.Text...)
				if !model.Send(ctx, out, r) {
					return model.Response{}, ctx.Err()
				}
				continue
			}
			final, gotFinal = r, true
		case err, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}
			if err != nil {
				return model.Response{}, err
			}
		}
	}
	if !gotFinal {
		final = model.Response{Text: string(text), FinishReason: "stop"}
	}
	return final, nil
}

// Execute runs a batch of tool calls, possibly in parallel, and returns one
// tool message per call in the original call order. Failures and panics are
// reported to the model as error text rather than aborting the loop.
func (m *CallingModel) Execute(ctx context.Context, calls []model.ToolCall) []model.Message {
	n := len(calls)
	results := make([]model.Message, n)
	if n == 0 {
		return results
	}

	maxPar := m.opts.MaxParallel
	if maxPar <= 0 || maxPar > n {
		maxPar = n
	}

	var wg sync.WaitGroup
	sem := make(chan struct{}, maxPar)
	batchStart := time.Now()

	for i, call := range calls {
		if ctx.Err() != nil {
			results[i] = toolMessage(call, nil, ctx.Err())
			continue
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(idx int, call model.ToolCall) {
			defer wg.Done()
			defer func() { <-sem }()

			start := time.Now()
			result, err := m.callOne(ctx, call)
			m.opts.Logger.Info(
				"tool.call.executed",
				"tool", call.Name,
				"tool_call_id", call.ID,
				"duration_ms", time.Since(start).Milliseconds(),
				"error", err != nil,
			)
			results[idx] = toolMessage(call, result, err)
		}(i, call)
	}
	wg.Wait()

	m.opts.Logger.Debug(
		"tool.batch.complete",
		"count", n,
		"parallelism", maxPar,
		"duration_ms", time.Since(batchStart).Milliseconds(),
	)
	return results
}

func (m *CallingModel) callOne(ctx context.Context, call model.ToolCall) (result any, err error) {
	impl, ok := m.tools[call.Name]
	if !ok {
		return nil, NewToolError(call.Name, "tool not found", CodeNotFound)
	}

	args := map[string]any{}
	if len(call.Arguments) > 0 {
		if err := json.Unmarshal(call.Arguments, &args); err != nil {
			return nil, NewToolError(call.Name, fmt.Sprintf("failed to unmarshal args: %v", err), CodeBadArgs)
		}
	}

	start := time.Now()
	defer func() {
		if cl, ok := m.opts.Logger.(*logging.ChatLogger); ok {
			cl.LogToolCall(call.Name, time.Since(start), err)
		}
	}()
	defer func() {
		if r := recover(); r != nil {
			m.opts.Logger.Error("tool.call.panic", "tool", call.Name, "recover", r, "stack", string(debug.Stack()))
			result, err = nil, NewToolError(call.Name, fmt.Sprintf("panic: %v", r), CodePanic)
		}
	}()
	return impl.Call(ctx, args)
}

func toolMessage(call model.ToolCall, result any, err error) model.Message {
	msg := model.Message{Role: model.RoleTool, ToolCallID: call.ID}
	switch {
	case err != nil:
		msg.Content = "error: " + err.Error()
	default:
		msg.Content = stringify(result)
	}
	return msg
}

func stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case []byte:
		return string(val)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}
