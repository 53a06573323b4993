package testutil

import (
	"context"
	"strings"
	"sync"

	"github.com/hupe1980/chatmesh/model"
)

// Step scripts one Generate call of a ScriptedModel.
type Step struct {
	Chunks   []string       // streamed as partials when the request streams
	Response model.Response // final chunk; Text defaults to the joined chunks
	Err      error          // reported after the chunks instead of a final chunk
	Block    bool           // after the chunks, wait for cancellation
}

// ScriptedModel replays scripted steps, one per Generate call. The last step
// repeats once the script is exhausted. Every request is recorded.
type ScriptedModel struct {
	name string

	mu       sync.Mutex
	steps    []Step
	calls    int
	requests []model.Request
}

// NewScriptedModel creates a model named name that replays steps.
func NewScriptedModel(name string, steps ...Step) *ScriptedModel {
	return &ScriptedModel{name: name, steps: steps}
}

// Reply is shorthand for a single-step model answering text.
func Reply(name, text string) *ScriptedModel {
	return NewScriptedModel(name, Step{Chunks: splitWords(text)})
}

// Requests returns the recorded requests.
func (m *ScriptedModel) Requests() []model.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Request, len(m.requests))
	copy(out, m.requests)
	return out
}

// Calls reports how many times Generate ran.
func (m *ScriptedModel) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Info implements model.Model.
func (m *ScriptedModel) Info() model.Info {
	return model.Info{Name: m.name, Provider: "scripted", SupportsTools: true}
}

// Generate implements model.Model.
func (m *ScriptedModel) Generate(ctx context.Context, req model.Request) (<-chan model.Response, <-chan error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	var step Step
	if len(m.steps) > 0 {
		idx := m.calls
		if idx >= len(m.steps) {
			idx = len(m.steps) - 1
		}
		step = m.steps[idx]
	}
	m.calls++
	m.mu.Unlock()

	out := make(chan model.Response, len(step.Chunks)+1)
	errCh := make(chan error, 1)
	go func() {
		defer close(out)
		defer close(errCh)

		if req.Stream {
			for _, c := range step.Chunks {
				if !model.Send(ctx, out, model.Response{Partial: true, Text: c}) {
					errCh <- ctx.Err()
					return
				}
			}
		}
		if step.Block {
			<-ctx.Done()
			errCh <- ctx.Err()
			return
		}
		if step.Err != nil {
			errCh <- step.Err
			return
		}
		final := step.Response
		if final.Text == "" && len(final.ToolCalls) == 0 {
			final.Text = strings.Join(step.Chunks, "")
		}
		if final.FinishReason == "" {
			final.FinishReason = "stop"
		}
		model.Send(ctx, out, final)
	}()
	return out, errCh
}

// splitWords splits text into chunks that keep their trailing space, so the
// concatenation equals text.
func splitWords(text string) []string {
	if text == "" {
		return nil
	}
	var chunks []string
	for _, w := range strings.SplitAfter(text, " ") {
		if w != "" {
			chunks = append(chunks, w)
		}
	}
	return chunks
}
