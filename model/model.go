package model

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hupe1980/chatmesh/core"
)

// RoleTool marks a message carrying a tool result. It only exists on the
// wire to the model and is never stored as a conversation turn.
const RoleTool core.Role = "tool"

// ToolCall represents a function call request surfaced by a model provider.
// Unified across vendors so downstream logic does not need per-provider branching.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// ToolDefinition declaratively exposes a callable function to the model.
// Parameters is a JSON Schema object (draft agnostic, minimal subset expected).
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Message is one entry of the message history sent to a model.
type Message struct {
	Role       core.Role  `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`   // assistant requesting tools
	ToolCallID string     `json:"tool_call_id,omitempty"` // RoleTool results
}

// MessagesFromTurns converts stored turns into model messages.
func MessagesFromTurns(turns []core.Turn) []Message {
	msgs := make([]Message, 0, len(turns))
	for _, t := range turns {
		msgs = append(msgs, Message{Role: t.Role, Content: t.Content})
	}
	return msgs
}

// Request captures the normalized model input produced by the advisor chain.
type Request struct {
	Instructions string           `json:"instructions"` // System prompt
	Messages     []Message        `json:"messages"`
	Tools        []ToolDefinition `json:"tools,omitempty"`
	Stream       bool             `json:"stream,omitempty"`
}

// LastUserMessage returns the content of the most recent user message.
func (r Request) LastUserMessage() string {
	for i := len(r.Messages) - 1; i >= 0; i-- {
		if r.Messages[i].Role == core.RoleUser {
			return r.Messages[i].Content
		}
	}
	return ""
}

// TokenUsage captures token usage statistics for a response.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is a (partial or final) chunk emitted by a model. Partial chunks
// carry a text delta; the final chunk carries the complete text.
type Response struct {
	ID           string      `json:"id"`
	Partial      bool        `json:"partial"`
	Text         string      `json:"text"`
	ToolCalls    []ToolCall  `json:"tool_calls,omitempty"`
	FinishReason string      `json:"finish_reason"` // "stop", "length", "tool_calls", etc.
	Usage        *TokenUsage `json:"usage,omitempty"`
}

// Info contains metadata about a model implementation.
type Info struct {
	Name          string `json:"name"`
	Provider      string `json:"provider"` // "openai", "anthropic", "mock", etc.
	SupportsTools bool   `json:"supports_tools"`
}

// Model is the opaque model-invocation capability: given instructions and a
// message history it produces a response, optionally as a stream of partial
// chunks followed by a final chunk. Both channels are closed when generation ends.
type Model interface {
	Generate(ctx context.Context, req Request) (<-chan Response, <-chan error)

	// Info returns information about the model implementation.
	Info() Info
}

// Complete drains a non-streaming generation and returns the final response.
func Complete(ctx context.Context, m Model, req Request) (Response, error) {
	req.Stream = false
	respCh, errCh := m.Generate(ctx, req)

	var (
		final   Response
		gotOne  bool
		builder strings.Builder
	)
	for respCh != nil || errCh != nil {
		select {
		case <-ctx.Done():
			return Response{}, ctx.Err()
		case r, ok := <-respCh:
			if !ok {
				respCh = nil
				continue
			}
			if r.Partial {
				builder.WriteString(r.Text)
				continue
			}
			final, gotOne = r, true
		case err, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}
			if err != nil {
				return Response{}, err
			}
		}
	}
	if !gotOne {
		if builder.Len() == 0 {
			return Response{}, fmt.Errorf("model %s produced no response", m.Info().Name)
		}
		final = Response{Text: builder.String(), FinishReason: "stop"}
	}
	return final, nil
}

// Send delivers r on out unless ctx is cancelled first. It reports whether
// the response was delivered. Provider goroutines use it so an abandoned
// consumer never leaves them blocked.
func Send(ctx context.Context, out chan<- Response, r Response) bool {
	select {
	case <-ctx.Done():
		return false
	case out <- r:
		return true
	}
}
