package advisor

import (
	"context"
	"fmt"
	"sync"

	"github.com/hupe1980/chatmesh/core"
	"github.com/hupe1980/chatmesh/model"
)

// DefaultRetrieveSize is the memory window used when a request does not set one.
const DefaultRetrieveSize = 10

// Advisor is one named step of a chain.
type Advisor interface {
	Name() string

	// Before may mutate the request. A returned error fails the request.
	Before(ctx context.Context, req *Request) error

	// After sees the final response. A returned error becomes a Warning.
	After(ctx context.Context, req *Request, resp *Response) error
}

// Request is the mutable state flowing through the pre phase. It carries the
// conversation id so advisors stay stateless across conversations.
type Request struct {
	ConversationID string
	UserText       string // original user message; this is what gets persisted
	RewrittenQuery string // set by Retrieval
	System         string
	History        []core.Turn
	Documents      []core.Document
	Tools          []model.ToolDefinition
	RetrieveSize   int
	Metadata       map[string]any

	mu       sync.Mutex
	warnings []Warning
}

// NewRequest creates a request with the default retrieve size.
func NewRequest(conversationID, userText string) *Request {
	return &Request{
		ConversationID: conversationID,
		UserText:       userText,
		RetrieveSize:   DefaultRetrieveSize,
		Metadata:       map[string]any{},
	}
}

// AddWarning records a degraded step.
func (r *Request) AddWarning(step string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.warnings = append(r.warnings, Warning{Step: step, Err: err})
}

// Warnings returns the warnings recorded so far.
func (r *Request) Warnings() []Warning {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Warning(nil), r.warnings...)
}

// Set stores a metadata value.
func (r *Request) Set(key string, v any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Metadata == nil {
		r.Metadata = map[string]any{}
	}
	r.Metadata[key] = v
}

// Get reads a metadata value.
func (r *Request) Get(key string) (any, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.Metadata[key]
	return v, ok
}

func (r *Request) windowSize() int {
	if r.RetrieveSize < 0 {
		return 0
	}
	return r.RetrieveSize
}

// modelRequest assembles the model input: instructions, memory window, user message.
func (r *Request) modelRequest(stream bool) model.Request {
	msgs := model.MessagesFromTurns(r.History)
	msgs = append(msgs, model.Message{Role: core.RoleUser, Content: r.UserText})
	return model.Request{
		Instructions: r.System,
		Messages:     msgs,
		Tools:        r.Tools,
		Stream:       stream,
	}
}

// Response is the result of one chain invocation.
type Response struct {
	ConversationID string            `json:"conversation_id"`
	Text           string            `json:"text"`
	FinishReason   string            `json:"finish_reason,omitempty"`
	Usage          *model.TokenUsage `json:"usage,omitempty"`
	Documents      []core.Document   `json:"documents,omitempty"`
	Warnings       []Warning         `json:"warnings,omitempty"`
	Interrupted    bool              `json:"interrupted,omitempty"` // stream ended before the model finished
}

// Warning reports a step that degraded instead of failing the request.
type Warning struct {
	Step string `json:"step"`
	Err  error  `json:"-"`
}

func (w Warning) Error() string { return fmt.Sprintf("%s: %v", w.Step, w.Err) }

// Unwrap returns the cause.
func (w Warning) Unwrap() error { return w.Err }

// MarshalText renders the warning for JSON transports.
func (w Warning) MarshalText() ([]byte, error) { return []byte(w.Error()), nil }
