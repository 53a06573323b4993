// Package chatmesh is the conversation orchestration façade. An Orchestrator
// resolves a model by name, assembles an advisor chain around it (logging,
// memory persistence, memory injection and, on the RAG path, retrieval) and
// runs one exchange of a multi-turn conversation:
//
//	orch, err := chatmesh.New(registry, func(o *chatmesh.Options) {
//	    o.Store = redisStore
//	    o.Searcher = searcher
//	})
//	resp, err := orch.ChatWithRAG(ctx, "gpt-4o-mini", "什么是注意力机制？", "c1")
//
// Only an unknown model name and a failed model invocation fail a call;
// memory, rewrite and retrieval problems degrade to warnings on the response.
package chatmesh

import (
	"context"
	"fmt"
	"strings"

	"github.com/hupe1980/chatmesh/advisor"
	"github.com/hupe1980/chatmesh/core"
	"github.com/hupe1980/chatmesh/logging"
	"github.com/hupe1980/chatmesh/memory"
	"github.com/hupe1980/chatmesh/model"
	"github.com/hupe1980/chatmesh/tool"
)

// Options configures the Orchestrator.
type Options struct {
	// Store holds conversation history (defaults to an in-memory store).
	Store core.ConversationStore

	// Searcher and Rewriter back the RAG path. Without a Searcher the RAG
	// calls answer unaugmented and report a retrieval warning.
	Searcher core.Searcher
	Rewriter core.QueryRewriter

	TopK            int    // documents requested per search; default 4
	TargetAudience  string // audience filter; "" keeps every document
	ContextTemplate string // default advisor.DefaultContextTemplate

	// RetrieveSize is the memory window per request (default 10); 0 injects
	// no history.
	RetrieveSize int

	// SystemPrompt defaults to DefaultSystemPrompt, also when left blank.
	SystemPrompt string

	// Tools and ToolProvider are merged for ChatWithTools; provider tools
	// replace static tools of the same name.
	Tools             []tool.Tool
	ToolProvider      tool.Provider
	MaxToolIterations int
	MaxParallelTools  int

	// Advisors are custom steps placed after the built-in ones; their
	// Before runs last and their After first.
	Advisors []advisor.Advisor

	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger
}

// CallOptions override Options for a single call.
type CallOptions struct {
	RetrieveSize int    // starts at Options.RetrieveSize; 0 or negative injects no history
	SystemPrompt string // starts at Options.SystemPrompt; blank sends none
	Metadata     map[string]any
}

// Orchestrator runs conversation exchanges. It is safe for concurrent use;
// concurrent calls on the same conversation id interleave their appends.
type Orchestrator struct {
	registry  *model.Registry
	opts      Options
	retrieval *advisor.Retrieval
}

// New creates an Orchestrator resolving models from registry.
func New(registry *model.Registry, optFns ...func(o *Options)) (*Orchestrator, error) {
	if registry == nil {
		return nil, fmt.Errorf("chatmesh: model registry required")
	}
	opts := Options{
		Store:        memory.NewInMemoryStore(),
		TopK:         4,
		RetrieveSize: advisor.DefaultRetrieveSize,
		SystemPrompt: DefaultSystemPrompt,
		Logger:       logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	opts.Logger = logging.OrNoOp(opts.Logger)
	if strings.TrimSpace(opts.SystemPrompt) == "" {
		opts.SystemPrompt = DefaultSystemPrompt
	}
	if opts.Store == nil {
		opts.Store = memory.NewInMemoryStore()
	}

	o := &Orchestrator{registry: registry, opts: opts}
	if opts.Searcher != nil {
		r, err := advisor.NewRetrieval(opts.Searcher, opts.Rewriter, func(ro *advisor.RetrievalOptions) {
			ro.TopK = opts.TopK
			ro.TargetAudience = opts.TargetAudience
			if opts.ContextTemplate != "" {
				ro.Template = opts.ContextTemplate
			}
			ro.Logger = opts.Logger
		})
		if err != nil {
			return nil, fmt.Errorf("chatmesh: retrieval step: %w", err)
		}
		o.retrieval = r
	}
	return o, nil
}

// Store returns the conversation store in use.
func (o *Orchestrator) Store() core.ConversationStore { return o.opts.Store }

// Models lists the resolvable model names.
func (o *Orchestrator) Models() []string { return o.registry.Names() }

// Chat runs one exchange and returns the complete reply.
func (o *Orchestrator) Chat(ctx context.Context, modelName, message, conversationID string, optFns ...func(o *CallOptions)) (*advisor.Response, error) {
	chain, req, err := o.prepare(ctx, modelName, message, conversationID, mode{}, optFns)
	if err != nil {
		return nil, err
	}
	return chain.Invoke(ctx, req)
}

// ChatStream runs one exchange and returns the reply as a lazy stream. The
// exchange is persisted when the stream finishes, is abandoned or is closed.
func (o *Orchestrator) ChatStream(ctx context.Context, modelName, message, conversationID string, optFns ...func(o *CallOptions)) (*advisor.Stream, error) {
	chain, req, err := o.prepare(ctx, modelName, message, conversationID, mode{}, optFns)
	if err != nil {
		return nil, err
	}
	return chain.Stream(ctx, req)
}

// ChatWithRAG is Chat with the retrieval step: the query is rewritten,
// similar documents addressed to the target audience are rendered into the
// system prompt. The original message, not the rewrite, is persisted.
func (o *Orchestrator) ChatWithRAG(ctx context.Context, modelName, message, conversationID string, optFns ...func(o *CallOptions)) (*advisor.Response, error) {
	chain, req, err := o.prepare(ctx, modelName, message, conversationID, mode{rag: true}, optFns)
	if err != nil {
		return nil, err
	}
	return chain.Invoke(ctx, req)
}

// ChatStreamWithRAG is the streaming variant of ChatWithRAG.
func (o *Orchestrator) ChatStreamWithRAG(ctx context.Context, modelName, message, conversationID string, optFns ...func(o *CallOptions)) (*advisor.Stream, error) {
	chain, req, err := o.prepare(ctx, modelName, message, conversationID, mode{rag: true}, optFns)
	if err != nil {
		return nil, err
	}
	return chain.Stream(ctx, req)
}

// ChatWithTools is Chat with the configured tools offered to the model. Tool
// calls are executed inside the model invocation step until the model
// produces a plain answer.
func (o *Orchestrator) ChatWithTools(ctx context.Context, modelName, message, conversationID string, optFns ...func(o *CallOptions)) (*advisor.Response, error) {
	chain, req, err := o.prepare(ctx, modelName, message, conversationID, mode{tools: true}, optFns)
	if err != nil {
		return nil, err
	}
	return chain.Invoke(ctx, req)
}

type mode struct {
	rag   bool
	tools bool
}

// prepare resolves the model before touching any collaborator so an unknown
// name leaves the store untouched.
func (o *Orchestrator) prepare(ctx context.Context, modelName, message, conversationID string, md mode, optFns []func(o *CallOptions)) (*advisor.Chain, *advisor.Request, error) {
	m, err := o.registry.Get(modelName)
	if err != nil {
		return nil, nil, err
	}

	call := CallOptions{RetrieveSize: o.opts.RetrieveSize, SystemPrompt: o.opts.SystemPrompt}
	for _, fn := range optFns {
		fn(&call)
	}

	if conversationID == "" {
		conversationID = core.NewID()
	}
	req := advisor.NewRequest(conversationID, message)
	req.System = call.SystemPrompt
	req.RetrieveSize = call.RetrieveSize
	for k, v := range call.Metadata {
		req.Set(k, v)
	}
	req.Set(advisor.ModelKey, modelName)

	steps := []advisor.Advisor{
		advisor.NewLogging(o.opts.Logger),
		advisor.NewMemoryPersist(o.opts.Store),
		advisor.NewMemoryInjection(o.opts.Store),
	}
	if md.rag {
		if o.retrieval != nil {
			steps = append(steps, o.retrieval)
		} else {
			req.AddWarning("retrieval", fmt.Errorf("%w: no searcher configured", core.ErrRetrievalFailure))
		}
	}
	steps = append(steps, o.opts.Advisors...)

	if md.tools {
		tools := o.tools(ctx, req)
		if len(tools) > 0 {
			req.Tools = tool.Definitions(tools)
			m = tool.NewCallingModel(m, tools, func(co *tool.CallingOptions) {
				co.MaxIterations = o.opts.MaxToolIterations
				co.MaxParallel = o.opts.MaxParallelTools
				co.Logger = o.opts.Logger
			})
		}
	}

	return advisor.NewChain(m, steps...).WithLogger(o.opts.Logger), req, nil
}

// tools merges static and provider tools. A failing provider degrades to
// the static tools and a warning.
func (o *Orchestrator) tools(ctx context.Context, req *advisor.Request) []tool.Tool {
	byName := make(map[string]int, len(o.opts.Tools))
	tools := make([]tool.Tool, 0, len(o.opts.Tools))
	add := func(t tool.Tool) {
		if i, ok := byName[t.Name()]; ok {
			tools[i] = t
			return
		}
		byName[t.Name()] = len(tools)
		tools = append(tools, t)
	}
	for _, t := range o.opts.Tools {
		add(t)
	}
	if o.opts.ToolProvider != nil {
		provided, err := o.opts.ToolProvider.Tools(ctx)
		if err != nil {
			o.opts.Logger.Warn("tools.provider_failed", "conversation_id", req.ConversationID, "error", err.Error())
			req.AddWarning("tools", err)
		}
		for _, t := range provided {
			add(t)
		}
	}
	return tools
}
