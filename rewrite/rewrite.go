// Package rewrite provides core.QueryRewriter implementations. Every rewriter
// degrades to the original query on failure; a rewrite can make retrieval
// better but never make a request fail.
package rewrite

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hupe1980/chatmesh/core"
	"github.com/hupe1980/chatmesh/logging"
	"github.com/hupe1980/chatmesh/model"
)

// DefaultInstruction asks the model for a retrieval-friendly query.
const DefaultInstruction = `You are a query rewriting component of a retrieval system.
Rewrite the user's query so that it is specific, self-contained and well suited for
similarity search over a knowledge base. Keep the query's language. Answer with the
rewritten query only, without explanations or quotes.`

// Func adapts a plain function to core.QueryRewriter.
type Func func(ctx context.Context, query string) string

// Rewrite implements core.QueryRewriter.
func (f Func) Rewrite(ctx context.Context, query string) string { return f(ctx, query) }

// ModelOptions configure a ModelRewriter.
type ModelOptions struct {
	Instruction string
	Timeout     time.Duration // 0 = bounded only by the caller's context
	Logger      logging.Logger
}

// ModelRewriter rewrites queries with a language model.
type ModelRewriter struct {
	model model.Model
	opts  ModelOptions
}

// NewModelRewriter creates a model-backed rewriter.
func NewModelRewriter(m model.Model, optFns ...func(o *ModelOptions)) *ModelRewriter {
	opts := ModelOptions{Instruction: DefaultInstruction}
	for _, fn := range optFns {
		fn(&opts)
	}
	opts.Logger = logging.OrNoOp(opts.Logger)
	return &ModelRewriter{model: m, opts: opts}
}

// Rewrite implements core.QueryRewriter.
func (r *ModelRewriter) Rewrite(ctx context.Context, query string) string {
	if strings.TrimSpace(query) == "" {
		return query
	}
	rewritten, err := r.TryRewrite(ctx, query)
	if err != nil {
		r.opts.Logger.Warn("rewrite.failed", "query", query, "error", err.Error())
		return query
	}
	return rewritten
}

// TryRewrite is Rewrite with the failure reported. Errors match
// core.ErrRewriteFailure.
func (r *ModelRewriter) TryRewrite(ctx context.Context, query string) (string, error) {
	if r.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.opts.Timeout)
		defer cancel()
	}

	resp, err := model.Complete(ctx, r.model, model.Request{
		Instructions: r.opts.Instruction,
		Messages:     []model.Message{{Role: core.RoleUser, Content: query}},
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", core.ErrRewriteFailure, err)
	}
	out := strings.Trim(strings.TrimSpace(resp.Text), "\"'“”")
	if out == "" {
		return "", fmt.Errorf("%w: empty rewrite", core.ErrRewriteFailure)
	}
	return out, nil
}
