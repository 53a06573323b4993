package advisor

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"text/template"

	"github.com/hupe1980/chatmesh/core"
	"github.com/hupe1980/chatmesh/internal/util"
	"github.com/hupe1980/chatmesh/logging"
)

// DefaultContextTemplate renders surviving documents into the system prompt.
// It receives .Query and .Documents.
const DefaultContextTemplate = `Context information is below.
---------------------
{{range $i, $d := .Documents}}[{{inc $i}}] {{trim $d.Content}}
{{end}}---------------------
Given the context and the conversation history, and not prior knowledge, reply to the user.
If the answer is not in the context, say that you cannot answer the question.`

// RetrievalOptions configure the retrieval step.
type RetrievalOptions struct {
	TopK           int    // documents requested from the searcher; default 4
	TargetAudience string // "" keeps every document
	Template       string // context template; default DefaultContextTemplate
	Logger         logging.Logger
}

// Retrieval rewrites the user query, searches for similar documents, keeps
// those addressed to the target audience and renders them into the system
// prompt. Rewrite and search failures never fail the request.
type Retrieval struct {
	searcher core.Searcher
	rewriter core.QueryRewriter
	opts     RetrievalOptions
	tmpl     *template.Template
}

// NewRetrieval creates the retrieval step. rewriter may be nil.
func NewRetrieval(searcher core.Searcher, rewriter core.QueryRewriter, optFns ...func(o *RetrievalOptions)) (*Retrieval, error) {
	opts := RetrievalOptions{TopK: 4, Template: DefaultContextTemplate}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.TopK <= 0 {
		opts.TopK = 4
	}
	opts.Logger = logging.OrNoOp(opts.Logger)

	tmpl, err := util.ParseTemplate("context", opts.Template)
	if err != nil {
		return nil, err
	}
	return &Retrieval{searcher: searcher, rewriter: rewriter, opts: opts, tmpl: tmpl}, nil
}

func (*Retrieval) Name() string { return "retrieval" }

func (r *Retrieval) Before(ctx context.Context, req *Request) error {
	query := req.UserText
	if r.rewriter != nil {
		if rewritten := strings.TrimSpace(r.rewriter.Rewrite(ctx, query)); rewritten != "" {
			query = rewritten
		}
	}
	req.RewrittenQuery = query

	docs, err := r.searcher.Search(ctx, query, r.opts.TopK)
	if err != nil {
		if !errors.Is(err, core.ErrRetrievalFailure) {
			err = fmt.Errorf("%w: %w", core.ErrRetrievalFailure, err)
		}
		r.opts.Logger.Warn("retrieval.search_failed", "conversation_id", req.ConversationID, "error", err.Error())
		req.AddWarning(r.Name(), err)
		docs = nil
	}

	req.Documents = FilterByAudience(docs, r.opts.TargetAudience)
	r.opts.Logger.Debug("retrieval.documents",
		"conversation_id", req.ConversationID,
		"retrieved", len(docs),
		"kept", len(req.Documents),
	)
	if len(req.Documents) == 0 {
		return nil
	}

	rendered, err := util.Execute(r.tmpl, map[string]any{"Query": query, "Documents": req.Documents})
	if err != nil {
		req.AddWarning(r.Name(), fmt.Errorf("render context: %w", err))
		return nil
	}
	if req.System == "" {
		req.System = rendered
	} else {
		req.System = req.System + "\n\n" + rendered
	}
	return nil
}

func (*Retrieval) After(context.Context, *Request, *Response) error { return nil }

// FilterByAudience keeps documents whose audience tag equals target and
// orders them by descending score, ties in retrieval order. An empty target
// keeps every document. The input is not modified.
func FilterByAudience(docs []core.Document, target string) []core.Document {
	kept := make([]core.Document, 0, len(docs))
	for _, d := range docs {
		if target == "" || d.Audience() == target {
			kept = append(kept, d)
		}
	}
	slices.SortStableFunc(kept, func(a, b core.Document) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		default:
			return 0
		}
	})
	return kept
}
