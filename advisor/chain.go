package advisor

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"

	"github.com/hupe1980/chatmesh/core"
	"github.com/hupe1980/chatmesh/logging"
	"github.com/hupe1980/chatmesh/model"
)

// Chain composes advisors around one model. It is immutable and safe for
// concurrent use; per-request state lives on the Request.
type Chain struct {
	model    model.Model
	advisors []Advisor
	logger   logging.Logger
}

// NewChain builds a chain. The first advisor is the outermost: its Before
// runs first and its After runs last.
func NewChain(m model.Model, advisors ...Advisor) *Chain {
	return &Chain{
		model:    m,
		advisors: append([]Advisor(nil), advisors...),
		logger:   logging.NoOpLogger{},
	}
}

// WithLogger returns a copy of the chain reporting recovered panics to l.
func (c *Chain) WithLogger(l logging.Logger) *Chain {
	cp := *c
	cp.logger = logging.OrNoOp(l)
	return &cp
}

// Advisors returns the advisor names in declared order.
func (c *Chain) Advisors() []string {
	names := make([]string, len(c.advisors))
	for i, a := range c.advisors {
		names[i] = a.Name()
	}
	return names
}

// Invoke runs the pre phase, the model and the post phase.
func (c *Chain) Invoke(ctx context.Context, req *Request) (*Response, error) {
	if err := c.before(ctx, req); err != nil {
		return nil, err
	}

	out, err := model.Complete(ctx, c.model, req.modelRequest(false))
	if err != nil {
		return nil, invocationError(err)
	}

	resp := &Response{
		ConversationID: req.ConversationID,
		Text:           out.Text,
		FinishReason:   out.FinishReason,
		Usage:          out.Usage,
		Documents:      req.Documents,
	}
	c.after(ctx, req, resp)
	return resp, nil
}

// Stream runs the pre phase eagerly and returns a lazy stream; the model is
// invoked when the stream is first iterated.
func (c *Chain) Stream(ctx context.Context, req *Request) (*Stream, error) {
	if err := c.before(ctx, req); err != nil {
		return nil, err
	}
	return &Stream{chain: c, ctx: ctx, req: req}, nil
}

func (c *Chain) before(ctx context.Context, req *Request) error {
	for _, a := range c.advisors {
		if err := c.safeBefore(ctx, a, req); err != nil {
			return fmt.Errorf("advisor %s: %w", a.Name(), err)
		}
	}
	return nil
}

func (c *Chain) safeBefore(ctx context.Context, a Advisor, req *Request) (err error) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("advisor.before.panic", "advisor", a.Name(), "recover", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return a.Before(ctx, req)
}

// after runs the post phase in reverse order. It never fails: errors and
// panics are recorded as warnings so the response still reaches the caller.
func (c *Chain) after(ctx context.Context, req *Request, resp *Response) {
	resp.Warnings = append(resp.Warnings, req.Warnings()...)
	for i := len(c.advisors) - 1; i >= 0; i-- {
		a := c.advisors[i]
		if err := c.safeAfter(ctx, a, req, resp); err != nil {
			resp.Warnings = append(resp.Warnings, Warning{Step: a.Name(), Err: err})
		}
	}
}

func (c *Chain) safeAfter(ctx context.Context, a Advisor, req *Request, resp *Response) (err error) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("advisor.after.panic", "advisor", a.Name(), "recover", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return a.After(ctx, req, resp)
}

func invocationError(err error) error {
	if errors.Is(err, core.ErrModelInvocation) {
		return err
	}
	return fmt.Errorf("%w: %w", core.ErrModelInvocation, err)
}
