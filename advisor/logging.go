package advisor

import (
	"context"
	"fmt"
	"time"

	"github.com/hupe1980/chatmesh/logging"
)

const startKey = "logging.start"

// ModelKey is the request metadata key holding the resolved model name.
const ModelKey = "model"

// Logging records each request and response. It never mutates the data
// path, and a failing logger is swallowed.
type Logging struct {
	logger logging.Logger
}

// NewLogging creates the logging step.
func NewLogging(l logging.Logger) *Logging {
	return &Logging{logger: logging.OrNoOp(l)}
}

func (*Logging) Name() string { return "logging" }

func (l *Logging) Before(_ context.Context, req *Request) error {
	req.Set(startKey, time.Now())
	l.safe(func() {
		l.logger.Info("chat.request",
			"conversation_id", req.ConversationID,
			"user_text", req.UserText,
			"retrieve_size", req.RetrieveSize,
			"tools", len(req.Tools),
		)
	})
	return nil
}

func (l *Logging) After(_ context.Context, req *Request, resp *Response) error {
	var dur time.Duration
	if v, ok := req.Get(startKey); ok {
		if start, ok := v.(time.Time); ok {
			dur = time.Since(start)
		}
	}
	l.safe(func() {
		args := []any{
			"conversation_id", resp.ConversationID,
			"response_text", resp.Text,
			"finish_reason", resp.FinishReason,
			"documents", len(resp.Documents),
			"warnings", len(resp.Warnings),
			"interrupted", resp.Interrupted,
			"duration_ms", dur.Milliseconds(),
		}
		if resp.Usage != nil {
			args = append(args, "total_tokens", resp.Usage.TotalTokens)
		}
		l.logger.Info("chat.response", args...)
		if cl, ok := l.logger.(*logging.ChatLogger); ok {
			name, _ := req.Get(ModelKey)
			tokens := 0
			if resp.Usage != nil {
				tokens = resp.Usage.TotalTokens
			}
			cl.LogModelCall(fmt.Sprint(name), tokens, dur, nil)
		}
		for _, w := range resp.Warnings {
			l.logger.Warn("chat.degraded", "conversation_id", resp.ConversationID, "step", w.Step, "error", w.Err)
		}
	})
	return nil
}

func (l *Logging) safe(fn func()) {
	defer func() { _ = recover() }()
	fn()
}
