package advisor

import (
	"context"
	"iter"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/hupe1980/chatmesh/core"
	"github.com/hupe1980/chatmesh/model"
)

// Stream is a single-use, lazy sequence of response fragments.
//
// The consumer may stop early by breaking out of the range loop or by
// cancelling the context passed to Chain.Stream. In every case the post
// phase runs exactly once with the text produced so far, so the user turn
// is never dropped. Iterating a second time yields core.ErrStreamConsumed.
type Stream struct {
	chain *Chain
	ctx   context.Context
	req   *Request

	started atomic.Bool

	mu   sync.Mutex
	resp *Response
	err  error
}

// Iter returns the fragment sequence for range-over-func loops.
//
// Example:
//
//	for chunk, err := range stream.Iter() {
//	    if err != nil { handle error }
//	    fmt.Print(chunk)
//	}
func (s *Stream) Iter() iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		if !s.started.CompareAndSwap(false, true) {
			yield("", core.ErrStreamConsumed)
			return
		}
		s.run(yield)
	}
}

func (s *Stream) run(yield func(string, error) bool) {
	ctx, cancel := context.WithCancel(s.ctx)
	defer cancel()

	respCh, errCh := s.chain.model.Generate(ctx, s.req.modelRequest(true))

	var (
		text        strings.Builder
		final       *model.Response
		genErr      error
		interrupted bool
		stopped     bool // consumer returned false; yield must not be called again
	)

loop:
	for respCh != nil || errCh != nil {
		select {
		case <-ctx.Done():
			interrupted = true
			break loop
		case r, ok := <-respCh:
			if !ok {
				respCh = nil
				continue
			}
			if !r.Partial {
				final = &r
				continue
			}
			if r.Text == "" {
				continue
			}
			text.WriteString(r.Text)
			if !yield(r.Text, nil) {
				interrupted, stopped = true, true
				break loop
			}
		case err, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}
			if err != nil {
				genErr = err
				break loop
			}
		}
	}
	cancel()

	if genErr != nil && s.ctx.Err() != nil {
		interrupted, genErr = true, nil
	}

	// Models that do not stream deliver everything in the final chunk.
	if !interrupted && genErr == nil && final != nil && text.Len() == 0 && final.Text != "" {
		text.WriteString(final.Text)
		if !yield(final.Text, nil) {
			stopped = true
		}
	}

	if genErr != nil && text.Len() == 0 {
		err := invocationError(genErr)
		s.setResult(nil, err)
		yield("", err)
		return
	}

	resp := &Response{
		ConversationID: s.req.ConversationID,
		Text:           text.String(),
		Documents:      s.req.Documents,
		Interrupted:    interrupted || genErr != nil,
	}
	if final != nil {
		resp.FinishReason = final.FinishReason
		resp.Usage = final.Usage
	}
	s.chain.after(context.WithoutCancel(s.ctx), s.req, resp)

	if genErr != nil {
		err := invocationError(genErr)
		s.setResult(resp, err)
		if !stopped {
			yield("", err)
		}
		return
	}
	s.setResult(resp, nil)
}

func (s *Stream) setResult(resp *Response, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resp, s.err = resp, err
}

// Collect consumes the stream and returns the accumulated response.
func (s *Stream) Collect() (*Response, error) {
	for _, err := range s.Iter() {
		if err != nil {
			s.mu.Lock()
			resp := s.resp
			s.mu.Unlock()
			return resp, err
		}
	}
	return s.Response()
}

// Response returns the final response once iteration has finished. Before
// that it returns nil.
func (s *Stream) Response() (*Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resp, s.err
}

// Close releases a stream that was never iterated: the post phase runs with
// an empty assistant reply so the user turn is still persisted. Closing an
// iterated stream is a no-op.
func (s *Stream) Close() error {
	if !s.started.CompareAndSwap(false, true) {
		return nil
	}
	resp := &Response{
		ConversationID: s.req.ConversationID,
		Documents:      s.req.Documents,
		Interrupted:    true,
	}
	s.chain.after(context.WithoutCancel(s.ctx), s.req, resp)
	s.setResult(resp, nil)
	return nil
}
