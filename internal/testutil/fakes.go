package testutil

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/hupe1980/chatmesh/core"
)

// ErrInjected is the cause carried by injected failures.
var ErrInjected = errors.New("injected failure")

// FlakyStore wraps a ConversationStore and fails selected operations.
type FlakyStore struct {
	core.ConversationStore

	FailGetOrCreate atomic.Bool
	FailAppend      atomic.Bool
	FailRead        atomic.Bool
}

// NewFlakyStore wraps inner.
func NewFlakyStore(inner core.ConversationStore) *FlakyStore {
	return &FlakyStore{ConversationStore: inner}
}

func (s *FlakyStore) GetOrCreate(ctx context.Context, id string) (core.ConversationHandle, error) {
	if s.FailGetOrCreate.Load() {
		return core.ConversationHandle{}, core.NewBackendError("flaky", "get_or_create", id, ErrInjected)
	}
	return s.ConversationStore.GetOrCreate(ctx, id)
}

func (s *FlakyStore) AppendTurn(ctx context.Context, h core.ConversationHandle, t core.Turn) error {
	if s.FailAppend.Load() {
		return core.NewBackendError("flaky", "append", h.ConversationID, ErrInjected)
	}
	return s.ConversationStore.AppendTurn(ctx, h, t)
}

func (s *FlakyStore) ReadWindow(ctx context.Context, h core.ConversationHandle, n int) ([]core.Turn, error) {
	if s.FailRead.Load() {
		return nil, core.NewBackendError("flaky", "read_window", h.ConversationID, ErrInjected)
	}
	return s.ConversationStore.ReadWindow(ctx, h, n)
}

// FailingSearcher always fails.
type FailingSearcher struct{}

func (FailingSearcher) Search(context.Context, string, int) ([]core.Document, error) {
	return nil, fmt.Errorf("%w: %w", core.ErrRetrievalFailure, ErrInjected)
}

// RecordingSearcher returns fixed documents and records queries.
type RecordingSearcher struct {
	Docs []core.Document

	mu      sync.Mutex
	queries []string
	ks      []int
}

func (s *RecordingSearcher) Search(_ context.Context, query string, k int) ([]core.Document, error) {
	s.mu.Lock()
	s.queries = append(s.queries, query)
	s.ks = append(s.ks, k)
	s.mu.Unlock()
	docs := s.Docs
	if k >= 0 && k < len(docs) {
		docs = docs[:k]
	}
	out := make([]core.Document, len(docs))
	copy(out, docs)
	return out, nil
}

// Queries returns the recorded queries.
func (s *RecordingSearcher) Queries() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.queries...)
}

// RewriterFunc adapts a function to core.QueryRewriter.
type RewriterFunc func(ctx context.Context, query string) string

func (f RewriterFunc) Rewrite(ctx context.Context, query string) string { return f(ctx, query) }

// PanicLogger panics on every call.
type PanicLogger struct{}

func (PanicLogger) Debug(string, ...any) { panic("logger down") }
func (PanicLogger) Info(string, ...any)  { panic("logger down") }
func (PanicLogger) Warn(string, ...any)  { panic("logger down") }
func (PanicLogger) Error(string, ...any) { panic("logger down") }

// Entry is one record captured by RecordingLogger.
type Entry struct {
	Level string
	Msg   string
	Args  []any
}

// RecordingLogger captures log entries.
type RecordingLogger struct {
	mu      sync.Mutex
	entries []Entry
}

func (l *RecordingLogger) record(level, msg string, args []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, Entry{Level: level, Msg: msg, Args: args})
}

func (l *RecordingLogger) Debug(msg string, args ...any) { l.record("debug", msg, args) }
func (l *RecordingLogger) Info(msg string, args ...any)  { l.record("info", msg, args) }
func (l *RecordingLogger) Warn(msg string, args ...any)  { l.record("warn", msg, args) }
func (l *RecordingLogger) Error(msg string, args ...any) { l.record("error", msg, args) }

// Entries returns the captured entries.
func (l *RecordingLogger) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Entry(nil), l.entries...)
}

// Messages returns the captured messages in order.
func (l *RecordingLogger) Messages() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	msgs := make([]string, len(l.entries))
	for i, e := range l.entries {
		msgs[i] = e.Msg
	}
	return msgs
}
