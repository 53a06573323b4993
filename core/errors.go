package core

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownModel is returned when a model name does not resolve. Fatal,
	// surfaced before any memory or retrieval work starts.
	ErrUnknownModel = errors.New("unknown model")

	// ErrMemoryBackendUnavailable marks network or file I/O failures inside a
	// conversation store. Reads degrade to an empty window, writes degrade to
	// a warning on the response.
	ErrMemoryBackendUnavailable = errors.New("memory backend unavailable")

	// ErrRewriteFailure marks a failed query rewrite; the original query is used.
	ErrRewriteFailure = errors.New("query rewrite failed")

	// ErrRetrievalFailure marks a failed similarity search; the request
	// proceeds with zero documents.
	ErrRetrievalFailure = errors.New("retrieval failed")

	// ErrModelInvocation marks a failed model call. Fatal for the request.
	ErrModelInvocation = errors.New("model invocation failed")

	// ErrStreamConsumed is yielded when a stream is iterated a second time.
	ErrStreamConsumed = errors.New("stream already consumed")
)

// BackendError describes a failed conversation store operation. It matches
// ErrMemoryBackendUnavailable via errors.Is and unwraps to the cause.
type BackendError struct {
	Backend        string
	Op             string
	ConversationID string
	Err            error
}

// NewBackendError wraps err for the given backend operation.
func NewBackendError(backend, op, conversationID string, err error) *BackendError {
	return &BackendError{Backend: backend, Op: op, ConversationID: conversationID, Err: err}
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("%s: %s %s conversation %q: %v", ErrMemoryBackendUnavailable, e.Backend, e.Op, e.ConversationID, e.Err)
}

// Unwrap returns the underlying cause.
func (e *BackendError) Unwrap() error { return e.Err }

// Is reports whether target is ErrMemoryBackendUnavailable.
func (e *BackendError) Is(target error) bool { return target == ErrMemoryBackendUnavailable }
