// Package advisor implements the ordered interceptor chain wrapped around
// every model invocation.
//
// An Advisor has a pre phase (Before) and a post phase (After). A Chain runs
// Before in declared order, invokes the model, then runs After in reverse
// declared order. The default chain used by the orchestrator is
//
//	Logging, MemoryPersist, MemoryInjection, Retrieval
//
// which yields: log request, inject memory window, retrieve documents, model,
// persist the exchange, log response.
//
// Built-in advisors degrade instead of failing: backend and retrieval errors
// become Warnings on the Response. Only a custom advisor's Before error and
// the model invocation itself can fail a request.
package advisor
