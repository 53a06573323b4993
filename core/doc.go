// Package core provides the foundational domain types and interfaces of
// chatmesh. It defines the abstractions for:
//
//   - Turns (immutable, role-tagged messages) and Conversations (ordered turn histories)
//   - ConversationStore (pluggable conversation memory with window reads)
//   - Searcher and QueryRewriter (retrieval collaborators consumed by advisors)
//   - The error taxonomy shared by every layer
//
// The package keeps implementation concerns (persistence, model providers,
// orchestration) out of scope, exposing small interfaces so backends can be
// swapped at wiring time without touching calling code.
package core
