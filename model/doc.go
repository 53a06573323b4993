// Package model defines the provider‑agnostic abstractions for invoking
// language models inside chatmesh.
//
// Core goals:
//   - Unify streaming + non‑streaming generation behind a single interface
//   - Normalize tool / function call representation (ToolDefinition, ToolCall)
//   - Resolve models by name through a Registry (unknown names fail fast)
//   - Facilitate lightweight mocking for tests (MockModel)
//
// Providers (e.g. OpenAI, Anthropic) implement the Model interface from this
// package so higher layers (advisors, the orchestrator) remain decoupled from
// vendor SDKs.
package model
