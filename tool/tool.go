// Package tool implements the tool calling subsystem: structured capabilities
// (APIs, computations, side effects) with schema validated arguments, a
// provider abstraction for externally sourced tool lists, and CallingModel,
// which runs the tool-invocation loop around any model.Model.
package tool

import (
	"context"
	"fmt"

	"github.com/hupe1980/chatmesh/internal/util"
	"github.com/hupe1980/chatmesh/model"
)

// Tool is a capability the model may invoke during a ChatWithTools exchange.
//
// Implementations should be safe for concurrent use; CallingModel may run
// several calls of one batch in parallel.
type Tool interface {
	// Name returns the unique identifier (snake_case recommended).
	Name() string

	// Description is shown to the model to decide when to call the tool.
	Description() string

	// Parameters returns a JSON schema describing the expected arguments.
	Parameters() map[string]any

	// Call executes the tool with decoded, validated arguments.
	Call(ctx context.Context, args map[string]any) (any, error)
}

// Provider supplies a tool list from an external source, e.g. a tool server
// discovered at runtime.
type Provider interface {
	Tools(ctx context.Context) ([]Tool, error)
}

// StaticProvider is a Provider over a fixed tool list.
type StaticProvider []Tool

// Tools implements Provider.
func (p StaticProvider) Tools(context.Context) ([]Tool, error) { return p, nil }

// Definitions converts tools to the declarations sent to the model.
func Definitions(tools []Tool) []model.ToolDefinition {
	defs := make([]model.ToolDefinition, 0, len(tools))
	for _, t := range tools {
		defs = append(defs, model.ToolDefinition{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Parameters(),
		})
	}
	return defs
}

// ValidationError represents parameter validation errors with detailed information.
type ValidationError = util.ValidationError

// ToolError represents errors that occur during tool execution.
type ToolError struct {
	Tool    string `json:"tool"`              // Name of the tool that failed
	Message string `json:"message"`           // Error message
	Code    string `json:"code"`              // Error code for categorization
	Details any    `json:"details,omitempty"` // Additional error details
}

func (e *ToolError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("tool error [%s] in %s: %s", e.Code, e.Tool, e.Message)
	}
	return fmt.Sprintf("tool error in %s: %s", e.Tool, e.Message)
}

// Error codes attached to ToolError.
const (
	CodeValidation = "VALIDATION_ERROR"
	CodeExecution  = "EXECUTION_ERROR"
	CodeNotFound   = "NOT_FOUND"
	CodeBadArgs    = "INVALID_ARGUMENTS"
	CodePanic      = "PANIC"
)

// NewToolError creates a new ToolError with the specified details.
func NewToolError(tool, message, code string) *ToolError {
	return &ToolError{
		Tool:    tool,
		Message: message,
		Code:    code,
	}
}
