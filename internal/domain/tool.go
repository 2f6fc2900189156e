package domain

import "context"

// ToolSchema describes a tool's input contract in JSON Schema form.
type ToolSchema struct {
	Type       string         `json:"type"`
	Properties map[string]any `json:"properties,omitempty"`
	Required   []string       `json:"required,omitempty"`
}

// Tool is a callable capability exposed to the model.
type Tool struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Schema      ToolSchema `json:"input_schema"`
}

// ToolCall is the model's request to invoke a tool.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// ToolResult is the outcome of executing a tool call.
type ToolResult struct {
	CallID  string `json:"call_id"`
	Content string `json:"content"`
	IsError bool   `json:"is_error,omitempty"`
}

// ToolExecutor runs tool calls on behalf of the engine.
type ToolExecutor interface {
	// Execute runs a single tool call and returns its result. Execution
	// failures are reported in-band via ToolResult.IsError so the model can
	// observe and react; the error return is for transport-level problems.
	Execute(ctx context.Context, call ToolCall) (*ToolResult, error)
	// Tools lists the tools this executor can run.
	Tools() []Tool
}

// ToolSource is a ToolExecutor whose backing connection can come and go.
// Agents consult Available before deciding between live-data and
// knowledge-only execution paths.
type ToolSource interface {
	ToolExecutor
	// Available reports whether the backing data source is currently
	// reachable. It must be cheap: a cached health flag, not a probe.
	Available() bool
}
