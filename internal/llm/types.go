// Package llm provides the model-capability boundary: provider-neutral
// message types and a client for OpenAI-compatible chat APIs.
package llm

import "time"

// Message represents a single chat message.
type Message struct {
	Role       string     `json:"role"` // system, user, assistant, tool
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"` // Correlates a tool message to its request
}

// ToolCall is a request from the model to invoke a tool.
type ToolCall struct {
	// ID is the provider-assigned correlation id. The tool-result
	// message carries the same id in ToolCallID.
	ID       string       `json:"id,omitempty"`
	Function ToolCallFunc `json:"function"`
}

// ToolCallFunc names the tool and carries its structured arguments.
type ToolCallFunc struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// ChatResponse is the unified response from the model provider.
// All fields use proper Go types — wire format conversion happens at
// the provider boundary (openai.go).
type ChatResponse struct {
	Model     string
	CreatedAt time.Time
	Message   Message
	Done      bool

	// FinishReason is the provider's stop reason ("stop", "tool_calls", ...).
	FinishReason string

	// Token usage (provider-neutral).
	InputTokens  int
	OutputTokens int
}

// TokenCallback receives incremental text tokens during streaming, in
// generation order.
type TokenCallback func(token string)
