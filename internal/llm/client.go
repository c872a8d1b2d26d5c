package llm

import "context"

// Client is the interface the agent loop uses to talk to a model provider.
type Client interface {
	// Chat sends a chat completion request and returns the response.
	Chat(ctx context.Context, model string, messages []Message, tools []map[string]any) (*ChatResponse, error)

	// ChatStream sends a streaming chat request. If callback is non-nil,
	// text tokens are delivered to it as they are generated. Tool calls
	// are assembled and returned on the final ChatResponse.
	ChatStream(ctx context.Context, model string, messages []Message, tools []map[string]any, callback TokenCallback) (*ChatResponse, error)

	// Ping checks if the provider is reachable and the credentials work.
	Ping(ctx context.Context) error
}
