package agent

// StreamEventKind identifies the type of stream event.
type StreamEventKind int

const (
	// KindToken is an incremental text token from the model.
	KindToken StreamEventKind = iota

	// KindToolStart fires when the model invokes a tool.
	KindToolStart

	// KindToolDone fires when a tool execution completes.
	KindToolDone

	// KindError signals the turn failed. Err carries the cause; the
	// channel closes after this event.
	KindError

	// KindDone signals the turn completed. Response carries the final
	// assistant text; the channel closes after this event.
	KindDone
)

// StreamEvent is a single event in an agent turn. Consumers switch on
// Kind to determine which fields are set.
type StreamEvent struct {
	Kind StreamEventKind

	// Token is set for KindToken events.
	Token string

	// ToolName is set for KindToolStart and KindToolDone events.
	ToolName string

	// ToolArgs carries the model-supplied arguments for KindToolStart
	// events.
	ToolArgs map[string]any

	// ToolResult and ToolError are set for KindToolDone events.
	ToolResult string
	ToolError  string

	// Response is the accumulated assistant text, set for KindDone.
	Response string

	// Err is set for KindError events.
	Err error
}
