package tools

import "fmt"

// ErrToolUnavailable is returned when a tool call targets a name that is
// not present in the registry. This indicates a capability mismatch, not
// a transient execution failure; callers should surface it to the model
// rather than retrying.
type ErrToolUnavailable struct {
	ToolName string
}

// Error implements the error interface.
func (e *ErrToolUnavailable) Error() string {
	return fmt.Sprintf("tool %q is not available", e.ToolName)
}
