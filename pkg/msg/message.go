// Package msg defines conversation messages and the canonical tool call
// representation, including normalization of vendor-specific tool call shapes.
package msg

import "time"

// Message roles.
const (
	RoleHuman      = "human"
	RoleAssistant  = "assistant"
	RoleToolResult = "tool"
	// RoleSystem marks operator-visible notices like failure reports.
	RoleSystem = "system"
)

// Message is one entry in a conversation thread. Assistant messages may carry
// tool calls in whatever shape the producing vendor used; NormalizeToolCalls
// converts them to the canonical form on demand. The raw shape is preserved
// so a checkpoint round-trip (which turns structs into generic JSON maps)
// loses nothing.
type Message struct {
	Role      string `json:"role"`
	Content   string `json:"content"`
	ToolCalls any    `json:"toolCalls,omitempty"`
	// ToolCallID links a tool-result message back to the call it answers.
	ToolCallID string `json:"toolCallId,omitempty"`
	Timestamp  int64  `json:"timestamp,omitempty"`
}

// NewHumanMessage creates a human message.
func NewHumanMessage(content string) Message {
	return Message{Role: RoleHuman, Content: content, Timestamp: time.Now().UnixMilli()}
}

// NewAssistantMessage creates an assistant message with optional tool calls.
func NewAssistantMessage(content string, toolCalls any) Message {
	return Message{Role: RoleAssistant, Content: content, ToolCalls: toolCalls, Timestamp: time.Now().UnixMilli()}
}

// NewToolResultMessage creates a tool-result message for the given call.
func NewToolResultMessage(callID, content string) Message {
	return Message{Role: RoleToolResult, Content: content, ToolCallID: callID, Timestamp: time.Now().UnixMilli()}
}

// ToolCall is the canonical tool call shape. Name is always non-empty after
// normalization.
type ToolCall struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
	ID   string         `json:"id"`
	Type string         `json:"type"`
}
