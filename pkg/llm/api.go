// Package llm provides interfaces and types for Large Language Model client implementations.
package llm

import (
	"context"

	"assistant/pkg/tools"
)

// CompletionRole represents the role of a message in a completion request.
type CompletionRole string

const (
	// RoleSystem indicates a system message that provides instructions or context.
	RoleSystem CompletionRole = "system"
	// RoleUser indicates a message from the human user.
	RoleUser CompletionRole = "user"
	// RoleAssistant indicates a message from the AI assistant.
	RoleAssistant CompletionRole = "assistant"
)

const (
	// TemperatureDefault is the default temperature for conversational turns.
	TemperatureDefault = 0.3

	// DefaultMaxTokens is the default completion token cap.
	DefaultMaxTokens = 4096
)

// CompletionMessage represents a message in a completion request.
type CompletionMessage struct {
	Content string
	Role    CompletionRole
}

// ToolCall represents a tool call made by the LLM, in the vendor client's
// decoded form. Cross-provider normalization into the canonical shape happens
// downstream in the msg package.
type ToolCall struct {
	Parameters map[string]any `json:"input"`
	ID         string         `json:"id"`
	Name       string         `json:"name"`
}

// CompletionRequest represents a request to generate a completion.
//
//nolint:govet // fieldalignment: value semantics preferred over pointer indirection
type CompletionRequest struct {
	Messages    []CompletionMessage
	Tools       []tools.ToolDefinition
	MaxTokens   int
	Temperature float32
}

// CompletionResponse represents a response from a completion request.
//
//nolint:govet // fieldalignment: value semantics preferred over pointer indirection
type CompletionResponse struct {
	ToolCalls  []ToolCall
	Content    string // Main response text
	StopReason string // Why the response stopped: "end_turn", "tool_use", "max_tokens", etc.
}

// Client defines the interface for language model interactions.
type Client interface {
	// Complete generates a completion synchronously.
	Complete(ctx context.Context, in CompletionRequest) (CompletionResponse, error)

	// GetModelName returns the vendor model identifier for this client.
	GetModelName() string
}

// NewCompletionRequest creates a new completion request with default values.
func NewCompletionRequest(messages []CompletionMessage) CompletionRequest {
	return CompletionRequest{
		Messages:    messages,
		MaxTokens:   DefaultMaxTokens,
		Temperature: TemperatureDefault,
	}
}

// NewSystemMessage creates a new system message.
func NewSystemMessage(content string) CompletionMessage {
	return CompletionMessage{Role: RoleSystem, Content: content}
}

// NewUserMessage creates a new user message.
func NewUserMessage(content string) CompletionMessage {
	return CompletionMessage{Role: RoleUser, Content: content}
}

// NewAssistantMessage creates a new assistant message.
func NewAssistantMessage(content string) CompletionMessage {
	return CompletionMessage{Role: RoleAssistant, Content: content}
}
