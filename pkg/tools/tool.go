// Package tools provides the tool surface exposed to the model: definitions,
// a registry, and implementations of the built-in tools.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
)

// Tool name constants.
const (
	ToolWebSearch          = "web_search"
	ToolSearchCodebase     = "search_codebase"
	ToolReadFile           = "read_file"
	ToolWriteFile          = "write_file"
	ToolExecuteCode        = "execute_code"
	ToolEditFile           = "edit_file"
	ToolRunTerminalCommand = "run_terminal_command"
	ToolDeleteFile         = "delete_file"
	ToolCloneProject       = "clone_project"
)

// Property defines a single parameter in a tool's input schema.
type Property struct {
	Type        string              `json:"type"`
	Description string              `json:"description,omitempty"`
	Enum        []string            `json:"enum,omitempty"`
	Items       *Property           `json:"items,omitempty"`
	Properties  map[string]Property `json:"properties,omitempty"`
}

// InputSchema describes a tool's parameters as a JSON schema object.
type InputSchema struct {
	Type       string              `json:"type"`
	Properties map[string]Property `json:"properties,omitempty"`
	Required   []string            `json:"required,omitempty"`
}

// ToolDefinition is the schema advertised to the model for one tool.
type ToolDefinition struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	InputSchema InputSchema `json:"input_schema"`
}

// ExecResult is the outcome of a tool execution. Content is what gets fed back
// to the model as the tool result message.
type ExecResult struct {
	Content string `json:"content"`
}

// Tool is the interface implemented by every tool exposed to the model.
type Tool interface {
	// Name returns the tool's identifier.
	Name() string
	// Definition returns the tool's definition for the model.
	Definition() ToolDefinition
	// Exec executes the tool with the given arguments. Downstream failures are
	// reported in the result, not thrown past this boundary.
	Exec(ctx context.Context, args map[string]any) (*ExecResult, error)
}

// jsonResult marshals a response map into an ExecResult.
func jsonResult(response map[string]any) (*ExecResult, error) {
	content, err := json.Marshal(response)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}
	return &ExecResult{Content: string(content)}, nil
}

// errorResult creates a structured failure result. The error is reported to
// the model rather than propagated, so it can react on the next turn.
func errorResult(errMsg string) (*ExecResult, error) {
	return jsonResult(map[string]any{
		"success": false,
		"error":   errMsg,
	})
}

// stringArg extracts a required string argument.
func stringArg(args map[string]any, key string) (string, error) {
	val, ok := args[key].(string)
	if !ok || val == "" {
		return "", fmt.Errorf("%s is required and must be a string", key)
	}
	return val, nil
}

// optionalStringArg extracts an optional string argument, returning def when absent.
func optionalStringArg(args map[string]any, key, def string) string {
	if val, ok := args[key].(string); ok && val != "" {
		return val
	}
	return def
}
