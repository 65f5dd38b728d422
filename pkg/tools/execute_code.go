package tools

import (
	"context"
	"fmt"

	"assistant/pkg/sandbox"
)

// ExecuteCodeTool runs a shell command in the active sandbox.
// Listed in the default sensitive set: execution requires human approval.
type ExecuteCodeTool struct {
	sandbox sandbox.Sandbox
}

// NewExecuteCodeTool creates an execute code tool backed by the given sandbox.
func NewExecuteCodeTool(sb sandbox.Sandbox) *ExecuteCodeTool {
	return &ExecuteCodeTool{sandbox: sb}
}

// Name returns the tool name.
func (t *ExecuteCodeTool) Name() string {
	return ToolExecuteCode
}

// Definition returns the tool definition for the model.
func (t *ExecuteCodeTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        ToolExecuteCode,
		Description: "Execute a shell command in the sandbox and return stdout, stderr, and the exit code. Requires human approval before execution.",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"sandboxId": {
					Type:        "string",
					Description: "Identifier of the sandbox to execute in",
				},
				"command": {
					Type:        "string",
					Description: "Shell command to run (e.g. 'npm test')",
				},
				"sandboxType": {
					Type:        "string",
					Description: "Sandbox backend type",
					Enum:        []string{sandbox.TypeLocal, sandbox.TypeE2B, sandbox.TypeMorph},
				},
			},
			Required: []string{"sandboxId", "command"},
		},
	}
}

// Exec runs the command. A non-zero exit code is a reported result, not an error.
func (t *ExecuteCodeTool) Exec(ctx context.Context, args map[string]any) (*ExecResult, error) {
	sandboxID, err := stringArg(args, "sandboxId")
	if err != nil {
		return nil, err
	}
	command, err := stringArg(args, "command")
	if err != nil {
		return nil, err
	}
	sandboxType := optionalStringArg(args, "sandboxType", sandbox.TypeLocal)

	result, err := t.sandbox.RunCommand(ctx, sandboxID, command, sandboxType)
	if err != nil {
		return errorResult(fmt.Sprintf("failed to execute command: %v", err))
	}

	return jsonResult(map[string]any{
		"success":  result.ExitCode == 0,
		"stdout":   result.Stdout,
		"stderr":   result.Stderr,
		"exitCode": result.ExitCode,
	})
}
