package tools

import (
	"context"
	"fmt"

	"assistant/pkg/sandbox"
)

// WriteFileTool creates or overwrites a file in the active sandbox.
// Listed in the default sensitive set: execution requires human approval.
type WriteFileTool struct {
	sandbox sandbox.Sandbox
}

// NewWriteFileTool creates a write file tool backed by the given sandbox.
func NewWriteFileTool(sb sandbox.Sandbox) *WriteFileTool {
	return &WriteFileTool{sandbox: sb}
}

// Name returns the tool name.
func (t *WriteFileTool) Name() string {
	return ToolWriteFile
}

// Definition returns the tool definition for the model.
func (t *WriteFileTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        ToolWriteFile,
		Description: "Create or overwrite a file in the sandbox with the given content. Requires human approval before execution.",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"sandboxId": {
					Type:        "string",
					Description: "Identifier of the sandbox to write to",
				},
				"filePath": {
					Type:        "string",
					Description: "Path of the file inside the sandbox (e.g. '/src/index.js')",
				},
				"content": {
					Type:        "string",
					Description: "Full file content to write",
				},
				"sandboxType": {
					Type:        "string",
					Description: "Sandbox backend type",
					Enum:        []string{sandbox.TypeLocal, sandbox.TypeE2B, sandbox.TypeMorph},
				},
			},
			Required: []string{"sandboxId", "filePath", "content"},
		},
	}
}

// Exec writes the file.
func (t *WriteFileTool) Exec(ctx context.Context, args map[string]any) (*ExecResult, error) {
	sandboxID, err := stringArg(args, "sandboxId")
	if err != nil {
		return nil, err
	}
	filePath, err := stringArg(args, "filePath")
	if err != nil {
		return nil, err
	}
	content, ok := args["content"].(string)
	if !ok {
		return nil, fmt.Errorf("content is required and must be a string")
	}
	sandboxType := optionalStringArg(args, "sandboxType", sandbox.TypeLocal)

	if err := t.sandbox.WriteFile(ctx, sandboxID, filePath, content, sandboxType); err != nil {
		return errorResult(fmt.Sprintf("failed to write file: %v", err))
	}

	return jsonResult(map[string]any{
		"success":  true,
		"filePath": filePath,
		"bytes":    len(content),
	})
}
