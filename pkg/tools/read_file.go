package tools

import (
	"context"
	"fmt"

	"assistant/pkg/sandbox"
)

// ReadFileTool reads a file from the active sandbox.
type ReadFileTool struct {
	sandbox sandbox.Sandbox
}

// NewReadFileTool creates a read file tool backed by the given sandbox.
func NewReadFileTool(sb sandbox.Sandbox) *ReadFileTool {
	return &ReadFileTool{sandbox: sb}
}

// Name returns the tool name.
func (t *ReadFileTool) Name() string {
	return ToolReadFile
}

// Definition returns the tool definition for the model.
func (t *ReadFileTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        ToolReadFile,
		Description: "Read the content of a file from the sandbox. Use this before editing a file to see its current content.",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"sandboxId": {
					Type:        "string",
					Description: "Identifier of the sandbox to read from",
				},
				"filePath": {
					Type:        "string",
					Description: "Path of the file inside the sandbox (e.g. '/src/index.js')",
				},
				"sandboxType": {
					Type:        "string",
					Description: "Sandbox backend type",
					Enum:        []string{sandbox.TypeLocal, sandbox.TypeE2B, sandbox.TypeMorph},
				},
			},
			Required: []string{"sandboxId", "filePath"},
		},
	}
}

// Exec reads the file and returns its content. Downstream failures are
// reported in the result so the model can react to them.
func (t *ReadFileTool) Exec(ctx context.Context, args map[string]any) (*ExecResult, error) {
	sandboxID, err := stringArg(args, "sandboxId")
	if err != nil {
		return nil, err
	}
	filePath, err := stringArg(args, "filePath")
	if err != nil {
		return nil, err
	}
	sandboxType := optionalStringArg(args, "sandboxType", sandbox.TypeLocal)

	content, err := t.sandbox.ReadFile(ctx, sandboxID, filePath, sandboxType)
	if err != nil {
		return errorResult(fmt.Sprintf("failed to read file: %v", err))
	}

	return jsonResult(map[string]any{
		"success":  true,
		"filePath": filePath,
		"content":  content,
	})
}
