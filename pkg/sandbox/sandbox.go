// Package sandbox defines the execution boundary for file and command
// operations, plus a local filesystem implementation.
package sandbox

import (
	"context"
)

// Sandbox type constants.
const (
	TypeLocal = "local"
	TypeE2B   = "e2b"
	TypeMorph = "morph"
)

// CommandResult is the outcome of running a command in a sandbox.
type CommandResult struct {
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	ExitCode int    `json:"exit_code"`
}

// Sandbox is the remote execution surface. Implementations wrap a concrete
// backend (local process, remote microVM) identified by sandboxID; sandboxType
// selects the backend flavor when one client fronts several.
type Sandbox interface {
	// ReadFile returns the content of a file inside the sandbox.
	ReadFile(ctx context.Context, sandboxID, filePath, sandboxType string) (string, error)

	// WriteFile creates or overwrites a file inside the sandbox.
	WriteFile(ctx context.Context, sandboxID, filePath, content, sandboxType string) error

	// RunCommand executes a shell command inside the sandbox.
	RunCommand(ctx context.Context, sandboxID, command, sandboxType string) (CommandResult, error)
}
