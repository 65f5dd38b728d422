// Package workflow implements the agent state machine: model invocation,
// tool call review, human-in-the-loop suspension, and tool execution, with
// per-thread checkpointing at every node transition.
package workflow

import (
	"assistant/pkg/config"
	"assistant/pkg/msg"
)

// ModelConfig selects which model a thread talks to.
type ModelConfig struct {
	Provider    string  `json:"provider,omitempty"`
	Model       string  `json:"model"`
	Temperature float32 `json:"temperature,omitempty"`
}

// DefaultModelConfig is installed when a thread has no model configured.
func DefaultModelConfig() ModelConfig {
	return ModelConfig{
		Provider:    config.ProviderAnthropic,
		Model:       config.DefaultAnthropicModel,
		Temperature: 0.3,
	}
}

// ModelUsage is one audit entry per model invocation. A failed invocation
// records an entry with empty provider and model so the attempt still shows
// in the trail.
type ModelUsage struct {
	Provider    string `json:"provider"`
	Model       string `json:"model"`
	TimestampMs int64  `json:"timestampMs"`
}

// WorkflowState is the serializable per-thread state the graph operates on.
// Every field follows one of two reducer rules: slices are append-only,
// scalars are last-write-wins. No field update depends on another field, so
// node outputs merge deterministically.
//
//nolint:govet // fieldalignment: field order mirrors the checkpoint JSON
type WorkflowState struct {
	Messages []msg.Message `json:"messages"`

	CurrentFile string `json:"currentFile,omitempty"`
	FileContent string `json:"fileContent,omitempty"`
	SandboxID   string `json:"sandboxId,omitempty"`
	SandboxType string `json:"sandboxType,omitempty"`
	UserID      string `json:"userId,omitempty"`
	ProjectID   string `json:"projectId,omitempty"`

	CodeContext    []string `json:"codeContext,omitempty"`
	TerminalOutput []string `json:"terminalOutput,omitempty"`

	AwaitingHumanInput bool `json:"awaitingHumanInput"`
	UseMorph           bool `json:"useMorph"`

	ModelConfig       ModelConfig  `json:"modelConfig"`
	ModelUsageHistory []ModelUsage `json:"modelUsageHistory,omitempty"`
}

// Delta is a partial state update produced by a node. Nil pointer fields
// leave the corresponding scalar untouched; slice fields append.
type Delta struct {
	Messages       []msg.Message
	CodeContext    []string
	TerminalOutput []string
	ModelUsage     []ModelUsage

	CurrentFile *string
	FileContent *string
	SandboxID   *string
	SandboxType *string
	UserID      *string
	ProjectID   *string

	AwaitingHumanInput *bool
	UseMorph           *bool
	ModelConfig        *ModelConfig
}

// Apply reduces a delta into the state and returns the result. The receiver
// is not mutated; slices in the result share no backing array growth with
// the input delta.
func (s WorkflowState) Apply(d Delta) WorkflowState {
	out := s

	if len(d.Messages) > 0 {
		out.Messages = append(append([]msg.Message(nil), s.Messages...), d.Messages...)
	}
	if len(d.CodeContext) > 0 {
		out.CodeContext = append(append([]string(nil), s.CodeContext...), d.CodeContext...)
	}
	if len(d.TerminalOutput) > 0 {
		out.TerminalOutput = append(append([]string(nil), s.TerminalOutput...), d.TerminalOutput...)
	}
	if len(d.ModelUsage) > 0 {
		out.ModelUsageHistory = append(append([]ModelUsage(nil), s.ModelUsageHistory...), d.ModelUsage...)
	}

	if d.CurrentFile != nil {
		out.CurrentFile = *d.CurrentFile
	}
	if d.FileContent != nil {
		out.FileContent = *d.FileContent
	}
	if d.SandboxID != nil {
		out.SandboxID = *d.SandboxID
	}
	if d.SandboxType != nil {
		out.SandboxType = *d.SandboxType
	}
	if d.UserID != nil {
		out.UserID = *d.UserID
	}
	if d.ProjectID != nil {
		out.ProjectID = *d.ProjectID
	}
	if d.AwaitingHumanInput != nil {
		out.AwaitingHumanInput = *d.AwaitingHumanInput
	}
	if d.UseMorph != nil {
		out.UseMorph = *d.UseMorph
	}
	if d.ModelConfig != nil {
		out.ModelConfig = *d.ModelConfig
	}

	if out.ModelConfig.Model == "" {
		out.ModelConfig = DefaultModelConfig()
	}

	return out
}

// ptr is a convenience for building deltas.
func ptr[T any](v T) *T { return &v }
