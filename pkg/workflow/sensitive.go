package workflow

import (
	"assistant/pkg/config"
	"assistant/pkg/msg"
	"assistant/pkg/tools"
)

// DefaultSensitiveTools lists the tool names that require human approval
// before execution.
func DefaultSensitiveTools() []string {
	return []string{
		tools.ToolWriteFile,
		tools.ToolEditFile,
		tools.ToolExecuteCode,
		tools.ToolRunTerminalCommand,
		tools.ToolDeleteFile,
		tools.ToolCloneProject,
	}
}

// Classifier decides whether a tool call batch needs human review. It is a
// pure membership test over tool names. With DenyUnknown set, any name
// outside the known-safe list is treated as sensitive, closing the gap where
// a newly added tool would silently auto-execute.
type Classifier struct {
	sensitive   map[string]struct{}
	knownSafe   map[string]struct{}
	denyUnknown bool
}

// NewClassifier builds a classifier from review configuration. An empty
// sensitive list falls back to the defaults.
func NewClassifier(cfg config.ReviewConfig) *Classifier {
	names := cfg.SensitiveTools
	if len(names) == 0 {
		names = DefaultSensitiveTools()
	}

	sensitive := make(map[string]struct{}, len(names))
	for _, name := range names {
		sensitive[name] = struct{}{}
	}
	knownSafe := make(map[string]struct{}, len(cfg.KnownSafeTools))
	for _, name := range cfg.KnownSafeTools {
		knownSafe[name] = struct{}{}
	}

	return &Classifier{
		sensitive:   sensitive,
		knownSafe:   knownSafe,
		denyUnknown: cfg.DenyUnknown,
	}
}

// IsSensitive reports whether a single tool name requires approval.
func (c *Classifier) IsSensitive(name string) bool {
	if _, ok := c.sensitive[name]; ok {
		return true
	}
	if c.denyUnknown {
		_, safe := c.knownSafe[name]
		return !safe
	}
	return false
}

// RequiresReview reports whether any call in the batch requires approval.
func (c *Classifier) RequiresReview(calls []msg.ToolCall) bool {
	for _, call := range calls {
		if c.IsSensitive(call.Name) {
			return true
		}
	}
	return false
}
