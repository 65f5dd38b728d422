// Package facade exposes the per-thread agent surface: process a message,
// resume past a pending approval, and observe progress through synchronous
// callbacks.
package facade

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"assistant/pkg/logx"
	"assistant/pkg/msg"
	"assistant/pkg/tools"
	"assistant/pkg/workflow"
)

// Caller-visible agent states, reported through OnStateChange.
const (
	StateProcessing       = "processing"
	StateAwaitingApproval = "awaiting_approval"
	StateIdle             = "idle"
)

// Callbacks observe a thread's progress. Every callback fires synchronously
// inside the call that triggered it, never batched or deferred. Nil members
// are skipped.
type Callbacks struct {
	OnMessage     func(m msg.Message)
	OnStateChange func(state string)
	OnInterrupt   func(i workflow.Interrupt)
}

// Options carries the ambient context a thread runs under.
type Options struct {
	SandboxID   string
	SandboxType string
	UserID      string
	ProjectID   string
	UseMorph    bool
	Model       *workflow.ModelConfig
}

// Agent is the per-thread facade over one workflow graph. Exactly one
// suspension can be pending at a time; the resume methods require it.
type Agent struct {
	threadID  string
	graph     *workflow.Graph
	registry  *tools.Registry
	merge     MergeService
	callbacks Callbacks
	opts      Options
	logger    *logx.Logger

	mu           sync.Mutex
	pending      *workflow.Interrupt
	pendingState *workflow.WorkflowState
}

// New creates the facade for one conversation thread. merge may be nil when
// intelligent merging is not configured.
func New(threadID string, graph *workflow.Graph, registry *tools.Registry, merge MergeService, callbacks Callbacks, opts Options, logger *logx.Logger) *Agent {
	if logger == nil {
		logger = logx.NewLogger("facade")
	}
	return &Agent{
		threadID:  threadID,
		graph:     graph,
		registry:  registry,
		merge:     merge,
		callbacks: callbacks,
		opts:      opts,
		logger:    logger,
	}
}

// ThreadID returns the thread this facade fronts.
func (a *Agent) ThreadID() string { return a.threadID }

// ProcessMessage runs one conversational turn. Internal failures never
// escape; they surface as a system-role chat message so the thread is never
// silently dead.
func (a *Agent) ProcessMessage(ctx context.Context, text string) {
	a.emitState(StateProcessing)

	delta := a.baseDelta()
	delta.Messages = []msg.Message{msg.NewHumanMessage(text)}

	res, err := a.graph.Invoke(ctx, a.threadID, delta)
	if err != nil {
		a.logger.Error("thread %s: invoke failed: %v", a.threadID, err)
		a.emitMessage(systemMessage(fmt.Sprintf("Something went wrong processing your message: %v", err)))
		a.emitState(StateIdle)
		return
	}

	a.handleResult(res)
}

// ResumeWithApproval continues a suspended thread, executing the pending
// tool calls as proposed. It fails when no suspension is pending.
func (a *Agent) ResumeWithApproval(ctx context.Context) error {
	if _, err := a.takePending(); err != nil {
		return err
	}
	a.emitState(StateProcessing)

	res, err := a.graph.Resume(ctx, a.threadID, workflow.HumanDecision{Action: workflow.ActionApprove})
	if err != nil {
		a.emitState(StateIdle)
		return fmt.Errorf("failed to resume thread %s: %w", a.threadID, err)
	}

	a.handleResult(res)
	return nil
}

// ResumeWithRejection discards the pending tool calls. The graph resolves to
// its terminal state without executing anything.
func (a *Agent) ResumeWithRejection(ctx context.Context) error {
	if _, err := a.takePending(); err != nil {
		return err
	}

	if _, err := a.graph.Resume(ctx, a.threadID, workflow.HumanDecision{Action: workflow.ActionReject}); err != nil {
		return fmt.Errorf("failed to resolve rejected thread %s: %w", a.threadID, err)
	}

	a.emitMessage(systemMessage("Tool execution rejected. No changes were made."))
	a.emitState(StateIdle)
	return nil
}

// ResumeWithModification continues a suspended thread with human-edited file
// contents replacing the model's proposals. When the thread runs in
// intelligent-merge mode, each edit is first merged against the file's
// current content by the external merge service. Failures are reported per
// edit; the call errors only when every edit failed.
func (a *Agent) ResumeWithModification(ctx context.Context, edits []workflow.FileEdit) error {
	pending, err := a.takePending()
	if err != nil {
		return err
	}
	if len(edits) == 0 {
		a.restorePending(pending)
		return fmt.Errorf("no edits supplied for thread %s", a.threadID)
	}
	a.emitState(StateProcessing)

	finalEdits, failures, conflicts := a.prepareEdits(ctx, pending, edits)
	if len(finalEdits) == 0 {
		a.restorePending(pending)
		a.emitMessage(systemMessage(fmt.Sprintf("All %d edit(s) failed to merge. Nothing was applied.", len(edits))))
		a.emitState(StateAwaitingApproval)
		return fmt.Errorf("all %d edits failed for thread %s", len(edits), a.threadID)
	}

	res, err := a.graph.Resume(ctx, a.threadID, workflow.HumanDecision{
		Action: workflow.ActionModify,
		Edits:  finalEdits,
	})
	if err != nil {
		a.emitState(StateIdle)
		return fmt.Errorf("failed to resume thread %s: %w", a.threadID, err)
	}

	if len(failures) > 0 || conflicts > 0 {
		a.emitMessage(systemMessage(fmt.Sprintf(
			"%d/%d edit(s) applied (%d conflict(s) resolved, %d failed).",
			len(finalEdits), len(edits), conflicts, len(failures))))
	}

	a.handleResult(res)
	return nil
}

type pendingSuspension struct {
	interrupt *workflow.Interrupt
	state     *workflow.WorkflowState
}

// takePending claims the pending suspension, failing when none exists.
func (a *Agent) takePending() (pendingSuspension, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.pending == nil {
		return pendingSuspension{}, fmt.Errorf("no pending approval for thread %s", a.threadID)
	}
	p := pendingSuspension{interrupt: a.pending, state: a.pendingState}
	a.pending = nil
	a.pendingState = nil
	return p, nil
}

func (a *Agent) restorePending(p pendingSuspension) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.pending = p.interrupt
	a.pendingState = p.state
}

// prepareEdits routes edits through the merge service when the thread runs
// in intelligent-merge mode, dropping edits whose merge failed.
func (a *Agent) prepareEdits(ctx context.Context, p pendingSuspension, edits []workflow.FileEdit) (final []workflow.FileEdit, failed []string, conflicts int) {
	useMorph := p.state != nil && p.state.UseMorph
	if !useMorph || a.merge == nil {
		return edits, nil, 0
	}

	for _, edit := range edits {
		original := a.readOriginal(ctx, p.interrupt, edit.FilePath)
		merged, err := a.merge.Merge(ctx, edit.FilePath, original, edit.Content)
		if err != nil {
			a.logger.Warn("thread %s: merge failed for %s: %v", a.threadID, edit.FilePath, err)
			failed = append(failed, edit.FilePath)
			continue
		}
		conflicts += merged.Conflicts
		final = append(final, workflow.FileEdit{FilePath: edit.FilePath, Content: merged.Content})
	}
	return final, failed, conflicts
}

// readOriginal fetches the file's current content through the read_file
// tool. A miss degrades to an empty original.
func (a *Agent) readOriginal(ctx context.Context, interrupt *workflow.Interrupt, filePath string) string {
	tool, err := a.registry.Get(tools.ToolReadFile)
	if err != nil {
		return ""
	}
	result, err := tool.Exec(ctx, map[string]any{
		"sandboxId":   interrupt.StateSnapshot.SandboxID,
		"filePath":    filePath,
		"sandboxType": interrupt.StateSnapshot.SandboxType,
	})
	if err != nil {
		return ""
	}

	var payload struct {
		Content string `json:"content"`
	}
	if err := json.Unmarshal([]byte(result.Content), &payload); err != nil {
		return ""
	}
	return payload.Content
}

// handleResult maps a graph result onto callbacks. Suspension emits the
// interrupt and no chat message; completion emits the assistant's reply.
func (a *Agent) handleResult(res workflow.Result) {
	if res.Status == workflow.StatusSuspended && res.Interrupt != nil {
		a.mu.Lock()
		a.pending = res.Interrupt
		state := res.State
		a.pendingState = &state
		a.mu.Unlock()

		a.emitState(StateAwaitingApproval)
		if a.callbacks.OnInterrupt != nil {
			a.callbacks.OnInterrupt(*res.Interrupt)
		}
		return
	}

	if m := lastAssistantMessage(res.State); m != nil {
		a.emitMessage(*m)
	}
	a.emitState(StateIdle)
}

func (a *Agent) baseDelta() workflow.Delta {
	var d workflow.Delta
	if a.opts.SandboxID != "" {
		d.SandboxID = &a.opts.SandboxID
	}
	if a.opts.SandboxType != "" {
		d.SandboxType = &a.opts.SandboxType
	}
	if a.opts.UserID != "" {
		d.UserID = &a.opts.UserID
	}
	if a.opts.ProjectID != "" {
		d.ProjectID = &a.opts.ProjectID
	}
	if a.opts.UseMorph {
		d.UseMorph = &a.opts.UseMorph
	}
	if a.opts.Model != nil {
		d.ModelConfig = a.opts.Model
	}
	return d
}

func (a *Agent) emitMessage(m msg.Message) {
	if a.callbacks.OnMessage != nil {
		a.callbacks.OnMessage(m)
	}
}

func (a *Agent) emitState(state string) {
	if a.callbacks.OnStateChange != nil {
		a.callbacks.OnStateChange(state)
	}
}

func lastAssistantMessage(state workflow.WorkflowState) *msg.Message {
	for i := len(state.Messages) - 1; i >= 0; i-- {
		if state.Messages[i].Role == msg.RoleAssistant {
			m := state.Messages[i]
			return &m
		}
	}
	return nil
}

func systemMessage(content string) msg.Message {
	m := msg.NewAssistantMessage(content, nil)
	m.Role = msg.RoleSystem
	return m
}
