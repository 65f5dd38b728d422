package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"assistant/pkg/checkpoint"
	"assistant/pkg/config"
	"assistant/pkg/llm"
	"assistant/pkg/logx"
	"assistant/pkg/middleware/metrics"
	"assistant/pkg/msg"
	"assistant/pkg/tools"
	"assistant/pkg/utils"
)

// Node names.
const (
	nodeAgent  = "agent"
	nodeReview = "review"
	nodeTools  = "tools"
	nodeEnd    = "__end__"
)

// Status of a graph invocation. Suspension is an explicit status, never
// control flow via panic or error.
type Status string

const (
	StatusRunning   Status = checkpoint.StatusRunning
	StatusSuspended Status = checkpoint.StatusSuspended
	StatusDone      Status = checkpoint.StatusDone
)

// InterruptReasonSensitiveTools is the reason recorded when the review node
// suspends a thread.
const InterruptReasonSensitiveTools = "sensitive_tool_calls"

// ErrNoPendingSuspension is returned when resuming a thread that is not
// suspended. The thread's last checkpoint is left untouched.
var ErrNoPendingSuspension = errors.New("no pending suspension")

// StateSnapshot carries the state context a human approver needs alongside
// the pending tool calls.
type StateSnapshot struct {
	CurrentFile string `json:"currentFile,omitempty"`
	SandboxID   string `json:"sandboxId,omitempty"`
	SandboxType string `json:"sandboxType,omitempty"`
}

// Interrupt is the payload handed to a human approver when the workflow
// suspends. The same payload is re-surfaced on every invocation until a
// decision is supplied.
type Interrupt struct {
	Reason        string         `json:"reason"`
	ToolCalls     []msg.ToolCall `json:"toolCalls"`
	StateSnapshot StateSnapshot  `json:"stateSnapshot"`
}

// Result is the outcome of one graph invocation.
type Result struct {
	Status    Status
	State     WorkflowState
	Interrupt *Interrupt
}

// Human decision actions.
const (
	ActionApprove = "approve"
	ActionReject  = "reject"
	ActionModify  = "modify"
)

// FileEdit is one human-supplied file change in a modify decision.
type FileEdit struct {
	FilePath string `json:"filePath"`
	Content  string `json:"content"`
}

// HumanDecision resolves a pending suspension. Edits are only consulted for
// ActionModify.
type HumanDecision struct {
	Action string
	Edits  []FileEdit
}

// ModelResolver resolves model presets to client handles. It is satisfied by
// models.Selector.
type ModelResolver interface {
	GetModel(preset config.ModelPreset) (llm.Client, error)
	GetModelPreset(name string) *config.ModelPreset
}

// Graph is the workflow state machine. All model, review, and tool behavior
// is owned state injected at construction; there are no package singletons,
// so tests run against fresh instances.
//
//nolint:govet // fieldalignment: grouped by role
type Graph struct {
	selector   ModelResolver
	registry   *tools.Registry
	classifier *Classifier
	store      checkpoint.Store
	recorder   metrics.Recorder
	logger     *logx.Logger

	maxTurns     int
	modelTimeout time.Duration
	retryBudget  int

	mu      sync.Mutex
	threads map[string]*sync.Mutex
}

// NewGraph wires the state machine. A nil recorder disables metrics.
func NewGraph(cfg config.Config, selector ModelResolver, registry *tools.Registry, classifier *Classifier, store checkpoint.Store, recorder metrics.Recorder, logger *logx.Logger) *Graph {
	if recorder == nil {
		recorder = metrics.Nop()
	}
	if logger == nil {
		logger = logx.NewLogger("workflow")
	}
	retryBudget := cfg.Resilience.Retry.MaxAttempts
	if retryBudget <= 0 {
		retryBudget = 1
	}
	return &Graph{
		selector:     selector,
		registry:     registry,
		classifier:   classifier,
		store:        store,
		recorder:     recorder,
		logger:       logger,
		maxTurns:     cfg.Workflow.MaxTurns,
		modelTimeout: cfg.Workflow.ModelTimeout,
		retryBudget:  retryBudget,
		threads:      make(map[string]*sync.Mutex),
	}
}

// threadLock returns the mutex serializing all invocations of one thread.
// Different threads proceed in parallel.
func (g *Graph) threadLock(threadID string) *sync.Mutex {
	g.mu.Lock()
	defer g.mu.Unlock()

	lock, ok := g.threads[threadID]
	if !ok {
		lock = &sync.Mutex{}
		g.threads[threadID] = lock
	}
	return lock
}

// Invoke runs the graph for a thread, starting at the agent node. The delta
// carries the caller's state updates, typically a new human message. If the
// thread is already suspended, the delta is folded into state and the pending
// interrupt is re-surfaced unchanged rather than re-running the review node.
func (g *Graph) Invoke(ctx context.Context, threadID string, delta Delta) (Result, error) {
	lock := g.threadLock(threadID)
	lock.Lock()
	defer lock.Unlock()

	state, pending, err := g.load(ctx, threadID)
	if err != nil {
		return Result{}, err
	}

	state = state.Apply(delta)

	if pending != nil {
		if err := g.persist(ctx, threadID, state, StatusSuspended, pending); err != nil {
			return Result{}, err
		}
		return Result{Status: StatusSuspended, State: state, Interrupt: pending}, nil
	}

	return g.run(ctx, threadID, state, nodeAgent, nil)
}

// Resume supplies a human decision for a suspended thread. Resuming a thread
// with no pending suspension is an error and leaves the last good checkpoint
// untouched.
func (g *Graph) Resume(ctx context.Context, threadID string, decision HumanDecision) (Result, error) {
	lock := g.threadLock(threadID)
	lock.Lock()
	defer lock.Unlock()

	state, pending, err := g.load(ctx, threadID)
	if err != nil {
		return Result{}, err
	}
	if pending == nil {
		return Result{}, fmt.Errorf("thread %s: %w", threadID, ErrNoPendingSuspension)
	}

	state = state.Apply(Delta{AwaitingHumanInput: ptr(false)})

	switch decision.Action {
	case ActionReject:
		// No tool executes. The thread ends without side effects.
		if err := g.persist(ctx, threadID, state, StatusDone, nil); err != nil {
			return Result{}, err
		}
		return Result{Status: StatusDone, State: state}, nil

	case ActionApprove:
		return g.run(ctx, threadID, state, nodeTools, pending.ToolCalls)

	case ActionModify:
		calls := applyEdits(pending.ToolCalls, decision.Edits)
		return g.run(ctx, threadID, state, nodeTools, calls)

	default:
		return Result{}, fmt.Errorf("unknown decision action %q", decision.Action)
	}
}

// applyEdits replaces the model's proposed file arguments with the human's
// edits. Edits that match a pending call by file path rewrite that call's
// content; edits with no matching call become new write_file calls.
func applyEdits(calls []msg.ToolCall, edits []FileEdit) []msg.ToolCall {
	byPath := make(map[string]FileEdit, len(edits))
	for _, edit := range edits {
		byPath[edit.FilePath] = edit
	}

	out := make([]msg.ToolCall, 0, len(calls)+len(edits))
	matched := make(map[string]bool, len(edits))
	for _, call := range calls {
		path, _ := call.Args["filePath"].(string)
		if edit, ok := byPath[path]; ok && path != "" {
			args := make(map[string]any, len(call.Args))
			for k, v := range call.Args {
				args[k] = v
			}
			args["content"] = edit.Content
			call.Args = args
			matched[path] = true
		}
		out = append(out, call)
	}
	for _, edit := range edits {
		if !matched[edit.FilePath] {
			out = append(out, msg.ToolCall{
				Name: tools.ToolWriteFile,
				Args: map[string]any{"filePath": edit.FilePath, "content": edit.Content},
				Type: msg.DefaultToolCallType,
			})
		}
	}
	return out
}

// run executes the node loop until the thread ends or suspends. pendingCalls
// seeds the tools node when resuming past a suspension.
func (g *Graph) run(ctx context.Context, threadID string, state WorkflowState, node string, pendingCalls []msg.ToolCall) (Result, error) {
	turns := 0
	for {
		switch node {
		case nodeAgent:
			if turns >= g.maxTurns {
				g.logger.Warn("thread %s hit max turns (%d), ending", threadID, g.maxTurns)
				node = nodeEnd
				continue
			}
			turns++

			var next string
			var err error
			state, next, err = g.agentNode(ctx, threadID, state)
			if err != nil {
				return Result{}, err
			}
			if err := g.persist(ctx, threadID, state, StatusRunning, nil); err != nil {
				return Result{}, err
			}
			node = next

		case nodeReview:
			calls := msg.NormalizeToolCalls(lastAssistantToolCalls(state))
			if len(calls) == 0 {
				node = nodeEnd
				continue
			}
			if g.classifier.RequiresReview(calls) {
				interrupt := &Interrupt{
					Reason:    InterruptReasonSensitiveTools,
					ToolCalls: calls,
					StateSnapshot: StateSnapshot{
						CurrentFile: state.CurrentFile,
						SandboxID:   state.SandboxID,
						SandboxType: state.SandboxType,
					},
				}
				state = state.Apply(Delta{AwaitingHumanInput: ptr(true)})
				if err := g.persist(ctx, threadID, state, StatusSuspended, interrupt); err != nil {
					return Result{}, err
				}
				for _, call := range calls {
					if g.classifier.IsSensitive(call.Name) {
						g.recorder.IncInterrupt(threadID, call.Name)
					}
				}
				g.logger.Info("thread %s suspended awaiting approval for %d tool call(s)", threadID, len(calls))
				return Result{Status: StatusSuspended, State: state, Interrupt: interrupt}, nil
			}
			pendingCalls = calls
			node = nodeTools

		case nodeTools:
			state = state.Apply(g.toolsNode(ctx, pendingCalls))
			pendingCalls = nil
			if err := g.persist(ctx, threadID, state, StatusRunning, nil); err != nil {
				return Result{}, err
			}
			node = nodeAgent

		case nodeEnd:
			if err := g.persist(ctx, threadID, state, StatusDone, nil); err != nil {
				return Result{}, err
			}
			return Result{Status: StatusDone, State: state}, nil

		default:
			return Result{}, fmt.Errorf("unknown workflow node %q", node)
		}
	}
}

// agentNode invokes the model over the accumulated history and returns the
// updated state plus the next node. A model failure degrades to a
// chat-visible assistant message rather than an error; the turn still
// advances and an empty usage entry marks the failed attempt.
func (g *Graph) agentNode(ctx context.Context, threadID string, state WorkflowState) (WorkflowState, string, error) {
	preset := g.resolvePreset(state.ModelConfig)

	client, err := g.selector.GetModel(preset)
	if err != nil {
		g.logger.Error("thread %s: no client for model %s: %v", threadID, preset.Model, err)
		return state.Apply(Delta{
			Messages:   []msg.Message{msg.NewAssistantMessage(modelFailureText(err), nil)},
			ModelUsage: []ModelUsage{{TimestampMs: time.Now().UnixMilli()}},
		}), nodeEnd, nil
	}

	req := llm.NewCompletionRequest(g.buildMessages(state, preset))
	req.Temperature = preset.Temperature
	req.Tools = g.registry.Definitions()

	var promptSize strings.Builder
	for _, m := range req.Messages {
		promptSize.WriteString(m.Content)
	}
	g.logger.Debug("thread %s: invoking %s/%s with %d messages (~%d tokens)",
		threadID, preset.Provider, preset.Model, len(req.Messages), utils.CountTokensSimple(promptSize.String()))

	invokeCtx := llm.WithThreadID(ctx, threadID)
	if g.modelTimeout > 0 {
		// Budget covers every retry attempt under this invocation.
		var cancel context.CancelFunc
		invokeCtx, cancel = context.WithTimeout(invokeCtx, g.modelTimeout*time.Duration(g.retryBudget))
		defer cancel()
	}

	resp, err := client.Complete(invokeCtx, req)
	if err != nil {
		g.logger.Error("thread %s: model invocation failed: %v", threadID, err)
		return state.Apply(Delta{
			Messages:   []msg.Message{msg.NewAssistantMessage(modelFailureText(err), nil)},
			ModelUsage: []ModelUsage{{TimestampMs: time.Now().UnixMilli()}},
		}), nodeEnd, nil
	}

	var toolCalls any
	next := nodeEnd
	if len(resp.ToolCalls) > 0 {
		toolCalls = resp.ToolCalls
		next = nodeReview
	}

	state = state.Apply(Delta{
		Messages: []msg.Message{msg.NewAssistantMessage(resp.Content, toolCalls)},
		ModelUsage: []ModelUsage{{
			Provider:    preset.Provider,
			Model:       preset.Model,
			TimestampMs: time.Now().UnixMilli(),
		}},
	})
	return state, next, nil
}

// resolvePreset maps the thread's model config onto a catalog preset,
// falling back to an ad hoc preset when the catalog has no match.
func (g *Graph) resolvePreset(mc ModelConfig) config.ModelPreset {
	if mc.Model == "" {
		mc = DefaultModelConfig()
	}
	if preset := g.selector.GetModelPreset(mc.Model); preset != nil {
		p := *preset
		if mc.Temperature != 0 {
			p.Temperature = mc.Temperature
		}
		return p
	}
	return config.ModelPreset{
		Provider:    mc.Provider,
		Model:       mc.Model,
		Temperature: mc.Temperature,
	}
}

// buildMessages converts thread history into a completion request, with a
// system prompt describing the working context ahead of it.
func (g *Graph) buildMessages(state WorkflowState, preset config.ModelPreset) []llm.CompletionMessage {
	out := make([]llm.CompletionMessage, 0, len(state.Messages)+1)
	out = append(out, llm.NewSystemMessage(g.systemPrompt(state, preset)))

	for _, m := range state.Messages {
		switch m.Role {
		case msg.RoleAssistant:
			out = append(out, llm.NewAssistantMessage(m.Content))
		case msg.RoleToolResult:
			out = append(out, llm.NewUserMessage(fmt.Sprintf("[tool result %s] %s", m.ToolCallID, m.Content)))
		default:
			out = append(out, llm.NewUserMessage(m.Content))
		}
	}
	return out
}

// systemPrompt embeds the current file, sandbox identity, and active model
// into the instructions for this turn.
func (g *Graph) systemPrompt(state WorkflowState, preset config.ModelPreset) string {
	var b strings.Builder
	b.WriteString("You are a coding assistant. Use the available tools to read, write, and execute code on the user's behalf. Prefer tool calls over describing changes.")

	if state.CurrentFile != "" {
		fmt.Fprintf(&b, "\n\nCurrent file: %s", state.CurrentFile)
		if state.FileContent != "" {
			fmt.Fprintf(&b, "\nFile content:\n%s", state.FileContent)
		}
	}
	if state.SandboxID != "" {
		fmt.Fprintf(&b, "\n\nSandbox: %s (type %s)", state.SandboxID, state.SandboxType)
	}
	if len(state.CodeContext) > 0 {
		fmt.Fprintf(&b, "\n\nRelevant code context:\n%s", strings.Join(state.CodeContext, "\n---\n"))
	}
	fmt.Fprintf(&b, "\n\nActive model: %s/%s", preset.Provider, preset.Model)
	return b.String()
}

// toolsNode executes each call sequentially against the registry. Failures
// become structured tool-result messages so the model can react on the next
// turn; nothing here returns an error upward.
func (g *Graph) toolsNode(ctx context.Context, calls []msg.ToolCall) Delta {
	var delta Delta
	for _, call := range calls {
		tool, err := g.registry.Get(call.Name)
		if err != nil {
			delta.Messages = append(delta.Messages,
				msg.NewToolResultMessage(call.ID, fmt.Sprintf(`{"success": false, "error": "unknown tool %s"}`, call.Name)))
			continue
		}

		result, err := tool.Exec(ctx, call.Args)
		if err != nil {
			g.logger.Error("tool %s failed: %v", call.Name, err)
			delta.Messages = append(delta.Messages,
				msg.NewToolResultMessage(call.ID, fmt.Sprintf(`{"success": false, "error": %q}`, err.Error())))
			continue
		}

		delta.Messages = append(delta.Messages, msg.NewToolResultMessage(call.ID, result.Content))

		switch call.Name {
		case tools.ToolExecuteCode:
			delta.TerminalOutput = append(delta.TerminalOutput, result.Content)
		case tools.ToolWriteFile, tools.ToolReadFile:
			if path, ok := call.Args["filePath"].(string); ok && path != "" {
				delta.CurrentFile = ptr(path)
			}
		}
	}
	return delta
}

// lastAssistantToolCalls returns the raw tool call payload of the most
// recent assistant message, or nil.
func lastAssistantToolCalls(state WorkflowState) any {
	for i := len(state.Messages) - 1; i >= 0; i-- {
		if state.Messages[i].Role == msg.RoleAssistant {
			return state.Messages[i].ToolCalls
		}
	}
	return nil
}

// modelFailureText is the user-visible degradation for a failed invocation.
func modelFailureText(err error) string {
	return fmt.Sprintf("I ran into a problem talking to the model (%v). Please try again.", err)
}

// load reads the thread's checkpoint. A missing checkpoint yields a zero
// state; a suspended checkpoint also yields its pending interrupt.
func (g *Graph) load(ctx context.Context, threadID string) (WorkflowState, *Interrupt, error) {
	rec, err := g.store.Get(ctx, threadID)
	if err != nil {
		return WorkflowState{}, nil, fmt.Errorf("failed to load checkpoint for thread %s: %w", threadID, err)
	}
	if rec == nil {
		return WorkflowState{}, nil, nil
	}

	var state WorkflowState
	if err := json.Unmarshal(rec.State, &state); err != nil {
		return WorkflowState{}, nil, fmt.Errorf("corrupt checkpoint state for thread %s: %w", threadID, err)
	}

	var pending *Interrupt
	if rec.Status == checkpoint.StatusSuspended && len(rec.Interrupt) > 0 {
		pending = &Interrupt{}
		if err := json.Unmarshal(rec.Interrupt, pending); err != nil {
			return WorkflowState{}, nil, fmt.Errorf("corrupt interrupt for thread %s: %w", threadID, err)
		}
	}
	return state, pending, nil
}

// persist writes the thread's checkpoint after a node transition.
func (g *Graph) persist(ctx context.Context, threadID string, state WorkflowState, status Status, interrupt *Interrupt) error {
	stateJSON, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to serialize state for thread %s: %w", threadID, err)
	}

	rec := &checkpoint.Record{
		ThreadID:  threadID,
		State:     stateJSON,
		Status:    string(status),
		UpdatedAt: time.Now().UTC(),
	}
	if interrupt != nil {
		interruptJSON, err := json.Marshal(interrupt)
		if err != nil {
			return fmt.Errorf("failed to serialize interrupt for thread %s: %w", threadID, err)
		}
		rec.Interrupt = interruptJSON
	}

	if err := g.store.Put(ctx, rec); err != nil {
		return fmt.Errorf("failed to persist checkpoint for thread %s: %w", threadID, err)
	}
	return nil
}
