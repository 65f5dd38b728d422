package workflow

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"assistant/pkg/checkpoint"
	"assistant/pkg/config"
	"assistant/pkg/llm"
	"assistant/pkg/models"
	"assistant/pkg/msg"
	"assistant/pkg/tools"
)

// stubResolver hands every request the same client.
type stubResolver struct {
	client llm.Client
	err    error
}

func (r stubResolver) GetModel(config.ModelPreset) (llm.Client, error) { return r.client, r.err }
func (r stubResolver) GetModelPreset(string) *config.ModelPreset      { return nil }

// recordingTool captures every execution so tests can assert side effects.
type recordingTool struct {
	name string
	err  error

	mu    sync.Mutex
	execs []map[string]any
}

func (t *recordingTool) Name() string { return t.name }

func (t *recordingTool) Definition() tools.ToolDefinition {
	return tools.ToolDefinition{Name: t.name, Description: "test tool"}
}

func (t *recordingTool) Exec(_ context.Context, args map[string]any) (*tools.ExecResult, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.execs = append(t.execs, args)
	if t.err != nil {
		return nil, t.err
	}
	return &tools.ExecResult{Content: `{"success": true}`}, nil
}

func (t *recordingTool) Execs() []map[string]any {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]map[string]any, len(t.execs))
	copy(out, t.execs)
	return out
}

type graphFixture struct {
	graph     *Graph
	store     checkpoint.Store
	client    *models.MockClient
	writeFile *recordingTool
	webSearch *recordingTool
	cfg       config.Config
}

func newGraphFixture(t *testing.T, responses ...llm.CompletionResponse) *graphFixture {
	t.Helper()

	cfg, err := config.LoadConfig("")
	require.NoError(t, err)

	client := models.NewMockClient("test-model", responses...)
	registry := tools.NewRegistry()
	writeFile := &recordingTool{name: "write_file"}
	webSearch := &recordingTool{name: "web_search"}
	require.NoError(t, registry.Register(writeFile))
	require.NoError(t, registry.Register(webSearch))

	store := checkpoint.NewMemoryStore()
	graph := NewGraph(*cfg, stubResolver{client: client}, registry, NewClassifier(cfg.Review), store, nil, nil)

	return &graphFixture{
		graph:     graph,
		store:     store,
		client:    client,
		writeFile: writeFile,
		webSearch: webSearch,
		cfg:       *cfg,
	}
}

func writeFileCall() llm.CompletionResponse {
	return llm.CompletionResponse{
		StopReason: "tool_use",
		ToolCalls: []llm.ToolCall{{
			Name:       "write_file",
			ID:         "call_1",
			Parameters: map[string]any{"filePath": "/test.js", "content": "console.log('hi')"},
		}},
	}
}

func TestInvokePlainChatEnds(t *testing.T) {
	f := newGraphFixture(t, llm.CompletionResponse{Content: "Hello there"})

	res, err := f.graph.Invoke(context.Background(), "t1", Delta{
		Messages: []msg.Message{msg.NewHumanMessage("hi")},
	})
	require.NoError(t, err)

	assert.Equal(t, StatusDone, res.Status)
	assert.Nil(t, res.Interrupt)
	require.Len(t, res.State.Messages, 2)
	assert.Equal(t, msg.RoleAssistant, res.State.Messages[1].Role)
	assert.Equal(t, "Hello there", res.State.Messages[1].Content)

	require.Len(t, res.State.ModelUsageHistory, 1)
	assert.NotZero(t, res.State.ModelUsageHistory[0].TimestampMs)
}

func TestInvokeSensitiveToolSuspends(t *testing.T) {
	f := newGraphFixture(t, writeFileCall())

	res, err := f.graph.Invoke(context.Background(), "t1", Delta{
		Messages:    []msg.Message{msg.NewHumanMessage("create /test.js")},
		CurrentFile: ptr("/prev.js"),
		SandboxID:   ptr("sb-1"),
		SandboxType: ptr("local"),
	})
	require.NoError(t, err)

	assert.Equal(t, StatusSuspended, res.Status)
	require.NotNil(t, res.Interrupt)
	assert.Equal(t, InterruptReasonSensitiveTools, res.Interrupt.Reason)
	require.Len(t, res.Interrupt.ToolCalls, 1)
	assert.Equal(t, "write_file", res.Interrupt.ToolCalls[0].Name)
	assert.Equal(t, "/test.js", res.Interrupt.ToolCalls[0].Args["filePath"])
	assert.Equal(t, "console.log('hi')", res.Interrupt.ToolCalls[0].Args["content"])
	assert.Equal(t, "sb-1", res.Interrupt.StateSnapshot.SandboxID)

	assert.True(t, res.State.AwaitingHumanInput)
	assert.Empty(t, f.writeFile.Execs(), "no tool runs before approval")
}

func TestInvokeWhileSuspendedResurfacesSameInterrupt(t *testing.T) {
	f := newGraphFixture(t, writeFileCall())
	ctx := context.Background()

	first, err := f.graph.Invoke(ctx, "t1", Delta{Messages: []msg.Message{msg.NewHumanMessage("create /test.js")}})
	require.NoError(t, err)
	require.Equal(t, StatusSuspended, first.Status)
	require.Equal(t, 1, f.client.Calls())

	second, err := f.graph.Invoke(ctx, "t1", Delta{Messages: []msg.Message{msg.NewHumanMessage("are you there?")}})
	require.NoError(t, err)

	assert.Equal(t, StatusSuspended, second.Status)
	assert.Equal(t, first.Interrupt, second.Interrupt, "pending interrupt is re-surfaced, not recomputed")
	assert.Equal(t, 1, f.client.Calls(), "model is not re-invoked while suspended")
	assert.Empty(t, f.writeFile.Execs())
	assert.Greater(t, len(second.State.Messages), len(first.State.Messages), "new message still lands in history")
}

func TestResumeApproveExecutesAndConfirms(t *testing.T) {
	f := newGraphFixture(t,
		writeFileCall(),
		llm.CompletionResponse{Content: "Created /test.js for you."},
	)
	ctx := context.Background()

	res, err := f.graph.Invoke(ctx, "t1", Delta{Messages: []msg.Message{msg.NewHumanMessage("create /test.js")}})
	require.NoError(t, err)
	require.Equal(t, StatusSuspended, res.Status)

	resumed, err := f.graph.Resume(ctx, "t1", HumanDecision{Action: ActionApprove})
	require.NoError(t, err)

	assert.Equal(t, StatusDone, resumed.Status)
	execs := f.writeFile.Execs()
	require.Len(t, execs, 1)
	assert.Equal(t, "/test.js", execs[0]["filePath"])
	assert.Equal(t, "console.log('hi')", execs[0]["content"])

	last := resumed.State.Messages[len(resumed.State.Messages)-1]
	assert.Equal(t, msg.RoleAssistant, last.Role)
	assert.Equal(t, "Created /test.js for you.", last.Content)
	assert.False(t, resumed.State.AwaitingHumanInput)
	assert.Equal(t, "/test.js", resumed.State.CurrentFile, "write updates the current file")
}

func TestResumeRejectEndsWithoutSideEffects(t *testing.T) {
	f := newGraphFixture(t, writeFileCall())
	ctx := context.Background()

	res, err := f.graph.Invoke(ctx, "t1", Delta{Messages: []msg.Message{msg.NewHumanMessage("create /test.js")}})
	require.NoError(t, err)
	require.Equal(t, StatusSuspended, res.Status)
	msgCount := len(res.State.Messages)

	resumed, err := f.graph.Resume(ctx, "t1", HumanDecision{Action: ActionReject})
	require.NoError(t, err)

	assert.Equal(t, StatusDone, resumed.Status)
	assert.Empty(t, f.writeFile.Execs(), "rejected tool never runs")
	assert.Equal(t, 1, f.client.Calls(), "no follow-up model turn on reject")
	assert.False(t, resumed.State.AwaitingHumanInput)
	assert.GreaterOrEqual(t, len(resumed.State.Messages), msgCount, "history never shrinks")

	rec, err := f.store.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, checkpoint.StatusDone, rec.Status)
	assert.Empty(t, rec.Interrupt)
}

func TestResumeModifyReplacesProposedContent(t *testing.T) {
	f := newGraphFixture(t,
		writeFileCall(),
		llm.CompletionResponse{Content: "Done."},
	)
	ctx := context.Background()

	_, err := f.graph.Invoke(ctx, "t1", Delta{Messages: []msg.Message{msg.NewHumanMessage("create /test.js")}})
	require.NoError(t, err)

	resumed, err := f.graph.Resume(ctx, "t1", HumanDecision{
		Action: ActionModify,
		Edits:  []FileEdit{{FilePath: "/test.js", Content: "console.log('edited')"}},
	})
	require.NoError(t, err)

	assert.Equal(t, StatusDone, resumed.Status)
	execs := f.writeFile.Execs()
	require.Len(t, execs, 1)
	assert.Equal(t, "console.log('edited')", execs[0]["content"], "human edit replaces model content")
}

func TestApplyEditsAddsUnmatchedAsWrites(t *testing.T) {
	calls := []msg.ToolCall{{
		Name: "write_file",
		Args: map[string]any{"filePath": "/a.js", "content": "old"},
		ID:   "call_1",
	}}
	edits := []FileEdit{
		{FilePath: "/a.js", Content: "new"},
		{FilePath: "/b.js", Content: "extra"},
	}

	out := applyEdits(calls, edits)
	require.Len(t, out, 2)
	assert.Equal(t, "new", out[0].Args["content"])
	assert.Equal(t, "write_file", out[1].Name)
	assert.Equal(t, "/b.js", out[1].Args["filePath"])
}

func TestSafeToolRunsWithoutSuspension(t *testing.T) {
	f := newGraphFixture(t,
		llm.CompletionResponse{
			StopReason: "tool_use",
			ToolCalls: []llm.ToolCall{{
				Name:       "web_search",
				ID:         "call_1",
				Parameters: map[string]any{"query": "golang generics"},
			}},
		},
		llm.CompletionResponse{Content: "Here is what I found."},
	)

	res, err := f.graph.Invoke(context.Background(), "t1", Delta{
		Messages: []msg.Message{msg.NewHumanMessage("search the web for golang generics")},
	})
	require.NoError(t, err)

	assert.Equal(t, StatusDone, res.Status)
	assert.Nil(t, res.Interrupt)
	require.Len(t, f.webSearch.Execs(), 1)
	assert.Equal(t, "golang generics", f.webSearch.Execs()[0]["query"])
	assert.Equal(t, 2, f.client.Calls(), "tool result feeds a follow-up turn")
}

func TestModelFailureDegradesToChatMessage(t *testing.T) {
	f := newGraphFixture(t)
	f.client.FailWith(errors.New("connection reset"))

	res, err := f.graph.Invoke(context.Background(), "t1", Delta{
		Messages: []msg.Message{msg.NewHumanMessage("hi")},
	})
	require.NoError(t, err, "model failure must not propagate")

	assert.Equal(t, StatusDone, res.Status)
	last := res.State.Messages[len(res.State.Messages)-1]
	assert.Equal(t, msg.RoleAssistant, last.Role)
	assert.Contains(t, last.Content, "problem")

	require.Len(t, res.State.ModelUsageHistory, 1)
	assert.Empty(t, res.State.ModelUsageHistory[0].Model, "failed attempt records an empty usage entry")
}

func TestToolFailureBecomesToolResultMessage(t *testing.T) {
	f := newGraphFixture(t,
		llm.CompletionResponse{
			StopReason: "tool_use",
			ToolCalls: []llm.ToolCall{{
				Name:       "web_search",
				ID:         "call_1",
				Parameters: map[string]any{"query": "x"},
			}},
		},
		llm.CompletionResponse{Content: "The search failed, sorry."},
	)
	f.webSearch.err = errors.New("backend down")

	res, err := f.graph.Invoke(context.Background(), "t1", Delta{
		Messages: []msg.Message{msg.NewHumanMessage("search for x")},
	})
	require.NoError(t, err)

	assert.Equal(t, StatusDone, res.Status)
	var toolResult *msg.Message
	for i := range res.State.Messages {
		if res.State.Messages[i].Role == msg.RoleToolResult {
			toolResult = &res.State.Messages[i]
		}
	}
	require.NotNil(t, toolResult)
	assert.Contains(t, toolResult.Content, "backend down")
	assert.Equal(t, "call_1", toolResult.ToolCallID)
}

func TestResumeWithoutSuspensionFails(t *testing.T) {
	f := newGraphFixture(t, llm.CompletionResponse{Content: "hi"})
	ctx := context.Background()

	// Never-seen thread.
	_, err := f.graph.Resume(ctx, "ghost", HumanDecision{Action: ActionApprove})
	require.ErrorIs(t, err, ErrNoPendingSuspension)
	assert.Contains(t, err.Error(), "ghost")

	// Completed thread.
	_, err = f.graph.Invoke(ctx, "t1", Delta{Messages: []msg.Message{msg.NewHumanMessage("hi")}})
	require.NoError(t, err)
	_, err = f.graph.Resume(ctx, "t1", HumanDecision{Action: ActionApprove})
	require.ErrorIs(t, err, ErrNoPendingSuspension)

	// Checkpoint is untouched by the failed resume.
	rec, err := f.store.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, checkpoint.StatusDone, rec.Status)
}

func TestSuspensionSurvivesGraphRestart(t *testing.T) {
	f := newGraphFixture(t,
		writeFileCall(),
		llm.CompletionResponse{Content: "Created."},
	)
	ctx := context.Background()

	res, err := f.graph.Invoke(ctx, "t1", Delta{Messages: []msg.Message{msg.NewHumanMessage("create /test.js")}})
	require.NoError(t, err)
	require.Equal(t, StatusSuspended, res.Status)

	// A fresh graph over the same store stands in for a process restart.
	fresh := NewGraph(f.cfg, stubResolver{client: f.client}, mustRegistry(t, f.writeFile, f.webSearch), NewClassifier(f.cfg.Review), f.store, nil, nil)

	resumed, err := fresh.Resume(ctx, "t1", HumanDecision{Action: ActionApprove})
	require.NoError(t, err)
	assert.Equal(t, StatusDone, resumed.Status)
	require.Len(t, f.writeFile.Execs(), 1)
}

func mustRegistry(t *testing.T, ts ...tools.Tool) *tools.Registry {
	t.Helper()
	r := tools.NewRegistry()
	for _, tool := range ts {
		require.NoError(t, r.Register(tool))
	}
	return r
}

func TestTerminalOutputAppendsOnExecute(t *testing.T) {
	exec := &recordingTool{name: "execute_code"}
	cfg, err := config.LoadConfig("")
	require.NoError(t, err)
	// execute_code is sensitive by default; approve it through resume.
	client := models.NewMockClient("m",
		llm.CompletionResponse{
			StopReason: "tool_use",
			ToolCalls: []llm.ToolCall{{
				Name:       "execute_code",
				ID:         "call_1",
				Parameters: map[string]any{"sandboxId": "sb-1", "command": "ls"},
			}},
		},
		llm.CompletionResponse{Content: "Listed."},
	)
	store := checkpoint.NewMemoryStore()
	graph := NewGraph(*cfg, stubResolver{client: client}, mustRegistry(t, exec), NewClassifier(cfg.Review), store, nil, nil)
	ctx := context.Background()

	res, err := graph.Invoke(ctx, "t1", Delta{Messages: []msg.Message{msg.NewHumanMessage("run ls")}})
	require.NoError(t, err)
	require.Equal(t, StatusSuspended, res.Status)

	resumed, err := graph.Resume(ctx, "t1", HumanDecision{Action: ActionApprove})
	require.NoError(t, err)
	assert.Equal(t, StatusDone, resumed.Status)
	require.Len(t, resumed.State.TerminalOutput, 1)
}
