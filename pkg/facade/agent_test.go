package facade

import (
	"context"
	"errors"
	"fmt"
	"strings"
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
	"assistant/pkg/workflow"
)

type stubResolver struct{ client llm.Client }

func (r stubResolver) GetModel(config.ModelPreset) (llm.Client, error) { return r.client, nil }
func (r stubResolver) GetModelPreset(string) *config.ModelPreset      { return nil }

type recordingTool struct {
	name   string
	result string
	err    error

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
	result := t.result
	if result == "" {
		result = `{"success": true}`
	}
	return &tools.ExecResult{Content: result}, nil
}

func (t *recordingTool) Execs() []map[string]any {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]map[string]any, len(t.execs))
	copy(out, t.execs)
	return out
}

// capture collects every callback invocation in order.
type capture struct {
	mu         sync.Mutex
	messages   []msg.Message
	states     []string
	interrupts []workflow.Interrupt
}

func (c *capture) callbacks() Callbacks {
	return Callbacks{
		OnMessage: func(m msg.Message) {
			c.mu.Lock()
			defer c.mu.Unlock()
			c.messages = append(c.messages, m)
		},
		OnStateChange: func(state string) {
			c.mu.Lock()
			defer c.mu.Unlock()
			c.states = append(c.states, state)
		},
		OnInterrupt: func(i workflow.Interrupt) {
			c.mu.Lock()
			defer c.mu.Unlock()
			c.interrupts = append(c.interrupts, i)
		},
	}
}

type fixture struct {
	agent     *Agent
	obs       *capture
	client    *models.MockClient
	writeFile *recordingTool
	readFile  *recordingTool
}

type fakeMerge struct {
	err error
}

func (m *fakeMerge) Merge(_ context.Context, _ string, original, proposed string) (MergeResult, error) {
	if m.err != nil {
		return MergeResult{}, m.err
	}
	return MergeResult{Content: "merged:" + original + "+" + proposed, Conflicts: 1}, nil
}

func newFixture(t *testing.T, opts Options, merge MergeService, responses ...llm.CompletionResponse) *fixture {
	t.Helper()

	cfg, err := config.LoadConfig("")
	require.NoError(t, err)

	client := models.NewMockClient("test-model", responses...)
	registry := tools.NewRegistry()
	writeFile := &recordingTool{name: tools.ToolWriteFile}
	readFile := &recordingTool{name: tools.ToolReadFile, result: `{"success": true, "content": "original body"}`}
	require.NoError(t, registry.Register(writeFile))
	require.NoError(t, registry.Register(readFile))

	graph := workflow.NewGraph(*cfg, stubResolver{client: client}, registry,
		workflow.NewClassifier(cfg.Review), checkpoint.NewMemoryStore(), nil, nil)

	obs := &capture{}
	agent := New("thread-1", graph, registry, merge, obs.callbacks(), opts, nil)

	return &fixture{agent: agent, obs: obs, client: client, writeFile: writeFile, readFile: readFile}
}

func writeFileResponse() llm.CompletionResponse {
	return llm.CompletionResponse{
		StopReason: "tool_use",
		ToolCalls: []llm.ToolCall{{
			Name:       tools.ToolWriteFile,
			ID:         "call_1",
			Parameters: map[string]any{"filePath": "/test.js", "content": "console.log('hi')"},
		}},
	}
}

func TestProcessMessagePlainChat(t *testing.T) {
	f := newFixture(t, Options{}, nil, llm.CompletionResponse{Content: "Hello there"})

	f.agent.ProcessMessage(context.Background(), "hi")

	require.Len(t, f.obs.messages, 1)
	assert.Equal(t, msg.RoleAssistant, f.obs.messages[0].Role)
	assert.Equal(t, "Hello there", f.obs.messages[0].Content)
	assert.Equal(t, []string{StateProcessing, StateIdle}, f.obs.states)
	assert.Empty(t, f.obs.interrupts)
}

func TestProcessMessageSensitiveToolInterrupts(t *testing.T) {
	f := newFixture(t, Options{SandboxID: "sb-1", SandboxType: "local"}, nil, writeFileResponse())

	f.agent.ProcessMessage(context.Background(), "create /test.js")

	assert.Empty(t, f.obs.messages, "no chat message while awaiting approval")
	assert.Equal(t, []string{StateProcessing, StateAwaitingApproval}, f.obs.states)
	require.Len(t, f.obs.interrupts, 1)

	interrupt := f.obs.interrupts[0]
	require.Len(t, interrupt.ToolCalls, 1)
	assert.Equal(t, tools.ToolWriteFile, interrupt.ToolCalls[0].Name)
	assert.Equal(t, "/test.js", interrupt.ToolCalls[0].Args["filePath"])
	assert.Equal(t, "sb-1", interrupt.StateSnapshot.SandboxID)
	assert.Empty(t, f.writeFile.Execs())
}

func TestResumeWithApproval(t *testing.T) {
	f := newFixture(t, Options{}, nil,
		writeFileResponse(),
		llm.CompletionResponse{Content: "Created /test.js."},
	)
	ctx := context.Background()

	f.agent.ProcessMessage(ctx, "create /test.js")
	require.NoError(t, f.agent.ResumeWithApproval(ctx))

	require.Len(t, f.writeFile.Execs(), 1)
	require.Len(t, f.obs.messages, 1)
	assert.Equal(t, "Created /test.js.", f.obs.messages[0].Content)
	assert.Equal(t, StateIdle, f.obs.states[len(f.obs.states)-1])

	// Suspension is consumed; a second approval has nothing to resume.
	require.Error(t, f.agent.ResumeWithApproval(ctx))
}

func TestResumeWithoutPendingFails(t *testing.T) {
	f := newFixture(t, Options{}, nil, llm.CompletionResponse{Content: "hi"})
	ctx := context.Background()

	assert.Error(t, f.agent.ResumeWithApproval(ctx))
	assert.Error(t, f.agent.ResumeWithRejection(ctx))
	assert.Error(t, f.agent.ResumeWithModification(ctx, []workflow.FileEdit{{FilePath: "/a", Content: "x"}}))
}

func TestResumeWithRejection(t *testing.T) {
	f := newFixture(t, Options{}, nil, writeFileResponse())
	ctx := context.Background()

	f.agent.ProcessMessage(ctx, "create /test.js")
	require.NoError(t, f.agent.ResumeWithRejection(ctx))

	assert.Empty(t, f.writeFile.Execs(), "rejected tool never runs")
	require.Len(t, f.obs.messages, 1)
	assert.Equal(t, msg.RoleSystem, f.obs.messages[0].Role)
	assert.Contains(t, f.obs.messages[0].Content, "rejected")
	assert.Equal(t, StateIdle, f.obs.states[len(f.obs.states)-1])
}

func TestResumeWithModificationPlainOverwrite(t *testing.T) {
	f := newFixture(t, Options{}, nil,
		writeFileResponse(),
		llm.CompletionResponse{Content: "Done."},
	)
	ctx := context.Background()

	f.agent.ProcessMessage(ctx, "create /test.js")
	err := f.agent.ResumeWithModification(ctx, []workflow.FileEdit{
		{FilePath: "/test.js", Content: "console.log('edited')"},
	})
	require.NoError(t, err)

	execs := f.writeFile.Execs()
	require.Len(t, execs, 1)
	assert.Equal(t, "console.log('edited')", execs[0]["content"])
}

func TestResumeWithModificationMerges(t *testing.T) {
	f := newFixture(t, Options{UseMorph: true}, &fakeMerge{},
		writeFileResponse(),
		llm.CompletionResponse{Content: "Done."},
	)
	ctx := context.Background()

	f.agent.ProcessMessage(ctx, "create /test.js")
	err := f.agent.ResumeWithModification(ctx, []workflow.FileEdit{
		{FilePath: "/test.js", Content: "proposed body"},
	})
	require.NoError(t, err)

	execs := f.writeFile.Execs()
	require.Len(t, execs, 1)
	assert.Equal(t, "merged:original body+proposed body", execs[0]["content"])
	require.Len(t, f.readFile.Execs(), 1, "merge reads the current file content")

	var summary *msg.Message
	for i := range f.obs.messages {
		if f.obs.messages[i].Role == msg.RoleSystem {
			summary = &f.obs.messages[i]
		}
	}
	require.NotNil(t, summary, "conflict count is reported")
	assert.Contains(t, summary.Content, "1 conflict")
}

func TestResumeWithModificationAllEditsFail(t *testing.T) {
	f := newFixture(t, Options{UseMorph: true}, &fakeMerge{err: errors.New("merge exploded")},
		writeFileResponse(),
	)
	ctx := context.Background()

	f.agent.ProcessMessage(ctx, "create /test.js")
	err := f.agent.ResumeWithModification(ctx, []workflow.FileEdit{
		{FilePath: "/test.js", Content: "proposed"},
	})
	require.Error(t, err)
	assert.Empty(t, f.writeFile.Execs())

	// The suspension is restored, so a plain approval still works.
	require.NoError(t, f.agent.ResumeWithApproval(ctx))
	require.Len(t, f.writeFile.Execs(), 1)
}

func TestProcessMessageModelFailureStillResolves(t *testing.T) {
	f := newFixture(t, Options{}, nil)
	f.client.FailWith(errors.New("upstream down"))

	f.agent.ProcessMessage(context.Background(), "hi")

	require.Len(t, f.obs.messages, 1, "exactly one error message reaches the user")
	assert.True(t,
		f.obs.messages[0].Role == msg.RoleAssistant || f.obs.messages[0].Role == msg.RoleSystem,
		"role is %s", f.obs.messages[0].Role)
	assert.Contains(t, strings.ToLower(f.obs.messages[0].Content), "problem")
	assert.Equal(t, []string{StateProcessing, StateIdle}, f.obs.states)
}

func TestCallbacksAreSynchronous(t *testing.T) {
	f := newFixture(t, Options{}, nil, llm.CompletionResponse{Content: "hi"})

	var order []string
	f.agent.callbacks.OnMessage = func(m msg.Message) { order = append(order, "message:"+m.Role) }
	f.agent.callbacks.OnStateChange = func(s string) { order = append(order, "state:"+s) }

	f.agent.ProcessMessage(context.Background(), "hello")

	// Everything observed before ProcessMessage returned.
	assert.Equal(t, []string{
		"state:" + StateProcessing,
		fmt.Sprintf("message:%s", msg.RoleAssistant),
		"state:" + StateIdle,
	}, order)
}
