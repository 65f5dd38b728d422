package msg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeNil(t *testing.T) {
	assert.Empty(t, NormalizeToolCalls(nil))
}

func TestNormalizeFlatList(t *testing.T) {
	raw := []any{
		map[string]any{
			"name": "write_file",
			"args": map[string]any{"filePath": "/a.txt", "content": "hi"},
			"id":   "call-1",
			"type": "tool_call",
		},
		map[string]any{
			"name": "read_file",
		},
	}

	calls := NormalizeToolCalls(raw)
	require.Len(t, calls, 2)

	assert.Equal(t, "write_file", calls[0].Name)
	assert.Equal(t, "call-1", calls[0].ID)
	assert.Equal(t, "/a.txt", calls[0].Args["filePath"])

	// Missing fields get defaults.
	assert.Equal(t, "read_file", calls[1].Name)
	assert.Equal(t, "", calls[1].ID)
	assert.Equal(t, DefaultToolCallType, calls[1].Type)
	assert.NotNil(t, calls[1].Args)
	assert.Empty(t, calls[1].Args)
}

func TestNormalizeDropsNilElements(t *testing.T) {
	raw := []any{
		nil,
		map[string]any{"name": "read_file"},
		nil,
	}

	calls := NormalizeToolCalls(raw)
	require.Len(t, calls, 1)
	assert.Equal(t, "read_file", calls[0].Name)
}

func TestNormalizeDropsNamelessElements(t *testing.T) {
	raw := []any{
		map[string]any{"args": map[string]any{"x": 1}},
		"not even an object",
		map[string]any{"name": "read_file"},
	}

	calls := NormalizeToolCalls(raw)
	require.Len(t, calls, 1)
	assert.Equal(t, "read_file", calls[0].Name)
}

func TestNormalizeNestedToolCallsProperty(t *testing.T) {
	raw := map[string]any{
		"toolCalls": []any{
			map[string]any{"name": "execute_code", "input": map[string]any{"command": "ls"}},
		},
	}

	calls := NormalizeToolCalls(raw)
	require.Len(t, calls, 1)
	assert.Equal(t, "execute_code", calls[0].Name)
	assert.Equal(t, "ls", calls[0].Args["command"])
}

func TestNormalizeNestedCallsProperty(t *testing.T) {
	raw := map[string]any{
		"calls": []any{
			map[string]any{"name": "web_search", "arguments": map[string]any{"query": "golang"}},
		},
	}

	calls := NormalizeToolCalls(raw)
	require.Len(t, calls, 1)
	assert.Equal(t, "web_search", calls[0].Name)
	assert.Equal(t, "golang", calls[0].Args["query"])
}

func TestNormalizeSingleCallObject(t *testing.T) {
	raw := map[string]any{
		"name": "write_file",
		"args": map[string]any{"filePath": "/a.txt"},
	}

	calls := NormalizeToolCalls(raw)
	require.Len(t, calls, 1)
	assert.Equal(t, "write_file", calls[0].Name)
}

func TestNormalizeOpenAIFunctionShape(t *testing.T) {
	raw := map[string]any{
		"id":   "call-9",
		"type": "function",
		"function": map[string]any{
			"name":      "read_file",
			"arguments": `{"filePath":"/b.txt"}`,
		},
	}

	calls := NormalizeToolCalls(raw)
	require.Len(t, calls, 1)
	assert.Equal(t, "read_file", calls[0].Name)
	assert.Equal(t, "call-9", calls[0].ID)
	assert.Equal(t, "function", calls[0].Type)
	assert.Equal(t, "/b.txt", calls[0].Args["filePath"])
}

func TestNormalizeArgsPrecedence(t *testing.T) {
	raw := []any{
		map[string]any{
			"name":      "execute_code",
			"args":      map[string]any{"winner": "args"},
			"input":     map[string]any{"winner": "input"},
			"arguments": map[string]any{"winner": "arguments"},
		},
		map[string]any{
			"name":      "execute_code",
			"input":     map[string]any{"winner": "input"},
			"arguments": map[string]any{"winner": "arguments"},
		},
	}

	calls := NormalizeToolCalls(raw)
	require.Len(t, calls, 2)
	assert.Equal(t, "args", calls[0].Args["winner"])
	assert.Equal(t, "input", calls[1].Args["winner"])
}

func TestNormalizeScalarInput(t *testing.T) {
	assert.Empty(t, NormalizeToolCalls("just a string"))
	assert.Empty(t, NormalizeToolCalls(42))
	assert.Empty(t, NormalizeToolCalls(map[string]any{"unrelated": true}))
}

func TestNormalizeTypedStructInput(t *testing.T) {
	type vendorCall struct {
		Input map[string]any `json:"input"`
		ID    string         `json:"id"`
		Name  string         `json:"name"`
	}
	raw := []vendorCall{
		{Name: "write_file", ID: "c1", Input: map[string]any{"filePath": "/a.txt"}},
	}

	calls := NormalizeToolCalls(raw)
	require.Len(t, calls, 1)
	assert.Equal(t, "write_file", calls[0].Name)
	assert.Equal(t, "c1", calls[0].ID)
	assert.Equal(t, "/a.txt", calls[0].Args["filePath"])
}

func TestNormalizeIdempotent(t *testing.T) {
	raw := []any{
		map[string]any{"name": "write_file", "args": map[string]any{"filePath": "/a.txt"}, "id": "c1"},
		map[string]any{"name": "read_file"},
	}

	once := NormalizeToolCalls(raw)
	twice := NormalizeToolCalls(once)
	assert.Equal(t, once, twice)
}
