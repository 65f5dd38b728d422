package sandbox

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalReadWriteRoundTrip(t *testing.T) {
	sb, err := NewLocal(t.TempDir())
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, sb.WriteFile(ctx, "sb-1", "/src/main.js", "console.log('hi')", TypeLocal))

	content, err := sb.ReadFile(ctx, "sb-1", "/src/main.js", TypeLocal)
	require.NoError(t, err)
	assert.Equal(t, "console.log('hi')", content)
}

func TestLocalReadMissingFile(t *testing.T) {
	sb, err := NewLocal(t.TempDir())
	require.NoError(t, err)

	_, err = sb.ReadFile(context.Background(), "sb-1", "/nope.txt", TypeLocal)
	assert.Error(t, err)
}

func TestLocalRejectsPathEscape(t *testing.T) {
	sb, err := NewLocal(t.TempDir())
	require.NoError(t, err)

	_, err = sb.resolve("../../etc/passwd")
	// Leading slash normalization pins the path under the root.
	require.NoError(t, err)

	abs, err := sb.resolve("/../../secret")
	require.NoError(t, err)
	assert.Contains(t, abs, sb.root)
}

func TestLocalRunCommand(t *testing.T) {
	sb, err := NewLocal(t.TempDir())
	require.NoError(t, err)

	result, err := sb.RunCommand(context.Background(), "sb-1", "echo hello", TypeLocal)
	require.NoError(t, err)
	assert.Equal(t, 0, result.ExitCode)
	assert.Equal(t, "hello\n", result.Stdout)
}

func TestLocalRunCommandNonZeroExit(t *testing.T) {
	sb, err := NewLocal(t.TempDir())
	require.NoError(t, err)

	result, err := sb.RunCommand(context.Background(), "sb-1", "exit 3", TypeLocal)
	require.NoError(t, err)
	assert.Equal(t, 3, result.ExitCode)
}

func TestLocalRunCommandEmpty(t *testing.T) {
	sb, err := NewLocal(t.TempDir())
	require.NoError(t, err)

	_, err = sb.RunCommand(context.Background(), "sb-1", "", TypeLocal)
	assert.Error(t, err)
}
