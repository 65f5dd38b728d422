package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountTokens(t *testing.T) {
	counter, err := NewTokenCounter("gpt-4o")
	require.NoError(t, err)

	assert.Equal(t, 0, counter.CountTokens(""))
	assert.Greater(t, counter.CountTokens("Hello, world!"), 0)

	// Longer text costs more tokens.
	short := counter.CountTokens("one two three")
	long := counter.CountTokens(strings.Repeat("one two three ", 50))
	assert.Greater(t, long, short)
}

func TestValidateTokenLimit(t *testing.T) {
	counter, err := NewTokenCounter("gpt-4o")
	require.NoError(t, err)

	assert.True(t, counter.ValidateTokenLimit("short", 100))
	assert.False(t, counter.ValidateTokenLimit(strings.Repeat("word ", 1000), 10))
}

func TestTruncateToTokenLimit(t *testing.T) {
	counter, err := NewTokenCounter("gpt-4o")
	require.NoError(t, err)

	short := "fits fine"
	assert.Equal(t, short, counter.TruncateToTokenLimit(short, 100))

	long := strings.Repeat("the quick brown fox ", 200)
	truncated := counter.TruncateToTokenLimit(long, 50)
	assert.Less(t, len(truncated), len(long))
	assert.True(t, strings.HasSuffix(truncated, "..."))
}

func TestCountTokensSimple(t *testing.T) {
	assert.Greater(t, CountTokensSimple("Hello, world!"), 0)
}
