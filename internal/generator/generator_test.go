package generator

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCommandGenerator_EmptyCommand(t *testing.T) {
	_, err := NewCommandGenerator("  ", nil, nil)
	require.Error(t, err)
}

func TestGenerate_ReturnsLastStdoutLine(t *testing.T) {
	// echo prints the URL appended as the final argument; the generator
	// treats the last non-empty stdout line as the produced audio path.
	g, err := NewCommandGenerator("echo /tmp/audio/podcast.mp3", nil, nil)
	require.NoError(t, err)

	path, err := g.Generate(context.Background(), "https://example.com/article")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/audio/podcast.mp3 https://example.com/article", path)
}

func TestGenerate_CommandFailure(t *testing.T) {
	g, err := NewCommandGenerator("false", nil, nil)
	require.NoError(t, err)

	_, err = g.Generate(context.Background(), "https://example.com")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "generation command")
}

func TestGenerate_EmptyStdout(t *testing.T) {
	g, err := NewCommandGenerator("true", nil, nil)
	require.NoError(t, err)

	_, err = g.Generate(context.Background(), "https://example.com")
	require.ErrorIs(t, err, ErrNoOutput)
}

func TestGenerate_CanceledContext(t *testing.T) {
	g, err := NewCommandGenerator("sleep 60", nil, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = g.Generate(ctx, "https://example.com")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNoOutput))
}

func TestLastLine(t *testing.T) {
	assert.Equal(t, "b", lastLine("a\nb\n"))
	assert.Equal(t, "a", lastLine("a\n\n  \n"))
	assert.Equal(t, "", lastLine("  \n"))
	assert.Equal(t, "only", lastLine("only"))
}
