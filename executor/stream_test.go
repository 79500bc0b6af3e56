package executor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgecomet/apcore/core"
)

type streamingEcho struct{}

func (streamingEcho) Execute(_ context.Context, _ *core.Context, in map[string]any) (map[string]any, error) {
	return in, nil
}

func (streamingEcho) ExecuteStream(_ context.Context, _ *core.Context, in map[string]any, emit func(map[string]any) error) error {
	if err := emit(map[string]any{"chunk": float64(1)}); err != nil {
		return err
	}
	return emit(map[string]any{"chunk": float64(2)})
}

func TestStreamEmitsEveryChunkThenDone(t *testing.T) {
	mod := &core.Module{
		ID:           "mod.stream",
		InputSchema:  map[string]any{"type": "object"},
		OutputSchema: map[string]any{"type": "object"},
		Handler:      streamingEcho{},
	}
	ex := New(newStoreWith(mod), nil, nil, nil)

	chunks, err := ex.Stream(context.Background(), "mod.stream", nil, nil)
	require.NoError(t, err)

	var got []StreamChunk
	for c := range chunks {
		got = append(got, c)
	}

	require.Len(t, got, 3)
	assert.Equal(t, float64(1), got[0].Data["chunk"])
	assert.Equal(t, float64(2), got[1].Data["chunk"])
	assert.True(t, got[2].Done)
	assert.NoError(t, got[2].Err)
}

func TestStreamFallsBackToSingleChunkForNonStreamingHandler(t *testing.T) {
	ex := New(newStoreWith(echoModule("mod.a")), nil, nil, nil)

	chunks, err := ex.Stream(context.Background(), "mod.a", map[string]any{"x": "hi"}, nil)
	require.NoError(t, err)

	var got []StreamChunk
	for c := range chunks {
		got = append(got, c)
	}

	require.Len(t, got, 1)
	assert.True(t, got[0].Done)
	assert.Equal(t, "hi", got[0].Data["x"])
}
