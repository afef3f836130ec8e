package embedcache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type countingEmbedder struct {
	calls int
}

func (e *countingEmbedder) Embed(ctx context.Context, model string, text string) ([]float32, error) {
	e.calls++
	return []float32{float32(len(text)), float32(len(model))}, nil
}

func TestWrapCachesRepeatedTexts(t *testing.T) {
	next := &countingEmbedder{}
	cached := Wrap(next, 16, time.Minute)

	first, err := cached.Embed(context.Background(), "m", "hello")
	require.NoError(t, err)
	second, err := cached.Embed(context.Background(), "m", "hello")
	require.NoError(t, err)

	require.Equal(t, 1, next.calls)
	require.Equal(t, first, second)
}

func TestWrapKeysOnModelAndText(t *testing.T) {
	next := &countingEmbedder{}
	cached := Wrap(next, 16, time.Minute)

	_, err := cached.Embed(context.Background(), "m1", "hello")
	require.NoError(t, err)
	_, err = cached.Embed(context.Background(), "m2", "hello")
	require.NoError(t, err)
	_, err = cached.Embed(context.Background(), "m1", "world")
	require.NoError(t, err)

	require.Equal(t, 3, next.calls)
}

func TestWrapReturnsCopies(t *testing.T) {
	next := &countingEmbedder{}
	cached := Wrap(next, 16, time.Minute)

	first, err := cached.Embed(context.Background(), "m", "hello")
	require.NoError(t, err)
	first[0] = -1

	second, err := cached.Embed(context.Background(), "m", "hello")
	require.NoError(t, err)
	require.NotEqual(t, float32(-1), second[0])
}

func TestWrapDisabledPassesThrough(t *testing.T) {
	next := &countingEmbedder{}
	require.Equal(t, Embedder(next), Wrap(next, 0, time.Minute))
	require.Equal(t, Embedder(next), Wrap(next, 16, 0))
	require.Nil(t, Wrap(nil, 16, time.Minute))
}
