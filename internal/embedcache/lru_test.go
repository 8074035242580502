package embedcache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/studyrag/internal/ai"
)

type countingEmbedder struct {
	calls int
	err   error
}

func (c *countingEmbedder) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return []float32{float32(len(text)), 1}, nil
}

func (c *countingEmbedder) ModelName() string {
	return "counting"
}

func TestWrapLRU_HitsCache(t *testing.T) {
	next := &countingEmbedder{}
	e := WrapLRU(next, 10, time.Minute)

	first, err := e.Embed(context.Background(), "hello", ai.TaskRetrievalQuery)
	require.NoError(t, err)
	first[0] = 99

	second, err := e.Embed(context.Background(), "hello", ai.TaskRetrievalQuery)
	require.NoError(t, err)
	require.Equal(t, []float32{5, 1}, second)
	require.Equal(t, 1, next.calls)

	_, err = e.Embed(context.Background(), "hello", ai.TaskRetrievalDocument)
	require.NoError(t, err)
	require.Equal(t, 2, next.calls)
	require.Equal(t, "counting", e.ModelName())
}

func TestWrapLRU_DoesNotCacheErrors(t *testing.T) {
	next := &countingEmbedder{err: errors.New("down")}
	e := WrapLRU(next, 10, time.Minute)
	_, err := e.Embed(context.Background(), "hello", ai.TaskRetrievalQuery)
	require.Error(t, err)
	next.err = nil
	vec, err := e.Embed(context.Background(), "hello", ai.TaskRetrievalQuery)
	require.NoError(t, err)
	require.Equal(t, []float32{5, 1}, vec)
	require.Equal(t, 2, next.calls)
}

func TestWrapLRU_Disabled(t *testing.T) {
	next := &countingEmbedder{}
	require.Same(t, ai.IEmbedder(next), WrapLRU(next, 0, time.Minute))
	require.Nil(t, WrapLRU(nil, 10, time.Minute))
}
