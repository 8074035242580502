package ai

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type countingEmbedder struct {
	calls int
}

func (c *countingEmbedder) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	c.calls++
	return []float32{1}, nil
}

func (c *countingEmbedder) ModelName() string {
	return "counting"
}

func TestThrottle(t *testing.T) {
	inner := &countingEmbedder{}
	require.Same(t, IEmbedder(inner), Throttle(inner, 0))

	throttled := Throttle(inner, 1)
	require.Equal(t, "counting", throttled.ModelName())
	_, err := throttled.Embed(context.Background(), "a", TaskRetrievalQuery)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = throttled.Embed(ctx, "b", TaskRetrievalQuery)
	require.Error(t, err)
	require.Equal(t, 1, inner.calls)
}

func TestThrottle_AdapterFallsBackWhenThrottled(t *testing.T) {
	inner := &countingEmbedder{}
	adapter := NewEmbeddingAdapter(NewHashEmbedder(8))
	adapter.Init(Throttle(inner, 0.001), KindCloud, AdapterConfig{Timeout: 20 * time.Millisecond})

	_, err := adapter.Embed(context.Background(), "first call", TaskRetrievalQuery)
	require.NoError(t, err)
	got, err := adapter.Embed(context.Background(), "second call", TaskRetrievalQuery)
	require.NoError(t, err)
	require.Equal(t, HashEmbed("second call", 8), got)
	require.Equal(t, 1, inner.calls)
}
