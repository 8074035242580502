package ai

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// Throttle limits calls to e to rps per second. Waiting honours ctx, so a
// caller with a deadline gets an error instead of queueing forever.
func Throttle(e IEmbedder, rps float64) IEmbedder {
	if e == nil || rps <= 0 {
		return e
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	return &throttledEmbedder{next: e, limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

type throttledEmbedder struct {
	next    IEmbedder
	limiter *rate.Limiter
}

func (t *throttledEmbedder) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("embedding rate limit: %w", err)
	}
	return t.next.Embed(ctx, text, taskType)
}

func (t *throttledEmbedder) ModelName() string {
	return t.next.ModelName()
}
