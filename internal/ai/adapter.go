package ai

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

// FallbackPolicy decides which primary provider failures are replaced by the
// hash embedder.
type FallbackPolicy string

const (
	FallbackAlways    FallbackPolicy = "always"
	FallbackLocalOnly FallbackPolicy = "local_only"
	FallbackNever     FallbackPolicy = "never"
)

type AdapterConfig struct {
	Timeout time.Duration
	Policy  FallbackPolicy
}

// EmbeddingAdapter fronts one primary embedding provider with a hash
// fallback. A nil primary means every call is served by the fallback.
type EmbeddingAdapter struct {
	mu       sync.RWMutex
	ready    bool
	primary  IEmbedder
	kind     ProviderKind
	fallback *HashEmbedder
	cfg      AdapterConfig
}

func NewEmbeddingAdapter(fallback *HashEmbedder) *EmbeddingAdapter {
	if fallback == nil {
		fallback = NewHashEmbedder(DefaultHashDimension)
	}
	return &EmbeddingAdapter{fallback: fallback}
}

// Init selects the primary provider. Only the first call takes effect.
func (a *EmbeddingAdapter) Init(primary IEmbedder, kind ProviderKind, cfg AdapterConfig) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.ready {
		return false
	}
	if cfg.Policy == "" {
		cfg.Policy = FallbackAlways
	}
	a.primary = primary
	a.kind = kind
	a.cfg = cfg
	a.ready = true
	return true
}

func (a *EmbeddingAdapter) Fallback() *HashEmbedder {
	return a.fallback
}

func (a *EmbeddingAdapter) ModelName() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.primary == nil {
		return a.fallback.ModelName()
	}
	return a.primary.ModelName()
}

func (a *EmbeddingAdapter) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	a.mu.RLock()
	primary, kind, cfg := a.primary, a.kind, a.cfg
	a.mu.RUnlock()
	if primary == nil {
		return a.fallback.Embed(ctx, text, taskType)
	}
	res, err := a.embedPrimary(ctx, primary, cfg.Timeout, text, taskType)
	if err == nil {
		return res, nil
	}
	if !shouldFallback(cfg.Policy, kind) {
		return nil, fmt.Errorf("%w: %s: %w", ErrEmbedFailed, primary.ModelName(), err)
	}
	logutil.GetLogger(ctx).Warn("embedding provider failed, using hash fallback",
		zap.String("model", primary.ModelName()),
		zap.String("kind", string(kind)),
		zap.Error(err),
	)
	return a.fallback.Embed(ctx, text, taskType)
}

func (a *EmbeddingAdapter) embedPrimary(ctx context.Context, primary IEmbedder, timeout time.Duration, text, taskType string) ([]float32, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	res, err := primary.Embed(ctx, text, taskType)
	if err != nil {
		return nil, err
	}
	if len(res) == 0 {
		return nil, fmt.Errorf("empty embedding")
	}
	return res, nil
}

func shouldFallback(policy FallbackPolicy, kind ProviderKind) bool {
	switch policy {
	case FallbackNever:
		return false
	case FallbackLocalOnly:
		return kind == KindLocal
	default:
		return true
	}
}
