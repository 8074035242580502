package job

import (
	"context"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/studyrag/internal/model"
)

type StatsSource interface {
	Stats(ctx context.Context) (*model.StoreStats, error)
}

// RAGStatsJob logs how large the chunk store has grown.
type RAGStatsJob struct {
	source StatsSource
}

func NewRAGStatsJob(source StatsSource) *RAGStatsJob {
	return &RAGStatsJob{source: source}
}

func (j *RAGStatsJob) Name() string {
	return "rag_stats"
}

func (j *RAGStatsJob) Run(ctx context.Context) error {
	if j.source == nil {
		return nil
	}
	stats, err := j.source.Stats(ctx)
	if err != nil {
		return err
	}
	logutil.GetLogger(ctx).Info("rag store stats",
		zap.Int("document_count", stats.DocumentCount),
		zap.Int("total_chunks", stats.TotalChunks),
	)
	return nil
}
