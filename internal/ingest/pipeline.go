package ingest

import (
	"context"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/studyrag/internal/chunker"
	"github.com/xxxsen/studyrag/internal/rag"
)

type Ingester interface {
	Ingest(ctx context.Context, documentID string, chunks []string, metadata map[string]interface{}) (*rag.IngestResult, error)
}

type Summary struct {
	Documents int
	Chunks    int
	Failed    []string
}

// Run chunks and ingests every source. A failing document is logged and
// recorded in the summary; the remaining ones are still processed.
func Run(ctx context.Context, sources []Source, chk *chunker.Chunker, ingester Ingester, progress rag.Progress) (*Summary, error) {
	if chk == nil {
		chk = chunker.New(0, 0)
	}
	if progress != nil {
		progress.Start(len(sources))
		defer progress.Finish()
	}
	logger := logutil.GetLogger(ctx)
	summary := &Summary{}
	for _, src := range sources {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		chunks := chk.Chunk(ctx, src.Text)
		res, err := ingester.Ingest(ctx, src.DocumentID, chunks, map[string]interface{}{"source": src.Path})
		if err != nil {
			logger.Error("ingest file failed", zap.String("path", src.Path), zap.Error(err))
			summary.Failed = append(summary.Failed, src.Path)
		} else {
			summary.Documents++
			summary.Chunks += res.ChunkCount
		}
		if progress != nil {
			progress.Increment()
		}
	}
	return summary, nil
}
