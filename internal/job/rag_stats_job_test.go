package job

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/studyrag/internal/model"
	"github.com/xxxsen/studyrag/internal/rag"
)

type brokenSource struct{}

func (brokenSource) Stats(ctx context.Context) (*model.StoreStats, error) {
	return nil, errors.New("db gone")
}

func TestRAGStatsJob(t *testing.T) {
	store := rag.NewMemoryStore()
	_, err := store.PutDocument(context.Background(), "doc", []model.Chunk{{ID: "doc_chunk_0", DocumentID: "doc", Text: "x"}}, nil)
	require.NoError(t, err)

	j := NewRAGStatsJob(store)
	require.Equal(t, "rag_stats", j.Name())
	require.NoError(t, j.Run(context.Background()))
	require.NoError(t, NewRAGStatsJob(nil).Run(context.Background()))
	require.Error(t, NewRAGStatsJob(brokenSource{}).Run(context.Background()))
}
