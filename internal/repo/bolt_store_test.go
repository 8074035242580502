package repo_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/studyrag/internal/ai"
	"github.com/xxxsen/studyrag/internal/model"
	"github.com/xxxsen/studyrag/internal/rag"
	"github.com/xxxsen/studyrag/internal/repo"
)

func openBolt(t *testing.T) *repo.BoltStore {
	t.Helper()
	store, err := repo.OpenBoltStore(filepath.Join(t.TempDir(), "rag.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestBoltStore_PutGetReplaceRemove(t *testing.T) {
	ctx := context.Background()
	store := openBolt(t)

	chunks := []model.Chunk{
		{ID: "doc_chunk_0", DocumentID: "doc", ChunkIndex: 0, Text: "zero", Embedding: []float32{1, 0}},
		{ID: "doc_chunk_2", DocumentID: "doc", ChunkIndex: 2, Text: "two", Embedding: []float32{0, 1}},
		{ID: "doc_chunk_10", DocumentID: "doc", ChunkIndex: 10, Text: "ten", Embedding: []float32{1, 1}},
	}
	meta, err := store.PutDocument(ctx, "doc", chunks, map[string]interface{}{"subject": "math"})
	require.NoError(t, err)
	require.Equal(t, 3, meta.ChunkCount)
	require.NotZero(t, meta.Ctime)

	got, err := store.GetDocument(ctx, "doc")
	require.NoError(t, err)
	require.Len(t, got, 3)
	require.Equal(t, []int{0, 2, 10}, []int{got[0].ChunkIndex, got[1].ChunkIndex, got[2].ChunkIndex})
	require.Equal(t, []float32{0, 1}, got[1].Embedding)
	require.Equal(t, "doc_chunk_10", got[2].ID)

	_, err = store.PutDocument(ctx, "doc", chunks[:1], nil)
	require.NoError(t, err)
	got, err = store.GetDocument(ctx, "doc")
	require.NoError(t, err)
	require.Len(t, got, 1)
	m, ok, err := store.GetMetadata(ctx, "doc")
	require.NoError(t, err)
	require.True(t, ok)
	require.Nil(t, m.Metadata)
	require.Equal(t, 1, m.ChunkCount)

	require.NoError(t, store.RemoveDocument(ctx, "doc"))
	require.NoError(t, store.RemoveDocument(ctx, "doc"))
	got, err = store.GetDocument(ctx, "doc")
	require.NoError(t, err)
	require.Empty(t, got)
	_, ok, err = store.GetMetadata(ctx, "doc")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestBoltStore_UpdateEmbeddingsChecksCtime(t *testing.T) {
	ctx := context.Background()
	store := openBolt(t)

	chunks := []model.Chunk{
		{ID: "doc_chunk_0", DocumentID: "doc", ChunkIndex: 0, Text: "zero", Embedding: []float32{1, 0}},
		{ID: "doc_chunk_3", DocumentID: "doc", ChunkIndex: 3, Text: "three", Embedding: []float32{0, 1}},
	}
	meta, err := store.PutDocument(ctx, "doc", chunks, map[string]interface{}{"subject": "math"})
	require.NoError(t, err)

	updated := []model.Chunk{chunks[0], chunks[1]}
	updated[0].Embedding = []float32{0.5, 0.5}
	updated[1].Embedding = []float32{0.25, 0.75}
	ok, err := store.UpdateEmbeddings(ctx, "doc", meta.Ctime-1, updated)
	require.NoError(t, err)
	require.False(t, ok)
	got, err := store.GetDocument(ctx, "doc")
	require.NoError(t, err)
	require.Equal(t, []float32{1, 0}, got[0].Embedding)

	ok, err = store.UpdateEmbeddings(ctx, "doc", meta.Ctime, updated)
	require.NoError(t, err)
	require.True(t, ok)
	got, err = store.GetDocument(ctx, "doc")
	require.NoError(t, err)
	require.Equal(t, 3, got[1].ChunkIndex)
	require.Equal(t, []float32{0.25, 0.75}, got[1].Embedding)
	after, _, err := store.GetMetadata(ctx, "doc")
	require.NoError(t, err)
	require.Equal(t, meta.Ctime, after.Ctime)
	require.Equal(t, "math", after.Metadata["subject"])

	require.NoError(t, store.RemoveDocument(ctx, "doc"))
	ok, err = store.UpdateEmbeddings(ctx, "doc", meta.Ctime, updated)
	require.NoError(t, err)
	require.False(t, ok)
	_, present, err := store.GetMetadata(ctx, "doc")
	require.NoError(t, err)
	require.False(t, present)
}

func TestBoltStore_StatsAndReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "rag.db")
	store, err := repo.OpenBoltStore(path)
	require.NoError(t, err)
	_, err = store.PutDocument(ctx, "b", []model.Chunk{{ID: "b_chunk_0", ChunkIndex: 0, Text: "x"}}, nil)
	require.NoError(t, err)
	_, err = store.PutDocument(ctx, "a", []model.Chunk{{ID: "a_chunk_0", ChunkIndex: 0, Text: "y"}, {ID: "a_chunk_1", ChunkIndex: 1, Text: "z"}}, map[string]interface{}{"n": 1})
	require.NoError(t, err)
	require.NoError(t, store.Close())

	store, err = repo.OpenBoltStore(path)
	require.NoError(t, err)
	defer store.Close()
	ids, err := store.ListDocumentIDs(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, ids)
	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, stats.DocumentCount)
	require.Equal(t, 3, stats.TotalChunks)
	meta, ok, err := store.GetMetadata(ctx, "a")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, float64(1), meta.Metadata["n"])
}

func TestBoltStore_WithService(t *testing.T) {
	ctx := context.Background()
	svc := rag.NewService(ai.NewHashEmbedder(384), nil, openBolt(t))
	_, err := svc.Ingest(ctx, "bio", []string{
		"The mitochondria is the powerhouse of the cell.",
		"Photosynthesis converts light into chemical energy.",
	}, nil)
	require.NoError(t, err)
	got, err := svc.Retrieve(ctx, "bio", "chemical energy from light", 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, 1, got[0].ChunkIndex)
}
