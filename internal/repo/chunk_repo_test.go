package repo_test

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/studyrag/internal/db"
	"github.com/xxxsen/studyrag/internal/model"
	"github.com/xxxsen/studyrag/internal/repo"
)

func openTestRepo(t *testing.T) *repo.ChunkRepo {
	t.Helper()
	dsn := os.Getenv("TEST_DB_DSN")
	if dsn == "" {
		t.Skip("TEST_DB_DSN not set, skipping postgres test")
	}
	conn, err := db.Open(dsn)
	require.NoError(t, err)
	require.NoError(t, db.ApplyMigrations(conn))
	t.Cleanup(func() {
		_, _ = conn.Exec(`DELETE FROM rag_documents WHERE document_id LIKE 'repo-test-%'`)
		_ = conn.Close()
	})
	return repo.NewChunkRepo(conn)
}

func TestChunkRepoReplaceAndRemove(t *testing.T) {
	ctx := context.Background()
	r := openTestRepo(t)

	first := []model.Chunk{
		{ID: model.ChunkID("repo-test-1", 0), DocumentID: "repo-test-1", ChunkIndex: 0, Text: "a", Embedding: []float32{1, 0, 0}},
		{ID: model.ChunkID("repo-test-1", 1), DocumentID: "repo-test-1", ChunkIndex: 1, Text: "b", Embedding: []float32{0, 1}},
	}
	meta, err := r.PutDocument(ctx, "repo-test-1", first, map[string]interface{}{"subject": "biology"})
	require.NoError(t, err)
	require.Equal(t, 2, meta.ChunkCount)

	chunks, err := r.GetDocument(ctx, "repo-test-1")
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	require.Equal(t, []float32{0, 1}, chunks[1].Embedding)

	second := []model.Chunk{{ID: model.ChunkID("repo-test-1", 0), DocumentID: "repo-test-1", ChunkIndex: 0, Text: "z", Embedding: []float32{1}}}
	_, err = r.PutDocument(ctx, "repo-test-1", second, nil)
	require.NoError(t, err)
	chunks, err = r.GetDocument(ctx, "repo-test-1")
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	require.Equal(t, "z", chunks[0].Text)

	got, ok, err := r.GetMetadata(ctx, "repo-test-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 1, got.ChunkCount)
	require.Nil(t, got.Metadata)

	require.NoError(t, r.RemoveDocument(ctx, "repo-test-1"))
	require.NoError(t, r.RemoveDocument(ctx, "repo-test-1"))
	_, ok, err = r.GetMetadata(ctx, "repo-test-1")
	require.NoError(t, err)
	require.False(t, ok)
	chunks, err = r.GetDocument(ctx, "repo-test-1")
	require.NoError(t, err)
	require.Empty(t, chunks)
}

func TestChunkRepoUpdateEmbeddingsChecksCtime(t *testing.T) {
	ctx := context.Background()
	r := openTestRepo(t)

	chunks := []model.Chunk{{ID: model.ChunkID("repo-test-2", 0), DocumentID: "repo-test-2", ChunkIndex: 0, Text: "a", Embedding: []float32{1, 0}}}
	meta, err := r.PutDocument(ctx, "repo-test-2", chunks, map[string]interface{}{"subject": "math"})
	require.NoError(t, err)

	chunks[0].Embedding = []float32{0, 1, 0}
	ok, err := r.UpdateEmbeddings(ctx, "repo-test-2", meta.Ctime+1, chunks)
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = r.UpdateEmbeddings(ctx, "repo-test-2", meta.Ctime, chunks)
	require.NoError(t, err)
	require.True(t, ok)
	got, err := r.GetDocument(ctx, "repo-test-2")
	require.NoError(t, err)
	require.Equal(t, []float32{0, 1, 0}, got[0].Embedding)
	after, _, err := r.GetMetadata(ctx, "repo-test-2")
	require.NoError(t, err)
	require.Equal(t, meta.Ctime, after.Ctime)
	require.Equal(t, "math", after.Metadata["subject"])

	require.NoError(t, r.RemoveDocument(ctx, "repo-test-2"))
	ok, err = r.UpdateEmbeddings(ctx, "repo-test-2", meta.Ctime, chunks)
	require.NoError(t, err)
	require.False(t, ok)
}
