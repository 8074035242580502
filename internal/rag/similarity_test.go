package rag

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/studyrag/internal/model"
)

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name     string
		a        []float32
		b        []float32
		expected float64
	}{
		{name: "identical vectors", a: []float32{1, 2, 3}, b: []float32{1, 2, 3}, expected: 1.0},
		{name: "orthogonal vectors", a: []float32{1, 0, 0}, b: []float32{0, 1, 0}, expected: 0.0},
		{name: "opposite vectors", a: []float32{1, 1, 1}, b: []float32{-1, -1, -1}, expected: -1.0},
		{name: "scaled vectors", a: []float32{1, 2}, b: []float32{10, 20}, expected: 1.0},
		{name: "zero vector", a: []float32{0, 0, 0}, b: []float32{1, 2, 3}, expected: 0.0},
		{name: "both zero", a: []float32{0, 0}, b: []float32{0, 0}, expected: 0.0},
		{name: "empty", a: nil, b: []float32{1}, expected: 0.0},
		{name: "shorter padded", a: []float32{1, 0}, b: []float32{1, 0, 0}, expected: 1.0},
		{name: "padding changes norm", a: []float32{1}, b: []float32{1, 1}, expected: 1 / math.Sqrt2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CosineSimilarity(tt.a, tt.b)
			require.False(t, math.IsNaN(got))
			require.InDelta(t, tt.expected, got, 1e-6)
			require.InDelta(t, got, CosineSimilarity(tt.b, tt.a), 1e-12)
		})
	}
}

func TestCosineSimilarity_LengthMismatch(t *testing.T) {
	a := make([]float32, 300)
	b := make([]float32, 384)
	for i := range a {
		a[i] = float32(i%7) + 1
	}
	for i := range b {
		b[i] = float32(i%5) + 1
	}
	got := CosineSimilarity(a, b)
	require.False(t, math.IsNaN(got))
	require.Greater(t, got, 0.0)
	require.LessOrEqual(t, got, 1.0)
}

func TestCosineSimilarity_NaNInput(t *testing.T) {
	nan := float32(math.NaN())
	require.Equal(t, 0.0, CosineSimilarity([]float32{nan, 1}, []float32{1, 1}))
}

func TestRank(t *testing.T) {
	chunks := []model.Chunk{
		{DocumentID: "d", ChunkIndex: 0, Text: "east", Embedding: []float32{1, 0}},
		{DocumentID: "d", ChunkIndex: 1, Text: "north", Embedding: []float32{0, 1}},
		{DocumentID: "d", ChunkIndex: 2, Text: "north-east", Embedding: []float32{1, 1}},
		{DocumentID: "d", ChunkIndex: 3, Text: "west", Embedding: []float32{-1, 0}},
	}
	got := Rank(chunks, []float32{1, 0.2}, 2)
	require.Len(t, got, 2)
	require.Equal(t, 0, got[0].ChunkIndex)
	require.Equal(t, 2, got[1].ChunkIndex)
	require.Greater(t, got[0].Similarity, got[1].Similarity)

	all := Rank(chunks, []float32{1, 0.2}, 0)
	require.Len(t, all, 4)
	require.Equal(t, 3, all[3].ChunkIndex)
}

func TestRank_TiesKeepChunkOrder(t *testing.T) {
	chunks := []model.Chunk{
		{ChunkIndex: 0, Embedding: []float32{0, 1}},
		{ChunkIndex: 1, Embedding: []float32{1, 0}},
		{ChunkIndex: 2, Embedding: []float32{2, 0}},
		{ChunkIndex: 3, Embedding: []float32{3, 0}},
	}
	got := Rank(chunks, []float32{1, 0}, 3)
	require.Equal(t, []int{1, 2, 3}, []int{got[0].ChunkIndex, got[1].ChunkIndex, got[2].ChunkIndex})
}
