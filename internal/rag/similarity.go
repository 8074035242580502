package rag

import (
	"math"
	"sort"

	"github.com/xxxsen/studyrag/internal/model"
)

const DefaultTopK = 5

// CosineSimilarity returns dot(a,b)/(|a||b|). The shorter vector is treated
// as zero padded to the longer one's length, so vectors from different
// providers can still be compared. Any zero-norm input yields 0.
func CosineSimilarity(a, b []float32) float64 {
	n := len(a)
	if len(b) > n {
		n = len(b)
	}
	var dot, normA, normB float64
	for i := 0; i < n; i++ {
		var x, y float64
		if i < len(a) {
			x = float64(a[i])
		}
		if i < len(b) {
			y = float64(b[i])
		}
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	if math.IsNaN(sim) || math.IsInf(sim, 0) {
		return 0
	}
	return sim
}

// Rank scores every chunk against query and returns the best topK, highest
// first. Equal scores keep chunk order.
func Rank(chunks []model.Chunk, query []float32, topK int) []model.ScoredChunk {
	if topK <= 0 {
		topK = DefaultTopK
	}
	scored := make([]model.ScoredChunk, 0, len(chunks))
	for _, chunk := range chunks {
		scored = append(scored, model.ScoredChunk{
			DocumentID: chunk.DocumentID,
			ChunkIndex: chunk.ChunkIndex,
			Text:       chunk.Text,
			Similarity: CosineSimilarity(query, chunk.Embedding),
		})
	}
	sortScored(scored)
	if len(scored) > topK {
		scored = scored[:topK]
	}
	return scored
}

func sortScored(items []model.ScoredChunk) {
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Similarity > items[j].Similarity
	})
}
