package rag

import (
	"context"
	"fmt"
	"strings"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/studyrag/internal/ai"
	"github.com/xxxsen/studyrag/internal/model"
	appErr "github.com/xxxsen/studyrag/internal/pkg/errors"
)

type Embedder interface {
	Embed(ctx context.Context, text string, taskType string) ([]float32, error)
}

// Progress receives per document updates from batch operations.
type Progress interface {
	Start(total int)
	Increment()
	Finish()
}

type nopProgress struct{}

func (nopProgress) Start(int)  {}
func (nopProgress) Increment() {}
func (nopProgress) Finish()    {}

type IngestResult struct {
	DocumentID string `json:"document_id"`
	ChunkCount int    `json:"chunk_count"`
}

// Service is the retrieval entry point used by the chat layer. Provider
// failures degrade to the fallback embedder; unknown documents give empty
// results. Only missing arguments are reported as errors. Writes to one
// document (ingest, remove, reindex) are serialized within the process.
type Service struct {
	embedder Embedder
	fallback Embedder
	store    Store
	locks    *docLocks
}

func NewService(embedder Embedder, fallback Embedder, store Store) *Service {
	if fallback == nil {
		fallback = ai.NewHashEmbedder(ai.DefaultHashDimension)
	}
	return &Service{embedder: embedder, fallback: fallback, store: store, locks: newDocLocks()}
}

// Ingest embeds chunks in input order and replaces whatever was stored for
// documentID. A chunk whose embedding fails is embedded by the fallback
// instead; the batch is never aborted.
func (s *Service) Ingest(ctx context.Context, documentID string, chunks []string, metadata map[string]interface{}) (*IngestResult, error) {
	documentID = strings.TrimSpace(documentID)
	if documentID == "" {
		return nil, fmt.Errorf("document id is required: %w", appErr.ErrInvalid)
	}
	logger := logutil.GetLogger(ctx).With(zap.String("document_id", documentID))
	records := make([]model.Chunk, 0, len(chunks))
	fallbacks := 0
	for idx, text := range chunks {
		if strings.TrimSpace(text) == "" {
			logger.Debug("skip blank chunk", zap.Int("chunk_index", idx))
			continue
		}
		vec, fellBack, err := s.embedChunk(ctx, logger, idx, text)
		if err != nil {
			return nil, err
		}
		if fellBack {
			fallbacks++
		}
		records = append(records, model.Chunk{
			ID:         model.ChunkID(documentID, idx),
			DocumentID: documentID,
			ChunkIndex: idx,
			Text:       text,
			Embedding:  vec,
		})
	}
	unlock := s.locks.lock(documentID)
	meta, err := s.store.PutDocument(ctx, documentID, records, metadata)
	unlock()
	if err != nil {
		logger.Error("failed to store document", zap.Error(err))
		return nil, err
	}
	logger.Info("document ingested", zap.Int("chunks", meta.ChunkCount), zap.Int("fallbacks", fallbacks))
	return &IngestResult{DocumentID: documentID, ChunkCount: meta.ChunkCount}, nil
}

func (s *Service) embedChunk(ctx context.Context, logger *zap.Logger, idx int, text string) ([]float32, bool, error) {
	vec, err := s.embedder.Embed(ctx, text, ai.TaskRetrievalDocument)
	if err == nil {
		return vec, false, nil
	}
	logger.Warn("chunk embedding failed, using fallback", zap.Int("chunk_index", idx), zap.Error(err))
	vec, err = s.fallback.Embed(ctx, text, ai.TaskRetrievalDocument)
	if err != nil {
		return nil, true, fmt.Errorf("fallback embed chunk %d: %w", idx, err)
	}
	return vec, true, nil
}

// Reindex re-embeds every stored chunk with the current embedder, keeping
// chunk indexes, metadata and ctime. It is meant to run after the provider or
// model changed, since vectors from different models do not compare. A
// document removed or re-ingested while it is being re-embedded is left as
// the other writer stored it and is not counted.
func (s *Service) Reindex(ctx context.Context, progress Progress) (int, error) {
	ids, err := s.store.ListDocumentIDs(ctx)
	if err != nil {
		return 0, err
	}
	if progress == nil {
		progress = nopProgress{}
	}
	progress.Start(len(ids))
	defer progress.Finish()
	done := 0
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return done, err
		}
		updated, err := s.reindexDocument(ctx, id)
		if err != nil {
			return done, err
		}
		progress.Increment()
		if updated {
			done++
		}
	}
	return done, nil
}

func (s *Service) reindexDocument(ctx context.Context, documentID string) (bool, error) {
	unlock := s.locks.lock(documentID)
	defer unlock()
	logger := logutil.GetLogger(ctx).With(zap.String("document_id", documentID))
	meta, ok, err := s.store.GetMetadata(ctx, documentID)
	if err != nil || !ok {
		return false, err
	}
	chunks, err := s.store.GetDocument(ctx, documentID)
	if err != nil {
		return false, err
	}
	for i := range chunks {
		vec, _, err := s.embedChunk(ctx, logger, chunks[i].ChunkIndex, chunks[i].Text)
		if err != nil {
			return false, err
		}
		chunks[i].Embedding = vec
	}
	updated, err := s.store.UpdateEmbeddings(ctx, documentID, meta.Ctime, chunks)
	if err != nil {
		return false, err
	}
	if !updated {
		logger.Warn("document changed during reindex, skipped")
		return false, nil
	}
	logger.Info("document reindexed", zap.Int("chunks", len(chunks)))
	return true, nil
}

// Retrieve returns the topK chunks of documentID most similar to query.
func (s *Service) Retrieve(ctx context.Context, documentID string, query string, topK int) ([]model.ScoredChunk, error) {
	documentID = strings.TrimSpace(documentID)
	if documentID == "" {
		return nil, fmt.Errorf("document id is required: %w", appErr.ErrInvalid)
	}
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("query is required: %w", appErr.ErrInvalid)
	}
	chunks, err := s.store.GetDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return []model.ScoredChunk{}, nil
	}
	queryVec, err := s.embedQuery(ctx, query)
	if err != nil {
		return nil, err
	}
	return Rank(chunks, queryVec, topK), nil
}

// RetrieveAcrossAll ranks every stored document against query and keeps the
// overall topK. Cost is linear in the total number of stored chunks.
func (s *Service) RetrieveAcrossAll(ctx context.Context, query string, topK int) ([]model.ScoredChunk, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("query is required: %w", appErr.ErrInvalid)
	}
	if topK <= 0 {
		topK = DefaultTopK
	}
	ids, err := s.store.ListDocumentIDs(ctx)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []model.ScoredChunk{}, nil
	}
	queryVec, err := s.embedQuery(ctx, query)
	if err != nil {
		return nil, err
	}
	merged := make([]model.ScoredChunk, 0, topK)
	for _, id := range ids {
		chunks, err := s.store.GetDocument(ctx, id)
		if err != nil {
			return nil, err
		}
		merged = append(merged, Rank(chunks, queryVec, topK)...)
	}
	sortScored(merged)
	if len(merged) > topK {
		merged = merged[:topK]
	}
	return merged, nil
}

func (s *Service) Remove(ctx context.Context, documentID string) error {
	documentID = strings.TrimSpace(documentID)
	if documentID == "" {
		return fmt.Errorf("document id is required: %w", appErr.ErrInvalid)
	}
	unlock := s.locks.lock(documentID)
	err := s.store.RemoveDocument(ctx, documentID)
	unlock()
	if err != nil {
		return err
	}
	logutil.GetLogger(ctx).Info("document removed", zap.String("document_id", documentID))
	return nil
}

func (s *Service) GetMetadata(ctx context.Context, documentID string) (*model.DocumentMeta, bool, error) {
	documentID = strings.TrimSpace(documentID)
	if documentID == "" {
		return nil, false, fmt.Errorf("document id is required: %w", appErr.ErrInvalid)
	}
	return s.store.GetMetadata(ctx, documentID)
}

func (s *Service) Stats(ctx context.Context) (*model.StoreStats, error) {
	return s.store.Stats(ctx)
}

func (s *Service) embedQuery(ctx context.Context, query string) ([]float32, error) {
	vec, err := s.embedder.Embed(ctx, query, ai.TaskRetrievalQuery)
	if err != nil {
		logutil.GetLogger(ctx).Error("failed to embed query", zap.Error(err))
		return nil, err
	}
	return vec, nil
}
