package rag

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/xxxsen/studyrag/internal/model"
)

type documentEntry struct {
	meta   model.DocumentMeta
	chunks []model.Chunk
}

// MemoryStore keeps everything in process memory. Nothing is evicted; use
// Stats to watch growth.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string]*documentEntry
	now  func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs: make(map[string]*documentEntry),
		now:  time.Now,
	}
}

func (s *MemoryStore) PutDocument(_ context.Context, documentID string, chunks []model.Chunk, metadata map[string]interface{}) (*model.DocumentMeta, error) {
	// The replacement entry is fully built before the lock is taken so a
	// reader sees either the old set or the new one.
	entry := &documentEntry{
		meta: model.DocumentMeta{
			DocumentID: documentID,
			Metadata:   copyMetadata(metadata),
			ChunkCount: len(chunks),
			Ctime:      s.now().UnixMilli(),
		},
		chunks: append([]model.Chunk(nil), chunks...),
	}
	s.mu.Lock()
	s.docs[documentID] = entry
	s.mu.Unlock()
	meta := entry.meta
	return &meta, nil
}

func (s *MemoryStore) GetDocument(_ context.Context, documentID string) ([]model.Chunk, error) {
	s.mu.RLock()
	entry, ok := s.docs[documentID]
	s.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	return append([]model.Chunk(nil), entry.chunks...), nil
}

func (s *MemoryStore) GetMetadata(_ context.Context, documentID string) (*model.DocumentMeta, bool, error) {
	s.mu.RLock()
	entry, ok := s.docs[documentID]
	s.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	meta := entry.meta
	meta.Metadata = copyMetadata(entry.meta.Metadata)
	return &meta, true, nil
}

func (s *MemoryStore) UpdateEmbeddings(_ context.Context, documentID string, ctime int64, chunks []model.Chunk) (bool, error) {
	replacement := append([]model.Chunk(nil), chunks...)
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.docs[documentID]
	if !ok || entry.meta.Ctime != ctime {
		return false, nil
	}
	meta := entry.meta
	meta.ChunkCount = len(replacement)
	s.docs[documentID] = &documentEntry{meta: meta, chunks: replacement}
	return true, nil
}

func (s *MemoryStore) RemoveDocument(_ context.Context, documentID string) error {
	s.mu.Lock()
	delete(s.docs, documentID)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) ListDocumentIDs(_ context.Context) ([]string, error) {
	s.mu.RLock()
	ids := make([]string, 0, len(s.docs))
	for id := range s.docs {
		ids = append(ids, id)
	}
	s.mu.RUnlock()
	sort.Strings(ids)
	return ids, nil
}

func (s *MemoryStore) Stats(_ context.Context) (*model.StoreStats, error) {
	s.mu.RLock()
	stats := &model.StoreStats{
		DocumentCount: len(s.docs),
		Documents:     make([]model.DocumentMeta, 0, len(s.docs)),
	}
	for _, entry := range s.docs {
		stats.TotalChunks += len(entry.chunks)
		meta := entry.meta
		meta.Metadata = copyMetadata(entry.meta.Metadata)
		stats.Documents = append(stats.Documents, meta)
	}
	s.mu.RUnlock()
	sort.Slice(stats.Documents, func(i, j int) bool {
		return stats.Documents[i].DocumentID < stats.Documents[j].DocumentID
	})
	return stats, nil
}

func copyMetadata(in map[string]interface{}) map[string]interface{} {
	if in == nil {
		return nil
	}
	out := make(map[string]interface{}, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
