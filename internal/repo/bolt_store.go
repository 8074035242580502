package repo

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"go.etcd.io/bbolt"

	"github.com/xxxsen/studyrag/internal/model"
	"github.com/xxxsen/studyrag/internal/rag"
)

var (
	bucketDocuments = []byte("documents")
	bucketChunks    = []byte("chunks")
)

var _ rag.Store = (*BoltStore)(nil)

type boltChunk struct {
	ID         string    `json:"id"`
	ChunkIndex int       `json:"chunk_index"`
	Text       string    `json:"text"`
	Embedding  []float32 `json:"embedding"`
}

// BoltStore keeps documents in a single bbolt file. Each document owns a
// nested bucket under "chunks" keyed by big endian chunk index, so a cursor
// walk yields chunks in index order. Replacing a document is one write
// transaction.
type BoltStore struct {
	db  *bbolt.DB
	now func() time.Time
}

func OpenBoltStore(path string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt store: %w", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketDocuments); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(bucketChunks)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &BoltStore{db: db, now: time.Now}, nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

func (s *BoltStore) PutDocument(_ context.Context, documentID string, chunks []model.Chunk, metadata map[string]interface{}) (*model.DocumentMeta, error) {
	meta := model.DocumentMeta{
		DocumentID: documentID,
		Metadata:   metadata,
		ChunkCount: len(chunks),
		Ctime:      s.now().UnixMilli(),
	}
	metaBlob, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}
	key := []byte(documentID)
	err = s.db.Update(func(tx *bbolt.Tx) error {
		if err := writeChunks(tx.Bucket(bucketChunks), key, chunks); err != nil {
			return err
		}
		return tx.Bucket(bucketDocuments).Put(key, metaBlob)
	})
	if err != nil {
		return nil, err
	}
	return s.decodeMeta(metaBlob)
}

func (s *BoltStore) UpdateEmbeddings(_ context.Context, documentID string, ctime int64, chunks []model.Chunk) (bool, error) {
	key := []byte(documentID)
	updated := false
	err := s.db.Update(func(tx *bbolt.Tx) error {
		docs := tx.Bucket(bucketDocuments)
		blob := docs.Get(key)
		if blob == nil {
			return nil
		}
		meta, err := s.decodeMeta(blob)
		if err != nil {
			return err
		}
		if meta.Ctime != ctime {
			return nil
		}
		if err := writeChunks(tx.Bucket(bucketChunks), key, chunks); err != nil {
			return err
		}
		meta.ChunkCount = len(chunks)
		metaBlob, err := json.Marshal(meta)
		if err != nil {
			return fmt.Errorf("encode metadata: %w", err)
		}
		if err := docs.Put(key, metaBlob); err != nil {
			return err
		}
		updated = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return updated, nil
}

func (s *BoltStore) GetDocument(_ context.Context, documentID string) ([]model.Chunk, error) {
	var out []model.Chunk
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketChunks).Bucket([]byte(documentID))
		if b == nil {
			return nil
		}
		return b.ForEach(func(_, v []byte) error {
			var c boltChunk
			if err := json.Unmarshal(v, &c); err != nil {
				return err
			}
			out = append(out, model.Chunk{
				ID:         c.ID,
				DocumentID: documentID,
				ChunkIndex: c.ChunkIndex,
				Text:       c.Text,
				Embedding:  c.Embedding,
			})
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *BoltStore) GetMetadata(_ context.Context, documentID string) (*model.DocumentMeta, bool, error) {
	var blob []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		if v := tx.Bucket(bucketDocuments).Get([]byte(documentID)); v != nil {
			blob = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil || blob == nil {
		return nil, false, err
	}
	meta, err := s.decodeMeta(blob)
	if err != nil {
		return nil, false, err
	}
	return meta, true, nil
}

func (s *BoltStore) RemoveDocument(_ context.Context, documentID string) error {
	key := []byte(documentID)
	return s.db.Update(func(tx *bbolt.Tx) error {
		root := tx.Bucket(bucketChunks)
		if root.Bucket(key) != nil {
			if err := root.DeleteBucket(key); err != nil {
				return err
			}
		}
		return tx.Bucket(bucketDocuments).Delete(key)
	})
}

func (s *BoltStore) ListDocumentIDs(_ context.Context) ([]string, error) {
	var ids []string
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketDocuments).ForEach(func(k, _ []byte) error {
			ids = append(ids, string(k))
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *BoltStore) Stats(_ context.Context) (*model.StoreStats, error) {
	stats := &model.StoreStats{Documents: []model.DocumentMeta{}}
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketDocuments).ForEach(func(_, v []byte) error {
			meta, err := s.decodeMeta(v)
			if err != nil {
				return err
			}
			stats.DocumentCount++
			stats.TotalChunks += meta.ChunkCount
			stats.Documents = append(stats.Documents, *meta)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return stats, nil
}

func (s *BoltStore) decodeMeta(blob []byte) (*model.DocumentMeta, error) {
	var meta model.DocumentMeta
	if err := json.Unmarshal(blob, &meta); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	return &meta, nil
}

// writeChunks replaces the nested bucket of a document with chunks.
func writeChunks(root *bbolt.Bucket, key []byte, chunks []model.Chunk) error {
	if root.Bucket(key) != nil {
		if err := root.DeleteBucket(key); err != nil {
			return err
		}
	}
	b, err := root.CreateBucket(key)
	if err != nil {
		return err
	}
	for _, c := range chunks {
		blob, err := json.Marshal(boltChunk{ID: c.ID, ChunkIndex: c.ChunkIndex, Text: c.Text, Embedding: c.Embedding})
		if err != nil {
			return err
		}
		if err := b.Put(indexKey(c.ChunkIndex), blob); err != nil {
			return err
		}
	}
	return nil
}

func indexKey(idx int) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(idx))
	return buf
}
