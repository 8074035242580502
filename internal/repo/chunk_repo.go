package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pgvector/pgvector-go"

	"github.com/xxxsen/studyrag/internal/model"
	"github.com/xxxsen/studyrag/internal/pkg/dbutil"
	"github.com/xxxsen/studyrag/internal/rag"
)

const (
	tableDocuments = "rag_documents"
	tableChunks    = "rag_chunks"
)

var _ rag.Store = (*ChunkRepo)(nil)

var documentFields = []string{"document_id", "metadata", "chunk_count", "ctime"}

type documentRow struct {
	DocumentID string `db:"document_id"`
	Metadata   []byte `db:"metadata"`
	ChunkCount int    `db:"chunk_count"`
	Ctime      int64  `db:"ctime"`
}

type chunkRow struct {
	DocumentID string          `db:"document_id"`
	ChunkIndex int             `db:"chunk_index"`
	ChunkID    string          `db:"chunk_id"`
	Content    string          `db:"content"`
	Embedding  pgvector.Vector `db:"embedding"`
}

// ChunkRepo is the postgres backed chunk store. Vectors are kept in an
// unconstrained pgvector column so documents embedded by different providers
// can coexist; ranking stays in Go.
type ChunkRepo struct {
	db  *sqlx.DB
	now func() time.Time
}

func NewChunkRepo(db *sql.DB) *ChunkRepo {
	return &ChunkRepo{db: sqlx.NewDb(db, "postgres"), now: time.Now}
}

func (r *ChunkRepo) PutDocument(ctx context.Context, documentID string, chunks []model.Chunk, metadata map[string]interface{}) (*model.DocumentMeta, error) {
	var metaJSON interface{}
	if metadata != nil {
		blob, err := json.Marshal(metadata)
		if err != nil {
			return nil, fmt.Errorf("encode metadata: %w", err)
		}
		metaJSON = string(blob)
	}
	meta := &model.DocumentMeta{
		DocumentID: documentID,
		Metadata:   metadata,
		ChunkCount: len(chunks),
		Ctime:      r.now().UnixMilli(),
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	sqlStr, args, err := dbutil.BuildDelete(tableDocuments, map[string]interface{}{"document_id": documentID})
	if err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, sqlStr, args...); err != nil {
		return nil, err
	}

	sqlStr, args, err = dbutil.BuildInsert(tableDocuments, []map[string]interface{}{{
		"document_id": documentID,
		"metadata":    metaJSON,
		"chunk_count": meta.ChunkCount,
		"ctime":       meta.Ctime,
	}})
	if err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, sqlStr, args...); err != nil {
		return nil, err
	}

	if len(chunks) > 0 {
		rows := make([]map[string]interface{}, 0, len(chunks))
		for _, c := range chunks {
			rows = append(rows, map[string]interface{}{
				"document_id": documentID,
				"chunk_index": c.ChunkIndex,
				"chunk_id":    c.ID,
				"content":     c.Text,
				"embedding":   pgvector.NewVector(c.Embedding),
			})
		}
		sqlStr, args, err = dbutil.BuildInsert(tableChunks, rows)
		if err != nil {
			return nil, err
		}
		if _, err := tx.ExecContext(ctx, sqlStr, args...); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return meta, nil
}

func (r *ChunkRepo) UpdateEmbeddings(ctx context.Context, documentID string, ctime int64, chunks []model.Chunk) (bool, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback() }()

	var current int64
	err = tx.GetContext(ctx, &current, `SELECT ctime FROM rag_documents WHERE document_id = $1 FOR UPDATE`, documentID)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if current != ctime {
		return false, nil
	}
	for _, c := range chunks {
		where := map[string]interface{}{"document_id": documentID, "chunk_index": c.ChunkIndex}
		sqlStr, args, err := dbutil.BuildUpdate(tableChunks, where, map[string]interface{}{"embedding": pgvector.NewVector(c.Embedding)})
		if err != nil {
			return false, err
		}
		if _, err := tx.ExecContext(ctx, sqlStr, args...); err != nil {
			return false, err
		}
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

func (r *ChunkRepo) GetDocument(ctx context.Context, documentID string) ([]model.Chunk, error) {
	where := map[string]interface{}{
		"document_id": documentID,
		"_orderby":    "chunk_index asc",
	}
	sqlStr, args, err := dbutil.BuildSelect(tableChunks, where, []string{"document_id", "chunk_index", "chunk_id", "content", "embedding"})
	if err != nil {
		return nil, err
	}
	var rows []chunkRow
	if err := r.db.SelectContext(ctx, &rows, sqlStr, args...); err != nil {
		return nil, err
	}
	chunks := make([]model.Chunk, 0, len(rows))
	for _, row := range rows {
		chunks = append(chunks, model.Chunk{
			ID:         row.ChunkID,
			DocumentID: row.DocumentID,
			ChunkIndex: row.ChunkIndex,
			Text:       row.Content,
			Embedding:  row.Embedding.Slice(),
		})
	}
	return chunks, nil
}

func (r *ChunkRepo) GetMetadata(ctx context.Context, documentID string) (*model.DocumentMeta, bool, error) {
	sqlStr, args, err := dbutil.BuildSelect(tableDocuments, map[string]interface{}{"document_id": documentID}, documentFields)
	if err != nil {
		return nil, false, err
	}
	var row documentRow
	if err := r.db.GetContext(ctx, &row, sqlStr, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}
	meta, err := row.toModel()
	if err != nil {
		return nil, false, err
	}
	return meta, true, nil
}

func (r *ChunkRepo) RemoveDocument(ctx context.Context, documentID string) error {
	sqlStr, args, err := dbutil.BuildDelete(tableDocuments, map[string]interface{}{"document_id": documentID})
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, sqlStr, args...)
	return err
}

func (r *ChunkRepo) ListDocumentIDs(ctx context.Context) ([]string, error) {
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, `SELECT document_id FROM rag_documents ORDER BY document_id`); err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *ChunkRepo) Stats(ctx context.Context) (*model.StoreStats, error) {
	sqlStr, args, err := dbutil.BuildSelect(tableDocuments, map[string]interface{}{"_orderby": "document_id asc"}, documentFields)
	if err != nil {
		return nil, err
	}
	var rows []documentRow
	if err := r.db.SelectContext(ctx, &rows, sqlStr, args...); err != nil {
		return nil, err
	}
	stats := &model.StoreStats{
		DocumentCount: len(rows),
		Documents:     make([]model.DocumentMeta, 0, len(rows)),
	}
	for _, row := range rows {
		meta, err := row.toModel()
		if err != nil {
			return nil, err
		}
		stats.TotalChunks += meta.ChunkCount
		stats.Documents = append(stats.Documents, *meta)
	}
	return stats, nil
}

func (row documentRow) toModel() (*model.DocumentMeta, error) {
	meta := &model.DocumentMeta{
		DocumentID: row.DocumentID,
		ChunkCount: row.ChunkCount,
		Ctime:      row.Ctime,
	}
	if len(row.Metadata) > 0 {
		if err := json.Unmarshal(row.Metadata, &meta.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata: %w", err)
		}
	}
	return meta, nil
}
