package rag

import (
	"context"

	"github.com/xxxsen/studyrag/internal/model"
)

// Store owns chunk lists and document metadata. A document's chunks and its
// metadata are always written and removed together.
type Store interface {
	PutDocument(ctx context.Context, documentID string, chunks []model.Chunk, metadata map[string]interface{}) (*model.DocumentMeta, error)
	// GetDocument returns no chunks and no error for an unknown document.
	GetDocument(ctx context.Context, documentID string) ([]model.Chunk, error)
	GetMetadata(ctx context.Context, documentID string) (*model.DocumentMeta, bool, error)
	// UpdateEmbeddings swaps in new vectors for a document's stored chunks and
	// keeps its metadata and ctime. It writes nothing and reports false when
	// the document is gone or its ctime no longer equals ctime.
	UpdateEmbeddings(ctx context.Context, documentID string, ctime int64, chunks []model.Chunk) (bool, error)
	RemoveDocument(ctx context.Context, documentID string) error
	ListDocumentIDs(ctx context.Context) ([]string, error)
	Stats(ctx context.Context) (*model.StoreStats, error)
}
