package model

type DocumentMeta struct {
	DocumentID string                 `json:"document_id"`
	Metadata   map[string]interface{} `json:"metadata"`
	ChunkCount int                    `json:"chunk_count"`
	Ctime      int64                  `json:"ctime"`
}

type StoreStats struct {
	DocumentCount int            `json:"document_count"`
	TotalChunks   int            `json:"total_chunks"`
	Documents     []DocumentMeta `json:"documents"`
}
