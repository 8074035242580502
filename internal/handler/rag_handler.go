package handler

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/studyrag/internal/chunker"
	"github.com/xxxsen/studyrag/internal/model"
	"github.com/xxxsen/studyrag/internal/pkg/errcode"
	appErr "github.com/xxxsen/studyrag/internal/pkg/errors"
	"github.com/xxxsen/studyrag/internal/pkg/response"
	"github.com/xxxsen/studyrag/internal/rag"
)

type RAGHandler struct {
	rag     *rag.Service
	chunker *chunker.Chunker
}

func NewRAGHandler(svc *rag.Service, chk *chunker.Chunker) *RAGHandler {
	if chk == nil {
		chk = chunker.New(0, 0)
	}
	return &RAGHandler{rag: svc, chunker: chk}
}

type ingestRequest struct {
	Chunks   []string               `json:"chunks"`
	Text     string                 `json:"text"`
	Metadata map[string]interface{} `json:"metadata"`
}

type retrieveRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k"`
}

type retrieveResponse struct {
	Items []model.ScoredChunk `json:"items"`
}

func (h *RAGHandler) Ingest(c *gin.Context) {
	var req ingestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	chunks := req.Chunks
	if chunks == nil {
		if strings.TrimSpace(req.Text) == "" {
			response.Error(c, errcode.ErrInvalid, "chunks or text is required")
			return
		}
		chunks = h.chunker.Chunk(c.Request.Context(), req.Text)
	}
	res, err := h.rag.Ingest(c.Request.Context(), c.Param("id"), chunks, req.Metadata)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, res)
}

func (h *RAGHandler) Get(c *gin.Context) {
	meta, ok, err := h.rag.GetMetadata(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	if !ok {
		handleError(c, appErr.ErrNotFound)
		return
	}
	response.Success(c, meta)
}

func (h *RAGHandler) Delete(c *gin.Context) {
	if err := h.rag.Remove(c.Request.Context(), c.Param("id")); err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"ok": true})
}

func (h *RAGHandler) Retrieve(c *gin.Context) {
	var req retrieveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	items, err := h.rag.Retrieve(c.Request.Context(), c.Param("id"), req.Query, req.TopK)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, retrieveResponse{Items: items})
}

func (h *RAGHandler) RetrieveAll(c *gin.Context) {
	var req retrieveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	items, err := h.rag.RetrieveAcrossAll(c.Request.Context(), req.Query, req.TopK)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, retrieveResponse{Items: items})
}

func (h *RAGHandler) Stats(c *gin.Context) {
	stats, err := h.rag.Stats(c.Request.Context())
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, stats)
}
