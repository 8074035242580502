package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/xxxsen/studyrag/internal/pkg/errcode"
	"github.com/xxxsen/studyrag/internal/pkg/response"
	"github.com/xxxsen/studyrag/internal/service"
)

type ChatHandler struct {
	chat *service.ChatService
}

func NewChatHandler(chat *service.ChatService) *ChatHandler {
	return &ChatHandler{chat: chat}
}

type chatRequest struct {
	DocumentID string `json:"document_id"`
	Question   string `json:"question"`
}

func (h *ChatHandler) Ask(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	answer, err := h.chat.Ask(c.Request.Context(), req.DocumentID, req.Question)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, answer)
}
