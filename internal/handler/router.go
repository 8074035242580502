package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/studyrag/internal/middleware"
)

type RouterDeps struct {
	RAG           *RAGHandler
	Chat          *ChatHandler
	ChatRateLimit time.Duration
}

func RegisterRoutes(api *gin.RouterGroup, deps RouterDeps) {
	ragGroup := api.Group("/rag")
	ragGroup.POST("/documents/:id", deps.RAG.Ingest)
	ragGroup.GET("/documents/:id", deps.RAG.Get)
	ragGroup.DELETE("/documents/:id", deps.RAG.Delete)
	ragGroup.POST("/documents/:id/retrieve", deps.RAG.Retrieve)
	ragGroup.POST("/retrieve", deps.RAG.RetrieveAll)
	ragGroup.GET("/stats", deps.RAG.Stats)

	if deps.Chat != nil {
		api.POST("/chat", middleware.RateLimit(deps.ChatRateLimit), deps.Chat.Ask)
	}
}
