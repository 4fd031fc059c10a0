// Package router wires the chatbot HTTP routes.
package router

import (
	"github.com/gin-gonic/gin"
	"github.com/kart-io/logger"

	"github.com/kart-io/docschat/internal/chatbot/handler"
	"github.com/kart-io/docschat/internal/pkg/middleware"
)

// New builds the gin engine with all routes registered.
func New(chatHandler *handler.ChatHandler) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	engine := gin.New()
	engine.Use(
		middleware.RequestID(),
		middleware.Logger(),
		middleware.Recovery(),
	)

	engine.POST("/chat", chatHandler.Chat)
	engine.POST("/ingest", chatHandler.Ingest)
	engine.GET("/stats", chatHandler.Stats)
	engine.GET("/domains", chatHandler.Domains)
	engine.GET("/metrics", chatHandler.Metrics)
	engine.GET("/healthz", chatHandler.Healthz)

	logger.Info("HTTP routes registered")
	return engine
}
