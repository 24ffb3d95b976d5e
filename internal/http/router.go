package http

import (
	"github.com/gin-gonic/gin"

	"cpg-mentor/internal/logger"
)

func NewRouter(s *Server, log *logger.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), RequestLogger(log))

	router.GET("/healthcheck", HealthCheck)
	api := router.Group("/api")
	{
		api.POST("/chat", s.Chat)
		api.GET("/conversations/:id", s.GetConversation)
		api.DELETE("/conversations/:id", s.AbandonConversation)
	}
	return router
}
