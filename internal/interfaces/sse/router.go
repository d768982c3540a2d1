package sse

import (
	"github.com/gin-gonic/gin"

	"go-event-registry/internal/infrastructure/logger"
	"go-event-registry/internal/infrastructure/registry"
)

func InitSSERouter(logger logger.Logger, reg *registry.Registry, rg *gin.RouterGroup) {
	h := NewStreamHandler(reg, logger)

	// Stream endpoint
	rg.GET("/events", h.Connect)

	// Dispatch and introspection API
	apiGroup := rg.Group("/api/v1/events")
	apiGroup.POST("/send/:clientId", h.SendEvent)
	apiGroup.POST("/broadcast", h.Broadcast)
	apiGroup.GET("/clients", h.ListClients)
	apiGroup.GET("/clients/:clientId", h.HasClient)
	apiGroup.GET("/metrics", h.Metrics)
}
