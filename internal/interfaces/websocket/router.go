package websocket

import (
	"github.com/gin-gonic/gin"

	"go-event-registry/internal/infrastructure/logger"
	"go-event-registry/internal/infrastructure/registry"
)

// InitWebSocketRouter initializes the WebSocket transport route.
func InitWebSocketRouter(logger logger.Logger, reg *registry.Registry, rg *gin.RouterGroup) {
	h := NewWebSocketHandler(reg, logger)

	wsGroup := rg.Group("/ws")
	wsGroup.GET("", h.Connect)
}
