package main

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"go-event-registry/internal/infrastructure/logger"
	"go-event-registry/internal/infrastructure/registry"
	"go-event-registry/internal/interfaces/sse"
	"go-event-registry/internal/interfaces/websocket"
)

func InitRouter(reg *registry.Registry, log logger.Logger) http.Handler {
	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())

	// CORS middleware
	router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	rootGroup := router.Group("")

	rootGroup.GET("/healthz", func(c *gin.Context) {
		metrics := reg.Metrics()
		c.JSON(http.StatusOK, gin.H{
			"status":      "healthy",
			"connections": metrics.TotalConnections,
			"clients":     metrics.TotalClients,
		})
	})

	sse.InitSSERouter(log, reg, rootGroup)
	websocket.InitWebSocketRouter(log, reg, rootGroup)

	return router
}
