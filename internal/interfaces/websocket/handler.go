package websocket

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"go-event-registry/internal/infrastructure/logger"
	"go-event-registry/internal/infrastructure/registry"
)

// WebSocketHandler serves the registry over WebSocket as an alternate
// transport. Frames are byte-identical to the SSE stream.
type WebSocketHandler struct {
	registry *registry.Registry
	logger   logger.Logger
	upgrader websocket.Upgrader
}

func NewWebSocketHandler(reg *registry.Registry, logger logger.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		registry: reg,
		logger:   logger.WithField("handler", "websocket"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				// Allow any origin for development; production deployments
				// should check against an allowlist.
				return true
			},
		},
	}
}

// Connect upgrades the request and registers the socket as one more
// connection for the client. The read pump only watches for peer
// teardown; inbound payloads are discarded.
func (h *WebSocketHandler) Connect(c *gin.Context) {
	clientID := c.Query("clientId")
	if clientID == "" {
		clientID = registry.GenerateClientID()
	}
	name := c.Query("name")

	ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Errorf("failed to upgrade connection: %v", err)
		return
	}

	sink := newWSSink(ws)
	conn := h.registry.Add(clientID, sink, name)

	if err := conn.Send(registry.EventConnected, gin.H{
		"message":  "connected",
		"ts":       time.Now().Unix(),
		"clientId": clientID,
		"name":     name,
	}); err != nil {
		h.logger.Errorf("confirmation frame for client %s failed: %v", clientID, err)
		h.registry.RemoveSink(clientID, sink)
		return
	}

	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			break
		}
	}

	h.logger.Infof("websocket peer for client %s gone", clientID)
	h.registry.RemoveSink(clientID, sink)
}
