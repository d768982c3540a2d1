package sse

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"go-event-registry/internal/infrastructure/logger"
	"go-event-registry/internal/infrastructure/registry"
)

type StreamHandler struct {
	registry *registry.Registry
	logger   logger.Logger
}

func NewStreamHandler(reg *registry.Registry, logger logger.Logger) *StreamHandler {
	return &StreamHandler{
		registry: reg,
		logger:   logger.WithField("handler", "sse"),
	}
}

type connectedPayload struct {
	Message  string `json:"message"`
	TS       int64  `json:"ts"`
	ClientID string `json:"clientId"`
	Name     string `json:"name,omitempty"`
}

// Connect opens an SSE stream for one client connection. It registers
// the connection, sends the confirmation frame, then blocks until either
// the client goes away or the registry evicts the connection.
func (h *StreamHandler) Connect(c *gin.Context) {
	clientID := c.Query("clientId")
	if clientID == "" {
		clientID = registry.GenerateClientID()
	}
	name := c.Query("name")

	w := c.Writer
	flusher, ok := w.(http.Flusher)
	if !ok {
		h.logger.Error("streaming not supported by response writer")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "streaming not supported",
		})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // nginx
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)

	sink := newStreamSink(w, flusher)
	conn := h.registry.Add(clientID, sink, name)

	if err := conn.Send(registry.EventConnected, connectedPayload{
		Message:  "connected",
		TS:       time.Now().Unix(),
		ClientID: clientID,
		Name:     name,
	}); err != nil {
		h.logger.Errorf("confirmation frame for client %s failed: %v", clientID, err)
		h.registry.RemoveSink(clientID, sink)
		return
	}

	select {
	case <-c.Request.Context().Done():
		h.logger.Infof("client %s stream closed by peer", clientID)
	case <-sink.Done():
		h.logger.Infof("client %s stream evicted", clientID)
	}

	h.registry.RemoveSink(clientID, sink)
}

type eventRequest struct {
	Event   string `json:"event" binding:"required"`
	Payload any    `json:"payload"`
}

// SendEvent pushes one event to every connection of a single client.
func (h *StreamHandler) SendEvent(c *gin.Context) {
	clientID := c.Param("clientId")

	var req eventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "invalid event format",
		})
		return
	}

	if !h.registry.SendToClient(clientID, req.Event, req.Payload) {
		c.JSON(http.StatusNotFound, gin.H{
			"error":     "client has no active connections",
			"client_id": clientID,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    "sent",
		"client_id": clientID,
		"event":     req.Event,
	})
}

// Broadcast pushes one event to every connection of every client.
func (h *StreamHandler) Broadcast(c *gin.Context) {
	var req eventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "invalid event format",
		})
		return
	}

	delivered := h.registry.Broadcast(req.Event, req.Payload)

	c.JSON(http.StatusOK, gin.H{
		"status":    "broadcast",
		"event":     req.Event,
		"delivered": delivered,
	})
}

// ListClients returns per-client aggregate details.
func (h *StreamHandler) ListClients(c *gin.Context) {
	details := h.registry.Details()
	c.JSON(http.StatusOK, gin.H{
		"total_clients": len(details),
		"clients":       details,
	})
}

// HasClient reports whether one client currently holds any connection.
func (h *StreamHandler) HasClient(c *gin.Context) {
	clientID := c.Param("clientId")
	c.JSON(http.StatusOK, gin.H{
		"client_id": clientID,
		"connected": h.registry.Has(clientID),
	})
}

// Metrics returns the aggregate connection counters.
func (h *StreamHandler) Metrics(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"metrics":    h.registry.Metrics(),
		"client_ids": h.registry.ClientIDs(),
	})
}
