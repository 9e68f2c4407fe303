package ws

import (
	"context"
	"net/http"

	"lobbyhub/backend/internal/hub"
	"lobbyhub/backend/internal/presence"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// Handler upgrades authenticated requests to websocket connections and starts
// the client pumps.
type Handler struct {
	hub      *hub.Hub
	presence presence.Tracker
	upgrader websocket.Upgrader
}

func NewHandler(h *hub.Hub, tracker presence.Tracker) *Handler {
	return &Handler{
		hub:      h,
		presence: tracker,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				// Browser clients carry a bearer token, not cookies, so
				// cross-origin upgrades are safe to accept.
				return true
			},
		},
	}
}

// Serve godoc
// @Summary      Open the real-time channel connection
// @Description  Upgrades to a websocket. Clients then send {"action":"subscribe","channel":"presence-lobby.CODE"} frames.
// @Tags         realtime
// @Security     BearerAuth
// @Router       /ws [get]
func (h *Handler) Serve(c *gin.Context) {
	userID, exists := c.Get("userID")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	client := NewClient(h.hub, h.presence, conn, userID.(uint))

	// The request context dies when this handler returns, but the connection
	// outlives it.
	go client.WritePump()
	go client.ReadPump(context.Background())
}
