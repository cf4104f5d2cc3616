package handlers

import (
	"github.com/frostdev-ops/meterdash/internal/websocket"
	"github.com/frostdev-ops/meterdash/pkg/utils"
	"github.com/gin-gonic/gin"
)

// WebSocketHandler upgrades live dashboard connections.
func (h *Handlers) WebSocketHandler() gin.HandlerFunc {
	return websocket.HandleWebSocketGin(h.wsHub)
}

// GetWebSocketStats returns hub statistics.
func (h *Handlers) GetWebSocketStats(c *gin.Context) {
	utils.SendSuccess(c, h.wsHub.GetStats())
}
