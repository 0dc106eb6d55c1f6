package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"backcoffee-chat/internal/telemetry"
	"backcoffee-chat/internal/ws"
)

// RegisterDebugRoutes wires debug-only endpoints.
func RegisterDebugRoutes(router *gin.Engine, emitter *telemetry.AuditEmitter, registry *ws.Registry, monitor *ws.Monitor, enabled bool) {
	if !enabled {
		return
	}

	router.GET("/debug/audit-test", func(c *gin.Context) {
		if emitter == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "audit emitter not configured"})
			return
		}
		emitter.Emit(c.Request.Context(), "debug", "audit test", requestIDFromContext(c), userIDFromContext(c), nil)
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.GET("/debug/connections", func(c *gin.Context) {
		type connView struct {
			ConnID string `json:"connId"`
			State  string `json:"state"`
			UserID string `json:"userId,omitempty"`
		}
		conns := registry.Connections()
		out := make([]connView, 0, len(conns))
		for _, conn := range conns {
			userID, _ := registry.ResolveUserByConnection(conn.ID())
			out = append(out, connView{ConnID: conn.ID(), State: registry.State(conn.ID()).String(), UserID: userID})
		}
		c.JSON(http.StatusOK, gin.H{"count": len(out), "connections": out})
	})

	router.POST("/debug/heartbeat", func(c *gin.Context) {
		evicted := monitor.Sweep()
		c.JSON(http.StatusOK, gin.H{"evicted": evicted})
	})
}
