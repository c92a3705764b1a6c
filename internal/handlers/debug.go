package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"roomchat/internal/telemetry"
	"roomchat/internal/ws"
)

// RegisterDebugRoutes wires debug-only endpoints.
func RegisterDebugRoutes(router gin.IRoutes, emitter *telemetry.AuditEmitter, lifecycle *ws.Lifecycle, enabled bool) {
	if !enabled {
		return
	}

	router.GET("/debug/audit-test", func(c *gin.Context) {
		if emitter == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "audit emitter not configured"})
			return
		}
		emitter.Emit(c.Request.Context(), telemetry.LevelInfo, "audit test", requestIDFromContext(c), userIDFromContext(c))
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.GET("/debug/sessions", func(c *gin.Context) {
		if lifecycle == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "lifecycle not configured"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"parked":           lifecycle.Parked(),
			"missedHeartbeats": lifecycle.MissedHeartbeats(),
		})
	})
}
