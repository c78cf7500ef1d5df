package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"chatrooms-service/internal/telemetry"
)

// RegisterDebugRoutes wires endpoints that only exist when DEBUG_ROUTES is on.
// Keep them out of production config.
func RegisterDebugRoutes(router *gin.Engine, emitter *telemetry.AuditEmitter, enabled bool) {
	if !enabled {
		return
	}

	// Fires a synthetic audit record so operators can verify the broker path
	// end to end without creating a room.
	router.GET("/debug/audit-test", func(c *gin.Context) {
		if emitter == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "audit emitter not configured"})
			return
		}
		requestID := requestIDFromContext(c)
		emitter.Emit(c.Request.Context(), "INFO", "audit test", requestID, userIDFromContext(c))
		c.JSON(http.StatusOK, gin.H{"status": "ok", "request_id": requestID})
	})
}
