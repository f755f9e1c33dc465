package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/stealthfetch/models"
)

// Version is reported by the health endpoint.
const Version = "0.1.0"

// StatusReporter exposes what the health endpoint reports.
type StatusReporter interface {
	Stats() models.SessionStats
	Engines() []models.EngineKind
	Uptime() time.Duration
}

// Health returns a handler for GET /api/v1/health.
//
// Status degrades when more than 80% of browser sessions are in use.
func Health(sr StatusReporter) gin.HandlerFunc {
	return func(c *gin.Context) {
		stats := sr.Stats()

		status := "healthy"
		if stats.MaxSessions > 0 && stats.ActiveSessions > int(float64(stats.MaxSessions)*0.8) {
			status = "degraded"
		}

		c.JSON(http.StatusOK, models.HealthResponse{
			Status:       status,
			Uptime:       sr.Uptime().Round(time.Second).String(),
			SessionStats: stats,
			Engines:      sr.Engines(),
			Version:      Version,
		})
	}
}
