package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Pinger reports whether the audit store is reachable.
type Pinger func(ctx context.Context) error

// AnchorState reports the anchor circuit breaker state ("closed", "open" or
// "half-open").
type AnchorState func() string

type HealthHandler struct {
	ping        Pinger
	anchorState AnchorState
	logger      *zap.Logger
}

// NewHealthHandler builds the health endpoints. anchorState may be nil.
func NewHealthHandler(ping Pinger, anchorState AnchorState, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{ping: ping, anchorState: anchorState, logger: logger}
}

func (h *HealthHandler) Ping(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "pong"})
}

func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	body := gin.H{"status": "ok", "database": "up"}
	if h.anchorState != nil {
		state := h.anchorState()
		body["anchor"] = state
		// An open breaker degrades anchoring only; evaluations still get recorded.
		if state != "closed" {
			body["status"] = "degraded"
		}
	}

	if err := h.ping(ctx); err != nil {
		h.logger.Warn("Health check failed", zap.Error(err))
		body["status"] = "unavailable"
		body["database"] = "down"
		c.JSON(http.StatusServiceUnavailable, body)
		return
	}
	c.JSON(http.StatusOK, body)
}
