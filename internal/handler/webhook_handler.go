package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/akozyrev/fitcoach-service/internal/dto"
	"github.com/akozyrev/fitcoach-service/internal/service"
	"github.com/akozyrev/fitcoach-service/pkg/telegram"
)

// WebhookHandler handles Telegram webhook deliveries
type WebhookHandler struct {
	engagement service.Engagement
	logger     *zap.Logger
}

// NewWebhookHandler creates a new webhook handler
func NewWebhookHandler(engagement service.Engagement, logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{engagement: engagement, logger: logger}
}

// Handle processes one webhook delivery. It always acknowledges with 200:
// the update id was claimed before processing, so a Telegram redelivery
// would be skipped anyway, and a retry storm helps nobody.
func (h *WebhookHandler) Handle(c *gin.Context) {
	var update telegram.Update
	if err := c.ShouldBindJSON(&update); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:   "Bad request",
			Message: "malformed update payload",
		})
		return
	}

	if err := h.engagement.HandleUpdate(c.Request.Context(), &update); err != nil {
		h.logger.Error("update processing failed",
			zap.Int64("update_id", update.UpdateID),
			zap.Error(err))
	}

	c.JSON(http.StatusOK, gin.H{"ok": true})
}
