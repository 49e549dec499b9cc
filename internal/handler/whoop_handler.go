package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/akozyrev/fitcoach-service/internal/domain"
	"github.com/akozyrev/fitcoach-service/internal/service"
)

// WhoopHandler handles the OAuth redirect from WHOOP
type WhoopHandler struct {
	engagement service.Engagement
	logger     *zap.Logger
}

// NewWhoopHandler creates a new WHOOP callback handler
func NewWhoopHandler(engagement service.Engagement, logger *zap.Logger) *WhoopHandler {
	return &WhoopHandler{engagement: engagement, logger: logger}
}

// Callback finishes the account link. The user lands here from the WHOOP
// consent screen, so responses are plain text for a browser.
func (h *WhoopHandler) Callback(c *gin.Context) {
	if c.Query("error") != "" {
		c.String(http.StatusBadRequest, "Authorization was declined. Send /linkwhoop in Telegram to try again.")
		return
	}

	state := c.Query("state")
	code := c.Query("code")
	if state == "" || code == "" {
		c.String(http.StatusBadRequest, "Missing state or code parameter.")
		return
	}

	userID, err := h.engagement.CompleteLink(c.Request.Context(), state, code)
	if err != nil {
		h.logger.Error("account link failed", zap.Error(err))
		if errors.Is(err, domain.ErrValidationFailed) {
			c.String(http.StatusForbidden, "This link is invalid or was already used. Send /linkwhoop in Telegram for a fresh one.")
			return
		}
		c.String(http.StatusServiceUnavailable, "Something went wrong, please try again in a minute.")
		return
	}

	h.logger.Info("account linked via callback", zap.String("user_id", userID))
	c.String(http.StatusOK, "WHOOP connected! You can close this tab and return to Telegram.")
}
