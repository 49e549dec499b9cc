package handler

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/akozyrev/fitcoach-service/internal/domain"
	"github.com/akozyrev/fitcoach-service/internal/dto"
	"github.com/akozyrev/fitcoach-service/internal/service"
	"github.com/akozyrev/fitcoach-service/pkg/observability"
)

// triggerBucket is the timestamp bucket in scheduled trigger ids. Retries
// of the same scheduled firing land in the same bucket and are deduplicated;
// the next firing starts a new one.
const triggerBucket = time.Hour

// TriggerHandler handles scheduled trigger requests
type TriggerHandler struct {
	engagement service.Engagement
	metrics    *observability.Metrics
	logger     *zap.Logger
}

// NewTriggerHandler creates a new trigger handler
func NewTriggerHandler(engagement service.Engagement, metrics *observability.Metrics, logger *zap.Logger) *TriggerHandler {
	return &TriggerHandler{
		engagement: engagement,
		metrics:    metrics,
		logger:     logger,
	}
}

// MorningMotivation broadcasts the morning message to all linked users
func (h *TriggerHandler) MorningMotivation(c *gin.Context) {
	h.run(c, domain.KindMorningMotivation, "morning-motivation")
}

// CheckIn broadcasts the evening check-in
func (h *TriggerHandler) CheckIn(c *gin.Context) {
	h.run(c, domain.KindCheckIn, "check-in")
}

// UpdateHealthData syncs every linked user and messages those with new data
func (h *TriggerHandler) UpdateHealthData(c *gin.Context) {
	h.run(c, domain.KindHealthUpdate, "update-health-data")
}

func (h *TriggerHandler) run(c *gin.Context, kind domain.IntentKind, job string) {
	triggerID := scheduledTriggerID(job, time.Now())

	log := h.logger.With(
		zap.String("kind", string(kind)),
		zap.String("trigger_id", triggerID),
	)
	log.Info("trigger accepted", zap.String("state", "processing"))

	result, err := h.engagement.RunScheduled(c.Request.Context(), kind, triggerID)
	if err != nil {
		log.Error("trigger failed", zap.String("state", "failed"), zap.Error(err))
		h.metrics.Trigger(c.Request.Context(), string(kind), "failed")

		status := statusForError(err)
		c.JSON(status, dto.ErrorResponse{
			Error:     http.StatusText(status),
			Message:   "trigger processing failed, see service logs",
			Retryable: domain.Retryable(err),
		})
		return
	}

	log.Info("trigger completed",
		zap.String("state", "completed"),
		zap.Int("users", result.Users),
		zap.Int("sent", result.Sent),
		zap.Int("duplicates", result.Duplicates),
		zap.Int("skipped", result.Skipped),
		zap.Int("auth_expired", result.AuthExpired))
	h.metrics.Trigger(c.Request.Context(), string(kind), "completed")

	status := "completed"
	if result.AuthExpired > 0 {
		// Reported in-band: re-delivering the trigger cannot fix a revoked
		// authorization.
		status = "auth_expired"
	}
	c.JSON(http.StatusOK, dto.TriggerResponse{Status: status, Result: result})
}

// scheduledTriggerID derives the idempotency key for a scheduled firing.
func scheduledTriggerID(job string, now time.Time) string {
	return fmt.Sprintf("%s:%d", job, now.Truncate(triggerBucket).Unix())
}

// statusForError maps a domain error kind to the HTTP status the scheduler
// keys its retry decision on.
func statusForError(err error) int {
	switch {
	case errors.Is(err, domain.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, domain.ErrAuthExpired):
		return http.StatusConflict
	case errors.Is(err, domain.ErrValidationFailed):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrUpstreamUnavailable),
		errors.Is(err, domain.ErrDeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		if domain.Retryable(err) {
			return http.StatusServiceUnavailable
		}
		return http.StatusInternalServerError
	}
}
