package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/akozyrev/fitcoach-service/internal/domain"
	"github.com/akozyrev/fitcoach-service/internal/repository"
	"github.com/akozyrev/fitcoach-service/pkg/observability"
	"github.com/akozyrev/fitcoach-service/pkg/telegram"
)

// DispatchResult reports how one dispatch concluded.
type DispatchResult struct {
	// Duplicate is set when the ledger already held a successful record for
	// the trigger id and nothing was sent.
	Duplicate bool
	Source    domain.BodySource
}

// dispatcher implements Dispatcher
type dispatcher struct {
	ledger  repository.DispatchRepository
	sender  MessageSender
	metrics *observability.Metrics
	logger  *zap.Logger
}

// NewDispatcher creates a new dispatcher
func NewDispatcher(ledger repository.DispatchRepository, sender MessageSender, metrics *observability.Metrics, logger *zap.Logger) Dispatcher {
	return &dispatcher{
		ledger:  ledger,
		sender:  sender,
		metrics: metrics,
		logger:  logger,
	}
}

// Dispatch sends the body to the intent's user at most once per trigger id.
// The ledger is consulted before sending and written immediately after the
// platform acknowledgment.
func (d *dispatcher) Dispatch(ctx context.Context, intent domain.MessageIntent, body string, source domain.BodySource) (*DispatchResult, error) {
	existing, err := d.ledger.Get(ctx, intent.TriggerID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("failed to read dispatch ledger: %w", err)
	}
	if err == nil && existing.Outcome == domain.OutcomeSent {
		d.logger.Info("duplicate trigger, send skipped",
			zap.String("trigger_id", intent.TriggerID),
			zap.String("user_id", intent.UserID))
		return &DispatchResult{Duplicate: true, Source: existing.BodySource}, nil
	}
	// A stored failure means the previous attempt never reached the platform;
	// the retry sends again under the same trigger id.

	if _, err := d.sender.SendMessage(ctx, intent.UserID, body); err != nil {
		d.recordOutcome(ctx, intent, source, domain.OutcomeFailed)
		d.metrics.Dispatch(ctx, string(source), domain.OutcomeFailed)
		return nil, classifySendError(err)
	}

	d.recordOutcome(ctx, intent, source, domain.OutcomeSent)
	d.metrics.Dispatch(ctx, string(source), domain.OutcomeSent)

	return &DispatchResult{Source: source}, nil
}

// recordOutcome writes the ledger entry. A failed write after a successful
// send is logged, not returned: the message already reached the user, and
// failing the trigger would make the scheduler resend it.
func (d *dispatcher) recordOutcome(ctx context.Context, intent domain.MessageIntent, source domain.BodySource, outcome string) {
	record := &domain.DispatchRecord{
		TriggerID:  intent.TriggerID,
		UserID:     intent.UserID,
		BodySource: source,
		SentAt:     time.Now(),
		Outcome:    outcome,
	}
	if err := d.ledger.Record(ctx, record); err != nil {
		d.logger.Warn("failed to record dispatch outcome",
			zap.String("trigger_id", intent.TriggerID),
			zap.String("outcome", outcome),
			zap.Error(err))
	}
}

func classifySendError(err error) error {
	var apiErr *telegram.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.RateLimited():
			return fmt.Errorf("%w: %v", domain.ErrRateLimited, err)
		case apiErr.Code >= 500:
			return fmt.Errorf("%w: %v", domain.ErrUpstreamUnavailable, err)
		default:
			// 4xx from the platform (blocked bot, unknown chat) cannot
			// succeed on retry.
			return fmt.Errorf("%w: %v", domain.ErrValidationFailed, err)
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", domain.ErrDeadlineExceeded, err)
	}

	return fmt.Errorf("%w: %v", domain.ErrUpstreamUnavailable, err)
}
