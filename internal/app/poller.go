package app

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/akozyrev/fitcoach-service/internal/service"
	"github.com/akozyrev/fitcoach-service/pkg/telegram"
)

// pollRetryDelay spaces retries after a failed getUpdates call.
const pollRetryDelay = 3 * time.Second

// poller feeds long-polled updates into the same pipeline the webhook uses.
// Used in polling mode, mainly for local development.
type poller struct {
	client     *telegram.Client
	engagement service.Engagement
	timeout    time.Duration
	logger     *zap.Logger
}

func newPoller(client *telegram.Client, engagement service.Engagement, timeout time.Duration, logger *zap.Logger) *poller {
	return &poller{
		client:     client,
		engagement: engagement,
		timeout:    timeout,
		logger:     logger,
	}
}

func (p *poller) run(ctx context.Context) {
	p.logger.Info("update polling started", zap.Duration("timeout", p.timeout))

	var offset int64
	for {
		if ctx.Err() != nil {
			p.logger.Info("update polling stopped")
			return
		}

		updates, err := p.client.GetUpdates(ctx, offset, p.timeout)
		if err != nil {
			if ctx.Err() != nil {
				p.logger.Info("update polling stopped")
				return
			}
			p.logger.Warn("getUpdates failed", zap.Error(err))
			select {
			case <-ctx.Done():
			case <-time.After(pollRetryDelay):
			}
			continue
		}

		for _, update := range updates {
			if update.UpdateID >= offset {
				offset = update.UpdateID + 1
			}
			if err := p.engagement.HandleUpdate(ctx, &update); err != nil {
				p.logger.Error("update processing failed",
					zap.Int64("update_id", update.UpdateID),
					zap.Error(err))
			}
		}
	}
}
