package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/akozyrev/fitcoach-service/internal/domain"
	"github.com/akozyrev/fitcoach-service/internal/repository"
	"github.com/akozyrev/fitcoach-service/pkg/observability"
	"github.com/akozyrev/fitcoach-service/pkg/whoop"
)

// maxRateLimitRetries bounds in-request backoff on vendor 429s. With the
// doubling schedule the retries cost at most 7s of the request budget.
const maxRateLimitRetries = 3

// SyncResult summarizes one sync run for a user.
type SyncResult struct {
	RecordsIngested int
	CursorAdvanced  bool
}

// healthSync implements HealthSync
type healthSync struct {
	vault    TokenVault
	fetcher  SleepFetcher
	cursors  repository.CursorRepository
	records  repository.HealthRecordRepository
	lookback time.Duration
	metrics  *observability.Metrics
	logger   *zap.Logger
}

// NewHealthSync creates a new health sync service. lookback bounds the first
// sync of a user with no cursor yet.
func NewHealthSync(
	vault TokenVault,
	fetcher SleepFetcher,
	cursors repository.CursorRepository,
	records repository.HealthRecordRepository,
	lookback time.Duration,
	metrics *observability.Metrics,
	logger *zap.Logger,
) HealthSync {
	return &healthSync{
		vault:    vault,
		fetcher:  fetcher,
		cursors:  cursors,
		records:  records,
		lookback: lookback,
		metrics:  metrics,
		logger:   logger,
	}
}

// Sync pages new sleep records for a user from the cursor position. Each page
// is persisted before the cursor advances past it, so a crash between pages
// re-reads at most one already-ingested page and the keyed upserts absorb the
// replay.
func (s *healthSync) Sync(ctx context.Context, userID string) (*SyncResult, error) {
	result := &SyncResult{}

	token, err := s.vault.ValidToken(ctx, userID)
	if err != nil {
		return result, err
	}

	since, err := s.syncStart(ctx, userID)
	if err != nil {
		return result, err
	}

	fetch := &pageFetcher{sync: s, userID: userID, token: token}
	nextToken := ""
	for {
		page, err := fetch.next(ctx, since, nextToken)
		if err != nil {
			return result, err
		}
		if len(page.Records) == 0 {
			break
		}

		ingested, maxEnd, lastID, err := s.persistPage(ctx, userID, page.Records)
		if err != nil {
			return result, err
		}
		result.RecordsIngested += ingested

		if err := s.cursors.Advance(ctx, userID, maxEnd, lastID); err != nil {
			return result, err
		}
		result.CursorAdvanced = true

		if page.NextToken == "" {
			break
		}
		nextToken = page.NextToken
	}

	if result.RecordsIngested > 0 {
		s.metrics.Ingested(ctx, int64(result.RecordsIngested))
		s.logger.Info("health records ingested",
			zap.String("user_id", userID),
			zap.Int("records", result.RecordsIngested))
	}

	return result, nil
}

// syncStart returns the position to fetch from: the stored cursor, or the
// lookback window for a user never synced before.
func (s *healthSync) syncStart(ctx context.Context, userID string) (time.Time, error) {
	cursor, err := s.cursors.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return time.Now().Add(-s.lookback), nil
		}
		return time.Time{}, err
	}
	return cursor.LastSyncedAt, nil
}

func (s *healthSync) persistPage(ctx context.Context, userID string, sleeps []whoop.SleepRecord) (int, time.Time, string, error) {
	var (
		ingested int
		maxEnd   time.Time
		lastID   string
	)

	for _, sleep := range sleeps {
		for _, record := range recordsFromSleep(userID, sleep) {
			if err := s.records.Upsert(ctx, record); err != nil {
				return ingested, maxEnd, lastID, err
			}
			ingested++
		}
		if sleep.End.After(maxEnd) {
			maxEnd = sleep.End
			lastID = strconv.FormatInt(sleep.ID, 10)
		}
	}

	return ingested, maxEnd, lastID, nil
}

// recordsFromSleep derives the stored metrics from one scored sleep activity.
// RecordedAt is the sleep end, which is what the cursor tracks.
func recordsFromSleep(userID string, sleep whoop.SleepRecord) []*domain.HealthRecord {
	now := time.Now()
	return []*domain.HealthRecord{
		{
			UserID:     userID,
			MetricType: domain.MetricSlowWaveSleepMilli,
			Value:      float64(sleep.Score.StageSummary.TotalSlowWaveSleepTimeMilli),
			RecordedAt: sleep.End,
			IngestedAt: now,
		},
		{
			UserID:     userID,
			MetricType: domain.MetricREMSleepMilli,
			Value:      float64(sleep.Score.StageSummary.TotalREMSleepTimeMilli),
			RecordedAt: sleep.End,
			IngestedAt: now,
		},
		{
			UserID:     userID,
			MetricType: domain.MetricSleepPerformance,
			Value:      sleep.Score.SleepPerformancePercentage,
			RecordedAt: sleep.End,
			IngestedAt: now,
		},
	}
}

// pageFetcher wraps the vendor call with the per-request recovery rules: one
// forced token refresh on 401, bounded backoff on 429.
type pageFetcher struct {
	sync      *healthSync
	userID    string
	token     string
	refreshed bool
}

func (f *pageFetcher) next(ctx context.Context, since time.Time, nextToken string) (*whoop.SleepPage, error) {
	backoff := time.Second
	retries := 0

	for {
		page, err := f.sync.fetcher.Sleeps(ctx, f.token, since, nextToken)
		if err == nil {
			return page, nil
		}

		var apiErr *whoop.APIError
		switch {
		case errors.As(err, &apiErr) && apiErr.Unauthorized():
			if f.refreshed {
				return nil, fmt.Errorf("%w: access token rejected after refresh", domain.ErrAuthExpired)
			}
			fresh, rerr := f.sync.vault.ForceRefresh(ctx, f.userID, f.token)
			if rerr != nil {
				return nil, rerr
			}
			f.token = fresh
			f.refreshed = true

		case errors.As(err, &apiErr) && apiErr.RateLimited():
			if retries >= maxRateLimitRetries {
				return nil, fmt.Errorf("%w: %v", domain.ErrRateLimited, err)
			}
			f.sync.logger.Warn("vendor rate limit, backing off",
				zap.String("user_id", f.userID),
				zap.Duration("backoff", backoff))
			if serr := sleepWithContext(ctx, backoff); serr != nil {
				return nil, fmt.Errorf("%w: budget expired during backoff", domain.ErrDeadlineExceeded)
			}
			backoff *= 2
			retries++

		case errors.As(err, &apiErr):
			return nil, fmt.Errorf("%w: %v", domain.ErrUpstreamUnavailable, err)

		case errors.Is(err, context.DeadlineExceeded):
			return nil, fmt.Errorf("%w: %v", domain.ErrDeadlineExceeded, err)

		default:
			return nil, fmt.Errorf("%w: %v", domain.ErrUpstreamUnavailable, err)
		}
	}
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
