package service

import (
	"context"
	"fmt"
	"time"

	"github.com/akozyrev/fitcoach-service/pkg/database"
)

// redisUpdateDeduper implements UpdateDeduper with a claim-once key in Redis.
// Telegram redelivers webhook payloads until they are acknowledged, so every
// update id may arrive more than once.
type redisUpdateDeduper struct {
	redis *database.Redis
	ttl   time.Duration
}

// NewUpdateDeduper creates a deduper that remembers claimed ids for ttl
func NewUpdateDeduper(redis *database.Redis, ttl time.Duration) UpdateDeduper {
	return &redisUpdateDeduper{redis: redis, ttl: ttl}
}

// Claim marks an update id as seen. It returns true for the first caller and
// false for every redelivery within the ttl.
func (s *redisUpdateDeduper) Claim(ctx context.Context, updateID int64) (bool, error) {
	key := fmt.Sprintf("update:seen:%d", updateID)
	claimed, err := s.redis.Client.SetNX(ctx, key, "1", s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to claim update id: %w", err)
	}
	return claimed, nil
}
