// Package analytics records per-shift fire-outcome counters in Redis.
// The sink is an optional collaborator; every write is best-effort.
package analytics

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"shiftwake/internal/domain"
)

type RedisSink struct {
	client *redis.Client
	config domain.AnalyticsConfig
}

func NewRedisSink(client *redis.Client, config domain.AnalyticsConfig) *RedisSink {
	return &RedisSink{client: client, config: config}
}

// Record increments the windowed counter for one fire outcome. Failures are
// logged and swallowed; analytics must never affect alarm handling.
func (s *RedisSink) Record(ctx context.Context, shiftID string, outcome domain.FireOutcome, at time.Time) {
	if !s.config.Enabled {
		return
	}

	key := buildKey(shiftID, outcome, at, s.config.Window)

	pipe := s.client.Pipeline()
	pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, s.config.Retention)

	if _, err := pipe.Exec(ctx); err != nil {
		log.Printf("analytics: record %s failed: %v", key, err)
	}
}

// Count reads one windowed counter. Missing keys count as zero.
func (s *RedisSink) Count(ctx context.Context, shiftID string, outcome domain.FireOutcome, at time.Time) (int64, error) {
	key := buildKey(shiftID, outcome, at, s.config.Window)
	count, err := s.client.Get(ctx, key).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis get %s: %w", key, err)
	}
	return count, nil
}

func buildKey(shiftID string, outcome domain.FireOutcome, t time.Time, window time.Duration) string {
	return fmt.Sprintf("s:%s:o:%s:%s", shiftID, outcome, truncateToBucket(t, window))
}

func truncateToBucket(t time.Time, window time.Duration) string {
	t = t.UTC()
	switch window {
	case time.Hour:
		return t.Format("2006010215")
	case 24 * time.Hour:
		return t.Format("20060102")
	default:
		return t.Format("20060102")
	}
}
