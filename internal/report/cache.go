package report

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"

	"hourlog/internal/timecalc"
)

// HoursCache keeps per-subject totals in a Redis hash. It is a derived view:
// the ledger stays authoritative and entries are dropped on every mutation.
type HoursCache struct {
	client *redis.Client
	key    string
}

// NewHoursCache uses key as the hash name.
func NewHoursCache(client *redis.Client, key string) *HoursCache {
	if key == "" {
		key = "hourlog:totals"
	}
	return &HoursCache{client: client, key: key}
}

// Get returns the cached total; ok is false on a miss.
func (c *HoursCache) Get(ctx context.Context, subjectID string) (hours float64, ok bool, err error) {
	raw, err := c.client.HGet(ctx, c.key, subjectID).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	hours, ok, err = timecalc.ParseHours(raw)
	if err != nil || !ok {
		return 0, false, err
	}
	return hours, true, nil
}

// Set stores a total.
func (c *HoursCache) Set(ctx context.Context, subjectID string, hours float64) error {
	return c.client.HSet(ctx, c.key, subjectID, timecalc.FormatHours(hours)).Err()
}

// Invalidate drops a subject's entry.
func (c *HoursCache) Invalidate(ctx context.Context, subjectID string) error {
	return c.client.HDel(ctx, c.key, subjectID).Err()
}
