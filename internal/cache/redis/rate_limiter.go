package redis

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/openpredict/ammd/internal/domain"
)

//go:embed scripts/sliding_window.lua
var slidingWindowScript string

// RateLimiter implements a sliding-window rate limit shared across
// instances. One key per caller, one sorted set per key.
type RateLimiter struct {
	rdb    *redis.Client
	script *redis.Script
}

// NewRateLimiter creates a rate limiter backed by the given client.
func NewRateLimiter(client *Client) *RateLimiter {
	return &RateLimiter{
		rdb:    client.Underlying(),
		script: redis.NewScript(slidingWindowScript),
	}
}

// Allow reports whether the caller identified by key may proceed under
// a limit of `limit` requests per `window`.
func (r *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	now := time.Now().UnixMicro()
	res, err := r.script.Run(ctx, r.rdb,
		[]string{"amm:ratelimit:" + key},
		now, window.Microseconds(), limit,
	).Slice()
	if err != nil {
		return false, fmt.Errorf("redis: rate limit %s: %w", key, err)
	}
	if len(res) == 0 {
		return false, fmt.Errorf("redis: rate limit %s: empty script reply", key)
	}
	allowed, _ := res[0].(int64)
	return allowed == 1, nil
}

var _ domain.RateLimiter = (*RateLimiter)(nil)
