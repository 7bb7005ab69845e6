package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/openpredict/ammd/internal/domain"
)

const marketKeyPrefix = "amm:market:"

// MarketCache caches market records by id in front of the durable store.
// Entries are invalidated on every mutation, so the TTL is a backstop
// against missed invalidations rather than the freshness mechanism.
type MarketCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewMarketCache creates a market cache with the given entry TTL.
func NewMarketCache(client *Client, ttl time.Duration) *MarketCache {
	return &MarketCache{rdb: client.Underlying(), ttl: ttl}
}

// Set stores a market record.
func (c *MarketCache) Set(ctx context.Context, market *domain.Market) error {
	raw, err := json.Marshal(market)
	if err != nil {
		return fmt.Errorf("redis: marshal market %d: %w", market.ID, err)
	}
	if err := c.rdb.Set(ctx, marketKey(market.ID), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis: set market %d: %w", market.ID, err)
	}
	return nil
}

// Get returns a cached market, or domain.ErrNotFound on a miss.
func (c *MarketCache) Get(ctx context.Context, marketID uint64) (*domain.Market, error) {
	raw, err := c.rdb.Get(ctx, marketKey(marketID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis: get market %d: %w", marketID, err)
	}
	var market domain.Market
	if err := json.Unmarshal(raw, &market); err != nil {
		return nil, fmt.Errorf("redis: decode market %d: %w", marketID, err)
	}
	return &market, nil
}

// Invalidate drops a cached market.
func (c *MarketCache) Invalidate(ctx context.Context, marketID uint64) error {
	if err := c.rdb.Del(ctx, marketKey(marketID)).Err(); err != nil {
		return fmt.Errorf("redis: invalidate market %d: %w", marketID, err)
	}
	return nil
}

func marketKey(marketID uint64) string {
	return fmt.Sprintf("%s%d", marketKeyPrefix, marketID)
}

var _ domain.MarketCache = (*MarketCache)(nil)
