package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/openpredict/ammd/internal/domain"
	"github.com/openpredict/ammd/internal/numeric"
)

const priceKeyPrefix = "amm:prices:"

// priceEntry is the cached value: spot prices per outcome plus the time
// they were computed, so readers can judge staleness.
type priceEntry struct {
	Prices    []numeric.U128 `json:"prices"`
	UpdatedAt int64          `json:"updated_at"`
}

// PriceCache caches per-market spot prices. Prices are recomputed after
// every trade and liquidity change; the TTL only bounds how long a
// market that stopped trading keeps serving its last quote.
type PriceCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewPriceCache creates a price cache with the given entry TTL.
func NewPriceCache(client *Client, ttl time.Duration) *PriceCache {
	return &PriceCache{rdb: client.Underlying(), ttl: ttl}
}

// SetPrices stores the outcome prices for a market.
func (c *PriceCache) SetPrices(ctx context.Context, marketID uint64, prices []numeric.U128, ts time.Time) error {
	entry := priceEntry{Prices: prices, UpdatedAt: ts.UnixMilli()}
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("redis: marshal prices for market %d: %w", marketID, err)
	}
	if err := c.rdb.Set(ctx, priceKey(marketID), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis: set prices for market %d: %w", marketID, err)
	}
	return nil
}

// GetPrices returns the cached prices for a market and when they were
// computed, or domain.ErrNotFound if nothing is cached.
func (c *PriceCache) GetPrices(ctx context.Context, marketID uint64) ([]numeric.U128, time.Time, error) {
	raw, err := c.rdb.Get(ctx, priceKey(marketID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, time.Time{}, domain.ErrNotFound
	}
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("redis: get prices for market %d: %w", marketID, err)
	}
	var entry priceEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, time.Time{}, fmt.Errorf("redis: decode prices for market %d: %w", marketID, err)
	}
	return entry.Prices, time.UnixMilli(entry.UpdatedAt), nil
}

// Invalidate drops the cached prices for a market.
func (c *PriceCache) Invalidate(ctx context.Context, marketID uint64) error {
	if err := c.rdb.Del(ctx, priceKey(marketID)).Err(); err != nil {
		return fmt.Errorf("redis: invalidate prices for market %d: %w", marketID, err)
	}
	return nil
}

func priceKey(marketID uint64) string {
	return fmt.Sprintf("%s%d", priceKeyPrefix, marketID)
}

var _ domain.PriceCache = (*PriceCache)(nil)
