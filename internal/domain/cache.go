package domain

import (
	"context"
	"time"
)

// PriceCache provides fast access to the latest spot prices per outcome.
// Prices are stored at the pool's collateral scale (10^decimals = one).
type PriceCache interface {
	SetPrices(ctx context.Context, marketID uint64, prices []U128, ts time.Time) error
	GetPrices(ctx context.Context, marketID uint64) ([]U128, time.Time, error)
	Invalidate(ctx context.Context, marketID uint64) error
}

// MarketCache provides fast market lookups in front of the ledger.
type MarketCache interface {
	Set(ctx context.Context, market *Market) error
	Get(ctx context.Context, id uint64) (*Market, error)
	Invalidate(ctx context.Context, id uint64) error
}

// RateLimiter provides distributed rate limiting for the HTTP surface.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// LockManager provides distributed locking. Every state-mutating operation
// runs under its market's lock so pool math always sees committed reserves.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// StreamMessage is a single entry from a durable stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus provides pub/sub for live event fanout and durable streams for
// the settlement pipeline's oracle callbacks.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}
