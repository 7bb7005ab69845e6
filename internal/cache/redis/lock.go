package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/openpredict/ammd/internal/domain"
)

// unlockScript releases a lock only if the caller still holds it, so a
// lock that expired and was re-acquired by another worker is never
// deleted by the original holder.
const unlockScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`

const (
	lockRetryAttempts = 3
	lockRetryDelay    = 50 * time.Millisecond
)

// LockManager implements domain.LockManager with SET NX locks. Market
// locks are short-lived and contended only when two transfers hit the
// same market at once, so a few brief retries are enough before
// reporting the lock as held.
type LockManager struct {
	rdb    *redis.Client
	unlock *redis.Script
}

// NewLockManager creates a lock manager backed by the given client.
func NewLockManager(client *Client) *LockManager {
	return &LockManager{
		rdb:    client.Underlying(),
		unlock: redis.NewScript(unlockScript),
	}
}

// Acquire takes the named lock for at most ttl and returns a release
// function. It retries briefly on contention and returns
// domain.ErrLockHeld if the lock stays taken.
func (m *LockManager) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	token := uuid.NewString()

	for attempt := 0; ; attempt++ {
		ok, err := m.rdb.SetNX(ctx, key, token, ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("redis: acquire lock %s: %w", key, err)
		}
		if ok {
			break
		}
		if attempt >= lockRetryAttempts {
			return nil, domain.ErrLockHeld
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(lockRetryDelay):
		}
	}

	release := func() {
		// Detach from the caller's context so a canceled request
		// still releases its lock.
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = m.unlock.Run(ctx, m.rdb, []string{key}, token).Err()
	}
	return release, nil
}

var _ domain.LockManager = (*LockManager)(nil)
