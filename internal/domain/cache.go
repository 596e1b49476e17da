package domain

import (
	"context"
	"time"
)

// StateCache caches the serialized market state for fast reads across
// instances. Get returns ErrNotFound on a miss or expired entry.
type StateCache interface {
	Set(ctx context.Context, state MarketState, ttl time.Duration) error
	Get(ctx context.Context) (MarketState, error)
	Invalidate(ctx context.Context) error
}

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// SignalBus provides pub/sub fan-out between service instances.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}
