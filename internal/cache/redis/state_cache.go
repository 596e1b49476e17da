package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/updownhq/updown/internal/domain"
)

const stateKey = "market:state"

// StateCache implements domain.StateCache as a single JSON value under a
// short TTL. Readers across instances hit this before the engine.
type StateCache struct {
	rdb *redis.Client
}

// NewStateCache creates a StateCache backed by the given Client.
func NewStateCache(c *Client) *StateCache {
	return &StateCache{rdb: c.Underlying()}
}

var _ domain.StateCache = (*StateCache)(nil)

// Set stores the serialized state with the given TTL.
func (sc *StateCache) Set(ctx context.Context, state domain.MarketState, ttl time.Duration) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("redis: marshal state: %w", err)
	}
	if err := sc.rdb.Set(ctx, stateKey, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis: set state: %w", err)
	}
	return nil
}

// Get retrieves the cached state. It returns domain.ErrNotFound on a miss
// or an expired entry.
func (sc *StateCache) Get(ctx context.Context) (domain.MarketState, error) {
	data, err := sc.rdb.Get(ctx, stateKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.MarketState{}, domain.ErrNotFound
		}
		return domain.MarketState{}, fmt.Errorf("redis: get state: %w", err)
	}

	var state domain.MarketState
	if err := json.Unmarshal(data, &state); err != nil {
		return domain.MarketState{}, fmt.Errorf("redis: unmarshal state: %w", err)
	}
	return state, nil
}

// Invalidate removes the cached state so the next read refreshes it.
func (sc *StateCache) Invalidate(ctx context.Context) error {
	if err := sc.rdb.Del(ctx, stateKey).Err(); err != nil {
		return fmt.Errorf("redis: invalidate state: %w", err)
	}
	return nil
}
