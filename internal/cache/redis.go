// Package cache provides a short-TTL read cache for session revocation
// state. The validator checks it before hitting Postgres; a cache miss
// falls through to the session store. Revocation visibility on other
// nodes lags by at most the configured TTL, which is the documented
// trade-off for keeping token validation off the database hot path.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	sessionKeyPrefix = "gh:session:"
	stateActive      = "active"
	stateRevoked     = "revoked"
)

// SessionCache caches per-token session state in redis.
type SessionCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewSessionCache connects to redis and verifies the connection.
func NewSessionCache(addr, password string, db int, ttl time.Duration) (*SessionCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &SessionCache{client: client, ttl: ttl}, nil
}

// SetState caches the active/revoked state for a token id. Revoked
// entries are kept longer than the read TTL so a revoked token does not
// flip back to a stale "active" answer from this node.
func (c *SessionCache) SetState(ctx context.Context, tokenID string, active bool) error {
	state := stateActive
	ttl := c.ttl
	if !active {
		state = stateRevoked
		ttl = 10 * c.ttl
	}
	return c.client.Set(ctx, sessionKeyPrefix+tokenID, state, ttl).Err()
}

// GetState returns (active, found). A missing key means the caller must
// consult the durable session store.
func (c *SessionCache) GetState(ctx context.Context, tokenID string) (bool, bool, error) {
	val, err := c.client.Get(ctx, sessionKeyPrefix+tokenID).Result()
	if err == redis.Nil {
		return false, false, nil
	}
	if err != nil {
		return false, false, err
	}
	return val == stateActive, true, nil
}

// Close releases the redis connection.
func (c *SessionCache) Close() error {
	return c.client.Close()
}
