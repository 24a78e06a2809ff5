package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	globalVersionKey = "authz:check:ver"
	cacheAllow       = "1"
	cacheDeny        = "0"
)

// DecisionCache stores check results in Redis under versioned keys. Rather
// than enumerating affected entries, invalidation bumps a version counter,
// which orphans every key built with the old version. A per-user counter
// covers assignment and grant changes; the global counter covers role and
// permission edits whose blast radius spans users.
type DecisionCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewDecisionCache instantiates the cache helper. A nil client disables it.
func NewDecisionCache(client *redis.Client, ttl time.Duration) *DecisionCache {
	if client == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	return &DecisionCache{client: client, ttl: ttl}
}

func userVersionKey(userID int64) string {
	return fmt.Sprintf("authz:check:u%d:ver", userID)
}

func (c *DecisionCache) version(ctx context.Context, key string) (int64, error) {
	ver, err := c.client.Get(ctx, key).Int64()
	if err == redis.Nil {
		if err := c.client.Set(ctx, key, 1, 0).Err(); err != nil {
			return 0, err
		}
		return 1, nil
	}
	if err != nil {
		return 0, err
	}
	return ver, nil
}

func (c *DecisionCache) key(ctx context.Context, req CheckRequest) (string, error) {
	gver, err := c.version(ctx, globalVersionKey)
	if err != nil {
		return "", err
	}
	uver, err := c.version(ctx, userVersionKey(req.UserID))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("authz:check:%d:%d:u%d:%s:%s:%s:%s",
		gver, uver, req.UserID, req.Resource, req.Action, req.Scope, req.ResourceID), nil
}

// Get returns a cached decision and whether one was present.
func (c *DecisionCache) Get(ctx context.Context, req CheckRequest) (bool, bool, error) {
	if c == nil || c.client == nil {
		return false, false, nil
	}
	key, err := c.key(ctx, req)
	if err != nil {
		return false, false, err
	}
	value, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return false, false, nil
	}
	if err != nil {
		return false, false, err
	}
	return value == cacheAllow, true, nil
}

// Set stores a decision under the current versions with the configured TTL.
func (c *DecisionCache) Set(ctx context.Context, req CheckRequest, allowed bool) error {
	if c == nil || c.client == nil {
		return nil
	}
	key, err := c.key(ctx, req)
	if err != nil {
		return err
	}
	value := cacheDeny
	if allowed {
		value = cacheAllow
	}
	return c.client.Set(ctx, key, value, c.ttl).Err()
}

// BumpUser invalidates every cached decision of one user.
func (c *DecisionCache) BumpUser(ctx context.Context, userID int64) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Incr(ctx, userVersionKey(userID)).Err()
}

// BumpAll invalidates every cached decision.
func (c *DecisionCache) BumpAll(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Incr(ctx, globalVersionKey).Err()
}
