package memory

import (
	"context"
	"time"

	"companion-agent/internal/common/database"
	"companion-agent/internal/common/logger"
)

const contextKeyPrefix = "memctx:"

// ContextCache keeps the latest memory context per user in Redis so a
// quick reconnect skips the Zep round-trip.
type ContextCache struct {
	redis *database.RedisClient
	ttl   time.Duration
	log   logger.Logger
}

// NewContextCache builds a cache. TTL defaults to 10 minutes when unset.
func NewContextCache(redis *database.RedisClient, ttl time.Duration, log logger.Logger) *ContextCache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &ContextCache{redis: redis, ttl: ttl, log: log}
}

// Get returns the cached context for the user, or "" on miss. Cache
// failures degrade to a miss.
func (c *ContextCache) Get(ctx context.Context, userID string) string {
	if c == nil || c.redis == nil {
		return ""
	}
	val, err := c.redis.Get(ctx, contextKeyPrefix+userID)
	if err != nil {
		c.log.WithError(err).Warn("Memory context cache read failed", map[string]interface{}{
			"userId": userID,
		})
		return ""
	}
	return val
}

// Put stores the context for the user. Failures are logged and ignored.
func (c *ContextCache) Put(ctx context.Context, userID, contextBlock string) {
	if c == nil || c.redis == nil || contextBlock == "" {
		return
	}
	if err := c.redis.Set(ctx, contextKeyPrefix+userID, contextBlock, c.ttl); err != nil {
		c.log.WithError(err).Warn("Memory context cache write failed", map[string]interface{}{
			"userId": userID,
		})
	}
}

// Invalidate drops the cached context for the user.
func (c *ContextCache) Invalidate(ctx context.Context, userID string) {
	if c == nil || c.redis == nil {
		return
	}
	_ = c.redis.Delete(ctx, contextKeyPrefix+userID)
}
