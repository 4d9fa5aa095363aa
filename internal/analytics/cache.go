package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultPercentileTTL is how long a cached percentile snapshot stays fresh.
const DefaultPercentileTTL = 5 * time.Minute

// CachedGateway decorates a Gateway with a Redis look-aside cache for
// TenantPercentiles, the one tenant-wide aggregate expensive enough to be
// worth caching. Every other operation delegates to the wrapped gateway
// untouched.
//
// The cache fails open: any Redis error is logged and the lookup falls
// through to the wrapped gateway, so a cache outage degrades latency, never
// availability.
type CachedGateway struct {
	Gateway

	rdb    *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewCachedGateway wraps inner with a Redis percentile cache.
func NewCachedGateway(inner Gateway, rdb *redis.Client, ttl time.Duration, logger *slog.Logger) *CachedGateway {
	if ttl <= 0 {
		ttl = DefaultPercentileTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedGateway{
		Gateway: inner,
		rdb:     rdb,
		ttl:     ttl,
		logger:  logger,
	}
}

// percentileKey builds the cache key for a tenant snapshot. The lookback is
// part of the key so callers with different windows never share entries.
func percentileKey(tenantID string, lookbackHours int) string {
	return fmt.Sprintf("feedrank:pct:%s:%d", tenantID, lookbackHours)
}

// TenantPercentiles serves the snapshot from Redis when present, otherwise
// computes it through the wrapped gateway and caches the result.
func (c *CachedGateway) TenantPercentiles(ctx context.Context, tenantID string, lookbackHours int) (TenantPercentiles, error) {
	if lookbackHours <= 0 {
		lookbackHours = DefaultPercentileLookbackHours
	}
	key := percentileKey(tenantID, lookbackHours)

	raw, err := c.rdb.Get(ctx, key).Result()
	if err == nil {
		var pct TenantPercentiles
		if unmarshalErr := json.Unmarshal([]byte(raw), &pct); unmarshalErr == nil {
			return pct, nil
		}
		// A corrupt entry is treated as a miss and overwritten below.
		c.logger.Warn("corrupt percentile cache entry", "key", key)
	} else if !errors.Is(err, redis.Nil) {
		c.logger.Warn("percentile cache read failed", "key", key, "error", err)
	}

	pct, err := c.Gateway.TenantPercentiles(ctx, tenantID, lookbackHours)
	if err != nil {
		return TenantPercentiles{}, err
	}

	if storeErr := c.StorePercentiles(ctx, tenantID, lookbackHours, pct); storeErr != nil {
		c.logger.Warn("percentile cache write failed", "key", key, "error", storeErr)
	}
	return pct, nil
}

// StorePercentiles writes a snapshot into the cache. Used both by the
// read-through path above and by the background refresher.
func (c *CachedGateway) StorePercentiles(ctx context.Context, tenantID string, lookbackHours int, pct TenantPercentiles) error {
	data, err := json.Marshal(pct)
	if err != nil {
		return fmt.Errorf("marshal percentile snapshot: %w", err)
	}
	if err := c.rdb.Set(ctx, percentileKey(tenantID, lookbackHours), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("store percentile snapshot: %w", err)
	}
	return nil
}
