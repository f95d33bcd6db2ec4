package cache

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"laundry-engine/internal/engine"
	"laundry-engine/internal/metrics"
	"laundry-engine/internal/repository"
)

// CapacityReader is the slice of the engine the cache decorates.
type CapacityReader interface {
	Capacity(ctx context.Context, dates []time.Time) (map[string]int, error)
}

// CapacityCache is a read-through redis cache in front of the capacity
// counters. The counters are already a derived cache of the order set, so a
// short TTL plus event-driven invalidation is plenty; any cache failure
// degrades to a direct read.
type CapacityCache struct {
	primary CapacityReader
	client  *redis.Client
	ttl     time.Duration
	logger  *zap.Logger
}

func NewCapacityCache(primary CapacityReader, client *redis.Client, ttl time.Duration, logger *zap.Logger) *CapacityCache {
	return &CapacityCache{primary: primary, client: client, ttl: ttl, logger: logger}
}

func cacheKey(dateKey string) string {
	return "capacity:" + dateKey
}

func (c *CapacityCache) Capacity(ctx context.Context, dates []time.Time) (map[string]int, error) {
	counts := make(map[string]int, len(dates))
	var misses []time.Time

	for _, d := range dates {
		key := repository.DateKey(repository.Midnight(d))
		val, err := c.client.Get(ctx, cacheKey(key)).Result()
		if err == nil {
			if n, convErr := strconv.Atoi(val); convErr == nil {
				metrics.CapacityCacheHitsTotal.Inc()
				counts[key] = n
				continue
			}
		}
		metrics.CapacityCacheMissesTotal.Inc()
		misses = append(misses, d)
	}

	if len(misses) == 0 {
		return counts, nil
	}

	fresh, err := c.primary.Capacity(ctx, misses)
	if err != nil {
		return nil, err
	}
	for key, n := range fresh {
		counts[key] = n
		if err := c.client.Set(ctx, cacheKey(key), strconv.Itoa(n), c.ttl).Err(); err != nil {
			c.logger.Debug("failed to cache capacity count",
				zap.String("date", key), zap.Error(err))
		}
	}
	return counts, nil
}

// InvalidationHook drops cached counts for dates touched by a lifecycle
// event, so admins polling the calendar see slot changes promptly.
type InvalidationHook struct {
	client *redis.Client
}

func NewInvalidationHook(client *redis.Client) *InvalidationHook {
	return &InvalidationHook{client: client}
}

func (h *InvalidationHook) Name() string {
	return "capacity_cache_invalidation"
}

func (h *InvalidationHook) AfterCommit(ctx context.Context, ev engine.Event) error {
	keys := []string{cacheKey(ev.PickupDate)}
	if ev.PreviousPickupDate != "" && ev.PreviousPickupDate != ev.PickupDate {
		keys = append(keys, cacheKey(ev.PreviousPickupDate))
	}
	return h.client.Del(ctx, keys...).Err()
}
