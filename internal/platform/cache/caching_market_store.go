// Package cache provides caching implementations for repository interfaces.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"market_ingest/internal/feature/marketdata/domain/entity"
	"market_ingest/internal/feature/marketdata/usecase"
)

const timeKeyLayout = "20060102T150405"

// CachingMarketStore decorates a MarketQueryRepository with Redis caching of range queries.
// Only GetByRange is cached; every other method goes straight to the inner repository.
type CachingMarketStore struct {
	usecase.MarketQueryRepository

	rdb       *redis.Client
	ttl       time.Duration
	namespace string
	now       func() time.Time
}

var _ usecase.MarketQueryRepository = (*CachingMarketStore)(nil)

// NewCachingMarketStore decorates a MarketQueryRepository with Redis caching.
// If ttl is 0 or negative, entries expire at the next daily refresh hour (UTC).
// If namespace is empty, it uses "bars".
func NewCachingMarketStore(rdb *redis.Client, ttl time.Duration, inner usecase.MarketQueryRepository, namespace string) *CachingMarketStore {
	if namespace == "" {
		namespace = "bars"
	}
	return &CachingMarketStore{
		MarketQueryRepository: inner,
		rdb:                   rdb,
		ttl:                   ttl,
		namespace:             namespace,
		now:                   time.Now,
	}
}

// UpsertBatch writes through to the inner repository and invalidates the cached ranges
// of every symbol in the batch.
func (c *CachingMarketStore) UpsertBatch(ctx context.Context, batch entity.Batch) (int64, error) {
	n, err := c.MarketQueryRepository.UpsertBatch(ctx, batch)
	if err != nil {
		return n, err
	}
	if c.rdb == nil || len(batch.Bars) == 0 {
		return n, nil
	}

	seen := map[string]struct{}{}
	for _, b := range batch.Bars {
		prefix := c.cacheKeyPrefix(batch.AssetClass, b.Symbol)
		if _, ok := seen[prefix]; ok {
			continue
		}
		seen[prefix] = struct{}{}
		_ = c.deleteByPattern(ctx, prefix+"*") // Best effort: don't fail if cache deletion fails
	}
	return n, nil
}

// CleanupBefore deletes old rows through the inner repository and then drops every cached
// range of the asset class, since any of them may include deleted bars.
func (c *CachingMarketStore) CleanupBefore(ctx context.Context, asset entity.AssetClass, cutoff time.Time) (int64, error) {
	n, err := c.MarketQueryRepository.CleanupBefore(ctx, asset, cutoff)
	if err != nil {
		return n, err
	}
	if c.rdb == nil {
		return n, nil
	}
	_ = c.deleteByPattern(ctx, fmt.Sprintf("%s:%s:*", c.namespace, safe(string(asset))))
	return n, nil
}

// GetByRange retrieves bars, checking cache first then falling back to the database.
func (c *CachingMarketStore) GetByRange(ctx context.Context, asset entity.AssetClass, symbol string, from, to time.Time) ([]entity.Bar, error) {
	if c.rdb == nil {
		return c.MarketQueryRepository.GetByRange(ctx, asset, symbol, from, to)
	}

	key := c.cacheKey(asset, symbol, from, to)

	if b, err := c.rdb.Get(ctx, key).Bytes(); err == nil && len(b) > 0 {
		var out []entity.Bar
		if err := json.Unmarshal(b, &out); err == nil {
			return out, nil
		}
		// Delete corrupted cache entry
		_ = c.rdb.Del(ctx, key).Err()
	}

	out, err := c.MarketQueryRepository.GetByRange(ctx, asset, symbol, from, to)
	if err != nil {
		return nil, err
	}

	if b, err := json.Marshal(out); err == nil {
		_ = c.rdb.Set(ctx, key, b, c.expiry()).Err()
	}
	return out, nil
}

func (c *CachingMarketStore) expiry() time.Duration {
	if c.ttl > 0 {
		return c.ttl
	}
	return TimeUntilNextRefresh(c.now(), DefaultRefreshHour, time.UTC)
}

// cacheKey generates a cache key for a specific range query.
func (c *CachingMarketStore) cacheKey(asset entity.AssetClass, symbol string, from, to time.Time) string {
	return fmt.Sprintf("%s%s:%s",
		c.cacheKeyPrefix(asset, symbol),
		from.UTC().Format(timeKeyLayout),
		to.UTC().Format(timeKeyLayout),
	)
}

// cacheKeyPrefix generates a prefix for invalidating related cache entries.
func (c *CachingMarketStore) cacheKeyPrefix(asset entity.AssetClass, symbol string) string {
	return fmt.Sprintf("%s:%s:%s:", c.namespace, safe(string(asset)), safe(symbol))
}

// deleteByPattern deletes all cache keys matching a given pattern using SCAN.
func (c *CachingMarketStore) deleteByPattern(ctx context.Context, pattern string) error {
	var cursor uint64
	for {
		keys, cur, err := c.rdb.Scan(ctx, cursor, pattern, 200).Result()
		if err != nil {
			return err
		}
		if len(keys) > 0 {
			if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
				return err
			}
		}
		cursor = cur
		if cursor == 0 {
			break
		}
	}
	return nil
}

// safe escapes characters that are problematic for Redis keys and glob patterns.
func safe(s string) string {
	return strings.NewReplacer(" ", "_", ":", "_", "*", "_", "?", "_", "[", "_", "]", "_").Replace(s)
}
