package search

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"sitescan/internal/metrics"
	"sitescan/internal/redis"
)

const cacheKeyPrefix = "sitescan:search:"

// Cache memoizes successful searches in redis. Cache failures never fail a search.
type Cache struct {
	next  Searcher
	redis *redis.Client
	ttl   time.Duration
	log   *zap.Logger
}

// NewCache wraps next. A nil redis client disables caching.
func NewCache(next Searcher, client *redis.Client, ttl time.Duration, log *zap.Logger) *Cache {
	if log == nil {
		log = zap.NewNop()
	}
	return &Cache{next: next, redis: client, ttl: ttl, log: log}
}

func (c *Cache) Links(ctx context.Context, query string) ([]string, error) {
	if c.redis == nil || c.ttl <= 0 {
		return c.next.Links(ctx, query)
	}
	key := cacheKey(query)

	raw, err := c.redis.Get(ctx, key)
	switch {
	case err == nil:
		var links []string
		if jsonErr := json.Unmarshal([]byte(raw), &links); jsonErr == nil {
			metrics.SearchCacheTotal.WithLabelValues("hit").Inc()
			return links, nil
		}
	case !errors.Is(err, redis.ErrCacheMiss):
		c.log.Debug("search cache read failed", zap.Error(err))
	}
	metrics.SearchCacheTotal.WithLabelValues("miss").Inc()

	links, err := c.next.Links(ctx, query)
	if err != nil {
		return nil, err
	}
	// Empty results are not cached so a later provider recovery is picked up.
	if len(links) > 0 {
		if b, err := json.Marshal(links); err == nil {
			if err := c.redis.Set(ctx, key, string(b), c.ttl); err != nil {
				c.log.Debug("search cache write failed", zap.Error(err))
			}
		}
	}
	return links, nil
}

func cacheKey(query string) string {
	sum := sha1.Sum([]byte(strings.ToLower(strings.TrimSpace(query))))
	return cacheKeyPrefix + hex.EncodeToString(sum[:])
}
