package storage

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/peer-digital/medla-projects/internal/logging"
	"github.com/peer-digital/medla-projects/internal/models"
)

// CaseCache is a read-through Redis cache in front of the case table. During
// an update-check pass the coordinator looks up every listed case; the cache
// keeps those lookups off Postgres. Cache failures are never fatal: a broken
// cache degrades to plain repository reads.
type CaseCache struct {
	cache *RedisCache
	ttl   time.Duration
}

// NewCaseCache creates a case cache with the given entry TTL
func NewCaseCache(cache *RedisCache, ttl time.Duration) *CaseCache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &CaseCache{cache: cache, ttl: ttl}
}

func caseKey(caseNumber string) string {
	return fmt.Sprintf("case:%s", caseNumber)
}

// Get returns the cached case, or (nil, false) on a miss or cache failure
func (c *CaseCache) Get(ctx context.Context, caseNumber string) (*models.Case, bool) {
	data, err := c.cache.Get(ctx, caseKey(caseNumber))
	if err != nil {
		if !stderrors.Is(err, redis.Nil) {
			logging.FromContext(ctx).WithError(err).Debug("Case cache read failed")
		}
		return nil, false
	}

	var cached models.Case
	if err := json.Unmarshal([]byte(data), &cached); err != nil {
		logging.FromContext(ctx).WithError(err).Debug("Evicting undecodable case cache entry")
		_ = c.cache.Del(ctx, caseKey(caseNumber)) // nolint:errcheck
		return nil, false
	}

	return &cached, true
}

// Set stores a case, best effort
func (c *CaseCache) Set(ctx context.Context, cached *models.Case) {
	data, err := json.Marshal(cached)
	if err != nil {
		logging.FromContext(ctx).WithError(err).Debug("Case cache encode failed")
		return
	}
	if err := c.cache.Set(ctx, caseKey(cached.CaseNumber), data, c.ttl); err != nil {
		logging.FromContext(ctx).WithError(err).Debug("Case cache write failed")
	}
}

// Invalidate drops the cached entry after a write to the case table
func (c *CaseCache) Invalidate(ctx context.Context, caseNumber string) {
	if err := c.cache.Del(ctx, caseKey(caseNumber)); err != nil {
		logging.FromContext(ctx).WithError(err).Debug("Case cache invalidation failed")
	}
}
