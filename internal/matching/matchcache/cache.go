// internal/matching/matchcache/cache.go
package matchcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"cooin-core/internal/common/logger"
	"cooin-core/internal/common/metrics"
	"cooin-core/internal/models"
)

const (
	resultKeyPrefix = "match:result:"
	ownerKeyPrefix  = "match:owner:"
)

// CachedResult is the full post-threshold match list for one subject ticket
// and parameter set. Pagination happens on read, so one cached entry serves
// every offset/limit combination.
type CachedResult struct {
	Entries       []models.CompatibilityScore `json:"entries"`
	TotalEligible int                         `json:"totalEligible"`
	AvgScore      float64                     `json:"avgScore"`
	TopScore      float64                     `json:"topScore"`
	ComputedAt    time.Time                   `json:"computedAt"`
}

// Cache stores computed match lists in Redis with a short TTL and an owner
// index for targeted invalidation. The cache is strictly a performance
// layer: any Redis failure degrades to recomputation, never to a request
// failure.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
	group  singleflight.Group
	logger logger.Logger
}

func New(client *redis.Client, ttl time.Duration, log logger.Logger) *Cache {
	return &Cache{
		client: client,
		ttl:    ttl,
		logger: log,
	}
}

// Key derives the cache key for a subject ticket, threshold, and weight
// fingerprint. Limit and offset are deliberately absent: pagination is
// applied after the cached list is read back.
func Key(ticketID string, role models.TicketRole, minScore float64, weightsFingerprint string) string {
	raw := fmt.Sprintf("%s|%s|%.6f|%s", ticketID, role, minScore, weightsFingerprint)
	sum := sha256.Sum256([]byte(raw))
	return resultKeyPrefix + hex.EncodeToString(sum[:])
}

// GetOrCompute returns the cached result for key, or runs compute on a miss.
// Concurrent misses for the same key are coalesced so the scoring pipeline
// runs once. The hit flag reports whether the result came from Redis.
func (c *Cache) GetOrCompute(ctx context.Context, ownerID, key string, compute func(ctx context.Context) (*CachedResult, error)) (*CachedResult, bool, error) {
	if cached := c.lookup(ctx, key); cached != nil {
		metrics.MatchCacheHits.Inc()
		return cached, true, nil
	}
	metrics.MatchCacheMisses.Inc()

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		// Another goroutine may have filled the key while we waited
		// for the flight slot.
		if cached := c.lookup(ctx, key); cached != nil {
			return cached, nil
		}
		result, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		c.store(ctx, ownerID, key, result)
		return result, nil
	})
	if err != nil {
		return nil, false, err
	}
	return v.(*CachedResult), false, nil
}

// lookup reads one cached entry, treating any Redis problem as a miss.
func (c *Cache) lookup(ctx context.Context, key string) *CachedResult {
	data, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		c.logger.Warn("match cache read failed, recomputing", map[string]interface{}{
			"key":   key,
			"error": err.Error(),
		})
		return nil
	}

	var result CachedResult
	if err := json.Unmarshal(data, &result); err != nil {
		c.logger.Warn("match cache entry corrupt, recomputing", map[string]interface{}{
			"key":   key,
			"error": err.Error(),
		})
		return nil
	}
	return &result
}

// store writes the result and registers the key in the subject owner's
// index. Write failures only cost the next request a recomputation.
func (c *Cache) store(ctx context.Context, ownerID, key string, result *CachedResult) {
	data, err := json.Marshal(result)
	if err != nil {
		c.logger.Error("failed to marshal match result for cache", map[string]interface{}{
			"key":   key,
			"error": err.Error(),
		})
		return
	}

	ownerKey := ownerKeyPrefix + ownerID
	pipe := c.client.TxPipeline()
	pipe.Set(ctx, key, data, c.ttl)
	pipe.SAdd(ctx, ownerKey, key)
	// Keep the index alive a bit longer than its newest member.
	pipe.Expire(ctx, ownerKey, c.ttl+time.Minute)
	if _, err := pipe.Exec(ctx); err != nil {
		c.logger.Warn("match cache write failed", map[string]interface{}{
			"key":   key,
			"error": err.Error(),
		})
	}
}

// Invalidate drops every cached match list whose subject ticket belongs to
// ownerID. Connection transitions call this for both parties; ticket and
// profile edits call it for the edited owner.
func (c *Cache) Invalidate(ctx context.Context, ownerID string) error {
	ownerKey := ownerKeyPrefix + ownerID

	keys, err := c.client.SMembers(ctx, ownerKey).Result()
	if err != nil && err != redis.Nil {
		return fmt.Errorf("failed to read owner cache index: %w", err)
	}

	keys = append(keys, ownerKey)
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to delete cached match results: %w", err)
	}

	c.logger.Debug("invalidated match cache", map[string]interface{}{
		"ownerId": ownerID,
		"entries": len(keys) - 1,
	})
	return nil
}
