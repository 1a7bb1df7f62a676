// Package cache implements the two-tier result cache over Redis. Results
// are addressable both by search id and by request fingerprint, and a
// third namespace maps fingerprints to in-flight search ids for
// deduplication.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/painscope/painscope/pkg/config"
	"github.com/painscope/painscope/pkg/models"
)

// Key namespaces. All entries share the configured TTL.
const (
	resultIDPrefix  = "search:result:id:"
	resultKeyPrefix = "search:result:key:"
	mapPrefix       = "search:map:"
)

// Cache is the Redis-backed result cache.
type Cache struct {
	rdb redis.Cmdable
	ttl time.Duration
}

// New connects a Cache to Redis.
func New(cfg config.CacheConfig) *Cache {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return &Cache{rdb: rdb, ttl: cfg.TTL}
}

// NewWithClient wraps an existing Redis client (used by tests).
func NewWithClient(rdb redis.Cmdable, ttl time.Duration) *Cache {
	return &Cache{rdb: rdb, ttl: ttl}
}

// Ping verifies Redis connectivity.
func (c *Cache) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// GetResultByID returns the cached final result for a search id, or nil
// on miss. A corrupted entry is deleted and reported as a miss.
func (c *Cache) GetResultByID(ctx context.Context, searchID string) (*models.SearchResult, error) {
	return c.getResult(ctx, resultIDPrefix+searchID)
}

// GetResultByFingerprint returns the cached final result for a request
// fingerprint, or nil on miss.
func (c *Cache) GetResultByFingerprint(ctx context.Context, fp string) (*models.SearchResult, error) {
	return c.getResult(ctx, resultKeyPrefix+fp)
}

func (c *Cache) getResult(ctx context.Context, key string) (*models.SearchResult, error) {
	data, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cache get %s: %w", key, err)
	}

	var result models.SearchResult
	if err := json.Unmarshal(data, &result); err != nil {
		// Corrupt entry: drop it so readers fall back to the store.
		slog.Warn("Deleting corrupted cache entry", "key", key, "error", err)
		if delErr := c.rdb.Del(ctx, key).Err(); delErr != nil {
			slog.Warn("Failed to delete corrupted cache entry", "key", key, "error", delErr)
		}
		return nil, nil
	}
	return &result, nil
}

// SetResult writes the final result under both the id and fingerprint
// keys and refreshes the fingerprint→id mapping. The three writes go
// through one pipeline; a partial write is tolerated by readers.
func (c *Cache) SetResult(ctx context.Context, fp string, result *models.SearchResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("cache marshal result: %w", err)
	}

	pipe := c.rdb.Pipeline()
	pipe.Set(ctx, resultIDPrefix+result.SearchID, data, c.ttl)
	pipe.Set(ctx, resultKeyPrefix+fp, data, c.ttl)
	pipe.Set(ctx, mapPrefix+fp, result.SearchID, c.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cache set result: %w", err)
	}
	return nil
}

// GetSearchID returns the search id an in-flight fingerprint maps to, or
// "" on miss.
func (c *Cache) GetSearchID(ctx context.Context, fp string) (string, error) {
	id, err := c.rdb.Get(ctx, mapPrefix+fp).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("cache get mapping: %w", err)
	}
	return id, nil
}

// ReserveSearchID atomically claims the fingerprint mapping for searchID.
// If another request already holds the mapping, the winner's id is
// returned with ok=false and the caller adopts it.
func (c *Cache) ReserveSearchID(ctx context.Context, fp, searchID string) (string, bool, error) {
	ok, err := c.rdb.SetNX(ctx, mapPrefix+fp, searchID, c.ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("cache reserve mapping: %w", err)
	}
	if ok {
		return searchID, true, nil
	}
	existing, err := c.GetSearchID(ctx, fp)
	if err != nil {
		return "", false, err
	}
	if existing == "" {
		// The winner's entry expired between SETNX and GET; treat the
		// reservation as won by retrying once.
		ok, err := c.rdb.SetNX(ctx, mapPrefix+fp, searchID, c.ttl).Result()
		if err != nil || !ok {
			return "", false, fmt.Errorf("cache reserve mapping retry: %w", err)
		}
		return searchID, true, nil
	}
	return existing, false, nil
}

// ReleaseFingerprint drops the fingerprint→id mapping, undoing a
// reservation whose store insert failed.
func (c *Cache) ReleaseFingerprint(ctx context.Context, fp string) error {
	return c.rdb.Del(ctx, mapPrefix+fp).Err()
}

// Close releases the Redis connection if this Cache owns one.
func (c *Cache) Close() error {
	if closer, ok := c.rdb.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}
