// Package cache wraps a Redis-backed lookup cache for pooled evidence
// tables, with a TTL on every entry and eviction of any value that fails
// to unmarshal cleanly.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/periop-health/risk-engine/internal/domain"
)

// Config mirrors domain.CacheConfig's Redis-facing fields.
type Config struct {
	RedisURL    string
	DefaultTTL  time.Duration
	MaxRetries  int
	PoolSize    int
	PoolTimeout time.Duration
}

// PooledTableCache caches PooledBaseline/PooledEffect lookups keyed by
// (evidence_version, outcome, context_label[, modifier_token]), so a
// re-resolved context doesn't re-walk the wildcard fallback chain against
// the database on every request.
type PooledTableCache struct {
	redis      *redis.Client
	defaultTTL time.Duration
}

// New connects to Redis and verifies the connection with a bounded ping.
func New(cfg Config) (*PooledTableCache, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	opts.PoolSize = cfg.PoolSize
	opts.PoolTimeout = cfg.PoolTimeout
	opts.MaxRetries = cfg.MaxRetries

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	return &PooledTableCache{redis: client, defaultTTL: cfg.DefaultTTL}, nil
}

type cachedBaseline struct {
	Data      domain.PooledBaseline `json:"data"`
	ExpiresAt time.Time             `json:"expires_at"`
}

type cachedEffect struct {
	Data      domain.PooledEffect `json:"data"`
	ExpiresAt time.Time           `json:"expires_at"`
}

func baselineKey(version, outcome, contextLabel string) string {
	return fmt.Sprintf("baseline:%s:%s:%s", version, outcome, contextLabel)
}

func effectKey(version, outcome, modifier, contextLabel string) string {
	return fmt.Sprintf("effect:%s:%s:%s:%s", version, outcome, modifier, contextLabel)
}

// GetBaseline retrieves a cached PooledBaseline, evicting and reporting a
// miss on corruption or expiry rather than surfacing a decode error.
func (c *PooledTableCache) GetBaseline(ctx context.Context, version, outcome, contextLabel string) (domain.PooledBaseline, bool, error) {
	key := baselineKey(version, outcome, contextLabel)
	val, err := c.redis.Get(ctx, key).Result()
	if err == redis.Nil {
		return domain.PooledBaseline{}, false, nil
	}
	if err != nil {
		return domain.PooledBaseline{}, false, fmt.Errorf("getting baseline cache: %w", err)
	}

	var cached cachedBaseline
	if err := json.Unmarshal([]byte(val), &cached); err != nil {
		c.redis.Del(ctx, key)
		return domain.PooledBaseline{}, false, nil
	}
	if time.Now().After(cached.ExpiresAt) {
		c.redis.Del(ctx, key)
		return domain.PooledBaseline{}, false, nil
	}
	return cached.Data, true, nil
}

// SetBaseline caches a PooledBaseline with the configured default TTL.
func (c *PooledTableCache) SetBaseline(ctx context.Context, version, outcome, contextLabel string, baseline domain.PooledBaseline) error {
	key := baselineKey(version, outcome, contextLabel)
	cached := cachedBaseline{Data: baseline, ExpiresAt: time.Now().Add(c.defaultTTL)}
	blob, err := json.Marshal(cached)
	if err != nil {
		return fmt.Errorf("marshaling baseline cache entry: %w", err)
	}
	return c.redis.Set(ctx, key, blob, c.defaultTTL).Err()
}

// GetEffect retrieves a cached PooledEffect.
func (c *PooledTableCache) GetEffect(ctx context.Context, version, outcome, modifier, contextLabel string) (domain.PooledEffect, bool, error) {
	key := effectKey(version, outcome, modifier, contextLabel)
	val, err := c.redis.Get(ctx, key).Result()
	if err == redis.Nil {
		return domain.PooledEffect{}, false, nil
	}
	if err != nil {
		return domain.PooledEffect{}, false, fmt.Errorf("getting effect cache: %w", err)
	}

	var cached cachedEffect
	if err := json.Unmarshal([]byte(val), &cached); err != nil {
		c.redis.Del(ctx, key)
		return domain.PooledEffect{}, false, nil
	}
	if time.Now().After(cached.ExpiresAt) {
		c.redis.Del(ctx, key)
		return domain.PooledEffect{}, false, nil
	}
	return cached.Data, true, nil
}

// SetEffect caches a PooledEffect with the configured default TTL.
func (c *PooledTableCache) SetEffect(ctx context.Context, version, outcome, modifier, contextLabel string, effect domain.PooledEffect) error {
	key := effectKey(version, outcome, modifier, contextLabel)
	cached := cachedEffect{Data: effect, ExpiresAt: time.Now().Add(c.defaultTTL)}
	blob, err := json.Marshal(cached)
	if err != nil {
		return fmt.Errorf("marshaling effect cache entry: %w", err)
	}
	return c.redis.Set(ctx, key, blob, c.defaultTTL).Err()
}

// InvalidateVersion drops every cached entry for an evidence version, used
// when a version is retired.
func (c *PooledTableCache) InvalidateVersion(ctx context.Context, version string) error {
	for _, pattern := range []string{fmt.Sprintf("baseline:%s:*", version), fmt.Sprintf("effect:%s:*", version)} {
		keys, err := c.redis.Keys(ctx, pattern).Result()
		if err != nil {
			return fmt.Errorf("listing keys for pattern %s: %w", pattern, err)
		}
		if len(keys) == 0 {
			continue
		}
		if err := c.redis.Del(ctx, keys...).Err(); err != nil {
			return fmt.Errorf("deleting keys for pattern %s: %w", pattern, err)
		}
	}
	return nil
}

// Ping checks the Redis connection is alive; New calls it once at construction.
func (c *PooledTableCache) Ping(ctx context.Context) error {
	return c.redis.Ping(ctx).Err()
}

// Close closes the underlying Redis connection.
func (c *PooledTableCache) Close() error {
	return c.redis.Close()
}
