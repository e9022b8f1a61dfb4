package policy

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	id "sanctum/pkg/domain"
)

const (
	cacheKeyIDPrefix   = "policy:id:"
	cacheKeyNamePrefix = "policy:name:"
)

// Cache is a read-through Redis layer over a Store. It is an accelerator,
// never an authority: any cache failure falls through to the underlying
// store, and stale reads are bounded by the TTL. Enforcement decisions stay
// correct with the cache down; only latency suffers.
type Cache struct {
	store  Store
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// CacheOption configures a Cache.
type CacheOption func(*Cache)

// WithCacheTTL overrides DefaultCacheTTL.
func WithCacheTTL(ttl time.Duration) CacheOption {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithCacheLogger sets a logger for cache faults. Faults are logged at Warn
// and otherwise ignored.
func WithCacheLogger(logger *slog.Logger) CacheOption {
	return func(c *Cache) {
		c.logger = logger
	}
}

// NewCache wraps store with a Redis read-through cache.
func NewCache(store Store, client *redis.Client, opts ...CacheOption) *Cache {
	c := &Cache{
		store:  store,
		client: client,
		ttl:    DefaultCacheTTL,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

func (c *Cache) GetByID(ctx context.Context, policyID id.PolicyID) (*WhitelistPolicy, error) {
	key := cacheKeyIDPrefix + policyID.String()
	if p := c.lookup(ctx, key); p != nil {
		return p, nil
	}

	p, err := c.store.GetByID(ctx, policyID)
	if err != nil {
		return nil, err
	}
	c.fill(ctx, key, p)
	return p, nil
}

func (c *Cache) GetActiveByName(ctx context.Context, name string) (*WhitelistPolicy, error) {
	key := cacheKeyNamePrefix + name
	if p := c.lookup(ctx, key); p != nil {
		return p, nil
	}

	p, err := c.store.GetActiveByName(ctx, name)
	if err != nil {
		return nil, err
	}
	c.fill(ctx, key, p)
	return p, nil
}

// Put writes through to the store and drops both cache keys so the next read
// observes the new version. Deleting instead of overwriting keeps the cache
// and store write paths from racing each other.
func (c *Cache) Put(ctx context.Context, p *WhitelistPolicy) error {
	if err := c.store.Put(ctx, p); err != nil {
		return err
	}
	if err := c.client.Del(ctx, cacheKeyIDPrefix+p.ID.String(), cacheKeyNamePrefix+p.Name).Err(); err != nil {
		c.logger.WarnContext(ctx, "policy cache invalidation failed",
			slog.String("policy", p.Name),
			slog.String("error", err.Error()))
	}
	return nil
}

// List always reads through; the listing is an admin surface and not hot.
func (c *Cache) List(ctx context.Context) ([]*WhitelistPolicy, error) {
	return c.store.List(ctx)
}

func (c *Cache) lookup(ctx context.Context, key string) *WhitelistPolicy {
	raw, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		c.logger.WarnContext(ctx, "policy cache read failed",
			slog.String("key", key),
			slog.String("error", err.Error()))
		return nil
	}

	var p WhitelistPolicy
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		c.logger.WarnContext(ctx, "policy cache entry corrupt, dropping",
			slog.String("key", key),
			slog.String("error", err.Error()))
		c.client.Del(ctx, key)
		return nil
	}
	return &p
}

func (c *Cache) fill(ctx context.Context, key string, p *WhitelistPolicy) {
	raw, err := json.Marshal(p)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		c.logger.WarnContext(ctx, "policy cache write failed",
			slog.String("key", key),
			slog.String("error", err.Error()))
	}
}
