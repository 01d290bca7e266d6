// Package cache is a JSON value cache in front of an optional key-value backend.
//
// When the cache is disabled every operation is a cheap no-op returning the value a
// cold cache would produce, so call sites never branch on whether caching is configured.
// Backend failures are logged and reported the same way; they never reach the caller.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"exto/internal/redis"

	"github.com/bytedance/sonic"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultPrefix = "exto:"
	DefaultTTL    = time.Hour
)

var codec = sonic.ConfigStd

// Backend is the minimal key-value contract the cache needs.
// redis.Client and redis.Noop implement it.
type Backend interface {
	Connect(ctx context.Context) error
	IsOpen() bool
	Get(ctx context.Context, key string) (string, error)
	SetEx(ctx context.Context, key string, ttl time.Duration, value string) error
	Del(ctx context.Context, keys ...string) (int64, error)
	Exists(ctx context.Context, key string) (int64, error)
	Keys(ctx context.Context, pattern string) ([]string, error)
}

type Cache struct {
	backend    Backend
	enabled    bool
	prefix     string
	defaultTTL time.Duration
	logger     zerolog.Logger
	flight     singleflight.Group
}

type Option func(*Cache)

func WithPrefix(prefix string) Option {
	return func(c *Cache) { c.prefix = prefix }
}

func WithDefaultTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		if ttl > 0 {
			c.defaultTTL = ttl
		}
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(c *Cache) { c.logger = logger }
}

// New builds a cache over backend. enabled is decided once from configuration;
// a nil backend always yields a disabled cache.
func New(backend Backend, enabled bool, opts ...Option) *Cache {
	c := &Cache{
		backend:    backend,
		enabled:    enabled && backend != nil,
		prefix:     DefaultPrefix,
		defaultTTL: DefaultTTL,
		logger:     log.Logger.With().Str("component", "cache").Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.backend == nil {
		c.backend = redis.Noop{}
	}
	return c
}

// Enabled reports whether a real backend is in use.
func (c *Cache) Enabled() bool {
	return c != nil && c.enabled
}

// Connect opens the backend connection if needed. Safe to call before every operation.
func (c *Cache) Connect(ctx context.Context) error {
	if !c.Enabled() || c.backend.IsOpen() {
		return nil
	}
	return wrap(KindConnect, "connect", "", c.backend.Connect(ctx))
}

// Get decodes the cached value for key into dest and reports whether it was found.
func (c *Cache) Get(ctx context.Context, key string, dest any) bool {
	if !c.Enabled() {
		return false
	}
	found, err := c.lookup(ctx, key, dest)
	if err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("cache get failed")
		return false
	}
	return found
}

// Set stores value under key for ttl (DefaultTTL when ttl <= 0).
// A disabled cache reports success.
func (c *Cache) Set(ctx context.Context, key string, value any, ttl time.Duration) bool {
	if !c.Enabled() {
		return true
	}
	if err := c.store(ctx, key, value, ttl); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("cache set failed")
		return false
	}
	return true
}

// Delete removes key and reports whether something was removed.
// A disabled cache reports false, unlike Set.
func (c *Cache) Delete(ctx context.Context, key string) bool {
	if !c.Enabled() {
		return false
	}
	n, err := c.remove(ctx, key)
	if err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("cache delete failed")
		return false
	}
	return n > 0
}

func (c *Cache) Has(ctx context.Context, key string) bool {
	if !c.Enabled() {
		return false
	}
	ok, err := c.exists(ctx, key)
	if err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("cache exists failed")
		return false
	}
	return ok
}

// ClearPattern deletes every key matching pattern (glob, relative to the prefix)
// and returns how many keys matched.
func (c *Cache) ClearPattern(ctx context.Context, pattern string) int {
	if !c.Enabled() {
		return 0
	}
	n, err := c.clear(ctx, pattern)
	if err != nil {
		c.logger.Warn().Err(err).Str("pattern", pattern).Msg("cache clear failed")
	}
	return n
}

func (c *Cache) key(key string) string {
	return c.prefix + key
}

func (c *Cache) lookup(ctx context.Context, key string, dest any) (bool, error) {
	if err := c.Connect(ctx); err != nil {
		return false, err
	}
	raw, err := c.backend.Get(ctx, c.key(key))
	if err != nil {
		if errors.Is(err, redis.ErrCacheMiss) {
			return false, nil
		}
		return false, wrap(KindBackend, "get", key, err)
	}
	if raw == "null" {
		return false, nil
	}
	if err := codec.UnmarshalFromString(raw, dest); err != nil {
		return false, wrap(KindCodec, "decode", key, err)
	}
	return true, nil
}

func (c *Cache) store(ctx context.Context, key string, value any, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	data, err := codec.MarshalToString(value)
	if err != nil {
		return wrap(KindCodec, "encode", key, err)
	}
	if err := c.Connect(ctx); err != nil {
		return err
	}
	return wrap(KindBackend, "set", key, c.backend.SetEx(ctx, c.key(key), ttl, data))
}

func (c *Cache) remove(ctx context.Context, key string) (int64, error) {
	if err := c.Connect(ctx); err != nil {
		return 0, err
	}
	n, err := c.backend.Del(ctx, c.key(key))
	return n, wrap(KindBackend, "delete", key, err)
}

func (c *Cache) exists(ctx context.Context, key string) (bool, error) {
	if err := c.Connect(ctx); err != nil {
		return false, err
	}
	n, err := c.backend.Exists(ctx, c.key(key))
	if err != nil {
		return false, wrap(KindBackend, "exists", key, err)
	}
	return n > 0, nil
}

// clear returns the number of matched keys; a failed bulk delete is still reported
// with that count alongside the error.
func (c *Cache) clear(ctx context.Context, pattern string) (int, error) {
	if err := c.Connect(ctx); err != nil {
		return 0, err
	}
	keys, err := c.backend.Keys(ctx, c.key(pattern))
	if err != nil {
		return 0, wrap(KindBackend, "keys", pattern, err)
	}
	if len(keys) == 0 {
		return 0, nil
	}
	if _, err := c.backend.Del(ctx, keys...); err != nil {
		return len(keys), wrap(KindBackend, "delete", pattern, err)
	}
	return len(keys), nil
}

// Remember returns the cached value for key or computes it with fn and caches the result.
// Concurrent callers for the same key share a single fn invocation, which runs detached
// from any one caller's cancellation; each caller still stops waiting when its own ctx
// is done. An fn error is returned as is and nothing is cached.
func Remember[T any](ctx context.Context, c *Cache, key string, ttl time.Duration, fn func(context.Context) (T, error)) (T, error) {
	var cached, zero T
	if c.Get(ctx, key, &cached) {
		return cached, nil
	}
	if c == nil {
		return fn(ctx)
	}

	shared := context.WithoutCancel(ctx)
	ch := c.flight.DoChan(key, func() (any, error) {
		val, err := fn(shared)
		if err != nil {
			return nil, err
		}
		c.Set(shared, key, val, ttl)
		return val, nil
	})
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		if res.Val == nil {
			return zero, nil
		}
		out, ok := res.Val.(T)
		if !ok {
			return zero, fmt.Errorf("cache key %s holds %T, not %T", key, res.Val, zero)
		}
		return out, nil
	}
}
