package redis

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"exto/internal/config"

	redis "github.com/redis/go-redis/v9"
)

// Client wraps go-redis client to centralize configuration.
// The connection is opened lazily by Connect and shared by all callers.
type Client struct {
	inner *redis.Client
	open  atomic.Bool
}

// ErrCacheMiss mirrors redis.Nil for callers.
var ErrCacheMiss = redis.Nil

var errNotInitialized = errors.New("redis client not initialized")

const (
	scanBatch   = 100
	pingTimeout = 3 * time.Second
)

// NewRedisClient builds the redis client from app config without dialing.
func NewRedisClient(cfg *config.Config) (*Client, error) {
	if cfg == nil {
		return nil, errors.New("config required")
	}
	opts, err := options(cfg.Redis)
	if err != nil {
		return nil, err
	}
	return &Client{inner: redis.NewClient(opts)}, nil
}

func options(rc config.RedisConfig) (*redis.Options, error) {
	if rc.URL != "" {
		opts, err := redis.ParseURL(rc.URL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		opts.ContextTimeoutEnabled = true
		return opts, nil
	}
	host := rc.Host
	if host == "" {
		host = "127.0.0.1"
	}
	port := rc.Port
	if port == 0 {
		port = 6379
	}
	return &redis.Options{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		Username: rc.Username,
		Password: rc.Password,
		DB:       rc.DB,

		// ping and command deadlines follow the caller's ctx
		ContextTimeoutEnabled: true,
	}, nil
}

// Connect verifies the connection until one ping succeeds; later calls return immediately.
// Concurrent callers may ping in parallel; none of them blocks IsOpen.
func (c *Client) Connect(ctx context.Context) error {
	if c == nil || c.inner == nil {
		return errNotInitialized
	}
	if c.open.Load() {
		return nil
	}
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := c.inner.Ping(pingCtx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	c.open.Store(true)
	return nil
}

// IsOpen reports whether Connect succeeded.
func (c *Client) IsOpen() bool {
	return c != nil && c.open.Load()
}

// Get fetches the key as string.
func (c *Client) Get(ctx context.Context, key string) (string, error) {
	if c == nil || c.inner == nil {
		return "", errNotInitialized
	}
	return c.inner.Get(ctx, key).Result()
}

// SetEx stores a value with expiry.
func (c *Client) SetEx(ctx context.Context, key string, ttl time.Duration, value string) error {
	if c == nil || c.inner == nil {
		return errNotInitialized
	}
	return c.inner.SetEx(ctx, key, value, ttl).Err()
}

// Del removes provided keys and reports how many existed.
func (c *Client) Del(ctx context.Context, keys ...string) (int64, error) {
	if c == nil || c.inner == nil {
		return 0, errNotInitialized
	}
	if len(keys) == 0 {
		return 0, nil
	}
	return c.inner.Del(ctx, keys...).Result()
}

// Exists returns 1 when the key is present.
func (c *Client) Exists(ctx context.Context, key string) (int64, error) {
	if c == nil || c.inner == nil {
		return 0, errNotInitialized
	}
	return c.inner.Exists(ctx, key).Result()
}

// Keys lists keys matching a glob pattern. SCAN is used so large keyspaces do not block the server.
func (c *Client) Keys(ctx context.Context, pattern string) ([]string, error) {
	if c == nil || c.inner == nil {
		return nil, errNotInitialized
	}
	var (
		cursor uint64
		keys   []string
	)
	for {
		batch, next, err := c.inner.Scan(ctx, cursor, pattern, scanBatch).Result()
		if err != nil {
			return nil, err
		}
		keys = append(keys, batch...)
		if next == 0 {
			return keys, nil
		}
		cursor = next
	}
}

// TTL returns key ttl.
func (c *Client) TTL(ctx context.Context, key string) (time.Duration, error) {
	if c == nil || c.inner == nil {
		return 0, errNotInitialized
	}
	return c.inner.TTL(ctx, key).Result()
}

// Close closes client.
func (c *Client) Close() error {
	if c == nil || c.inner == nil {
		return nil
	}
	c.open.Store(false)
	return c.inner.Close()
}

// Raw exposes underlying go-redis client.
func (c *Client) Raw() *redis.Client {
	if c == nil {
		return nil
	}
	return c.inner
}
