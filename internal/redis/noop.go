package redis

import (
	"context"
	"time"
)

// Noop satisfies the same contract as Client when no redis is configured.
// Reads miss, writes are dropped, and it always reports itself closed.
type Noop struct{}

func (Noop) Connect(context.Context) error { return nil }

func (Noop) IsOpen() bool { return false }

func (Noop) Get(context.Context, string) (string, error) { return "", ErrCacheMiss }

func (Noop) SetEx(context.Context, string, time.Duration, string) error { return nil }

func (Noop) Del(context.Context, ...string) (int64, error) { return 0, nil }

func (Noop) Exists(context.Context, string) (int64, error) { return 0, nil }

func (Noop) Keys(context.Context, string) ([]string, error) { return nil, nil }

func (Noop) Close() error { return nil }
