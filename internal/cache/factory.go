package cache

import (
	"context"
	"fmt"
)

// Backend names the cache implementation to use.
type Backend string

const (
	// BackendNone disables caching.
	BackendNone Backend = "none"
	// BackendMemory keeps an LRU in process memory.
	BackendMemory Backend = "memory"
	// BackendSQLite persists vectors on local disk.
	BackendSQLite Backend = "sqlite"
	// BackendRedis shares vectors between replicas.
	BackendRedis Backend = "redis"
)

// Options selects and configures a backend.
type Options struct {
	Backend    string
	Size       int
	SQLitePath string
	Redis      RedisConfig
}

// New creates the configured cache. BackendNone (or "") returns a nil Cache.
func New(ctx context.Context, opts Options) (Cache, error) {
	switch Backend(opts.Backend) {
	case BackendNone, "":
		return nil, nil
	case BackendMemory:
		return NewMemory(opts.Size), nil
	case BackendSQLite:
		c, err := NewSQLite(opts.SQLitePath)
		if err != nil {
			return nil, err
		}
		return c, nil
	case BackendRedis:
		c, err := NewRedis(ctx, opts.Redis)
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unknown cache backend: %s (supported: none, memory, sqlite, redis)", opts.Backend)
	}
}
