package cache

import (
	"context"
	"fmt"
	"time"
)

// Backends accepted by Open.
const (
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
	BackendNone   = "none"
)

// Options selects and configures a Store.
type Options struct {
	Backend  string
	Path     string // sqlite file
	RedisURL string
	TTL      time.Duration
}

// Open builds the Store named by opts.Backend. An empty backend means sqlite.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch opts.Backend {
	case "", BackendSQLite:
		if opts.Path == "" {
			return nil, fmt.Errorf("sqlite cache requires a path")
		}
		return NewSQLiteStore(opts.Path)
	case BackendRedis:
		return NewRedisStore(ctx, opts.RedisURL, opts.TTL)
	case BackendNone:
		return Nop{}, nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", opts.Backend)
	}
}
