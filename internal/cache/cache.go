// Package cache stores provider responses keyed by request fingerprint.
package cache

import (
	"context"
	"fmt"

	"github.com/abhisek/pathfinder/internal/config"
)

// Cache is a byte-oriented key/value store with expiry.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
}

// New builds the cache selected by cfg. It returns nil for backend "none".
func New(ctx context.Context, cfg config.Cache) (Cache, error) {
	switch cfg.Backend {
	case "", "none":
		return nil, nil
	case "memory":
		return NewMemory(cfg.TTL, defaultMemoryEntries), nil
	case "redis":
		r, err := NewRedis(ctx, cfg.RedisAddr, cfg.RedisDB, cfg.TTL)
		if err != nil {
			return nil, err
		}
		return r, nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
}
