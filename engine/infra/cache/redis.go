package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/compozy/storage/engine/infra/dbpool"
)

// buildRedisClient configures the native client and its connection pool.
func buildRedisClient(cfg *Config) (*redis.Client, error) {
	opt, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parsing Redis URL: %w", err)
	}
	applyConfigToOptions(opt, cfg)
	return redis.NewClient(opt), nil
}

// applyConfigToOptions applies pool sizing and timeouts to Redis options.
// The pool wait limit sits above AcquireTimeout so the acquire deadline is
// what callers observe.
func applyConfigToOptions(opt *redis.Options, cfg *Config) {
	opt.PoolSize = int(cfg.MaxConnections)
	opt.MinIdleConns = int(cfg.MinConnections)
	opt.PoolTimeout = cfg.AcquireTimeout + cfg.ConnectionTimeout
	opt.ConnMaxIdleTime = cfg.IdleTimeout
	opt.ContextTimeoutEnabled = true
	if cfg.ConnectionTimeout > 0 {
		opt.DialTimeout = cfg.ConnectionTimeout
	}
	if cfg.ReadTimeout > 0 {
		opt.ReadTimeout = cfg.ReadTimeout
	}
	if cfg.WriteTimeout > 0 {
		opt.WriteTimeout = cfg.WriteTimeout
	}
	opt.MaxRetries = int(cfg.RetryAttempts)
	if cfg.RetryAttempts == 0 {
		opt.MaxRetries = -1
	}
	if cfg.Database != 0 {
		opt.DB = cfg.Database
	}
	if cfg.TLSConfig != nil {
		opt.TLSConfig = cfg.TLSConfig
	}
}

const fallbackRedisPingTimeout time.Duration = 10 * time.Second

// pingRedis validates connectivity within the configured timeout.
func pingRedis(ctx context.Context, client *redis.Client, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = fallbackRedisPingTimeout
	}
	pingCtx, pingCancel := context.WithTimeout(ctx, timeout)
	defer pingCancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return fmt.Errorf("pinging Redis server (timeout=%s): %w", timeout, err)
	}
	return nil
}

// classify buckets go-redis errors; pool waits that give up are exhaustion.
func classify(err error) dbpool.Class {
	switch {
	case errors.Is(err, redis.ErrPoolTimeout), errors.Is(err, redis.ErrPoolExhausted):
		return dbpool.ClassExhausted
	default:
		return dbpool.DefaultClassifier(err)
	}
}

// valueSize approximates the payload size of a SET value.
func valueSize(v any) int {
	switch x := v.(type) {
	case string:
		return len(x)
	case []byte:
		return len(x)
	default:
		return 0
	}
}
