package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/compozy/storage/engine/infra/dbpool"
	appconfig "github.com/compozy/storage/pkg/config"
	"github.com/compozy/storage/pkg/logger"
)

const (
	driverName = "redis"
	// HealthCheckKey is read by health checks; lookups of it do not move the
	// hit and miss counters.
	HealthCheckKey = "__health_check__"
)

// Pool is the key-value backend pool. It is safe for concurrent use.
type Pool struct {
	client    *redis.Client
	cfg       Config
	metrics   *dbpool.Metrics
	lifecycle dbpool.Lifecycle
}

var (
	_ dbpool.Pool                  = (*Pool)(nil)
	_ dbpool.Acquirer[*redis.Conn] = (*Pool)(nil)
)

// New validates cfg, builds the native pool and verifies the server answers
// within ConnectionTimeout.
func New(ctx context.Context, cfg Config) (*Pool, error) {
	log := logger.FromContext(ctx).With("component", "redis_pool")
	p := &Pool{cfg: cfg, metrics: dbpool.NewMetrics()}
	p.lifecycle.Set(dbpool.StateValidating)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	p.lifecycle.Set(dbpool.StateConnecting)
	client, err := buildRedisClient(&cfg)
	if err != nil {
		return nil, dbpool.Finalize(ctx, dbpool.NewConfigurationError(dbpool.BackendRedis, err.Error()).WithCause(err))
	}
	if err := pingRedis(ctx, client, cfg.ConnectionTimeout); err != nil {
		_ = client.Close()
		p.lifecycle.Set(dbpool.StateClosed)
		return nil, dbpool.Finalize(ctx, dbpool.NewConnectionError(dbpool.BackendRedis, err.Error()).
			WithCause(err).
			WithContext("url", dbpool.RedactURL(cfg.URL)))
	}
	p.client = client
	p.lifecycle.Set(dbpool.StateReady)
	log.Info("Pool initialized",
		"pool_driver", driverName,
		"url", dbpool.RedactURL(cfg.URL),
		"max_conns", cfg.MaxConnections,
		"min_conns", cfg.MinConnections,
	)
	return p, nil
}

// FromConfig builds the pool from the application configuration.
func FromConfig(ctx context.Context, app *appconfig.Config) (*Pool, error) {
	return New(ctx, ConfigFromApp(&app.Redis))
}

// Acquire pins one pooled connection, bounded by AcquireTimeout.
func (p *Pool) Acquire(ctx context.Context) (*dbpool.Guard[*redis.Conn], error) {
	if err := p.lifecycle.EnsureReady(dbpool.BackendRedis, "connection_acquire"); err != nil {
		return nil, err
	}
	return dbpool.Acquire(ctx, dbpool.AcquireOptions{
		Backend:  dbpool.BackendRedis,
		Timeout:  p.cfg.AcquireTimeout,
		Metrics:  p.metrics,
		Classify: classify,
	}, func(ctx context.Context) (*redis.Conn, func(), error) {
		conn := p.client.Conn()
		// the first command checks a connection out of the native pool
		if err := conn.Ping(ctx).Err(); err != nil {
			_ = conn.Close()
			return nil, nil, err
		}
		return conn, func() { _ = conn.Close() }, nil
	})
}

// WithConn runs fn with a pinned connection and releases it on every path.
func (p *Pool) WithConn(ctx context.Context, fn func(ctx context.Context, conn *redis.Conn) error) error {
	return dbpool.WithConn(ctx, p, fn)
}

// run executes fn on the shared client under OperationTimeout, records the
// latency with record and maps failures.
func (p *Pool) run(
	ctx context.Context,
	operation string,
	queryType dbpool.QueryType,
	key string,
	record func(time.Duration),
	fn func(ctx context.Context, cmd redis.Cmdable) error,
) error {
	if err := p.lifecycle.EnsureReady(dbpool.BackendRedis, operation); err != nil {
		return err
	}
	start := time.Now()
	// the client checks a connection out for the command itself
	p.metrics.RecordAcquire()
	defer p.metrics.ReleaseConnection()

	opCtx, cancel := context.WithTimeout(ctx, p.cfg.OperationTimeout)
	defer cancel()
	err := fn(opCtx, p.client)
	elapsed := time.Since(start)
	record(elapsed)
	if err == nil {
		return nil
	}
	p.metrics.IncrementErrors()
	mapped := dbpool.OperationError(opCtx, dbpool.OperationOptions{
		Backend:   dbpool.BackendRedis,
		Operation: operation,
		QueryType: queryType,
		Timeout:   p.cfg.OperationTimeout,
		Classify:  classify,
	}, err, elapsed)
	return dbpool.Finalize(ctx, mapped.WithContext("key", key))
}

// Get returns the value stored at key. A missing key is a miss, reported with
// found == false and no error.
func (p *Pool) Get(ctx context.Context, key string) (value string, found bool, err error) {
	err = p.run(ctx, "get", dbpool.QueryTypeSelect, key, p.metrics.RecordOperation,
		func(ctx context.Context, cmd redis.Cmdable) error {
			v, err := cmd.Get(ctx, key).Result()
			switch {
			case errors.Is(err, redis.Nil):
				p.metrics.RecordCacheMiss()
				return nil
			case err != nil:
				return err
			}
			p.metrics.RecordCacheHit()
			value, found = v, true
			return nil
		})
	if err != nil {
		return "", false, err
	}
	return value, found, nil
}

// Set stores value at key. A zero expiration keeps the key forever.
func (p *Pool) Set(ctx context.Context, key string, value any, expiration time.Duration) error {
	size := valueSize(value)
	record := func(d time.Duration) { p.metrics.RecordWrite(d, size) }
	return p.run(ctx, "set", dbpool.QueryTypeInsert, key, record,
		func(ctx context.Context, cmd redis.Cmdable) error {
			return cmd.Set(ctx, key, value, expiration).Err()
		})
}

// Delete removes key and reports whether it existed.
func (p *Pool) Delete(ctx context.Context, key string) (bool, error) {
	var removed int64
	err := p.run(ctx, "delete", dbpool.QueryTypeDelete, key, p.metrics.RecordOperation,
		func(ctx context.Context, cmd redis.Cmdable) error {
			var err error
			removed, err = cmd.Del(ctx, key).Result()
			return err
		})
	if err != nil {
		return false, err
	}
	return removed > 0, nil
}

// Exists reports whether key is present.
func (p *Pool) Exists(ctx context.Context, key string) (bool, error) {
	var n int64
	err := p.run(ctx, "exists", dbpool.QueryTypeSelect, key, p.metrics.RecordOperation,
		func(ctx context.Context, cmd redis.Cmdable) error {
			var err error
			n, err = cmd.Exists(ctx, key).Result()
			return err
		})
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Expire sets a TTL on key and reports whether the key exists.
func (p *Pool) Expire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	var ok bool
	err := p.run(ctx, "expire", dbpool.QueryTypeUpdate, key, p.metrics.RecordOperation,
		func(ctx context.Context, cmd redis.Cmdable) error {
			var err error
			ok, err = cmd.Expire(ctx, key, ttl).Result()
			return err
		})
	if err != nil {
		return false, err
	}
	return ok, nil
}

// Incr atomically increments the integer at key and returns the new value.
func (p *Pool) Incr(ctx context.Context, key string) (int64, error) {
	var n int64
	err := p.run(ctx, "incr", dbpool.QueryTypeUpdate, key, p.metrics.RecordOperation,
		func(ctx context.Context, cmd redis.Cmdable) error {
			var err error
			n, err = cmd.Incr(ctx, key).Result()
			return err
		})
	if err != nil {
		return 0, err
	}
	return n, nil
}

// HealthCheck pings the server and reads HealthCheckKey on a pinned
// connection within HealthCheckTimeout.
func (p *Pool) HealthCheck(ctx context.Context) (*dbpool.HealthStatus, error) {
	if err := p.lifecycle.EnsureReady(dbpool.BackendRedis, "health_check"); err != nil {
		return nil, err
	}
	hctx, cancel := context.WithTimeout(ctx, p.cfg.HealthCheckTimeout)
	defer cancel()
	status := dbpool.NewHealthStatus(dbpool.BackendRedis)

	start := time.Now()
	g, err := p.Acquire(hctx)
	if err != nil {
		return nil, dbpool.Finalize(ctx, dbpool.NewHealthCheckError(
			dbpool.BackendRedis,
			dbpool.HealthCheckConnection,
			fmt.Sprintf("health check failed: %v", err),
		).WithCause(err).WithSeverity(dbpool.SeverityWarning))
	}
	defer g.Release()
	status.AddProbe("ping", nil, time.Since(start))

	start = time.Now()
	err = g.Conn().Get(hctx, HealthCheckKey).Err()
	if errors.Is(err, redis.Nil) {
		err = nil
	}
	if err != nil {
		p.metrics.IncrementErrors()
		logger.FromContext(ctx).Warn("Health check query failed", "pool_driver", driverName, "error", err)
	}
	status.AddProbe("get", err, time.Since(start))
	return status.Finish(p.metrics), nil
}

// Close shuts the native pool down. It is idempotent and never fails the
// caller.
func (p *Pool) Close(ctx context.Context) error {
	if !p.lifecycle.BeginClose() {
		return nil
	}
	log := logger.FromContext(ctx)
	if err := p.client.Close(); err != nil {
		log.Warn("Redis connection close failed", "error", err)
	} else {
		log.Debug("Redis connection closed")
	}
	p.lifecycle.Set(dbpool.StateClosed)
	return nil
}

func (p *Pool) Backend() dbpool.Backend { return dbpool.BackendRedis }
func (p *Pool) Metrics() *dbpool.Metrics { return p.metrics }
func (p *Pool) State() dbpool.State { return p.lifecycle.Load() }
func (p *Pool) IsClosed() bool { return p.lifecycle.Load() == dbpool.StateClosed }
func (p *Pool) Config() Config { return p.cfg }

// Stats exposes the native pool counters.
func (p *Pool) Stats() *redis.PoolStats {
	return p.client.PoolStats()
}
