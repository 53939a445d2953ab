package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/compozy/storage/engine/infra/dbpool"
	appconfig "github.com/compozy/storage/pkg/config"
	"github.com/compozy/storage/pkg/logger"
)

func newTestContext(t *testing.T) context.Context {
	t.Helper()
	return logger.ContextWithLogger(t.Context(), logger.NewForTests())
}

func newTestPool(t *testing.T, mutate func(b *Builder)) (*Pool, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	b := NewBuilder().
		URL("redis://" + mr.Addr()).
		MaxConnections(4).
		MinConnections(0).
		RetryAttempts(0)
	if mutate != nil {
		mutate(b)
	}
	cfg, err := b.Build()
	require.NoError(t, err)
	p, err := New(newTestContext(t), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close(context.Background()) })
	return p, mr
}

func TestNew(t *testing.T) {
	t.Run("Should reject an invalid URL scheme", func(t *testing.T) {
		_, err := NewBuilder().URL("localhost:6379").Build()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "Redis URL must start with 'redis://' or 'rediss://'")
	})

	t.Run("Should fail fast when the server is unreachable", func(t *testing.T) {
		mr := miniredis.RunT(t)
		addr := mr.Addr()
		mr.Close()
		cfg, err := NewBuilder().URL("redis://" + addr).ConnectionTimeout(200 * time.Millisecond).RetryAttempts(0).Build()
		require.NoError(t, err)
		_, err = New(newTestContext(t), cfg)
		var perr *dbpool.Error
		require.ErrorAs(t, err, &perr)
		assert.Equal(t, dbpool.KindConnection, perr.Kind)
		assert.Equal(t, dbpool.BackendRedis, perr.Backend)
	})

	t.Run("Should build from application config", func(t *testing.T) {
		mr := miniredis.RunT(t)
		app := appconfig.Default()
		app.Redis.URL = "redis://" + mr.Addr()
		p, err := FromConfig(newTestContext(t), app)
		require.NoError(t, err)
		defer p.Close(t.Context())
		assert.Equal(t, dbpool.StateReady, p.State())
		assert.Equal(t, uint32(20), p.Config().MaxConnections)
	})

	t.Run("Should select the configured database", func(t *testing.T) {
		p, mr := newTestPool(t, func(b *Builder) { b.Database(2) })
		require.NoError(t, p.Set(t.Context(), "k", "v", 0))
		mr.Select(2)
		got, err := mr.Get("k")
		require.NoError(t, err)
		assert.Equal(t, "v", got)
	})
}

func TestPool_Operations(t *testing.T) {
	t.Run("Should count hits and misses across set get delete get", func(t *testing.T) {
		p, _ := newTestPool(t, nil)
		ctx := t.Context()
		require.NoError(t, p.Set(ctx, "user:1", "alice", 0))

		v, found, err := p.Get(ctx, "user:1")
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, "alice", v)

		removed, err := p.Delete(ctx, "user:1")
		require.NoError(t, err)
		assert.True(t, removed)

		_, found, err = p.Get(ctx, "user:1")
		require.NoError(t, err)
		assert.False(t, found)

		m := p.Metrics()
		assert.Equal(t, uint64(1), m.CacheHits())
		assert.Equal(t, uint64(1), m.CacheMisses())
		assert.InDelta(t, 50.0, m.HitRatio(), 0.001)
		assert.Equal(t, uint64(4), m.OperationCount())
		assert.Equal(t, uint64(5), m.BytesWritten())
		assert.Zero(t, m.ActiveConnections())
	})

	t.Run("Should support exists expire and incr", func(t *testing.T) {
		p, mr := newTestPool(t, nil)
		ctx := t.Context()
		n, err := p.Incr(ctx, "counter")
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
		n, err = p.Incr(ctx, "counter")
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)

		ok, err := p.Exists(ctx, "counter")
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = p.Expire(ctx, "counter", time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, time.Minute, mr.TTL("counter"))

		mr.FastForward(2 * time.Minute)
		ok, err = p.Exists(ctx, "counter")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("Should honor set expirations", func(t *testing.T) {
		p, mr := newTestPool(t, nil)
		require.NoError(t, p.Set(t.Context(), "session", "x", 30*time.Second))
		assert.Equal(t, 30*time.Second, mr.TTL("session"))
	})

	t.Run("Should map command failures to query errors with the key", func(t *testing.T) {
		p, mr := newTestPool(t, nil)
		_, err := mr.Lpush("list", "a")
		require.NoError(t, err)
		_, _, err = p.Get(t.Context(), "list")
		var perr *dbpool.Error
		require.ErrorAs(t, err, &perr)
		assert.Equal(t, dbpool.KindQuery, perr.Kind)
		key, ok := perr.Context().Annotation("key")
		require.True(t, ok)
		assert.Equal(t, "list", key)
		assert.Equal(t, uint64(1), p.Metrics().ConnectionErrors())
		assert.Zero(t, p.Metrics().CacheMisses())
	})

	t.Run("Should send one command per operation", func(t *testing.T) {
		p, mr := newTestPool(t, nil)
		ctx := t.Context()
		require.NoError(t, p.Set(ctx, "warm", "1", 0))
		before := mr.CommandCount()
		require.NoError(t, p.Set(ctx, "k", "v", 0))
		_, _, err := p.Get(ctx, "k")
		require.NoError(t, err)
		_, err = p.Delete(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, 3, mr.CommandCount()-before)
		assert.Equal(t, uint64(4), p.Metrics().TotalConnections())
		assert.Zero(t, p.Metrics().ActiveConnections())
	})

	t.Run("Should be safe for concurrent use", func(t *testing.T) {
		p, _ := newTestPool(t, nil)
		ctx := t.Context()
		var wg sync.WaitGroup
		for range 20 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := p.Incr(ctx, "shared")
				assert.NoError(t, err)
			}()
		}
		wg.Wait()
		v, found, err := p.Get(ctx, "shared")
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, "20", v)
		assert.Zero(t, p.Metrics().ActiveConnections())
	})
}

func TestPool_Acquire(t *testing.T) {
	t.Run("Should time out when every connection is pinned", func(t *testing.T) {
		p, _ := newTestPool(t, func(b *Builder) {
			b.MaxConnections(1).AcquireTimeout(50 * time.Millisecond)
		})
		g, err := p.Acquire(t.Context())
		require.NoError(t, err)
		defer g.Release()

		_, err = p.Acquire(t.Context())
		var perr *dbpool.Error
		require.ErrorAs(t, err, &perr)
		assert.Equal(t, dbpool.KindTimeout, perr.Kind)
		assert.Equal(t, "connection_acquire", perr.Operation)
		assert.Equal(t, 50*time.Millisecond, perr.TimeoutDuration)
		assert.Equal(t, uint64(1), p.Metrics().ConnectionErrors())
	})

	t.Run("Should hand the pinned connection back on release", func(t *testing.T) {
		p, _ := newTestPool(t, func(b *Builder) { b.MaxConnections(1) })
		err := p.WithConn(t.Context(), func(ctx context.Context, conn *redis.Conn) error {
			return conn.Set(ctx, "pinned", "1", 0).Err()
		})
		require.NoError(t, err)
		v, found, err := p.Get(t.Context(), "pinned")
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, "1", v)
	})
}

func TestPool_HealthCheck(t *testing.T) {
	t.Run("Should report healthy without moving hit or miss counters", func(t *testing.T) {
		p, _ := newTestPool(t, nil)
		status, err := p.HealthCheck(t.Context())
		require.NoError(t, err)
		assert.True(t, status.Healthy)
		assert.Less(t, status.ResponseTime, p.Config().HealthCheckTimeout)
		assert.Zero(t, p.Metrics().CacheHits())
		assert.Zero(t, p.Metrics().CacheMisses())
	})

	t.Run("Should return a warning health check error when unreachable", func(t *testing.T) {
		p, mr := newTestPool(t, func(b *Builder) { b.HealthCheckTimeout(300 * time.Millisecond) })
		mr.Close()
		_, err := p.HealthCheck(t.Context())
		var perr *dbpool.Error
		require.ErrorAs(t, err, &perr)
		assert.Equal(t, dbpool.KindHealthCheck, perr.Kind)
		assert.Equal(t, dbpool.SeverityWarning, perr.Context().Severity())
	})

	t.Run("Should refuse work once closed", func(t *testing.T) {
		p, _ := newTestPool(t, nil)
		require.NoError(t, p.Close(t.Context()))
		assert.True(t, p.IsClosed())
		_, _, err := p.Get(t.Context(), "k")
		assert.True(t, dbpool.IsKind(err, dbpool.KindPool))
	})
}
