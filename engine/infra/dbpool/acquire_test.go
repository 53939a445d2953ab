package dbpool

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errPoolFull = errors.New("pool full")

func testClassifier(err error) Class {
	if errors.Is(err, errPoolFull) {
		return ClassExhausted
	}
	return DefaultClassifier(err)
}

func TestAcquire(t *testing.T) {
	opts := func(m *Metrics) AcquireOptions {
		return AcquireOptions{
			Backend:  BackendSQLite,
			Timeout:  50 * time.Millisecond,
			Metrics:  m,
			Classify: testClassifier,
		}
	}

	t.Run("Should guard the connection and release once", func(t *testing.T) {
		m := NewMetrics()
		releases := 0
		g, err := Acquire(t.Context(), opts(m), func(context.Context) (string, func(), error) {
			return "conn", func() { releases++ }, nil
		})
		require.NoError(t, err)
		assert.Equal(t, "conn", g.Conn())
		assert.Equal(t, int64(1), m.ActiveConnections())
		assert.Equal(t, uint64(1), m.TotalConnections())

		g.Release()
		g.Release()
		assert.Equal(t, 1, releases)
		assert.True(t, g.Released())
		assert.Zero(t, m.ActiveConnections())
	})

	t.Run("Should return a timeout error when the deadline fires first", func(t *testing.T) {
		m := NewMetrics()
		_, err := Acquire(t.Context(), opts(m), func(ctx context.Context) (string, func(), error) {
			<-ctx.Done()
			return "", nil, ctx.Err()
		})
		var perr *Error
		require.ErrorAs(t, err, &perr)
		assert.Equal(t, KindTimeout, perr.Kind)
		assert.Equal(t, "connection_acquire", perr.Operation)
		assert.Equal(t, 50*time.Millisecond, perr.TimeoutDuration)
		assert.True(t, perr.Sealed())
		assert.Equal(t, uint64(1), m.ConnectionErrors())
		assert.Zero(t, m.ActiveConnections())
	})

	t.Run("Should map native failures to connection errors with elapsed time", func(t *testing.T) {
		m := NewMetrics()
		_, err := Acquire(t.Context(), opts(m), func(context.Context) (string, func(), error) {
			return "", nil, errors.New("connection refused")
		})
		var perr *Error
		require.ErrorAs(t, err, &perr)
		assert.Equal(t, KindConnection, perr.Kind)
		_, ok := perr.Context().Annotation("elapsed")
		assert.True(t, ok)
		v, _ := perr.Context().Annotation("acquire_timeout")
		assert.Equal(t, "50ms", v)
		assert.Equal(t, "sqlite_pool", perr.Context().Component())
	})

	t.Run("Should map exhaustion to a pool error", func(t *testing.T) {
		_, err := Acquire(t.Context(), opts(NewMetrics()), func(context.Context) (string, func(), error) {
			return "", nil, errPoolFull
		})
		var perr *Error
		require.ErrorAs(t, err, &perr)
		assert.Equal(t, KindPool, perr.Kind)
		assert.Equal(t, PoolStateExhausted, perr.PoolState)
	})

	t.Run("Should treat caller cancellation as a connection error", func(t *testing.T) {
		ctx, cancel := context.WithCancel(t.Context())
		cancel()
		_, err := Acquire(ctx, opts(NewMetrics()), func(ctx context.Context) (string, func(), error) {
			return "", nil, ctx.Err()
		})
		assert.True(t, IsKind(err, KindConnection))
	})

	t.Run("Should copy the correlation id from context", func(t *testing.T) {
		ctx := ContextWithCorrelationID(t.Context(), "req-42")
		_, err := Acquire(ctx, opts(NewMetrics()), func(context.Context) (string, func(), error) {
			return "", nil, errors.New("refused")
		})
		var perr *Error
		require.ErrorAs(t, err, &perr)
		assert.Equal(t, "req-42", perr.Context().CorrelationID())
	})
}

func TestOperationError(t *testing.T) {
	t.Run("Should map deadline overruns to timeout errors", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(t.Context(), time.Millisecond)
		defer cancel()
		<-ctx.Done()
		e := OperationError(ctx, OperationOptions{
			Backend:   BackendRedis,
			Operation: "get",
			Timeout:   time.Millisecond,
		}, ctx.Err(), 2*time.Millisecond)
		assert.Equal(t, KindTimeout, e.Kind)
		v, _ := e.Context().Annotation("duration_ms")
		assert.Equal(t, "2", v)
	})

	t.Run("Should map other failures to query errors", func(t *testing.T) {
		e := OperationError(t.Context(), OperationOptions{
			Backend:   BackendSQLite,
			Operation: "execute",
			QueryType: QueryTypeInsert,
			Timeout:   time.Second,
		}, errors.New("UNIQUE constraint failed"), time.Millisecond)
		assert.Equal(t, KindQuery, e.Kind)
		assert.Equal(t, QueryTypeInsert, e.QueryType)
		assert.False(t, e.Sealed())
	})
}

type stubAcquirer struct{ released int }

func (s *stubAcquirer) Acquire(context.Context) (*Guard[int], error) {
	return NewGuard(7, func() { s.released++ }), nil
}

func TestWithConn(t *testing.T) {
	t.Run("Should release after the callback fails", func(t *testing.T) {
		a := &stubAcquirer{}
		err := WithConn(t.Context(), a, func(_ context.Context, conn int) error {
			assert.Equal(t, 7, conn)
			return errors.New("callback failed")
		})
		assert.EqualError(t, err, "callback failed")
		assert.Equal(t, 1, a.released)
	})
}
