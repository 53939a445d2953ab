package dbpool

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePool struct {
	backend  Backend
	healthy  bool
	checkErr error
	closeErr error
	closed   bool
	metrics  *Metrics
}

func (f *fakePool) Backend() Backend  { return f.backend }
func (f *fakePool) Metrics() *Metrics { return f.metrics }
func (f *fakePool) IsClosed() bool    { return f.closed }

func (f *fakePool) State() State {
	if f.closed {
		return StateClosed
	}
	return StateReady
}

func (f *fakePool) HealthCheck(context.Context) (*HealthStatus, error) {
	if f.checkErr != nil {
		return nil, f.checkErr
	}
	h := NewHealthStatus(f.backend)
	var probeErr error
	if !f.healthy {
		probeErr = errors.New("probe failed")
	}
	h.AddProbe("ping", probeErr, time.Millisecond)
	return h.Finish(f.metrics), nil
}

func (f *fakePool) Close(context.Context) error {
	f.closed = true
	return f.closeErr
}

func TestRegistry(t *testing.T) {
	t.Run("Should reject duplicate backends", func(t *testing.T) {
		_, err := NewRegistry(
			&fakePool{backend: BackendSQLite, metrics: NewMetrics()},
			&fakePool{backend: BackendSQLite, metrics: NewMetrics()},
		)
		assert.Error(t, err)
	})

	t.Run("Should aggregate health across pools", func(t *testing.T) {
		reg, err := NewRegistry(
			&fakePool{backend: BackendSQLite, healthy: true, metrics: NewMetrics()},
			&fakePool{backend: BackendRedis, healthy: true, metrics: NewMetrics()},
		)
		require.NoError(t, err)
		report := reg.CheckAll(t.Context())
		assert.True(t, report.Healthy)
		require.Len(t, report.Backends, 2)
		assert.Equal(t, BackendSQLite, report.Backends[0].Backend)
		assert.Equal(t, "ready", report.Backends[0].State)
	})

	t.Run("Should keep checking after one pool fails", func(t *testing.T) {
		reg, err := NewRegistry(
			&fakePool{backend: BackendSQLite, healthy: true, metrics: NewMetrics()},
			&fakePool{backend: BackendRedis, checkErr: errors.New("dial tcp: refused"), metrics: NewMetrics()},
			&fakePool{backend: BackendInfluxDB, healthy: false, metrics: NewMetrics()},
		)
		require.NoError(t, err)
		report := reg.CheckAll(t.Context())
		assert.False(t, report.Healthy)
		assert.True(t, report.Backends[0].Healthy())
		require.NotNil(t, report.Backends[1].Error)
		assert.Equal(t, KindHealthCheck, report.Backends[1].Error.Kind)
		require.NotNil(t, report.Backends[2].Status)
		assert.False(t, report.Backends[2].Status.Healthy)
	})

	t.Run("Should close every pool and join failures", func(t *testing.T) {
		a := &fakePool{backend: BackendSQLite, metrics: NewMetrics(), closeErr: errors.New("busy")}
		b := &fakePool{backend: BackendRedis, metrics: NewMetrics()}
		reg, err := NewRegistry(a, b)
		require.NoError(t, err)
		err = reg.CloseAll(t.Context())
		assert.ErrorContains(t, err, "close sqlite pool: busy")
		assert.True(t, a.closed)
		assert.True(t, b.closed)
	})

	t.Run("Should look up pools by backend", func(t *testing.T) {
		reg, err := NewRegistry(&fakePool{backend: BackendRedis, metrics: NewMetrics()})
		require.NoError(t, err)
		_, ok := reg.Get(BackendRedis)
		assert.True(t, ok)
		_, ok = reg.Get(BackendInfluxDB)
		assert.False(t, ok)
	})
}

func TestHealthStatus(t *testing.T) {
	t.Run("Should be unhealthy without probes", func(t *testing.T) {
		h := NewHealthStatus(BackendSQLite).Finish(nil)
		assert.False(t, h.Healthy)
	})

	t.Run("Should copy the error counter from metrics", func(t *testing.T) {
		m := NewMetrics()
		m.IncrementErrors()
		h := NewHealthStatus(BackendRedis)
		h.AddProbe("ping", nil, time.Millisecond)
		h.Finish(m)
		assert.True(t, h.Healthy)
		assert.Equal(t, uint64(1), h.ErrorCount)
		p, ok := h.Probe("ping")
		require.True(t, ok)
		assert.True(t, p.OK)
	})
}

func TestLifecycle(t *testing.T) {
	t.Run("Should refuse work until ready", func(t *testing.T) {
		var l Lifecycle
		err := l.EnsureReady(BackendSQLite, "execute")
		require.NotNil(t, err)
		assert.Equal(t, PoolStateInitializing, err.PoolState)

		l.Set(StateReady)
		assert.Nil(t, l.EnsureReady(BackendSQLite, "execute"))
	})

	t.Run("Should close only once", func(t *testing.T) {
		var l Lifecycle
		l.Set(StateReady)
		assert.True(t, l.BeginClose())
		assert.False(t, l.BeginClose())
		err := l.EnsureReady(BackendRedis, "get")
		require.NotNil(t, err)
		assert.Equal(t, PoolStateShuttingDown, err.PoolState)

		l.Set(StateClosed)
		assert.Equal(t, PoolStateDisconnected, l.EnsureReady(BackendRedis, "get").PoolState)
	})
}
