// Package dbpooltest provides an in-memory dbpool.Pool for supervisor tests.
package dbpooltest

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/compozy/storage/engine/infra/dbpool"
)

// Pool is a scriptable dbpool.Pool. The zero value is not usable; build one
// with New.
type Pool struct {
	backend dbpool.Backend
	metrics *dbpool.Metrics

	mu       sync.Mutex
	healthy  bool
	checkErr error
	closeErr error
	closed   bool
	checks   int
}

var _ dbpool.Pool = (*Pool)(nil)

// New returns a healthy, ready pool for backend.
func New(backend dbpool.Backend) *Pool {
	return &Pool{backend: backend, metrics: dbpool.NewMetrics(), healthy: true}
}

// SetHealthy makes later health checks pass or fail their probe.
func (p *Pool) SetHealthy(ok bool) *Pool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.healthy = ok
	return p
}

// SetCheckError makes later health checks fail outright with err.
func (p *Pool) SetCheckError(err error) *Pool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.checkErr = err
	return p
}

// SetCloseError makes Close return err.
func (p *Pool) SetCloseError(err error) *Pool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closeErr = err
	return p
}

// Checks is the number of health checks run so far.
func (p *Pool) Checks() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.checks
}

func (p *Pool) Backend() dbpool.Backend  { return p.backend }
func (p *Pool) Metrics() *dbpool.Metrics { return p.metrics }

func (p *Pool) IsClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *Pool) State() dbpool.State {
	if p.IsClosed() {
		return dbpool.StateClosed
	}
	return dbpool.StateReady
}

func (p *Pool) HealthCheck(ctx context.Context) (*dbpool.HealthStatus, error) {
	p.mu.Lock()
	p.checks++
	healthy, checkErr, closed := p.healthy, p.checkErr, p.closed
	p.mu.Unlock()
	if closed {
		return nil, dbpool.Finalize(ctx, dbpool.NewPoolError(p.backend, dbpool.PoolStateDisconnected, "pool is closed"))
	}
	if checkErr != nil {
		return nil, checkErr
	}
	status := dbpool.NewHealthStatus(p.backend)
	var probeErr error
	if !healthy {
		probeErr = errors.New("probe failed")
	}
	status.AddProbe("ping", probeErr, time.Millisecond)
	return status.Finish(p.metrics), nil
}

func (p *Pool) Close(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return p.closeErr
}
