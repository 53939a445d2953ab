package dbpool

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/compozy/storage/pkg/logger"
)

// Registry is the fixed set of pools owned by one process.
type Registry struct {
	pools []Pool
}

// NewRegistry builds a registry. Each backend may appear at most once.
func NewRegistry(pools ...Pool) (*Registry, error) {
	seen := make(map[Backend]struct{}, len(pools))
	out := make([]Pool, 0, len(pools))
	for _, p := range pools {
		if p == nil {
			continue
		}
		if _, dup := seen[p.Backend()]; dup {
			return nil, fmt.Errorf("pool for backend %s registered twice", p.Backend())
		}
		seen[p.Backend()] = struct{}{}
		out = append(out, p)
	}
	return &Registry{pools: out}, nil
}

// Pools returns the registered pools in registration order.
func (r *Registry) Pools() []Pool {
	out := make([]Pool, len(r.pools))
	copy(out, r.pools)
	return out
}

func (r *Registry) Get(backend Backend) (Pool, bool) {
	for _, p := range r.pools {
		if p.Backend() == backend {
			return p, true
		}
	}
	return nil, false
}

// BackendReport is one pool's entry in a Report.
type BackendReport struct {
	Backend Backend       `json:"backend"`
	State   string        `json:"state"`
	Status  *HealthStatus `json:"status,omitempty"`
	Error   *Error        `json:"error,omitempty"`
}

// Healthy reports whether the check ran and passed.
func (b BackendReport) Healthy() bool {
	return b.Error == nil && b.Status != nil && b.Status.Healthy
}

// Report aggregates the health of every registered pool.
type Report struct {
	Healthy   bool            `json:"healthy"`
	CheckedAt time.Time       `json:"checked_at"`
	Duration  time.Duration   `json:"duration"`
	Backends  []BackendReport `json:"backends"`
}

// CheckAll runs every pool's health check concurrently. A failing pool never
// stops the others from being checked.
func (r *Registry) CheckAll(ctx context.Context) *Report {
	log := logger.FromContext(ctx)
	start := time.Now()
	results := make([]BackendReport, len(r.pools))
	var g errgroup.Group
	for i, p := range r.pools {
		g.Go(func() error {
			entry := BackendReport{Backend: p.Backend(), State: p.State().String()}
			status, err := p.HealthCheck(ctx)
			if err != nil {
				var perr *Error
				if !errors.As(err, &perr) {
					perr = Finalize(ctx, NewHealthCheckError(p.Backend(), HealthCheckConnection, err.Error()).WithCause(err))
				}
				entry.Error = perr
				log.Warn("Health check failed", "backend", p.Backend(), "error", err)
			}
			entry.Status = status
			results[i] = entry
			return nil
		})
	}
	_ = g.Wait()
	report := &Report{
		Healthy:   len(results) > 0,
		CheckedAt: time.Now().UTC(),
		Duration:  time.Since(start),
		Backends:  results,
	}
	for _, b := range results {
		if !b.Healthy() {
			report.Healthy = false
		}
	}
	return report
}

// CloseAll closes every pool and joins the failures.
func (r *Registry) CloseAll(ctx context.Context) error {
	var errs []error
	for _, p := range r.pools {
		if err := p.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close %s pool: %w", p.Backend(), err))
		}
	}
	return errors.Join(errs...)
}
