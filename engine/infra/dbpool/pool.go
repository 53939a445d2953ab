package dbpool

import (
	"context"
)

// Pool is the capability every backend pool offers to a supervisor.
type Pool interface {
	Backend() Backend
	HealthCheck(ctx context.Context) (*HealthStatus, error)
	Metrics() *Metrics
	State() State
	IsClosed() bool
	Close(ctx context.Context) error
}
