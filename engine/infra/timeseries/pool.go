package timeseries

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/compozy/storage/engine/infra/dbpool"
	appconfig "github.com/compozy/storage/pkg/config"
	"github.com/compozy/storage/pkg/logger"
)

const (
	driverName = "influxdb"
	// HealthCheckMeasurement holds the throwaway point written by health
	// checks.
	HealthCheckMeasurement = "__health_check__"

	fallbackPingTimeout = 10 * time.Second
)

// Pool is the time-series backend pool. The HTTP client multiplexes requests
// itself, so a connection here is a lease on the client bounded by
// MaxConnections. It is safe for concurrent use.
type Pool struct {
	client    Client
	cfg       Config
	sem       *semaphore.Weighted
	metrics   *dbpool.Metrics
	lifecycle dbpool.Lifecycle
}

var (
	_ dbpool.Pool             = (*Pool)(nil)
	_ dbpool.Acquirer[Client] = (*Pool)(nil)
)

// New validates cfg, builds the official client and checks the server
// answers within ConnectionTimeout.
func New(ctx context.Context, cfg Config) (*Pool, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return NewWithClient(ctx, cfg, NewInfluxClient(&cfg))
}

// NewWithClient builds the pool over an existing client, which the pool owns
// from then on.
func NewWithClient(ctx context.Context, cfg Config, client Client) (*Pool, error) {
	p := &Pool{cfg: cfg, metrics: dbpool.NewMetrics()}
	p.lifecycle.Set(dbpool.StateValidating)
	if err := cfg.Validate(); err != nil {
		client.Close()
		return nil, err
	}
	p.lifecycle.Set(dbpool.StateConnecting)
	timeout := cfg.ConnectionTimeout
	if timeout <= 0 {
		timeout = fallbackPingTimeout
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := client.Ping(pingCtx); err != nil {
		client.Close()
		p.lifecycle.Set(dbpool.StateClosed)
		return nil, dbpool.Finalize(ctx, dbpool.NewConnectionError(
			dbpool.BackendInfluxDB,
			fmt.Sprintf("pinging InfluxDB server (timeout=%s): %v", timeout, err),
		).WithCause(err).WithContext("url", dbpool.RedactURL(cfg.URL)))
	}
	p.client = client
	p.sem = semaphore.NewWeighted(int64(cfg.MaxConnections))
	p.lifecycle.Set(dbpool.StateReady)
	logger.FromContext(ctx).Info("Pool initialized",
		"pool_driver", driverName,
		"url", dbpool.RedactURL(cfg.URL),
		"bucket", cfg.Bucket,
		"max_conns", cfg.MaxConnections,
	)
	return p, nil
}

// FromConfig builds the pool from the application configuration.
func FromConfig(ctx context.Context, app *appconfig.Config) (*Pool, error) {
	return New(ctx, ConfigFromApp(&app.InfluxDB))
}

// Acquire takes one lease on the client, bounded by AcquireTimeout.
func (p *Pool) Acquire(ctx context.Context) (*dbpool.Guard[Client], error) {
	if err := p.lifecycle.EnsureReady(dbpool.BackendInfluxDB, "connection_acquire"); err != nil {
		return nil, err
	}
	return dbpool.Acquire(ctx, dbpool.AcquireOptions{
		Backend: dbpool.BackendInfluxDB,
		Timeout: p.cfg.AcquireTimeout,
		Metrics: p.metrics,
	}, func(ctx context.Context) (Client, func(), error) {
		if err := p.sem.Acquire(ctx, 1); err != nil {
			return nil, nil, err
		}
		return p.client, func() { p.sem.Release(1) }, nil
	})
}

// WithConn runs fn under a lease and releases it on every path.
func (p *Pool) WithConn(ctx context.Context, fn func(ctx context.Context, c Client) error) error {
	return dbpool.WithConn(ctx, p, fn)
}

type operand struct {
	key, value string
}

func (p *Pool) run(
	ctx context.Context,
	operation string,
	queryType dbpool.QueryType,
	target operand,
	record func(time.Duration),
	fn func(ctx context.Context, c Client) error,
) error {
	if err := p.lifecycle.EnsureReady(dbpool.BackendInfluxDB, operation); err != nil {
		return err
	}
	start := time.Now()
	g, err := p.Acquire(ctx)
	if err != nil {
		return err
	}
	defer g.Release()

	opCtx, cancel := context.WithTimeout(ctx, p.cfg.OperationTimeout)
	defer cancel()
	err = fn(opCtx, g.Conn())
	elapsed := time.Since(start)
	if err == nil {
		record(elapsed)
		return nil
	}
	p.metrics.IncrementErrors()
	mapped := dbpool.OperationError(opCtx, dbpool.OperationOptions{
		Backend:   dbpool.BackendInfluxDB,
		Operation: operation,
		QueryType: queryType,
		Timeout:   p.cfg.OperationTimeout,
	}, err, elapsed)
	return dbpool.Finalize(ctx, mapped.WithContext(target.key, target.value))
}

// WritePoint writes one point to the configured bucket.
func (p *Pool) WritePoint(ctx context.Context, point *Point) error {
	if err := point.check(); err != nil {
		return dbpool.Finalize(ctx, err.WithContext("measurement", point.Measurement))
	}
	size := point.Size()
	return p.run(ctx, "write_point", dbpool.QueryTypeInsert,
		operand{"measurement", point.Measurement},
		func(d time.Duration) { p.metrics.RecordWrite(d, size) },
		func(ctx context.Context, c Client) error {
			return c.WritePoints(ctx, p.cfg.Bucket, []*Point{point})
		})
}

// WritePoints writes a batch in one request. An empty batch is a no-op.
func (p *Pool) WritePoints(ctx context.Context, points []*Point) error {
	if len(points) == 0 {
		return nil
	}
	size := 0
	for _, pt := range points {
		if err := pt.check(); err != nil {
			return dbpool.Finalize(ctx, err.WithContext("points_count", fmt.Sprint(len(points))))
		}
		size += pt.Size()
	}
	return p.run(ctx, "write_points", dbpool.QueryTypeInsert,
		operand{"points_count", fmt.Sprint(len(points))},
		func(d time.Duration) { p.metrics.RecordWrite(d, size) },
		func(ctx context.Context, c Client) error {
			return c.WritePoints(ctx, p.cfg.Bucket, points)
		})
}

// Query runs a Flux query against the configured organization.
func (p *Pool) Query(ctx context.Context, flux string) ([]Record, error) {
	var records []Record
	err := p.run(ctx, "query", dbpool.QueryTypeSelect,
		operand{"flux", flux},
		p.metrics.RecordQuery,
		func(ctx context.Context, c Client) error {
			var err error
			records, err = c.Query(ctx, flux)
			return err
		})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// BucketExists reports whether bucket is present in the organization.
func (p *Pool) BucketExists(ctx context.Context, bucket string) (bool, error) {
	var ok bool
	err := p.run(ctx, "bucket_exists", dbpool.QueryTypeSelect,
		operand{"bucket", bucket},
		p.metrics.RecordQuery,
		func(ctx context.Context, c Client) error {
			var err error
			ok, err = c.BucketExists(ctx, bucket)
			return err
		})
	if err != nil {
		return false, err
	}
	return ok, nil
}

// DeleteMeasurement removes the points of measurement stamped in [start, stop].
func (p *Pool) DeleteMeasurement(ctx context.Context, measurement string, start, stop time.Time) error {
	return p.run(ctx, "delete_measurement", dbpool.QueryTypeDelete,
		operand{"measurement", measurement},
		p.metrics.RecordOperation,
		func(ctx context.Context, c Client) error {
			return c.DeleteMeasurement(ctx, p.cfg.Bucket, measurement, start, stop)
		})
}

func healthQuery(bucket string) string {
	return fmt.Sprintf(
		`from(bucket: %q) |> range(start: -1m) |> filter(fn: (r) => r._measurement == %q) |> limit(n: 1)`,
		bucket, HealthCheckMeasurement,
	)
}

// HealthCheck pings the server, then checks the bucket exists and that a
// throwaway point can be written and queried back. The throwaway point is
// deleted afterwards on a best-effort basis.
func (p *Pool) HealthCheck(ctx context.Context) (*dbpool.HealthStatus, error) {
	if err := p.lifecycle.EnsureReady(dbpool.BackendInfluxDB, "health_check"); err != nil {
		return nil, err
	}
	log := logger.FromContext(ctx)
	hctx, cancel := context.WithTimeout(ctx, p.cfg.HealthCheckTimeout)
	defer cancel()
	status := dbpool.NewHealthStatus(dbpool.BackendInfluxDB)

	unreachable := func(checkType dbpool.HealthCheckType, err error) error {
		return dbpool.Finalize(ctx, dbpool.NewHealthCheckError(
			dbpool.BackendInfluxDB,
			checkType,
			fmt.Sprintf("health check failed: %v", err),
		).WithCause(err).WithSeverity(dbpool.SeverityWarning))
	}

	start := time.Now()
	g, err := p.Acquire(hctx)
	if err != nil {
		return nil, unreachable(dbpool.HealthCheckPool, err)
	}
	defer g.Release()
	c := g.Conn()
	if err := c.Ping(hctx); err != nil {
		p.metrics.IncrementErrors()
		return nil, unreachable(dbpool.HealthCheckConnection, err)
	}
	status.AddProbe("ping", nil, time.Since(start))

	probe := func(name string, fn func() error) bool {
		start := time.Now()
		err := fn()
		if err != nil {
			p.metrics.IncrementErrors()
			log.Warn("Health check probe failed", "pool_driver", driverName, "probe", name, "error", err)
		}
		status.AddProbe(name, err, time.Since(start))
		return err == nil
	}

	probe("bucket", func() error {
		ok, err := c.BucketExists(hctx, p.cfg.Bucket)
		if err == nil && !ok {
			err = fmt.Errorf("bucket %q not found", p.cfg.Bucket)
		}
		return err
	})
	stamp := time.Now()
	written := probe("write", func() error {
		pt := NewPoint(HealthCheckMeasurement,
			map[string]string{"test": "true"},
			map[string]FieldValue{"value": IntField(1)},
			stamp)
		return c.WritePoints(hctx, p.cfg.Bucket, []*Point{pt})
	})
	probe("query", func() error {
		_, err := c.Query(hctx, healthQuery(p.cfg.Bucket))
		return err
	})
	if written {
		err := c.DeleteMeasurement(hctx, p.cfg.Bucket, HealthCheckMeasurement,
			stamp.Add(-time.Minute), time.Now().Add(time.Minute))
		if err != nil {
			log.Debug("Health check cleanup failed", "pool_driver", driverName, "error", err)
		}
	}
	return status.Finish(p.metrics), nil
}

// Close waits up to AcquireTimeout for outstanding leases, then closes the
// client. It is idempotent and never fails the caller.
func (p *Pool) Close(ctx context.Context) error {
	if !p.lifecycle.BeginClose() {
		return nil
	}
	log := logger.FromContext(ctx)
	dctx, cancel := context.WithTimeout(ctx, p.cfg.AcquireTimeout)
	defer cancel()
	if err := p.sem.Acquire(dctx, int64(p.cfg.MaxConnections)); err != nil {
		log.Warn("InfluxDB leases still held at close", "error", err)
	}
	p.client.Close()
	log.Debug("InfluxDB client closed")
	p.lifecycle.Set(dbpool.StateClosed)
	return nil
}

func (p *Pool) Backend() dbpool.Backend  { return dbpool.BackendInfluxDB }
func (p *Pool) Metrics() *dbpool.Metrics { return p.metrics }
func (p *Pool) State() dbpool.State      { return p.lifecycle.Load() }
func (p *Pool) IsClosed() bool           { return p.lifecycle.Load() == dbpool.StateClosed }
func (p *Pool) Config() Config           { return p.cfg }
