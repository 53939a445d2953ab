package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/georgysavva/scany/v2/sqlscan"
	_ "modernc.org/sqlite"

	"github.com/compozy/storage/engine/infra/dbpool"
	appconfig "github.com/compozy/storage/pkg/config"
	"github.com/compozy/storage/pkg/logger"
)

const driverName = "sqlite"

// Pool is the relational backend pool. It is safe for concurrent use.
type Pool struct {
	db        *sql.DB
	cfg       Config
	metrics   *dbpool.Metrics
	lifecycle dbpool.Lifecycle
}

var (
	_ dbpool.Pool                = (*Pool)(nil)
	_ dbpool.Acquirer[*sql.Conn] = (*Pool)(nil)
)

// New validates cfg, opens the database/sql pool, applies session pragmas and
// warms MinConnections connections.
func New(ctx context.Context, cfg Config) (*Pool, error) {
	p := &Pool{cfg: cfg, metrics: dbpool.NewMetrics()}
	p.lifecycle.Set(dbpool.StateValidating)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	p.lifecycle.Set(dbpool.StateConnecting)
	if err := ensureDir(&cfg); err != nil {
		return nil, p.connectionError(ctx, err.Error())
	}
	db, err := sql.Open(driverName, buildDSN(&cfg))
	if err != nil {
		return nil, p.connectionError(ctx, fmt.Sprintf("failed to create connection pool: %v", err))
	}
	db.SetMaxOpenConns(int(cfg.MaxConnections))
	db.SetMaxIdleConns(int(cfg.MaxConnections))
	if cfg.MaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.MaxLifetime)
	}
	// an in-memory database lives only while a connection holds it open
	if cfg.IdleTimeout > 0 && !isMemory(databasePath(cfg.URL)) {
		db.SetConnMaxIdleTime(cfg.IdleTimeout)
	}
	p.db = db
	if err := p.configure(ctx); err != nil {
		_ = db.Close()
		p.lifecycle.Set(dbpool.StateClosed)
		return nil, err
	}
	p.lifecycle.Set(dbpool.StateReady)
	logger.FromContext(ctx).Info("Pool initialized",
		"pool_driver", driverName,
		"max_conns", cfg.MaxConnections,
		"min_conns", cfg.MinConnections,
		"wal", cfg.EnableWAL,
	)
	return p, nil
}

// FromConfig builds the pool from the application configuration.
func FromConfig(ctx context.Context, app *appconfig.Config) (*Pool, error) {
	return New(ctx, ConfigFromApp(&app.SQLite))
}

func (p *Pool) connectionError(ctx context.Context, msg string) error {
	return dbpool.Finalize(ctx, dbpool.NewConnectionError(dbpool.BackendSQLite, msg).
		WithContext("url", p.cfg.URL).
		WithContext("max_connections", fmt.Sprint(p.cfg.MaxConnections)))
}

// configure runs the one-time session pragmas and opens the minimum number of
// connections. All of it is bounded by ConnectionTimeout.
func (p *Pool) configure(ctx context.Context) error {
	timeout := p.cfg.ConnectionTimeout
	if timeout <= 0 {
		timeout = p.cfg.AcquireTimeout
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	warm := int(p.cfg.MinConnections)
	if warm < 1 {
		warm = 1
	}
	conns := make([]*sql.Conn, 0, warm)
	defer func() {
		for _, c := range conns {
			_ = c.Close()
		}
	}()
	for range warm {
		c, err := p.db.Conn(cctx)
		if err != nil {
			return p.connectionError(ctx, fmt.Sprintf("failed to open connection: %v", err))
		}
		conns = append(conns, c)
	}
	if p.cfg.EnableWAL {
		if _, err := conns[0].ExecContext(cctx, "PRAGMA journal_mode = WAL"); err != nil {
			return p.connectionError(ctx, fmt.Sprintf("failed to enable WAL mode: %v", err))
		}
	}
	if p.cfg.EnableForeignKeys {
		if _, err := conns[0].ExecContext(cctx, "PRAGMA foreign_keys = ON"); err != nil {
			return p.connectionError(ctx, fmt.Sprintf("failed to enable foreign keys: %v", err))
		}
	}
	return nil
}

// Acquire reserves one connection for exclusive use, bounded by AcquireTimeout.
func (p *Pool) Acquire(ctx context.Context) (*dbpool.Guard[*sql.Conn], error) {
	if err := p.lifecycle.EnsureReady(dbpool.BackendSQLite, "connection_acquire"); err != nil {
		return nil, err
	}
	return dbpool.Acquire(ctx, dbpool.AcquireOptions{
		Backend: dbpool.BackendSQLite,
		Timeout: p.cfg.AcquireTimeout,
		Metrics: p.metrics,
	}, func(ctx context.Context) (*sql.Conn, func(), error) {
		conn, err := p.db.Conn(ctx)
		if err != nil {
			return nil, nil, err
		}
		return conn, func() { _ = conn.Close() }, nil
	})
}

// WithConn runs fn with a guarded connection and releases it on every path.
func (p *Pool) WithConn(ctx context.Context, fn func(ctx context.Context, conn *sql.Conn) error) error {
	return dbpool.WithConn(ctx, p, fn)
}

// run is the shared shape of every timed statement: acquire, execute under
// OperationTimeout, record latency and map failures.
func (p *Pool) run(
	ctx context.Context,
	operation string,
	query string,
	fn func(ctx context.Context, conn *sql.Conn) error,
) error {
	if err := p.lifecycle.EnsureReady(dbpool.BackendSQLite, operation); err != nil {
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
	p.metrics.RecordQuery(elapsed)
	if err == nil {
		return nil
	}
	p.metrics.IncrementErrors()
	mapped := dbpool.OperationError(opCtx, dbpool.OperationOptions{
		Backend:   dbpool.BackendSQLite,
		Operation: operation,
		QueryType: QueryTypeOf(query),
		Timeout:   p.cfg.OperationTimeout,
	}, err, elapsed)
	return dbpool.Finalize(ctx, mapped.WithContext("sql", query))
}

// Execute runs a statement that returns no rows.
func (p *Pool) Execute(ctx context.Context, query string, args ...any) (sql.Result, error) {
	var res sql.Result
	err := p.run(ctx, "execute", query, func(ctx context.Context, conn *sql.Conn) error {
		var err error
		res, err = conn.ExecContext(ctx, query, args...)
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Fetch scans every row into dst, which must be a pointer to a slice.
func (p *Pool) Fetch(ctx context.Context, dst any, query string, args ...any) error {
	return p.run(ctx, "fetch", query, func(ctx context.Context, conn *sql.Conn) error {
		return sqlscan.Select(ctx, conn, dst, query, args...)
	})
}

// FetchOne scans exactly one row into dst. A missing row is a query error
// whose cause matches sql.ErrNoRows.
func (p *Pool) FetchOne(ctx context.Context, dst any, query string, args ...any) error {
	return p.run(ctx, "fetch_one", query, func(ctx context.Context, conn *sql.Conn) error {
		return sqlscan.Get(ctx, conn, dst, query, args...)
	})
}

// WithTx runs fn inside a transaction on one guarded connection. The
// transaction commits when fn returns nil and rolls back otherwise.
func (p *Pool) WithTx(ctx context.Context, fn func(ctx context.Context, tx *sql.Tx) error) error {
	return p.run(ctx, "transaction", "BEGIN", func(ctx context.Context, conn *sql.Conn) error {
		tx, err := conn.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}
		if err := fn(ctx, tx); err != nil {
			_ = tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit transaction: %w", err)
		}
		return nil
	})
}

// HealthCheck acquires a connection and runs SELECT 1 within
// HealthCheckTimeout.
func (p *Pool) HealthCheck(ctx context.Context) (*dbpool.HealthStatus, error) {
	if err := p.lifecycle.EnsureReady(dbpool.BackendSQLite, "health_check"); err != nil {
		return nil, err
	}
	hctx, cancel := context.WithTimeout(ctx, p.cfg.HealthCheckTimeout)
	defer cancel()
	status := dbpool.NewHealthStatus(dbpool.BackendSQLite)

	start := time.Now()
	g, err := p.Acquire(hctx)
	if err != nil {
		return nil, dbpool.Finalize(ctx, dbpool.NewHealthCheckError(
			dbpool.BackendSQLite,
			dbpool.HealthCheckConnection,
			fmt.Sprintf("health check failed: %v", err),
		).WithCause(err).WithSeverity(dbpool.SeverityWarning))
	}
	defer g.Release()
	status.AddProbe("connection", nil, time.Since(start))

	start = time.Now()
	var one int
	err = g.Conn().QueryRowContext(hctx, "SELECT 1").Scan(&one)
	if err == nil && one != 1 {
		err = fmt.Errorf("unexpected result %d", one)
	}
	if err != nil {
		p.metrics.IncrementErrors()
		logger.FromContext(ctx).Warn("Health check query failed", "pool_driver", driverName, "error", err)
	}
	status.AddProbe("query", err, time.Since(start))
	return status.Finish(p.metrics), nil
}

// Close drains the pool. It is idempotent and never fails the caller.
func (p *Pool) Close(ctx context.Context) error {
	if !p.lifecycle.BeginClose() {
		return nil
	}
	if err := p.db.Close(); err != nil {
		logger.FromContext(ctx).Warn("Error closing pool", "pool_driver", driverName, "error", err)
	}
	p.lifecycle.Set(dbpool.StateClosed)
	logger.FromContext(ctx).Info("Pool closed", "pool_driver", driverName)
	return nil
}

func (p *Pool) Backend() dbpool.Backend { return dbpool.BackendSQLite }
func (p *Pool) Metrics() *dbpool.Metrics { return p.metrics }
func (p *Pool) State() dbpool.State { return p.lifecycle.Load() }
func (p *Pool) IsClosed() bool { return p.lifecycle.Load() == dbpool.StateClosed }
func (p *Pool) Config() Config { return p.cfg }

// Stats exposes the native pool counters.
func (p *Pool) Stats() sql.DBStats {
	return p.db.Stats()
}

// QueryTypeOf infers the statement kind from its leading keyword.
func QueryTypeOf(query string) dbpool.QueryType {
	fields := strings.Fields(query)
	if len(fields) == 0 {
		return dbpool.QueryTypeOther
	}
	switch strings.ToUpper(fields[0]) {
	case "SELECT":
		return dbpool.QueryTypeSelect
	case "INSERT", "REPLACE":
		return dbpool.QueryTypeInsert
	case "UPDATE":
		return dbpool.QueryTypeUpdate
	case "DELETE":
		return dbpool.QueryTypeDelete
	case "CREATE", "DROP", "ALTER":
		return dbpool.QueryTypeCreateTable
	default:
		return dbpool.QueryTypeOther
	}
}
