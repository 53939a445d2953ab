package sqlite

import (
	"context"
	"errors"
	"io/fs"
	"strconv"
	"time"

	"github.com/pressly/goose/v3"

	"github.com/compozy/storage/engine/infra/dbpool"
	"github.com/compozy/storage/pkg/logger"
)

// Migrate applies every pending goose migration found at the root of fsys and
// returns the resulting schema version. Migrations run on the pool's database
// handle, outside the acquire limit, and are bounded by ctx only.
func (p *Pool) Migrate(ctx context.Context, fsys fs.FS) (int64, error) {
	if err := p.lifecycle.EnsureReady(dbpool.BackendSQLite, "migrate"); err != nil {
		return 0, err
	}
	provider, err := goose.NewProvider(goose.DialectSQLite3, p.db, fsys)
	if err != nil {
		return 0, p.migrationError(ctx, "", err)
	}
	start := time.Now()
	results, err := provider.Up(ctx)
	p.metrics.RecordQuery(time.Since(start))
	if err != nil {
		p.metrics.IncrementErrors()
		return 0, p.migrationError(ctx, failedVersion(err), err)
	}
	version, err := provider.GetDBVersion(ctx)
	if err != nil {
		p.metrics.IncrementErrors()
		return 0, p.migrationError(ctx, "", err)
	}
	logger.FromContext(ctx).Info("Migrations applied",
		"pool_driver", driverName,
		"applied", len(results),
		"version", version,
	)
	return version, nil
}

func failedVersion(err error) string {
	var partial *goose.PartialError
	if errors.As(err, &partial) && partial.Failed != nil && partial.Failed.Source != nil {
		return strconv.FormatInt(partial.Failed.Source.Version, 10)
	}
	return ""
}

func (p *Pool) migrationError(ctx context.Context, version string, err error) error {
	e := dbpool.NewMigrationError(dbpool.BackendSQLite, version, err.Error()).WithCause(err)
	e.QueryType = dbpool.QueryTypeMigration
	if version != "" {
		e = e.WithContext("version", version)
	}
	return dbpool.Finalize(ctx, e)
}
