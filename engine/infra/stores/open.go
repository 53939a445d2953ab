// Package stores opens the pools enabled in the application configuration.
package stores

import (
	"context"
	"errors"
	"fmt"

	"github.com/compozy/storage/engine/infra/cache"
	"github.com/compozy/storage/engine/infra/dbpool"
	"github.com/compozy/storage/engine/infra/sqlite"
	"github.com/compozy/storage/engine/infra/timeseries"
	appconfig "github.com/compozy/storage/pkg/config"
	"github.com/compozy/storage/pkg/logger"
)

type opener struct {
	backend dbpool.Backend
	enabled bool
	open    func(context.Context, *appconfig.Config) (dbpool.Pool, error)
}

func openers(cfg *appconfig.Config) []opener {
	return []opener{
		{dbpool.BackendSQLite, cfg.SQLite.Enabled, func(ctx context.Context, c *appconfig.Config) (dbpool.Pool, error) {
			return sqlite.FromConfig(ctx, c)
		}},
		{dbpool.BackendRedis, cfg.Redis.Enabled, func(ctx context.Context, c *appconfig.Config) (dbpool.Pool, error) {
			return cache.FromConfig(ctx, c)
		}},
		{dbpool.BackendInfluxDB, cfg.InfluxDB.Enabled, func(ctx context.Context, c *appconfig.Config) (dbpool.Pool, error) {
			return timeseries.FromConfig(ctx, c)
		}},
	}
}

// Open builds a pool for every enabled backend and returns them as a
// registry. When any pool fails to open the ones already opened are closed.
func Open(ctx context.Context, cfg *appconfig.Config) (*dbpool.Registry, error) {
	log := logger.FromContext(ctx)
	var pools []dbpool.Pool
	for _, o := range openers(cfg) {
		if !o.enabled {
			log.Debug("Backend disabled", "backend", o.backend)
			continue
		}
		p, err := o.open(ctx, cfg)
		if err != nil {
			return nil, errors.Join(
				fmt.Errorf("failed to open %s pool: %w", o.backend, err),
				closeAll(ctx, pools),
			)
		}
		pools = append(pools, p)
	}
	if len(pools) == 0 {
		return nil, errors.New("no backend enabled")
	}
	reg, err := dbpool.NewRegistry(pools...)
	if err != nil {
		return nil, errors.Join(err, closeAll(ctx, pools))
	}
	return reg, nil
}

func closeAll(ctx context.Context, pools []dbpool.Pool) error {
	var errs []error
	for _, p := range pools {
		if err := p.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
