package sqlite

import (
	"context"
	"errors"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/compozy/storage/engine/infra/dbpool"
	"github.com/compozy/storage/pkg/logger"
)

const createEvents = `-- +goose Up
CREATE TABLE events (id INTEGER PRIMARY KEY, name TEXT NOT NULL);

-- +goose Down
DROP TABLE events;
`

const addSource = `-- +goose Up
ALTER TABLE events ADD COLUMN source TEXT NOT NULL DEFAULT '';

-- +goose Down
ALTER TABLE events DROP COLUMN source;
`

func TestPool_Migrate(t *testing.T) {
	t.Run("Should apply pending migrations and report the version", func(t *testing.T) {
		p := newTestPool(t, nil)
		ctx := logger.ContextWithLogger(t.Context(), logger.NewForTests())
		fsys := fstest.MapFS{
			"00001_create_events.sql": {Data: []byte(createEvents)},
			"00002_add_source.sql":    {Data: []byte(addSource)},
		}
		version, err := p.Migrate(ctx, fsys)
		require.NoError(t, err)
		assert.Equal(t, int64(2), version)

		_, err = p.Execute(ctx, "INSERT INTO events (name, source) VALUES (?, ?)", "boot", "cli")
		require.NoError(t, err)

		again, err := p.Migrate(ctx, fsys)
		require.NoError(t, err)
		assert.Equal(t, int64(2), again)
	})

	t.Run("Should report the failing version as a migration error", func(t *testing.T) {
		p := newTestPool(t, nil)
		ctx := logger.ContextWithLogger(t.Context(), logger.NewForTests())
		fsys := fstest.MapFS{
			"00001_create_events.sql": {Data: []byte(createEvents)},
			"00002_broken.sql":        {Data: []byte("-- +goose Up\nCREATE TABLE nope (;\n")},
		}
		_, err := p.Migrate(ctx, fsys)
		require.Error(t, err)
		var perr *dbpool.Error
		require.True(t, errors.As(err, &perr))
		assert.Equal(t, dbpool.KindMigration, perr.Kind)
		assert.Equal(t, "2", perr.MigrationVersion)
		assert.Equal(t, dbpool.QueryTypeMigration, perr.QueryType)
		assert.Equal(t, uint64(1), p.Metrics().ConnectionErrors())
	})

	t.Run("Should fail on an empty migration set", func(t *testing.T) {
		p := newTestPool(t, nil)
		_, err := p.Migrate(t.Context(), fstest.MapFS{})
		assert.True(t, dbpool.IsKind(err, dbpool.KindMigration))
	})

	t.Run("Should refuse to migrate a closed pool", func(t *testing.T) {
		p := newTestPool(t, nil)
		require.NoError(t, p.Close(context.Background()))
		_, err := p.Migrate(t.Context(), fstest.MapFS{})
		assert.True(t, dbpool.IsKind(err, dbpool.KindPool))
	})
}
