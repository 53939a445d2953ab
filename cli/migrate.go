package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/compozy/storage/engine/infra/sqlite"
)

// MigrateCmd applies goose migrations from a directory to the SQLite pool.
func MigrateCmd(root *rootOptions) *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending SQLite migrations",
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			ctx, cfg, err := root.setup(cmd)
			if err != nil {
				return err
			}
			if info, statErr := os.Stat(dir); statErr != nil || !info.IsDir() {
				return fmt.Errorf("migrations directory %q not found", dir)
			}
			pool, err := sqlite.FromConfig(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() {
				err = errors.Join(err, pool.Close(ctx))
			}()
			version, err := pool.Migrate(ctx, os.DirFS(dir))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema version: %d\n", version)
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "migrations", "Directory holding goose SQL migrations")
	return cmd
}
