package cli

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/compozy/storage/engine/infra/monitoring"
	"github.com/compozy/storage/engine/infra/server"
	"github.com/compozy/storage/engine/infra/stores"
	appconfig "github.com/compozy/storage/pkg/config"
	"github.com/compozy/storage/pkg/logger"
)

// ServeCmd runs the supervisor HTTP server until SIGINT or SIGTERM.
func ServeCmd(root *rootOptions) *cobra.Command {
	var (
		host string
		port int
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve health, readiness and metrics endpoints for the configured pools",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cfg, err := root.setup(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("host") {
				cfg.Server.Host = host
			}
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = port
			}
			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg)
		},
	}
	cmd.Flags().StringVar(&host, "host", "", "Listen host (overrides server.host)")
	cmd.Flags().IntVar(&port, "port", 0, "Listen port (overrides server.port)")
	return cmd
}

func runServe(ctx context.Context, cfg *appconfig.Config) (err error) {
	log := logger.FromContext(ctx)
	reg, err := stores.Open(ctx, cfg)
	if err != nil {
		return err
	}
	cleanupCtx := context.WithoutCancel(ctx)
	defer func() {
		if cerr := reg.CloseAll(cleanupCtx); cerr != nil {
			err = errors.Join(err, cerr)
		}
		log.Info("Pools closed")
	}()

	mon := monitoring.NewMonitoringServiceWithFallback(ctx, monitoring.ConfigFromApp(&cfg.Monitoring))
	defer func() {
		if serr := mon.Shutdown(cleanupCtx); serr != nil {
			log.Warn("Monitoring shutdown failed", "error", serr)
		}
	}()
	mon.SetAsGlobal()
	if err := mon.RegisterPools(ctx, reg); err != nil {
		return err
	}

	srv, err := server.NewServer(ctx, &cfg.Server, reg, mon)
	if err != nil {
		return err
	}
	return srv.Run(ctx)
}
