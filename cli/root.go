// Package cli implements the dbpool command line: configuration inspection,
// one-shot or waiting health checks, and the supervisor HTTP server.
package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	appconfig "github.com/compozy/storage/pkg/config"
	"github.com/compozy/storage/pkg/logger"
)

type rootOptions struct {
	configFile string
	logLevel   string
	logJSON    bool
	logSource  bool
}

func RootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "dbpool",
		Short:         "Pooled access to SQLite, Redis and InfluxDB",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	flags := root.PersistentFlags()
	flags.StringVar(&opts.configFile, "config", "", "Path to a YAML or TOML configuration file")
	flags.StringVar(&opts.logLevel, "log-level", "", "Log level (debug, info, warn, error, disabled)")
	flags.BoolVar(&opts.logJSON, "log-json", false, "Emit logs as JSON")
	flags.BoolVar(&opts.logSource, "log-source", false, "Include source location in logs")

	root.AddCommand(
		ConfigCmd(opts),
		HealthCmd(opts),
		MigrateCmd(opts),
		ServeCmd(opts),
		VersionCmd(),
	)
	return root
}

// load reads the configuration named by --config, then the environment.
func (o *rootOptions) load(ctx context.Context) (*appconfig.Config, appconfig.Service, error) {
	service := appconfig.NewService()
	var sources []appconfig.Source
	if o.configFile != "" {
		src, err := appconfig.NewFileProvider(o.configFile)
		if err != nil {
			return nil, nil, err
		}
		sources = append(sources, src)
	}
	cfg, err := service.Load(ctx, sources...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, service, nil
}

// setup loads the configuration and builds the logger from its log section,
// with explicit log flags taking precedence. Logs go to stderr so that
// command output stays parseable.
func (o *rootOptions) setup(cmd *cobra.Command) (context.Context, *appconfig.Config, error) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, _, err := o.load(ctx)
	if err != nil {
		return nil, nil, err
	}
	flags := cmd.Flags()
	logCfg := cfg.Log
	if flags.Changed("log-level") {
		logCfg.Level = o.logLevel
	}
	if flags.Changed("log-json") {
		logCfg.JSON = o.logJSON
	}
	if flags.Changed("log-source") {
		logCfg.Source = o.logSource
	}
	lc := logger.DefaultConfig()
	lc.Level = logger.LogLevel(logCfg.Level)
	lc.JSON = logCfg.JSON
	lc.AddSource = logCfg.Source
	lc.Output = cmd.ErrOrStderr()
	log := logger.NewLogger(lc)
	ctx = logger.ContextWithLogger(ctx, log)
	ctx = appconfig.ContextWithConfig(ctx, cfg)
	return ctx, cfg, nil
}
