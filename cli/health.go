package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/spf13/cobra"

	"github.com/compozy/storage/engine/infra/dbpool"
	"github.com/compozy/storage/engine/infra/stores"
	appconfig "github.com/compozy/storage/pkg/config"
	"github.com/compozy/storage/pkg/logger"
)

const maxWaitInterval = 5 * time.Second

var errUnhealthy = errors.New("one or more pools are unhealthy")

type healthOptions struct {
	wait     bool
	timeout  time.Duration
	interval time.Duration
	format   string
}

// HealthCmd opens every enabled pool, runs its health check and exits
// non-zero when any pool is unhealthy.
func HealthCmd(root *rootOptions) *cobra.Command {
	opts := &healthOptions{}
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check the health of every enabled backend",
		Long: `Open a pool for each enabled backend and run its health check.
With --wait the check is retried with exponential backoff until every backend
is healthy or the timeout elapses.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cfg, err := root.setup(cmd)
			if err != nil {
				return err
			}
			return runHealth(ctx, cmd.OutOrStdout(), cfg, opts)
		},
	}
	cmd.Flags().BoolVar(&opts.wait, "wait", false, "Retry until healthy or --timeout elapses")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", time.Minute, "Maximum time to wait with --wait")
	cmd.Flags().DurationVar(&opts.interval, "interval", 500*time.Millisecond, "Initial delay between attempts")
	cmd.Flags().StringVarP(&opts.format, "format", "f", formatTable, "Output format (json, table)")
	return cmd
}

func runHealth(ctx context.Context, w io.Writer, cfg *appconfig.Config, opts *healthOptions) error {
	if opts.format != formatJSON && opts.format != formatTable {
		return fmt.Errorf("unsupported format: %s", opts.format)
	}
	log := logger.FromContext(ctx)
	ctx = dbpool.ContextWithCorrelationID(ctx, dbpool.NewCorrelationID())
	var (
		report  *dbpool.Report
		attempt int
	)
	check := func(ctx context.Context) error {
		attempt++
		r, err := checkOnce(ctx, cfg)
		if err != nil {
			return err
		}
		report = r
		if !r.Healthy {
			return errUnhealthy
		}
		return nil
	}
	var err error
	if opts.wait {
		err = retry.Do(ctx, waitBackoff(opts.interval, opts.timeout), func(ctx context.Context) error {
			if err := check(ctx); err != nil {
				log.Debug("Backends not healthy yet", "attempt", attempt, "error", err)
				return retry.RetryableError(err)
			}
			return nil
		})
	} else {
		err = check(ctx)
	}
	if report != nil {
		if werr := writeReport(w, report, opts.format); werr != nil {
			return errors.Join(err, werr)
		}
	}
	return err
}

func waitBackoff(interval, timeout time.Duration) retry.Backoff {
	b := retry.NewExponential(interval)
	b = retry.WithCappedDuration(maxWaitInterval, b)
	return retry.WithMaxDuration(timeout, b)
}

// checkOnce opens fresh pools so that a backend which was down at the
// previous attempt gets a new connection.
func checkOnce(ctx context.Context, cfg *appconfig.Config) (*dbpool.Report, error) {
	reg, err := stores.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	report := reg.CheckAll(ctx)
	if err := reg.CloseAll(context.WithoutCancel(ctx)); err != nil {
		logger.FromContext(ctx).Warn("Failed to close pools", "error", err)
	}
	return report, nil
}

func writeReport(w io.Writer, report *dbpool.Report, format string) error {
	if format == formatJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "BACKEND\tSTATE\tHEALTHY\tRESPONSE\tDETAIL")
	for _, b := range report.Backends {
		response := "-"
		if b.Status != nil {
			response = b.Status.ResponseTime.Round(time.Microsecond).String()
		}
		fmt.Fprintf(tw, "%s\t%s\t%t\t%s\t%s\n", b.Backend, b.State, b.Healthy(), response, reportDetail(b))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "\nhealthy: %t (checked in %s)\n", report.Healthy, report.Duration.Round(time.Microsecond))
	return err
}

func reportDetail(b dbpool.BackendReport) string {
	if b.Error != nil {
		return b.Error.Error()
	}
	if b.Status == nil {
		return ""
	}
	for _, p := range b.Status.Probes {
		if !p.OK {
			return fmt.Sprintf("probe %s failed: %s", p.Name, p.Error)
		}
	}
	return "ok"
}
