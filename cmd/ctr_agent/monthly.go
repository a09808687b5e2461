package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonathan/ctr-optimizer/internal/observability"
	"github.com/jonathan/ctr-optimizer/internal/pipeline"
	"github.com/jonathan/ctr-optimizer/internal/types"
	"github.com/spf13/cobra"
)

var monthlyCmd = &cobra.Command{
	Use:   "monthly",
	Short: "Run the monthly optimization cycle",
	Long: `Pulls the trailing window of search metrics, recomputes the CTR benchmark and
learnings, evaluates finished experiments and starts new ones on the pages with the
largest CTR gap.

With --dry-run everything is scored, ranked and ideated but nothing is written to
the database, the site or a notification channel; only the markdown report is saved.`,
	RunE: runMonthly,
}

var (
	monthlyDryRun bool
	monthlyKind   string
)

func init() {
	monthlyCmd.Flags().BoolVar(&monthlyDryRun, "dry-run", false, "Preview the run without writing anything")
	monthlyCmd.Flags().StringVar(&monthlyKind, "kind", "title", "Experiment kind: title or structure")

	rootCmd.AddCommand(monthlyCmd)
}

// signalContext is cancelled on SIGINT or SIGTERM. Runs stop between pages.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runMonthly(cmd *cobra.Command, _ []string) error {
	kind, err := types.ParseKind(monthlyKind)
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	a, err := setup(ctx, cmd, needs{metrics: true, site: true, ideas: true, notify: true})
	if err != nil {
		return err
	}
	defer a.close()

	opts := pipeline.Options{
		DryRun:     monthlyDryRun,
		Kind:       kind,
		Actor:      types.ActorScheduled,
		ReportsDir: a.cfg.ReportsDir,
		OnProgress: progressLogger(a),
	}

	return a.locked(ctx, func(ctx context.Context) error {
		res, err := a.runner.RunMonthly(ctx, opts)
		if res != nil {
			printRunSummary(cmd, res.ReportPath, len(res.Started), len(res.Report.Skips), len(res.Report.Failures))
			if len(res.Report.Opportunities) > 0 {
				observability.NewPrinter(cmd.OutOrStdout()).PrintOpportunities(res.Report.Opportunities)
			}
		}
		return err
	})
}

func progressLogger(a *app) pipeline.ProgressCallback {
	return func(e pipeline.ProgressEvent) {
		entry := a.log.WithField("step", e.Step)
		if e.URL != "" {
			entry = entry.WithField("url", e.URL)
		}
		entry.Debug(e.Message)
	}
}

func printRunSummary(cmd *cobra.Command, reportPath string, started, skipped, failed int) {
	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "Started: %d  Skipped: %d  Failed: %d\n", started, skipped, failed)
	if reportPath != "" {
		_, _ = fmt.Fprintf(out, "Report: %s\n", reportPath)
	}
}
