package main

import (
	"context"
	"fmt"

	"github.com/jonathan/ctr-optimizer/internal/pipeline"
	"github.com/jonathan/ctr-optimizer/internal/types"
	"github.com/spf13/cobra"
)

var weeklyCmd = &cobra.Command{
	Use:   "weekly",
	Short: "Evaluate due experiments and check for CTR alerts",
	Long:  "Refreshes metrics, evaluates experiments whose measurement window has closed and alerts on sharp declines or gains of measuring experiments.",
	RunE:  runWeekly,
}

var weeklyDryRun bool

func init() {
	weeklyCmd.Flags().BoolVar(&weeklyDryRun, "dry-run", false, "Pull metrics and report without evaluating or alerting")

	rootCmd.AddCommand(weeklyCmd)
}

func runWeekly(cmd *cobra.Command, _ []string) error {
	ctx, stop := signalContext()
	defer stop()

	// Auto-revert writes the original value back, so the site is needed.
	a, err := setup(ctx, cmd, needs{metrics: true, site: true, notify: true})
	if err != nil {
		return err
	}
	defer a.close()

	opts := pipeline.Options{
		DryRun:     weeklyDryRun,
		Actor:      types.ActorScheduled,
		ReportsDir: a.cfg.ReportsDir,
		OnProgress: progressLogger(a),
	}

	return a.locked(ctx, func(ctx context.Context) error {
		res, err := a.runner.RunWeekly(ctx, opts)
		if res != nil {
			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "Evaluated: %d  Measuring: %d  Alerts: %d\n", len(res.Report.Evaluated), res.Measuring, len(res.Alerts))
			for _, alert := range res.Alerts {
				_, _ = fmt.Fprintf(out, "  ! %s\n", alert.Message)
			}
			if res.ReportPath != "" {
				_, _ = fmt.Fprintf(out, "Report: %s\n", res.ReportPath)
			}
		}
		return err
	})
}
