package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jonathan/ctr-optimizer/internal/types"
	"github.com/spf13/cobra"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Pull search metrics into the database",
	Long:  "Pulls per-page impressions, clicks and position for a date range. Without --start/--end the configured trailing window is used.",
	RunE:  runIngest,
}

var (
	ingestStart string
	ingestEnd   string
)

func init() {
	ingestCmd.Flags().StringVar(&ingestStart, "start", "", "Start date (YYYY-MM-DD)")
	ingestCmd.Flags().StringVar(&ingestEnd, "end", "", "End date (YYYY-MM-DD)")

	rootCmd.AddCommand(ingestCmd)
}

// ingestRange returns the explicit range when both dates are set, otherwise the trailing window.
func ingestRange(start, end string, now time.Time, days, lag int) (types.DateRange, error) {
	if start == "" && end == "" {
		return types.TrailingWindow(now, days, lag), nil
	}
	if start == "" || end == "" {
		return types.DateRange{}, fmt.Errorf("--start and --end must be given together")
	}
	s, err := time.Parse(types.DateLayout, start)
	if err != nil {
		return types.DateRange{}, fmt.Errorf("invalid --start: %w", err)
	}
	e, err := time.Parse(types.DateLayout, end)
	if err != nil {
		return types.DateRange{}, fmt.Errorf("invalid --end: %w", err)
	}
	if e.Before(s) {
		return types.DateRange{}, fmt.Errorf("--end %s is before --start %s", end, start)
	}
	return types.DateRange{Start: s, End: e}, nil
}

func runIngest(cmd *cobra.Command, _ []string) error {
	ctx, stop := signalContext()
	defer stop()

	a, err := setup(ctx, cmd, needs{metrics: true})
	if err != nil {
		return err
	}
	defer a.close()

	window, err := ingestRange(ingestStart, ingestEnd, time.Now(), a.cfg.Thresholds.WindowDays, a.cfg.Thresholds.DataLagDays)
	if err != nil {
		return err
	}

	return a.locked(ctx, func(ctx context.Context) error {
		snapshots, err := a.runner.Ingest(ctx, window, true)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Ingested %d pages for %s\n", len(snapshots), window)
		return nil
	})
}
