package main

import (
	"context"

	"github.com/jonathan/ctr-optimizer/internal/observability"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show experiment counts, active experiments and the current benchmark",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, _ []string) error {
	ctx := context.Background()

	a, err := setup(ctx, cmd, needs{})
	if err != nil {
		return err
	}
	defer a.close()

	st, err := a.runner.Status(ctx)
	if err != nil {
		return err
	}

	p := observability.NewPrinter(cmd.OutOrStdout())
	p.PrintSummary(st.Summary)
	p.PrintExperiments("Active experiments", st.Active)
	p.PrintExperiments("Recently finished", st.Recent)
	p.PrintBenchmark(st.Benchmark)
	p.PrintLearnings(st.Learnings)
	return nil
}
