package main

import (
	"context"

	"github.com/jonathan/ctr-optimizer/internal/observability"
	"github.com/spf13/cobra"
)

var benchmarkCmd = &cobra.Command{
	Use:   "benchmark",
	Short: "Recompute and store the CTR benchmark from stored metrics",
	RunE:  runBenchmark,
}

func init() {
	rootCmd.AddCommand(benchmarkCmd)
}

func runBenchmark(cmd *cobra.Command, _ []string) error {
	ctx := context.Background()

	a, err := setup(ctx, cmd, needs{})
	if err != nil {
		return err
	}
	defer a.close()

	return a.locked(ctx, func(ctx context.Context) error {
		bench, err := a.runner.RecomputeBenchmark(ctx)
		if err != nil {
			return err
		}
		observability.NewPrinter(cmd.OutOrStdout()).PrintBenchmark(bench)
		return nil
	})
}
