package main

import (
	"context"
	"fmt"

	"github.com/jonathan/ctr-optimizer/internal/observability"
	"github.com/spf13/cobra"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Rank CTR opportunities from stored metrics without changing anything",
	RunE:  runAnalyze,
}

var analyzeShowExcluded bool

func init() {
	analyzeCmd.Flags().BoolVar(&analyzeShowExcluded, "show-excluded", false, "Also list excluded pages with their reason")

	rootCmd.AddCommand(analyzeCmd)
}

func runAnalyze(cmd *cobra.Command, _ []string) error {
	ctx := context.Background()

	a, err := setup(ctx, cmd, needs{})
	if err != nil {
		return err
	}
	defer a.close()

	bench, result, err := a.runner.Analyze(ctx)
	if err != nil {
		return err
	}

	p := observability.NewPrinter(cmd.OutOrStdout())
	p.PrintBenchmark(bench)
	p.PrintOpportunities(result.Opportunities)

	if analyzeShowExcluded {
		out := cmd.OutOrStdout()
		for _, ex := range result.Exclusions {
			_, _ = fmt.Fprintf(out, "  - %s: %s\n", ex.URL, ex.Reason)
		}
	}
	return nil
}
