// Package observability provides logging setup and formatted output utilities for the CLI.
package observability

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/jonathan/ctr-optimizer/internal/types"
)

const (
	// boxWidth is the default width for formatted output boxes
	boxWidth = 72
	// maxItemsToShow is the default number of items to display in lists
	maxItemsToShow = 10
)

// Printer handles formatted output for status and analyze commands
type Printer struct {
	out io.Writer
}

// NewPrinter creates a new Printer that writes to the given writer
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

// printBox prints a formatted box with a title and content
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) printBox(title string, content string) {
	border := strings.Repeat("─", boxWidth-2)
	fmt.Fprintf(p.out, "┌%s┐\n", border)
	fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, title)
	fmt.Fprintf(p.out, "├%s┤\n", border)

	lines := strings.Split(content, "\n")
	for _, line := range lines {
		// Truncate long lines
		if len(line) > boxWidth-4 {
			line = line[:boxWidth-7] + "..."
		}
		fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, line)
	}

	fmt.Fprintf(p.out, "└%s┘\n", border)
}

// PrintSummary outputs experiment counts and the success rate.
func (p *Printer) PrintSummary(s types.Summary) {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Total experiments: %d\n", s.Total))
	sb.WriteString(fmt.Sprintf("Active:            %d\n", s.Active))
	sb.WriteString(fmt.Sprintf("Completed:         %d\n", s.Completed))
	sb.WriteString(fmt.Sprintf("Reverted:          %d\n", s.Reverted))
	sb.WriteString(fmt.Sprintf("Success rate:      %.1f%%", s.SuccessRate*100))

	if len(s.ByOutcome) > 0 {
		sb.WriteString("\n\nOutcomes:\n")
		outcomes := make([]string, 0, len(s.ByOutcome))
		for o := range s.ByOutcome {
			outcomes = append(outcomes, string(o))
		}
		sort.Strings(outcomes)
		for i, o := range outcomes {
			sb.WriteString(fmt.Sprintf("  • %-13s %d", o, s.ByOutcome[types.Outcome(o)]))
			if i < len(outcomes)-1 {
				sb.WriteString("\n")
			}
		}
	}

	p.printBox("EXPERIMENT SUMMARY", sb.String())
}

// PrintExperiments outputs the given experiments with their status and CTR movement.
func (p *Printer) PrintExperiments(title string, experiments []types.Experiment) {
	if len(experiments) == 0 {
		return
	}

	var sb strings.Builder
	count := min(len(experiments), maxItemsToShow)
	for i := 0; i < count; i++ {
		e := experiments[i]
		sb.WriteString(fmt.Sprintf("%s  [%s]\n", shortURL(e.URL), e.Status))
		sb.WriteString(fmt.Sprintf("    %s · %s · pre CTR %.2f%%", e.Kind, e.IdeaType, e.PreCTR*100))
		if e.PostCTR != nil {
			sb.WriteString(fmt.Sprintf(" → post %.2f%%", *e.PostCTR*100))
		}
		if e.Outcome != nil {
			sb.WriteString(fmt.Sprintf(" (%s)", *e.Outcome))
		}
		if e.EvaluationDueAt != nil && e.Active() {
			sb.WriteString(fmt.Sprintf("\n    due %s", e.EvaluationDueAt.Format(types.DateLayout)))
		}
		if i < count-1 {
			sb.WriteString("\n")
		}
	}

	if len(experiments) > maxItemsToShow {
		sb.WriteString(fmt.Sprintf("\n... and %d more", len(experiments)-maxItemsToShow))
	}

	p.printBox(title, sb.String())
}

// PrintOpportunities outputs the top ranked opportunities.
func (p *Printer) PrintOpportunities(opps []types.Opportunity) {
	if len(opps) == 0 {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Total opportunities: %d\n\n", len(opps)))

	count := min(len(opps), maxItemsToShow)
	for i := 0; i < count; i++ {
		o := opps[i]
		sb.WriteString(fmt.Sprintf("#%d  %s\n", i+1, shortURL(o.URL)))
		sb.WriteString(fmt.Sprintf("    Priority %.3f · pos %.1f · %d impr · CTR %.2f%% vs %.2f%%",
			o.Priority, o.Position, o.Impressions, o.ActualCTR*100, o.ExpectedCTR*100))
		if i < count-1 {
			sb.WriteString("\n")
		}
	}

	if len(opps) > maxItemsToShow {
		sb.WriteString(fmt.Sprintf("\n\n... and %d more", len(opps)-maxItemsToShow))
	}

	p.printBox("TOP OPPORTUNITIES", sb.String())
}

// PrintBenchmark outputs the expected CTR curve.
func (p *Printer) PrintBenchmark(b *types.Benchmark) {
	if b.Empty() {
		return
	}

	var sb strings.Builder
	for i, entry := range b.Buckets {
		marker := ""
		if entry.Smoothed {
			marker = " (smoothed)"
		}
		sb.WriteString(fmt.Sprintf("pos %2d  %6.2f%%  n=%d%s", entry.Bucket, entry.ExpectedCTR*100, entry.SampleSize, marker))
		if i < len(b.Buckets)-1 {
			sb.WriteString("\n")
		}
	}

	p.printBox("CTR BENCHMARK", sb.String())
}

// PrintLearnings outputs the per idea-type learnings.
func (p *Printer) PrintLearnings(learnings []types.Learning) {
	if len(learnings) == 0 {
		return
	}

	var sb strings.Builder
	for i, l := range learnings {
		sb.WriteString(fmt.Sprintf("%-24s n=%-3d avg Δ %+.1f%%  success %.0f%%",
			l.IdeaType, l.SampleCount, l.AvgCTRDelta*100, l.SuccessRate()*100))
		if i < len(learnings)-1 {
			sb.WriteString("\n")
		}
	}

	p.printBox("LEARNINGS BY IDEA TYPE", sb.String())
}

// shortURL strips the scheme and host so long URLs fit in a box line.
func shortURL(u string) string {
	if i := strings.Index(u, "://"); i >= 0 {
		rest := u[i+3:]
		if j := strings.Index(rest, "/"); j >= 0 {
			return rest[j:]
		}
		return "/"
	}
	return u
}
