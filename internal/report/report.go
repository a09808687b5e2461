// Package report collects the outcome of one run and renders it as markdown.
package report

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonathan/ctr-optimizer/internal/types"
	"github.com/osteele/liquid"
)

//go:embed templates/report.liquid
var reportTemplate []byte

// maxOpportunities bounds the opportunity table.
const maxOpportunities = 20

const timeLayout = "2006-01-02 15:04 MST"

// Entry is one page-level line of a report.
type Entry struct {
	URL    string
	Detail string
}

// Report lists what a run did. Every per-page result lands in exactly one
// of Successes, Skips or Failures.
type Report struct {
	Command     string
	DryRun      bool
	StartedAt   time.Time
	FinishedAt  time.Time
	Aborted     bool
	AbortReason string

	Successes []Entry
	Skips     []Entry
	Failures  []Entry
	Notes     []string

	Opportunities []types.Opportunity
	Evaluated     []types.Experiment
	Alerts        []string
}

// New starts a report for command.
func New(command string, dryRun bool, startedAt time.Time) *Report {
	return &Report{Command: command, DryRun: dryRun, StartedAt: startedAt}
}

func (r *Report) Success(url, format string, args ...any) {
	r.Successes = append(r.Successes, Entry{URL: url, Detail: fmt.Sprintf(format, args...)})
}

func (r *Report) Skip(url, reason string) {
	r.Skips = append(r.Skips, Entry{URL: url, Detail: reason})
}

func (r *Report) Fail(url string, err error) {
	r.Failures = append(r.Failures, Entry{URL: url, Detail: err.Error()})
}

// Note adds a run-level remark to the summary.
func (r *Report) Note(format string, args ...any) {
	r.Notes = append(r.Notes, fmt.Sprintf(format, args...))
}

// Abort marks the run as stopped by a run-level error.
func (r *Report) Abort(err error) {
	r.Aborted = true
	r.AbortReason = err.Error()
}

// Finish stamps the end time.
func (r *Report) Finish(at time.Time) {
	r.FinishedAt = at
}

// Record converts the report into its archived form.
func (r *Report) Record(markdown string) types.RunRecord {
	return types.RunRecord{
		ID:         uuid.New(),
		Command:    r.Command,
		DryRun:     r.DryRun,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
		Successes:  len(r.Successes),
		Skips:      len(r.Skips),
		Failures:   len(r.Failures),
		Aborted:    r.Aborted,
		Markdown:   markdown,
	}
}

var (
	engineOnce sync.Once
	tpl        *liquid.Template
	tplErr     error
)

func parsed() (*liquid.Template, error) {
	engineOnce.Do(func() {
		t, err := liquid.NewEngine().ParseTemplate(reportTemplate)
		if err != nil {
			tplErr = fmt.Errorf("failed to parse report template: %w", err)
			return
		}
		tpl = t
	})
	return tpl, tplErr
}

// Markdown renders the report.
func (r *Report) Markdown() (string, error) {
	t, err := parsed()
	if err != nil {
		return "", err
	}

	finished := "in progress"
	if !r.FinishedAt.IsZero() {
		finished = r.FinishedAt.Format(timeLayout)
	}

	out, serr := t.RenderString(liquid.Bindings{
		"command":       r.Command,
		"started_at":    r.StartedAt.Format(timeLayout),
		"finished_at":   finished,
		"dry_run":       r.DryRun,
		"aborted":       r.Aborted,
		"abort_reason":  r.AbortReason,
		"notes":         r.Notes,
		"successes":     entryRows(r.Successes),
		"skips":         entryRows(r.Skips),
		"failures":      entryRows(r.Failures),
		"evaluated":     evaluatedRows(r.Evaluated),
		"opportunities": opportunityRows(r.Opportunities),
		"alerts":        r.Alerts,
	})
	if serr != nil {
		return "", fmt.Errorf("failed to render report: %w", serr)
	}
	return out, nil
}

// Save writes markdown to dir as <command>-<timestamp>.md and returns the path.
func (r *Report) Save(dir, markdown string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create reports directory: %w", err)
	}
	name := fmt.Sprintf("%s-%s.md", r.Command, r.StartedAt.UTC().Format("20060102-150405"))
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(markdown), 0644); err != nil {
		return "", fmt.Errorf("failed to write report: %w", err)
	}
	return path, nil
}

func entryRows(entries []Entry) []map[string]any {
	rows := make([]map[string]any, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, map[string]any{"url": cell(e.URL), "detail": cell(e.Detail)})
	}
	return rows
}

func evaluatedRows(experiments []types.Experiment) []map[string]any {
	rows := make([]map[string]any, 0, len(experiments))
	for i := range experiments {
		e := &experiments[i]
		delta := "n/a"
		if d, ok := e.CTRDelta(); ok {
			delta = fmt.Sprintf("%+.1f%%", d*100)
		}
		outcome := "pending"
		if e.Outcome != nil {
			outcome = string(*e.Outcome)
		}
		rows = append(rows, map[string]any{
			"url":     cell(e.URL),
			"kind":    string(e.Kind),
			"idea":    cell(e.IdeaType),
			"delta":   delta,
			"outcome": outcome,
		})
	}
	return rows
}

func opportunityRows(opps []types.Opportunity) []map[string]any {
	if len(opps) > maxOpportunities {
		opps = opps[:maxOpportunities]
	}
	rows := make([]map[string]any, 0, len(opps))
	for _, o := range opps {
		rows = append(rows, map[string]any{
			"url":         cell(o.URL),
			"position":    fmt.Sprintf("%.1f", o.Position),
			"impressions": o.Impressions,
			"actual":      fmt.Sprintf("%.2f%%", o.ActualCTR*100),
			"expected":    fmt.Sprintf("%.2f%%", o.ExpectedCTR*100),
			"priority":    fmt.Sprintf("%.3f", o.Priority),
		})
	}
	return rows
}

// cell keeps a value on one markdown table row.
func cell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.Join(strings.Fields(s), " ")
}
