// Package pipeline orchestrates the scheduled monthly and weekly runs.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jonathan/ctr-optimizer/internal/benchmark"
	"github.com/jonathan/ctr-optimizer/internal/config"
	"github.com/jonathan/ctr-optimizer/internal/experiment"
	"github.com/jonathan/ctr-optimizer/internal/gap"
	"github.com/jonathan/ctr-optimizer/internal/ideation"
	"github.com/jonathan/ctr-optimizer/internal/notify"
	"github.com/jonathan/ctr-optimizer/internal/observability"
	"github.com/jonathan/ctr-optimizer/internal/report"
	"github.com/jonathan/ctr-optimizer/internal/searchconsole"
	"github.com/jonathan/ctr-optimizer/internal/store"
	"github.com/jonathan/ctr-optimizer/internal/structure"
	"github.com/jonathan/ctr-optimizer/internal/types"
	"github.com/jonathan/ctr-optimizer/internal/wordpress"
	"github.com/sirupsen/logrus"
)

// MetricsSource pulls per-page search metrics for a date range.
type MetricsSource interface {
	PullMetrics(ctx context.Context, r types.DateRange) ([]types.PageMetricSnapshot, error)
}

// ProgressEvent represents a progress update during a run
type ProgressEvent struct {
	Step    string `json:"step"`
	Message string `json:"message"`
	URL     string `json:"url,omitempty"`
}

// ProgressCallback is called when run progress occurs
type ProgressCallback func(event ProgressEvent)

// Deps are the collaborators of a Runner. Only Store is required; read-only
// commands run without a site, a generator or a metrics source.
type Deps struct {
	Store    store.Store
	Metrics  MetricsSource
	Content  experiment.ContentManager
	Ideas    ideation.Generator
	Notifier notify.Notifier
	Scorer   *structure.Scorer
	Log      logrus.FieldLogger
	Now      func() time.Time
}

// Options control one run.
type Options struct {
	DryRun bool
	// Kind selects title or structure experiments for monthly runs.
	Kind       types.Kind
	Actor      types.Actor
	ReportsDir string
	OnProgress ProgressCallback
}

// Runner executes the scheduled workflows against one site.
type Runner struct {
	deps     Deps
	th       config.Thresholds
	log      logrus.FieldLogger
	now      func() time.Time
	manager  *experiment.Manager
	analyzer *gap.Analyzer
	notifier notify.Notifier
	renderer *notify.Renderer
	scorer   *structure.Scorer
}

// New validates the thresholds once and wires the engine components.
func New(deps Deps, th config.Thresholds) (*Runner, error) {
	if deps.Store == nil {
		return nil, fmt.Errorf("pipeline needs a store")
	}
	if deps.Content == nil {
		deps.Content = offline{}
	}
	if deps.Ideas == nil {
		deps.Ideas = offline{}
	}
	log := deps.Log
	if log == nil {
		log = observability.Discard()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}

	analyzer, err := gap.NewAnalyzer(th)
	if err != nil {
		return nil, err
	}
	manager, err := experiment.NewManager(deps.Store, deps.Content, th,
		experiment.WithClock(now),
		experiment.WithLogger(log),
		experiment.WithComposer(compose),
	)
	if err != nil {
		return nil, err
	}

	scorer := deps.Scorer
	if scorer == nil {
		scorer = structure.NewScorer("")
	}

	return &Runner{
		deps:     deps,
		th:       th,
		log:      log,
		now:      now,
		manager:  manager,
		analyzer: analyzer,
		notifier: notify.NewFireAndForget(deps.Notifier, log),
		renderer: notify.NewRenderer(),
		scorer:   scorer,
	}, nil
}

// Manager exposes the experiment manager for manual operations such as revert.
func (r *Runner) Manager() *experiment.Manager {
	return r.manager
}

// ErrOffline is returned when a run needs a collaborator that was not configured.
var ErrOffline = errors.New("site or ideation is not configured")

type offline struct{}

func (offline) ReadContent(context.Context, string, types.Kind) (string, error) {
	return "", ErrOffline
}

func (offline) WriteContent(context.Context, string, types.Kind, string) error {
	return ErrOffline
}

func (offline) GenerateVariants(context.Context, ideation.Request) ([]types.Variant, error) {
	return nil, ErrOffline
}

// compose builds the new page value: titles are used verbatim, structure
// blocks are inserted into the current body.
func compose(kind types.Kind, original string, v types.Variant) (string, error) {
	if kind == types.KindStructure {
		return structure.Apply(original, v)
	}
	return v.Content, nil
}

func emitProgress(opts Options, step, url, format string, args ...any) {
	if opts.OnProgress != nil {
		opts.OnProgress(ProgressEvent{Step: step, URL: url, Message: fmt.Sprintf(format, args...)})
	}
}

// isFatal reports errors that abort the whole run: rejected credentials.
func isFatal(err error) bool {
	var authErr *searchconsole.AuthenticationError
	if errors.As(err, &authErr) {
		return true
	}
	var wpErr *wordpress.Error
	if errors.As(err, &wpErr) {
		return wpErr.StatusCode == http.StatusUnauthorized || wpErr.StatusCode == http.StatusForbidden
	}
	return false
}

// Ingest pulls the trailing window and stores it. It returns the pulled snapshots.
func (r *Runner) Ingest(ctx context.Context, window types.DateRange, persist bool) ([]types.PageMetricSnapshot, error) {
	if r.deps.Metrics == nil {
		return nil, nil
	}
	snapshots, err := r.deps.Metrics.PullMetrics(ctx, window)
	if err != nil {
		return nil, fmt.Errorf("failed to pull metrics for %s: %w", window, err)
	}
	if persist {
		if err := r.deps.Store.SaveSnapshots(ctx, snapshots); err != nil {
			return nil, err
		}
	}
	r.log.WithFields(logrus.Fields{"range": window.String(), "pages": len(snapshots), "persisted": persist}).Info("ingested metrics")
	return snapshots, nil
}

// currentSnapshots returns the newest snapshot per page, including freshly
// pulled ones that a dry run did not persist.
func (r *Runner) currentSnapshots(ctx context.Context, pulled []types.PageMetricSnapshot) ([]types.PageMetricSnapshot, error) {
	stored, err := r.deps.Store.LatestSnapshots(ctx)
	if err != nil {
		return nil, err
	}
	if len(pulled) == 0 {
		return stored, nil
	}
	latest := types.LatestPerPage(append(stored, pulled...))
	out := make([]types.PageMetricSnapshot, 0, len(latest))
	for _, s := range stored {
		if l, ok := latest[s.URL]; ok {
			out = append(out, l)
			delete(latest, s.URL)
		}
	}
	for _, s := range pulled {
		if l, ok := latest[s.URL]; ok {
			out = append(out, l)
			delete(latest, s.URL)
		}
	}
	return out, nil
}

// refreshBenchmark recomputes the curve. On insufficient data the stored
// curve is kept and the returned note explains why.
func (r *Runner) refreshBenchmark(ctx context.Context, snapshots []types.PageMetricSnapshot, persist bool) (*types.Benchmark, string, error) {
	b, err := benchmark.Compute(snapshots, r.th, r.now())
	if err != nil {
		var insufficient *benchmark.InsufficientDataError
		if !errors.As(err, &insufficient) {
			return nil, "", err
		}
		r.log.WithError(err).Warn("keeping previous benchmark")
		prev, loadErr := r.deps.Store.LoadBenchmark(ctx)
		if loadErr != nil {
			return nil, "", loadErr
		}
		if prev == nil {
			return nil, fmt.Sprintf("%v; no previous benchmark exists", err), nil
		}
		return prev, fmt.Sprintf("%v; previous benchmark kept", err), nil
	}
	if persist {
		if err := r.deps.Store.SaveBenchmark(ctx, b); err != nil {
			return nil, "", err
		}
	}
	return b, "", nil
}

// finish stamps, renders, saves and archives the report. It runs even when
// ctx is already cancelled so an aborted run still leaves its report behind.
func (r *Runner) finish(ctx context.Context, rep *report.Report, opts Options) string {
	ctx = context.WithoutCancel(ctx)
	rep.Finish(r.now())

	md, err := rep.Markdown()
	if err != nil {
		r.log.WithError(err).Error("failed to render report")
		return ""
	}

	var path string
	if opts.ReportsDir != "" {
		if path, err = rep.Save(opts.ReportsDir, md); err != nil {
			r.log.WithError(err).Error("failed to save report")
		}
	}
	if !opts.DryRun {
		if err := r.deps.Store.SaveRun(ctx, rep.Record(md)); err != nil {
			r.log.WithError(err).Error("failed to archive run")
		}
	}
	return path
}
