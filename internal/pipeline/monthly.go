package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/jonathan/ctr-optimizer/internal/experiment"
	"github.com/jonathan/ctr-optimizer/internal/gap"
	"github.com/jonathan/ctr-optimizer/internal/ideation"
	"github.com/jonathan/ctr-optimizer/internal/learning"
	"github.com/jonathan/ctr-optimizer/internal/notify"
	"github.com/jonathan/ctr-optimizer/internal/report"
	"github.com/jonathan/ctr-optimizer/internal/store"
	"github.com/jonathan/ctr-optimizer/internal/types"
	"github.com/sirupsen/logrus"
)

// MonthlyResult is what a monthly run produced.
type MonthlyResult struct {
	Report     *report.Report
	ReportPath string
	Started    []types.Experiment
}

// RunMonthly ingests fresh metrics, refreshes the benchmark and learnings,
// evaluates due experiments and starts new ones on the top opportunities.
// Page-level failures are recorded and the run continues; authentication
// failures and cancellation abort it. A report is written in every case.
func (r *Runner) RunMonthly(ctx context.Context, opts Options) (res *MonthlyResult, err error) {
	if opts.Kind == "" {
		opts.Kind = types.KindTitle
	}
	if opts.Actor == "" {
		opts.Actor = types.ActorScheduled
	}
	log := r.log.WithFields(logrus.Fields{"command": "monthly", "kind": opts.Kind, "dry_run": opts.DryRun})

	rep := report.New("monthly", opts.DryRun, r.now())
	res = &MonthlyResult{Report: rep}
	defer func() {
		if err != nil {
			rep.Abort(err)
		}
		res.ReportPath = r.finish(ctx, rep, opts)
		if err == nil && !opts.DryRun {
			r.notifyMonthly(ctx, res)
		}
	}()

	emitProgress(opts, "ingest", "", "Pulling search metrics")
	window := types.TrailingWindow(r.now(), r.th.WindowDays, r.th.DataLagDays)
	pulled, err := r.Ingest(ctx, window, !opts.DryRun)
	if err != nil {
		if isFatal(err) {
			return res, err
		}
		log.WithError(err).Warn("metrics ingestion failed, continuing with stored data")
		rep.Note("metrics ingestion failed: %v", err)
	}
	if opts.DryRun {
		rep.Note("dry run: %d pages pulled for %s, nothing persisted", len(pulled), window)
	}

	snapshots, err := r.currentSnapshots(ctx, pulled)
	if err != nil {
		return res, fmt.Errorf("failed to load snapshots: %w", err)
	}

	emitProgress(opts, "benchmark", "", "Computing CTR benchmark from %d pages", len(snapshots))
	bench, note, err := r.refreshBenchmark(ctx, snapshots, !opts.DryRun)
	if err != nil {
		return res, fmt.Errorf("failed to refresh benchmark: %w", err)
	}
	if note != "" {
		rep.Note("%s", note)
	}

	if !opts.DryRun {
		emitProgress(opts, "evaluate", "", "Evaluating measuring experiments")
		if err := r.sweep(ctx, rep, opts.Actor); err != nil {
			return res, err
		}
	}

	priors, err := r.refreshLearnings(ctx, !opts.DryRun)
	if err != nil {
		return res, err
	}

	if !opts.DryRun {
		if err := r.retryProposed(ctx, rep, opts.Actor); err != nil {
			return res, err
		}
	}

	experiments, err := r.deps.Store.ListExperiments(ctx, types.ExperimentFilter{})
	if err != nil {
		return res, fmt.Errorf("failed to list experiments: %w", err)
	}

	emitProgress(opts, "analyze", "", "Ranking opportunities")
	analysis := r.analyzer.Analyze(gap.Input{
		Snapshots:   snapshots,
		Benchmark:   bench,
		Experiments: experiments,
		Now:         r.now(),
	})
	rep.Opportunities = analysis.Opportunities
	for _, ex := range analysis.Exclusions {
		rep.Skip(ex.URL, ex.Reason)
	}
	log.WithFields(logrus.Fields{
		"opportunities": len(analysis.Opportunities),
		"excluded":      len(analysis.Exclusions),
	}).Info("gap analysis complete")

	learnings := priors.Top(5)
	for _, opp := range analysis.Opportunities {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		emitProgress(opts, "experiment", opp.URL, "Preparing %s experiment", opts.Kind)
		e, err := r.startExperiment(ctx, opp, opts, priors, learnings, rep)
		if err != nil {
			if isFatal(err) {
				return res, err
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return res, err
			}
			log.WithError(err).WithField("url", opp.URL).Error("experiment failed")
			rep.Fail(opp.URL, err)
			continue
		}
		if e != nil {
			res.Started = append(res.Started, *e)
		}
	}

	log.WithFields(logrus.Fields{
		"started":  len(res.Started),
		"skipped":  len(rep.Skips),
		"failures": len(rep.Failures),
	}).Info("monthly run complete")
	return res, nil
}

// startExperiment handles one opportunity. It returns a nil experiment when the
// page was skipped or only previewed.
func (r *Runner) startExperiment(ctx context.Context, opp types.Opportunity, opts Options, priors learning.Priors, learnings []types.Learning, rep *report.Report) (*types.Experiment, error) {
	current, err := r.deps.Content.ReadContent(ctx, opp.URL, opts.Kind)
	if err != nil {
		return nil, fmt.Errorf("failed to read page: %w", err)
	}

	req := ideation.Request{
		Kind:        opts.Kind,
		Opportunity: opp,
		Current:     current,
		Learnings:   learnings,
	}
	if opts.Kind == types.KindStructure {
		score, err := r.scorer.Score(current)
		if err != nil {
			return nil, fmt.Errorf("failed to score page structure: %w", err)
		}
		if !score.NeedsOptimization(r.th.OptimizationThresholdScore) {
			rep.Skip(opp.URL, types.ReasonStructureComplete)
			return nil, nil
		}
		req.Present = score.Present()
		req.Missing = score.Missing()
	}

	raw, err := r.deps.Ideas.GenerateVariants(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to generate ideas: %w", err)
	}
	variants, discarded := ideation.Sanitize(raw, opts.Kind)
	for _, d := range discarded {
		r.log.WithField("url", opp.URL).WithError(d).Warn("discarding idea")
	}
	if len(variants) == 0 {
		rep.Skip(opp.URL, "no usable ideas generated")
		return nil, nil
	}

	if opts.DryRun {
		v, ok := learning.SelectVariant(variants, priors)
		if !ok {
			rep.Skip(opp.URL, "no usable ideas generated")
			return nil, nil
		}
		preview, err := compose(opts.Kind, current, v)
		if err != nil {
			return nil, fmt.Errorf("failed to compose new content: %w", err)
		}
		rep.Success(opp.URL, "would propose %s: %s", v.IdeaType, summarize(opts.Kind, preview))
		return nil, nil
	}

	e, err := r.manager.Propose(ctx, opp, opts.Kind, current, variants, priors, opts.Actor)
	if err != nil {
		if errors.Is(err, store.ErrActiveExperiment) {
			rep.Skip(opp.URL, types.ReasonActiveExperiment)
			return nil, nil
		}
		if errors.Is(err, experiment.ErrNoVariants) {
			rep.Skip(opp.URL, "no usable ideas generated")
			return nil, nil
		}
		return nil, err
	}

	e, err = r.manager.Implement(ctx, e.ID, opts.Actor)
	if err != nil {
		return nil, err
	}
	rep.Success(opp.URL, "started %s experiment (%s): %s", e.Kind, e.IdeaType, summarize(e.Kind, e.NewValue))
	return e, nil
}

// retryProposed pushes experiments left in proposed by an earlier failed write.
func (r *Runner) retryProposed(ctx context.Context, rep *report.Report, actor types.Actor) error {
	stuck, err := r.deps.Store.ListExperiments(ctx, types.ExperimentFilter{Statuses: []types.Status{types.StatusProposed}})
	if err != nil {
		return fmt.Errorf("failed to list proposed experiments: %w", err)
	}
	for _, e := range stuck {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := r.manager.Implement(ctx, e.ID, actor); err != nil {
			if isFatal(err) {
				return err
			}
			rep.Fail(e.URL, err)
			continue
		}
		rep.Success(e.URL, "implemented previously proposed %s experiment", e.Kind)
	}
	return nil
}

// sweep evaluates every measuring experiment into rep.
func (r *Runner) sweep(ctx context.Context, rep *report.Report, actor types.Actor) error {
	sr, err := r.manager.SweepMeasuring(ctx, actor)
	if sr != nil {
		for _, ev := range sr.Evaluated {
			rep.Evaluated = append(rep.Evaluated, *ev.Experiment)
		}
		for _, ev := range sr.Pending {
			rep.Skip(ev.Experiment.URL, "evaluation pending: "+ev.Reason)
		}
		for _, f := range sr.Failed {
			rep.Fail(f.URL, f.Err)
		}
	}
	if err != nil {
		return fmt.Errorf("failed to evaluate experiments: %w", err)
	}
	return nil
}

// refreshLearnings recomputes learnings from every evaluated experiment.
func (r *Runner) refreshLearnings(ctx context.Context, persist bool) (learning.Priors, error) {
	all, err := r.deps.Store.ListExperiments(ctx, types.ExperimentFilter{Statuses: []types.Status{types.StatusEvaluated}})
	if err != nil {
		return learning.Priors{}, fmt.Errorf("failed to list evaluated experiments: %w", err)
	}
	learnings := learning.Recompute(all, r.now())
	if persist {
		if err := r.deps.Store.ReplaceLearnings(ctx, learnings); err != nil {
			return learning.Priors{}, fmt.Errorf("failed to save learnings: %w", err)
		}
	}
	return learning.NewPriors(learnings, r.th.MinLearningSamples), nil
}

func (r *Runner) notifyMonthly(ctx context.Context, res *MonthlyResult) {
	rep := res.Report
	summary := types.Summarize(rep.Evaluated)
	msg, err := r.renderer.Monthly(notify.MonthlyDigest{
		DryRun:      rep.DryRun,
		Started:     len(res.Started),
		Evaluated:   len(rep.Evaluated),
		Skipped:     len(rep.Skips),
		Failed:      len(rep.Failures),
		SuccessRate: summary.SuccessRate,
		ReportPath:  res.ReportPath,
	})
	if err != nil {
		r.log.WithError(err).Error("failed to render monthly digest")
		return
	}
	_ = r.notifier.Notify(context.WithoutCancel(ctx), msg)
}

// summarize shortens a new value for report lines. Structure bodies are too
// long to print, so only their size is shown.
func summarize(kind types.Kind, value string) string {
	if kind == types.KindStructure {
		return fmt.Sprintf("updated body (%d chars)", len(value))
	}
	return fmt.Sprintf("%q", value)
}
