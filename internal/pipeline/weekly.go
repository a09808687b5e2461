package pipeline

import (
	"context"
	"fmt"

	"github.com/jonathan/ctr-optimizer/internal/experiment"
	"github.com/jonathan/ctr-optimizer/internal/notify"
	"github.com/jonathan/ctr-optimizer/internal/report"
	"github.com/jonathan/ctr-optimizer/internal/types"
	"github.com/sirupsen/logrus"
)

// WeeklyResult is what a weekly run produced.
type WeeklyResult struct {
	Report     *report.Report
	ReportPath string
	Alerts     []experiment.Alert
	Measuring  int
}

// RunWeekly refreshes metrics, evaluates experiments whose window has closed
// and raises alerts for sharp early movements.
func (r *Runner) RunWeekly(ctx context.Context, opts Options) (res *WeeklyResult, err error) {
	if opts.Actor == "" {
		opts.Actor = types.ActorScheduled
	}
	log := r.log.WithFields(logrus.Fields{"command": "weekly", "dry_run": opts.DryRun})

	rep := report.New("weekly", opts.DryRun, r.now())
	res = &WeeklyResult{Report: rep}
	defer func() {
		if err != nil {
			rep.Abort(err)
		}
		res.ReportPath = r.finish(ctx, rep, opts)
		if err == nil && !opts.DryRun {
			r.notifyWeekly(ctx, res)
		}
	}()

	emitProgress(opts, "ingest", "", "Pulling search metrics")
	window := types.TrailingWindow(r.now(), r.th.WindowDays, r.th.DataLagDays)
	if _, err := r.Ingest(ctx, window, !opts.DryRun); err != nil {
		if isFatal(err) {
			return res, err
		}
		log.WithError(err).Warn("metrics ingestion failed, continuing with stored data")
		rep.Note("metrics ingestion failed: %v", err)
	}

	if opts.DryRun {
		measuring, err := r.deps.Store.ListExperiments(ctx, types.ExperimentFilter{Statuses: []types.Status{types.StatusMeasuring}})
		if err != nil {
			return res, fmt.Errorf("failed to list measuring experiments: %w", err)
		}
		res.Measuring = len(measuring)
		rep.Note("dry run: %d measuring experiments left untouched", len(measuring))
		return res, nil
	}

	emitProgress(opts, "evaluate", "", "Evaluating measuring experiments")
	if err := r.sweep(ctx, rep, opts.Actor); err != nil {
		return res, err
	}

	emitProgress(opts, "alerts", "", "Checking for sharp CTR movements")
	alerts, err := r.manager.CheckAlerts(ctx)
	if err != nil {
		return res, fmt.Errorf("failed to check alerts: %w", err)
	}
	res.Alerts = alerts
	for _, a := range alerts {
		rep.Alerts = append(rep.Alerts, a.Message)
		r.notifyAlert(ctx, a)
	}

	measuring, err := r.deps.Store.ListExperiments(ctx, types.ExperimentFilter{Statuses: []types.Status{types.StatusMeasuring}})
	if err != nil {
		return res, fmt.Errorf("failed to list measuring experiments: %w", err)
	}
	res.Measuring = len(measuring)

	log.WithFields(logrus.Fields{
		"evaluated": len(rep.Evaluated),
		"measuring": res.Measuring,
		"alerts":    len(alerts),
	}).Info("weekly run complete")
	return res, nil
}

func (r *Runner) notifyAlert(ctx context.Context, a experiment.Alert) {
	msg, err := r.renderer.Alert(notify.AlertDigest{
		URL:      a.URL,
		Decline:  a.Kind == experiment.AlertDecline,
		Change:   a.Change,
		Message:  a.Message,
		Reverted: a.Reverted,
	})
	if err != nil {
		r.log.WithError(err).Error("failed to render alert")
		return
	}
	_ = r.notifier.Notify(context.WithoutCancel(ctx), msg)
}

func (r *Runner) notifyWeekly(ctx context.Context, res *WeeklyResult) {
	msg, err := r.renderer.Weekly(notify.WeeklyDigest{
		Measuring: res.Measuring,
		Evaluated: len(res.Report.Evaluated),
		Alerts:    res.Report.Alerts,
	})
	if err != nil {
		r.log.WithError(err).Error("failed to render weekly digest")
		return
	}
	_ = r.notifier.Notify(context.WithoutCancel(ctx), msg)
}
