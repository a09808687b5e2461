package experiment

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/google/uuid"
	"github.com/jonathan/ctr-optimizer/internal/config"
	"github.com/jonathan/ctr-optimizer/internal/types"
	"github.com/sirupsen/logrus"
)

// Evaluation is the result of one Evaluate call.
// Pending is set when the experiment stays measuring.
type Evaluation struct {
	Experiment *types.Experiment
	Pending    bool
	Reason     string
}

// PostMetrics aggregates the snapshots recorded after a change went live.
type PostMetrics struct {
	Impressions int64
	Clicks      int64
	Position    float64 // impression-weighted
}

// CTR returns clicks / impressions.
func (p PostMetrics) CTR() float64 {
	if p.Impressions <= 0 {
		return 0
	}
	return float64(p.Clicks) / float64(p.Impressions)
}

// Aggregate sums snapshots into PostMetrics. Ingestion windows overlap, so only
// non-overlapping date ranges are counted, newest first.
func Aggregate(snapshots []types.PageMetricSnapshot) PostMetrics {
	var p PostMetrics
	var weighted float64
	for _, s := range DistinctWindows(snapshots) {
		p.Impressions += s.Impressions
		p.Clicks += s.Clicks
		weighted += s.Position * float64(s.Impressions)
	}
	if p.Impressions > 0 {
		p.Position = weighted / float64(p.Impressions)
	}
	return p
}

// DistinctWindows keeps the newest snapshot of each run of overlapping date ranges.
// The result covers every day at most once and is ordered newest first.
func DistinctWindows(snapshots []types.PageMetricSnapshot) []types.PageMetricSnapshot {
	sorted := append([]types.PageMetricSnapshot(nil), snapshots...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].PeriodEnd.Equal(sorted[j].PeriodEnd) {
			return sorted[i].PeriodEnd.After(sorted[j].PeriodEnd)
		}
		return sorted[i].IngestedAt.After(sorted[j].IngestedAt)
	})

	var kept []types.PageMetricSnapshot
	for _, s := range sorted {
		overlaps := false
		for _, k := range kept {
			if !s.PeriodStart.After(k.PeriodEnd) && !k.PeriodStart.After(s.PeriodEnd) {
				overlaps = true
				break
			}
		}
		if !overlaps {
			kept = append(kept, s)
		}
	}
	return kept
}

// Classify compares pre and post CTR with the configured threshold.
// In relative mode the change is (post-pre)/pre; a zero baseline with any clicks counts as improved.
func Classify(pre, post float64, th config.Thresholds) (types.Outcome, float64) {
	var delta float64
	if th.ThresholdMode == config.ThresholdAbsolute {
		delta = post - pre
	} else {
		switch {
		case pre > 0:
			delta = (post - pre) / pre
		case post > 0:
			delta = 1.0
		}
	}

	switch {
	case delta >= th.OutcomeThreshold:
		return types.OutcomeImproved, delta
	case delta <= -th.OutcomeThreshold:
		return types.OutcomeWorsened, delta
	default:
		return types.OutcomeNoChange, delta
	}
}

// Evaluate closes a measuring experiment once enough post-change data exists.
// Past the grace period without enough data the outcome is inconclusive.
// Otherwise the experiment stays measuring and a pending Evaluation is returned.
func (m *Manager) Evaluate(ctx context.Context, id uuid.UUID, actor types.Actor) (*Evaluation, error) {
	e, err := m.store.GetExperiment(ctx, id)
	if err != nil {
		return nil, err
	}
	if e.Status != types.StatusMeasuring || e.ImplementedAt == nil {
		return nil, &TransitionError{ExperimentID: id, From: e.Status, To: types.StatusEvaluated}
	}

	post, err := m.store.SnapshotsAfter(ctx, e.URL, *e.ImplementedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to load post-change metrics: %w", err)
	}
	pm := Aggregate(post)

	now := m.now()
	due := e.ImplementedAt.Add(m.th.MeasurementWindow())
	if e.EvaluationDueAt != nil {
		due = *e.EvaluationDueAt
	}
	graceEnd := e.ImplementedAt.Add(m.th.GracePeriod())

	updated := *e
	var reason string

	switch {
	case !now.Before(due) && pm.Impressions >= m.th.MinPostImpressions:
		outcome, delta := Classify(e.PreCTR, pm.CTR(), m.th)
		setPost(&updated, pm)
		updated.Outcome = &outcome
		updated.OutcomeNotes = m.notes(e, pm, delta)
		reason = fmt.Sprintf("%s: ctr %.2f%% -> %.2f%% on %d impressions", outcome, e.PreCTR*100, pm.CTR()*100, pm.Impressions)

	case !now.Before(graceEnd):
		outcome := types.OutcomeInconclusive
		if pm.Impressions > 0 {
			setPost(&updated, pm)
		}
		updated.Outcome = &outcome
		updated.OutcomeNotes = fmt.Sprintf("only %d post-change impressions after %d days", pm.Impressions, m.th.GracePeriodDays)
		reason = "grace period elapsed without enough data"

	default:
		pending := "waiting for evaluation date"
		if !now.Before(due) {
			pending = fmt.Sprintf("%d of %d post-change impressions", pm.Impressions, m.th.MinPostImpressions)
		}
		return &Evaluation{Experiment: e, Pending: true, Reason: pending}, nil
	}

	updated.Status = types.StatusEvaluated
	updated.EvaluatedAt = &now

	t := types.Transition{ExperimentID: id, From: types.StatusMeasuring, To: types.StatusEvaluated, Actor: actor, Reason: reason, At: now}
	if err := m.store.UpdateExperiment(ctx, &updated, t); err != nil {
		return nil, fmt.Errorf("failed to persist evaluation: %w", err)
	}

	m.log.WithFields(logrus.Fields{
		"experiment": id,
		"url":        e.URL,
		"outcome":    *updated.Outcome,
	}).Info("experiment evaluated")

	return &Evaluation{Experiment: &updated, Reason: reason}, nil
}

func setPost(e *types.Experiment, pm PostMetrics) {
	ctr := pm.CTR()
	impressions := pm.Impressions
	clicks := pm.Clicks
	position := pm.Position
	e.PostCTR = &ctr
	e.PostImpressions = &impressions
	e.PostClicks = &clicks
	e.PostPosition = &position
}

// notes describes the measured change and flags ranking moves large enough to confound it.
func (m *Manager) notes(e *types.Experiment, pm PostMetrics, delta float64) string {
	unit := "relative"
	if m.th.ThresholdMode == config.ThresholdAbsolute {
		unit = "absolute"
	}
	notes := fmt.Sprintf("ctr change %+.1f%% (%s), position %.1f -> %.1f", delta*100, unit, e.PrePosition, pm.Position)
	if e.PrePosition > 0 && math.Abs(pm.Position-e.PrePosition) > m.th.PositionConfoundThreshold {
		notes += "; position moved, outcome may reflect ranking change"
	}
	return notes
}

// SweepResult collects the outcome of evaluating every measuring experiment.
type SweepResult struct {
	Evaluated []Evaluation
	Pending   []Evaluation
	Failed    []Failure
}

// Failure is a per-experiment error during a batch operation.
type Failure struct {
	ExperimentID uuid.UUID
	URL          string
	Err          error
}

// SweepMeasuring evaluates every measuring experiment.
// Per-experiment errors are collected; cancellation stops between experiments.
func (m *Manager) SweepMeasuring(ctx context.Context, actor types.Actor) (*SweepResult, error) {
	measuring, err := m.store.ListExperiments(ctx, types.ExperimentFilter{Statuses: []types.Status{types.StatusMeasuring}})
	if err != nil {
		return nil, fmt.Errorf("failed to list measuring experiments: %w", err)
	}

	res := &SweepResult{}
	for i := range measuring {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		e := measuring[i]
		ev, err := m.Evaluate(ctx, e.ID, actor)
		if err != nil {
			m.log.WithError(err).WithField("url", e.URL).Error("evaluation failed")
			res.Failed = append(res.Failed, Failure{ExperimentID: e.ID, URL: e.URL, Err: err})
			continue
		}
		if ev.Pending {
			res.Pending = append(res.Pending, *ev)
		} else {
			res.Evaluated = append(res.Evaluated, *ev)
		}
	}
	return res, nil
}
