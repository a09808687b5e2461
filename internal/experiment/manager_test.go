package experiment

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonathan/ctr-optimizer/internal/config"
	"github.com/jonathan/ctr-optimizer/internal/learning"
	"github.com/jonathan/ctr-optimizer/internal/store"
	"github.com/jonathan/ctr-optimizer/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const pageURL = "https://example.com/what-is-ctr/"

var (
	ctx   = context.Background()
	start = time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
)

type fakeContent struct {
	values    map[string]string
	failWrite error
	failRead  error
	writes    int
}

func newFakeContent() *fakeContent {
	return &fakeContent{values: map[string]string{}}
}

func key(url string, kind types.Kind) string { return string(kind) + "|" + url }

func (f *fakeContent) ReadContent(_ context.Context, url string, kind types.Kind) (string, error) {
	if f.failRead != nil {
		return "", f.failRead
	}
	return f.values[key(url, kind)], nil
}

func (f *fakeContent) WriteContent(_ context.Context, url string, kind types.Kind, value string) error {
	if f.failWrite != nil {
		return f.failWrite
	}
	f.writes++
	f.values[key(url, kind)] = value
	return nil
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }
func days(n int) time.Duration { return time.Duration(n) * 24 * time.Hour }

type fixture struct {
	m       *Manager
	store   *store.Memory
	content *fakeContent
	clock   *clock
}

func newFixture(t *testing.T, mutate func(*config.Thresholds), opts ...Option) *fixture {
	t.Helper()
	th := config.DefaultThresholds()
	if mutate != nil {
		mutate(&th)
	}
	f := &fixture{store: store.NewMemory(), content: newFakeContent(), clock: &clock{t: start}}
	f.content.values[key(pageURL, types.KindTitle)] = "What Is CTR"
	opts = append([]Option{WithClock(f.clock.now)}, opts...)
	m, err := NewManager(f.store, f.content, th, opts...)
	require.NoError(t, err)
	f.m = m
	return f
}

func scenarioOpportunity() types.Opportunity {
	return types.Opportunity{
		URL:         pageURL,
		ActualCTR:   0.01,
		ExpectedCTR: 0.03,
		Gap:         0.02,
		Impressions: 5000,
		Clicks:      50,
		Position:    7,
		Priority:    1,
	}
}

func variants() []types.Variant {
	return []types.Variant{
		{Content: "What Is CTR? A Plain Guide", IdeaType: "question"},
		{Content: "CTR Explained in 5 Steps", IdeaType: "number-list"},
	}
}

// current is the live value the caller read before generating variants.
func (f *fixture) current(kind types.Kind) string {
	return f.content.values[key(pageURL, kind)]
}

func (f *fixture) proposeAndImplement(t *testing.T) *types.Experiment {
	t.Helper()
	e, err := f.m.Propose(ctx, scenarioOpportunity(), types.KindTitle, f.current(types.KindTitle), variants(), learning.Priors{}, types.ActorScheduled)
	require.NoError(t, err)
	e, err = f.m.Implement(ctx, e.ID, types.ActorScheduled)
	require.NoError(t, err)
	return e
}

func (f *fixture) addPostSnapshot(t *testing.T, after time.Time, impressions, clicks int64, position float64) {
	t.Helper()
	require.NoError(t, f.store.SaveSnapshots(ctx, []types.PageMetricSnapshot{{
		URL:         pageURL,
		PeriodStart: after.Add(24 * time.Hour),
		PeriodEnd:   after.Add(days(20)),
		Impressions: impressions,
		Clicks:      clicks,
		Position:    position,
		IngestedAt:  after.Add(days(21)),
	}}))
}

func TestNewManager_Validation(t *testing.T) {
	_, err := NewManager(nil, newFakeContent(), config.DefaultThresholds())
	assert.Error(t, err)

	th := config.DefaultThresholds()
	th.ThresholdMode = "percent"
	_, err = NewManager(store.NewMemory(), newFakeContent(), th)
	assert.Error(t, err)
}

func TestPropose(t *testing.T) {
	f := newFixture(t, nil)
	priors := learning.NewPriors([]types.Learning{{IdeaType: "number-list", SampleCount: 4, AvgCTRDelta: 0.2}}, 1)

	e, err := f.m.Propose(ctx, scenarioOpportunity(), types.KindTitle, f.current(types.KindTitle), variants(), priors, types.ActorScheduled)
	require.NoError(t, err)

	assert.Equal(t, types.StatusProposed, e.Status)
	assert.Equal(t, "CTR Explained in 5 Steps", e.NewValue)
	assert.Equal(t, "number-list", e.IdeaType)
	assert.Equal(t, "What Is CTR", e.OriginalValue)
	assert.Equal(t, 0.01, e.PreCTR)
	assert.Equal(t, int64(5000), e.PreImpressions)
	assert.Equal(t, 7.0, e.PrePosition)
	assert.Equal(t, start, e.CreatedAt)
	assert.Zero(t, f.content.writes, "proposing never touches the page")

	trail, err := f.store.Transitions(ctx, e.ID)
	require.NoError(t, err)
	require.Len(t, trail, 1)
	assert.Equal(t, types.StatusProposed, trail[0].To)
	assert.Equal(t, types.ActorScheduled, trail[0].Actor)
}

func TestPropose_Errors(t *testing.T) {
	t.Run("no variants", func(t *testing.T) {
		f := newFixture(t, nil)
		_, err := f.m.Propose(ctx, scenarioOpportunity(), types.KindTitle, f.current(types.KindTitle), nil, learning.Priors{}, types.ActorManual)
		assert.ErrorIs(t, err, ErrNoVariants)
	})

	t.Run("active experiment", func(t *testing.T) {
		f := newFixture(t, nil)
		_, err := f.m.Propose(ctx, scenarioOpportunity(), types.KindTitle, f.current(types.KindTitle), variants(), learning.Priors{}, types.ActorManual)
		require.NoError(t, err)
		_, err = f.m.Propose(ctx, scenarioOpportunity(), types.KindTitle, f.current(types.KindTitle), variants(), learning.Priors{}, types.ActorManual)
		assert.ErrorIs(t, err, store.ErrActiveExperiment)
	})

	t.Run("empty original", func(t *testing.T) {
		f := newFixture(t, nil)
		e, err := f.m.Propose(ctx, scenarioOpportunity(), types.KindTitle, "", variants(), learning.Priors{}, types.ActorManual)
		require.NoError(t, err)
		assert.Empty(t, e.OriginalValue)
	})

	t.Run("unchanged content", func(t *testing.T) {
		f := newFixture(t, nil)
		_, err := f.m.Propose(ctx, scenarioOpportunity(), types.KindTitle, f.current(types.KindTitle),
			[]types.Variant{{Content: " What Is CTR ", IdeaType: "same"}}, learning.Priors{}, types.ActorManual)
		assert.ErrorContains(t, err, "does not change")
	})
}

func TestPropose_CapturesTheValueVariantsWereWrittenFor(t *testing.T) {
	f := newFixture(t, nil)
	f.content.failRead = errors.New("read after ideation")

	e, err := f.m.Propose(ctx, scenarioOpportunity(), types.KindTitle, "What Is CTR", variants(), learning.Priors{}, types.ActorScheduled)
	require.NoError(t, err)
	assert.Equal(t, "What Is CTR", e.OriginalValue)
}

func TestPropose_Composer(t *testing.T) {
	f := newFixture(t, nil, WithComposer(func(kind types.Kind, original string, v types.Variant) (string, error) {
		return original + "\n" + v.Content, nil
	}))
	f.content.values[key(pageURL, types.KindStructure)] = "<p>body</p>"

	e, err := f.m.Propose(ctx, scenarioOpportunity(), types.KindStructure, f.current(types.KindStructure),
		[]types.Variant{{Content: "<div>faq</div>", IdeaType: "faq-block"}}, learning.Priors{}, types.ActorScheduled)
	require.NoError(t, err)
	assert.Equal(t, "<p>body</p>\n<div>faq</div>", e.NewValue)
	assert.Equal(t, "<p>body</p>", e.OriginalValue)
}

func TestImplement(t *testing.T) {
	f := newFixture(t, nil)
	e := f.proposeAndImplement(t)

	assert.Equal(t, types.StatusMeasuring, e.Status)
	require.NotNil(t, e.ImplementedAt)
	require.NotNil(t, e.EvaluationDueAt)
	assert.Equal(t, start.Add(days(21)), *e.EvaluationDueAt)
	assert.Equal(t, "What Is CTR? A Plain Guide", f.content.values[key(pageURL, types.KindTitle)])

	trail, err := f.store.Transitions(ctx, e.ID)
	require.NoError(t, err)
	require.Len(t, trail, 3)
	assert.Equal(t, types.StatusProposed, trail[1].From)
	assert.Equal(t, types.StatusImplemented, trail[1].To)
	assert.Equal(t, types.StatusImplemented, trail[2].From)
	assert.Equal(t, types.StatusMeasuring, trail[2].To)

	_, err = f.m.Implement(ctx, e.ID, types.ActorScheduled)
	var terr *TransitionError
	assert.True(t, errors.As(err, &terr))
}

func TestImplement_WriteFailureStaysProposed(t *testing.T) {
	f := newFixture(t, nil)
	e, err := f.m.Propose(ctx, scenarioOpportunity(), types.KindTitle, f.current(types.KindTitle), variants(), learning.Priors{}, types.ActorScheduled)
	require.NoError(t, err)

	f.content.failWrite = errors.New("401 unauthorized")
	_, err = f.m.Implement(ctx, e.ID, types.ActorScheduled)

	var implErr *ImplementationError
	require.True(t, errors.As(err, &implErr))
	assert.Equal(t, pageURL, implErr.URL)
	assert.ErrorContains(t, err, "401 unauthorized")

	got, err := f.store.GetExperiment(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusProposed, got.Status)
	assert.Nil(t, got.ImplementedAt)
	assert.Equal(t, "What Is CTR", f.content.values[key(pageURL, types.KindTitle)])
}

func TestImplement_UnknownID(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.m.Implement(ctx, uuid.New(), types.ActorManual)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestEvaluate_ScenarioImproved(t *testing.T) {
	f := newFixture(t, nil)
	e := f.proposeAndImplement(t)

	f.addPostSnapshot(t, *e.ImplementedAt, 1000, 42, 6.8)
	f.clock.advance(days(21))

	ev, err := f.m.Evaluate(ctx, e.ID, types.ActorScheduled)
	require.NoError(t, err)
	assert.False(t, ev.Pending)

	got := ev.Experiment
	assert.Equal(t, types.StatusEvaluated, got.Status)
	require.NotNil(t, got.Outcome)
	assert.Equal(t, types.OutcomeImproved, *got.Outcome)
	assert.InDelta(t, 0.042, *got.PostCTR, 1e-9)
	assert.Equal(t, int64(1000), *got.PostImpressions)
	assert.Equal(t, int64(42), *got.PostClicks)
	assert.NotContains(t, got.OutcomeNotes, "ranking change")
	require.NotNil(t, got.EvaluatedAt)

	trail, err := f.store.Transitions(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusEvaluated, trail[len(trail)-1].To)
}

func TestEvaluate_Pending(t *testing.T) {
	tests := []struct {
		name        string
		impressions int64
		advance     int
		wantReason  string
	}{
		{"not due yet", 5000, 10, "waiting for evaluation date"},
		{"too few impressions", 10, 22, "10 of 50"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			e := f.proposeAndImplement(t)
			f.addPostSnapshot(t, *e.ImplementedAt, tt.impressions, 1, 7)
			f.clock.advance(days(tt.advance))

			ev, err := f.m.Evaluate(ctx, e.ID, types.ActorScheduled)
			require.NoError(t, err)
			assert.True(t, ev.Pending)
			assert.Contains(t, ev.Reason, tt.wantReason)

			got, err := f.store.GetExperiment(ctx, e.ID)
			require.NoError(t, err)
			assert.Equal(t, types.StatusMeasuring, got.Status)
			assert.Nil(t, got.Outcome)
		})
	}
}

func TestEvaluate_OnlyCountsDataAfterImplementation(t *testing.T) {
	f := newFixture(t, nil)
	e := f.proposeAndImplement(t)

	// a snapshot that overlaps the change carries pre-change traffic
	require.NoError(t, f.store.SaveSnapshots(ctx, []types.PageMetricSnapshot{{
		URL: pageURL, PeriodStart: start.Add(-days(7)), PeriodEnd: start.Add(days(20)),
		Impressions: 5000, Clicks: 500, Position: 7,
	}}))
	f.clock.advance(days(21))

	ev, err := f.m.Evaluate(ctx, e.ID, types.ActorScheduled)
	require.NoError(t, err)
	assert.True(t, ev.Pending)
}

func TestEvaluate_OverlappingWindowsCountedOnce(t *testing.T) {
	window := func(e *types.Experiment, from, to int) types.PageMetricSnapshot {
		return types.PageMetricSnapshot{
			URL:         pageURL,
			PeriodStart: e.ImplementedAt.Add(days(from)),
			PeriodEnd:   e.ImplementedAt.Add(days(to)),
			Impressions: 30,
			Clicks:      3,
			Position:    6,
			IngestedAt:  e.ImplementedAt.Add(days(to + 2)),
		}
	}

	tests := []struct {
		name string
		save func(e *types.Experiment) [][]types.PageMetricSnapshot
	}{
		{"overlapping ranges", func(e *types.Experiment) [][]types.PageMetricSnapshot {
			return [][]types.PageMetricSnapshot{{window(e, 1, 29)}, {window(e, 8, 36)}}
		}},
		{"same range ingested twice", func(e *types.Experiment) [][]types.PageMetricSnapshot {
			return [][]types.PageMetricSnapshot{{window(e, 1, 29)}, {window(e, 1, 29)}}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			e := f.proposeAndImplement(t)
			for _, batch := range tt.save(e) {
				require.NoError(t, f.store.SaveSnapshots(ctx, batch))
			}
			f.clock.advance(days(40))

			ev, err := f.m.Evaluate(ctx, e.ID, types.ActorScheduled)
			require.NoError(t, err)
			assert.True(t, ev.Pending)
			assert.Contains(t, ev.Reason, "30 of 50")
		})
	}
}

func TestDistinctWindows(t *testing.T) {
	at := func(from, to int, impressions int64) types.PageMetricSnapshot {
		return types.PageMetricSnapshot{
			URL:         pageURL,
			PeriodStart: start.Add(days(from)),
			PeriodEnd:   start.Add(days(to)),
			Impressions: impressions,
			Position:    5,
		}
	}

	got := DistinctWindows([]types.PageMetricSnapshot{
		at(1, 28, 100),
		at(8, 35, 200),
		at(36, 63, 300),
		at(29, 56, 400),
	})
	require.Len(t, got, 2)
	assert.Equal(t, int64(300), got[0].Impressions)
	assert.Equal(t, int64(200), got[1].Impressions)

	assert.Equal(t, int64(500), Aggregate(got).Impressions)
	assert.Empty(t, DistinctWindows(nil))
}

func TestEvaluate_GracePeriodInconclusive(t *testing.T) {
	f := newFixture(t, nil)
	e := f.proposeAndImplement(t)
	f.addPostSnapshot(t, *e.ImplementedAt, 10, 0, 9)
	f.clock.advance(days(120))

	ev, err := f.m.Evaluate(ctx, e.ID, types.ActorScheduled)
	require.NoError(t, err)
	assert.False(t, ev.Pending)
	assert.Equal(t, types.StatusEvaluated, ev.Experiment.Status)
	assert.Equal(t, types.OutcomeInconclusive, *ev.Experiment.Outcome)
	assert.Equal(t, int64(10), *ev.Experiment.PostImpressions)
}

func TestEvaluate_PositionConfound(t *testing.T) {
	f := newFixture(t, nil)
	e := f.proposeAndImplement(t)
	f.addPostSnapshot(t, *e.ImplementedAt, 2000, 80, 3.5)
	f.clock.advance(days(21))

	ev, err := f.m.Evaluate(ctx, e.ID, types.ActorScheduled)
	require.NoError(t, err)
	assert.Contains(t, ev.Experiment.OutcomeNotes, "ranking change")
}

func TestEvaluate_RequiresMeasuring(t *testing.T) {
	f := newFixture(t, nil)
	e, err := f.m.Propose(ctx, scenarioOpportunity(), types.KindTitle, f.current(types.KindTitle), variants(), learning.Priors{}, types.ActorScheduled)
	require.NoError(t, err)

	_, err = f.m.Evaluate(ctx, e.ID, types.ActorScheduled)
	var terr *TransitionError
	assert.True(t, errors.As(err, &terr))
}

func TestClassify(t *testing.T) {
	relative := config.DefaultThresholds()
	absolute := config.DefaultThresholds()
	absolute.ThresholdMode = config.ThresholdAbsolute
	absolute.OutcomeThreshold = 0.005

	tests := []struct {
		name     string
		pre      float64
		post     float64
		th       config.Thresholds
		expected types.Outcome
	}{
		{"relative improved", 0.01, 0.042, relative, types.OutcomeImproved},
		{"relative just above threshold", 0.02, 0.0211, relative, types.OutcomeImproved},
		{"relative within band", 0.02, 0.0205, relative, types.OutcomeNoChange},
		{"relative worsened", 0.02, 0.015, relative, types.OutcomeWorsened},
		{"zero baseline with clicks", 0, 0.01, relative, types.OutcomeImproved},
		{"zero baseline no clicks", 0, 0, relative, types.OutcomeNoChange},
		{"absolute improved", 0.01, 0.016, absolute, types.OutcomeImproved},
		{"absolute small move", 0.01, 0.013, absolute, types.OutcomeNoChange},
		{"absolute worsened", 0.02, 0.01, absolute, types.OutcomeWorsened},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _ := Classify(tt.pre, tt.post, tt.th)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestRevert(t *testing.T) {
	for _, implement := range []bool{false, true} {
		t.Run(fmt.Sprintf("implemented=%v", implement), func(t *testing.T) {
			f := newFixture(t, nil)
			e, err := f.m.Propose(ctx, scenarioOpportunity(), types.KindTitle, f.current(types.KindTitle), variants(), learning.Priors{}, types.ActorScheduled)
			require.NoError(t, err)
			prior := types.StatusProposed
			if implement {
				_, err = f.m.Implement(ctx, e.ID, types.ActorScheduled)
				require.NoError(t, err)
				prior = types.StatusMeasuring
			}

			f.clock.advance(days(3))
			got, err := f.m.Revert(ctx, e.ID, types.ActorManual, "editor request")
			require.NoError(t, err)

			assert.Equal(t, types.StatusReverted, got.Status)
			assert.Equal(t, "editor request", got.RevertReason)
			assert.Equal(t, start.Add(days(3)), *got.RevertedAt)
			assert.Equal(t, "What Is CTR", f.content.values[key(pageURL, types.KindTitle)])

			trail, err := f.store.Transitions(ctx, e.ID)
			require.NoError(t, err)
			last := trail[len(trail)-1]
			assert.Equal(t, prior, last.From)
			assert.Equal(t, types.StatusReverted, last.To)
			assert.Equal(t, types.ActorManual, last.Actor)

			_, err = f.m.Revert(ctx, e.ID, types.ActorManual, "again")
			var terr *TransitionError
			assert.True(t, errors.As(err, &terr), "terminal experiments cannot be reverted")
		})
	}
}

func TestRevert_WriteFailureChangesNothing(t *testing.T) {
	f := newFixture(t, nil)
	e := f.proposeAndImplement(t)

	f.content.failWrite = errors.New("timeout")
	_, err := f.m.Revert(ctx, e.ID, types.ActorManual, "bad title")

	var rerr *RevertError
	require.True(t, errors.As(err, &rerr))

	got, err := f.store.GetExperiment(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusMeasuring, got.Status)
	assert.Nil(t, got.RevertedAt)
}

func TestSweepMeasuring(t *testing.T) {
	f := newFixture(t, nil)
	e := f.proposeAndImplement(t)
	f.addPostSnapshot(t, *e.ImplementedAt, 1000, 5, 7)

	other := scenarioOpportunity()
	other.URL = "https://example.com/other/"
	f.content.values[key(other.URL, types.KindTitle)] = "Other"
	e2, err := f.m.Propose(ctx, other, types.KindTitle, "Other", variants(), learning.Priors{}, types.ActorScheduled)
	require.NoError(t, err)
	_, err = f.m.Implement(ctx, e2.ID, types.ActorScheduled)
	require.NoError(t, err)

	f.clock.advance(days(21))
	res, err := f.m.SweepMeasuring(ctx, types.ActorScheduled)
	require.NoError(t, err)

	require.Len(t, res.Evaluated, 1)
	assert.Equal(t, e.ID, res.Evaluated[0].Experiment.ID)
	assert.Equal(t, types.OutcomeWorsened, *res.Evaluated[0].Experiment.Outcome)
	require.Len(t, res.Pending, 1)
	assert.Equal(t, e2.ID, res.Pending[0].Experiment.ID)
	assert.Empty(t, res.Failed)
}

func TestSweepMeasuring_Cancelled(t *testing.T) {
	f := newFixture(t, nil)
	f.proposeAndImplement(t)

	cctx, cancel := context.WithCancel(ctx)
	cancel()
	_, err := f.m.SweepMeasuring(cctx, types.ActorScheduled)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCheckAlerts(t *testing.T) {
	t.Run("decline without auto revert", func(t *testing.T) {
		f := newFixture(t, nil)
		e := f.proposeAndImplement(t)
		f.addPostSnapshot(t, *e.ImplementedAt, 1000, 5, 7) // -50%

		alerts, err := f.m.CheckAlerts(ctx)
		require.NoError(t, err)
		require.Len(t, alerts, 1)
		assert.Equal(t, AlertDecline, alerts[0].Kind)
		assert.InDelta(t, -0.5, alerts[0].Change, 1e-9)
		assert.False(t, alerts[0].Reverted)
	})

	t.Run("decline with auto revert", func(t *testing.T) {
		f := newFixture(t, func(th *config.Thresholds) { th.AutoRevert = true })
		e := f.proposeAndImplement(t)
		f.addPostSnapshot(t, *e.ImplementedAt, 1000, 5, 7)

		alerts, err := f.m.CheckAlerts(ctx)
		require.NoError(t, err)
		require.Len(t, alerts, 1)
		assert.True(t, alerts[0].Reverted)

		got, err := f.store.GetExperiment(ctx, e.ID)
		require.NoError(t, err)
		assert.Equal(t, types.StatusReverted, got.Status)
		assert.Equal(t, "What Is CTR", f.content.values[key(pageURL, types.KindTitle)])
	})

	t.Run("gain", func(t *testing.T) {
		f := newFixture(t, nil)
		e := f.proposeAndImplement(t)
		f.addPostSnapshot(t, *e.ImplementedAt, 1000, 20, 7) // +100%

		alerts, err := f.m.CheckAlerts(ctx)
		require.NoError(t, err)
		require.Len(t, alerts, 1)
		assert.Equal(t, AlertGain, alerts[0].Kind)
	})

	t.Run("quiet", func(t *testing.T) {
		f := newFixture(t, nil)
		e := f.proposeAndImplement(t)
		f.addPostSnapshot(t, *e.ImplementedAt, 1000, 11, 7)
		f.addPostSnapshot(t, e.ImplementedAt.Add(days(20)), 20, 0, 7)

		alerts, err := f.m.CheckAlerts(ctx)
		require.NoError(t, err)
		assert.Empty(t, alerts)
	})

	t.Run("overlapping windows are not double counted", func(t *testing.T) {
		f := newFixture(t, nil)
		e := f.proposeAndImplement(t)
		f.addPostSnapshot(t, *e.ImplementedAt, 30, 0, 7)
		f.addPostSnapshot(t, e.ImplementedAt.Add(days(7)), 30, 0, 7)

		alerts, err := f.m.CheckAlerts(ctx)
		require.NoError(t, err)
		assert.Empty(t, alerts, "30 distinct impressions are below the minimum")
	})
}

// Under any interleaving of operations a page never has two active experiments,
// and every revert restores the exact original value.
func TestLifecycle_RandomOperations(t *testing.T) {
	f := newFixture(t, nil)
	rng := rand.New(rand.NewSource(42))
	original := f.content.values[key(pageURL, types.KindTitle)]

	for i := 0; i < 200; i++ {
		list, err := f.store.ListExperiments(ctx, types.ExperimentFilter{URL: pageURL})
		require.NoError(t, err)

		active := 0
		var current *types.Experiment
		for j := range list {
			if list[j].Active() {
				active++
				current = &list[j]
			}
		}
		require.LessOrEqual(t, active, 1)

		switch rng.Intn(4) {
		case 0:
			_, err = f.m.Propose(ctx, scenarioOpportunity(), types.KindTitle, f.current(types.KindTitle), variants(), learning.Priors{}, types.ActorScheduled)
			if current != nil {
				assert.ErrorIs(t, err, store.ErrActiveExperiment)
			}
		case 1:
			if current != nil {
				_, _ = f.m.Implement(ctx, current.ID, types.ActorScheduled)
			}
		case 2:
			if current != nil {
				f.clock.advance(days(rng.Intn(150)))
				_, _ = f.m.Evaluate(ctx, current.ID, types.ActorScheduled)
			}
		case 3:
			if current != nil {
				_, err = f.m.Revert(ctx, current.ID, types.ActorManual, "random")
				require.NoError(t, err)
				assert.Equal(t, original, f.content.values[key(pageURL, types.KindTitle)])
			}
		}

		// evaluated titles stay live; put the baseline back so the next proposal differs
		f.content.values[key(pageURL, types.KindTitle)] = original
	}
}
