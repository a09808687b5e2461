// Package experiment runs the lifecycle of page experiments:
// propose, implement, measure, evaluate and revert.
package experiment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonathan/ctr-optimizer/internal/config"
	"github.com/jonathan/ctr-optimizer/internal/learning"
	"github.com/jonathan/ctr-optimizer/internal/observability"
	"github.com/jonathan/ctr-optimizer/internal/store"
	"github.com/jonathan/ctr-optimizer/internal/types"
	"github.com/sirupsen/logrus"
)

// ContentManager reads and writes the live value an experiment changes.
type ContentManager interface {
	ReadContent(ctx context.Context, url string, kind types.Kind) (string, error)
	WriteContent(ctx context.Context, url string, kind types.Kind, value string) error
}

// Composer turns the selected variant into the complete new value for the page.
type Composer func(kind types.Kind, original string, v types.Variant) (string, error)

// Manager drives experiments through their lifecycle and records every transition.
type Manager struct {
	store   store.Store
	content ContentManager
	th      config.Thresholds
	log     logrus.FieldLogger
	now     func() time.Time
	compose Composer
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithLogger sets the logger.
func WithLogger(log logrus.FieldLogger) Option {
	return func(m *Manager) { m.log = log }
}

// WithComposer sets how a variant becomes the page's new value.
// The default uses the variant content verbatim.
func WithComposer(c Composer) Option {
	return func(m *Manager) { m.compose = c }
}

// NewManager validates the thresholds and builds a Manager.
func NewManager(st store.Store, content ContentManager, th config.Thresholds, opts ...Option) (*Manager, error) {
	if st == nil || content == nil {
		return nil, fmt.Errorf("experiment manager needs a store and a content manager")
	}
	if err := th.Validate(); err != nil {
		return nil, fmt.Errorf("failed to create experiment manager: %w", err)
	}
	m := &Manager{
		store:   st,
		content: content,
		th:      th,
		log:     observability.Discard(),
		now:     time.Now,
		compose: func(_ types.Kind, _ string, v types.Variant) (string, error) { return v.Content, nil },
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Propose selects the best variant for opp and records it as a proposed experiment.
// original is the live value the variants were generated from. It is stored as
// the experiment's original value so the change can always be reverted.
func (m *Manager) Propose(ctx context.Context, opp types.Opportunity, kind types.Kind, original string, variants []types.Variant, priors learning.Priors, actor types.Actor) (*types.Experiment, error) {
	variant, ok := learning.SelectVariant(variants, priors)
	if !ok {
		return nil, ErrNoVariants
	}

	active, err := m.store.ListExperiments(ctx, types.ExperimentFilter{URL: opp.URL, Statuses: types.NonTerminalStatuses, Limit: 1})
	if err != nil {
		return nil, fmt.Errorf("failed to check active experiments: %w", err)
	}
	if len(active) > 0 {
		return nil, store.ErrActiveExperiment
	}

	newValue, err := m.compose(kind, original, variant)
	if err != nil {
		return nil, fmt.Errorf("failed to compose new content for %s: %w", opp.URL, err)
	}
	if strings.TrimSpace(newValue) == strings.TrimSpace(original) {
		return nil, fmt.Errorf("variant for %s does not change the page", opp.URL)
	}

	now := m.now()
	e := &types.Experiment{
		ID:             uuid.New(),
		URL:            opp.URL,
		Kind:           kind,
		OriginalValue:  original,
		NewValue:       newValue,
		IdeaType:       variant.IdeaType,
		Hypothesis:     variant.Rationale,
		Status:         types.StatusProposed,
		CreatedAt:      now,
		PreCTR:         opp.ActualCTR,
		PreImpressions: opp.Impressions,
		PrePosition:    opp.Position,
	}

	t := types.Transition{
		ExperimentID: e.ID,
		To:           types.StatusProposed,
		Actor:        actor,
		Reason:       fmt.Sprintf("gap %.4f, priority %.3f", opp.Gap, opp.Priority),
		At:           now,
	}
	if err := m.store.CreateExperiment(ctx, e, t); err != nil {
		if errors.Is(err, store.ErrActiveExperiment) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to save proposed experiment: %w", err)
	}

	m.log.WithFields(logrus.Fields{
		"experiment": e.ID,
		"url":        e.URL,
		"kind":       e.Kind,
		"idea_type":  e.IdeaType,
	}).Info("experiment proposed")

	return e, nil
}

// Implement pushes the new value live and moves the experiment into measuring.
// A rejected write leaves the experiment proposed and returns *ImplementationError.
func (m *Manager) Implement(ctx context.Context, id uuid.UUID, actor types.Actor) (*types.Experiment, error) {
	e, err := m.store.GetExperiment(ctx, id)
	if err != nil {
		return nil, err
	}
	if e.Status != types.StatusProposed {
		return nil, &TransitionError{ExperimentID: id, From: e.Status, To: types.StatusImplemented}
	}

	if err := m.content.WriteContent(ctx, e.URL, e.Kind, e.NewValue); err != nil {
		return nil, &ImplementationError{ExperimentID: id, URL: e.URL, Cause: err}
	}

	now := m.now()
	due := now.Add(m.th.MeasurementWindow())
	updated := *e
	updated.ImplementedAt = &now
	updated.EvaluationDueAt = &due
	updated.Status = types.StatusMeasuring

	transitions := []types.Transition{
		{ExperimentID: id, From: types.StatusProposed, To: types.StatusImplemented, Actor: actor, Reason: "content updated", At: now},
		{ExperimentID: id, From: types.StatusImplemented, To: types.StatusMeasuring, Actor: actor, Reason: "evaluation due " + due.Format(types.DateLayout), At: now},
	}
	if err := m.store.UpdateExperiment(ctx, &updated, transitions...); err != nil {
		// The page changed but the record did not; put the page back.
		if rbErr := m.content.WriteContent(ctx, e.URL, e.Kind, e.OriginalValue); rbErr != nil {
			m.log.WithError(rbErr).WithField("url", e.URL).Error("failed to restore content after persist failure")
		}
		return nil, fmt.Errorf("failed to persist implemented experiment: %w", err)
	}

	m.log.WithFields(logrus.Fields{
		"experiment": id,
		"url":        e.URL,
		"due":        due.Format(types.DateLayout),
	}).Info("experiment implemented")

	return &updated, nil
}

// Revert writes the original value back and closes the experiment.
// Allowed from any non-terminal status. A failed write returns *RevertError and changes nothing.
func (m *Manager) Revert(ctx context.Context, id uuid.UUID, actor types.Actor, reason string) (*types.Experiment, error) {
	e, err := m.store.GetExperiment(ctx, id)
	if err != nil {
		return nil, err
	}
	if !types.CanTransition(e.Status, types.StatusReverted) {
		return nil, &TransitionError{ExperimentID: id, From: e.Status, To: types.StatusReverted}
	}

	if err := m.content.WriteContent(ctx, e.URL, e.Kind, e.OriginalValue); err != nil {
		return nil, &RevertError{ExperimentID: id, URL: e.URL, Cause: err}
	}

	now := m.now()
	prior := e.Status
	updated := *e
	updated.Status = types.StatusReverted
	updated.RevertedAt = &now
	updated.RevertReason = reason

	t := types.Transition{ExperimentID: id, From: prior, To: types.StatusReverted, Actor: actor, Reason: reason, At: now}
	if err := m.store.UpdateExperiment(ctx, &updated, t); err != nil {
		return nil, fmt.Errorf("failed to persist reverted experiment: %w", err)
	}

	m.log.WithFields(logrus.Fields{
		"experiment":   id,
		"url":          e.URL,
		"prior_status": prior,
		"reason":       reason,
		"actor":        actor,
	}).Warn("experiment reverted")

	return &updated, nil
}
