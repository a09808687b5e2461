package experiment

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jonathan/ctr-optimizer/internal/types"
	"github.com/sirupsen/logrus"
)

// AlertKind is the direction of a large early movement.
type AlertKind string

const (
	AlertDecline AlertKind = "decline"
	AlertGain    AlertKind = "gain"
)

// Alert flags a measuring experiment whose CTR moved sharply before evaluation.
type Alert struct {
	ExperimentID uuid.UUID
	URL          string
	Kind         AlertKind
	Change       float64 // relative CTR change
	Reverted     bool
	Message      string
}

// CheckAlerts looks at measuring experiments with enough post-change data
// and flags severe declines and strong gains. With AutoRevert, declines are reverted.
func (m *Manager) CheckAlerts(ctx context.Context) ([]Alert, error) {
	measuring, err := m.store.ListExperiments(ctx, types.ExperimentFilter{Statuses: []types.Status{types.StatusMeasuring}})
	if err != nil {
		return nil, fmt.Errorf("failed to list measuring experiments: %w", err)
	}

	var alerts []Alert
	for i := range measuring {
		if err := ctx.Err(); err != nil {
			return alerts, err
		}
		e := measuring[i]
		if e.ImplementedAt == nil || e.PreCTR <= 0 {
			continue
		}

		post, err := m.store.SnapshotsAfter(ctx, e.URL, *e.ImplementedAt)
		if err != nil {
			return alerts, fmt.Errorf("failed to load post-change metrics: %w", err)
		}
		pm := Aggregate(post)
		if pm.Impressions < m.th.MinPostImpressions {
			continue
		}

		change := (pm.CTR() - e.PreCTR) / e.PreCTR
		var alert Alert
		switch {
		case change <= -m.th.SevereDropThreshold:
			alert = Alert{ExperimentID: e.ID, URL: e.URL, Kind: AlertDecline, Change: change,
				Message: fmt.Sprintf("%s ctr down %.1f%% since %s", e.URL, -change*100, e.Kind)}
		case change >= m.th.StrongGainThreshold:
			alert = Alert{ExperimentID: e.ID, URL: e.URL, Kind: AlertGain, Change: change,
				Message: fmt.Sprintf("%s ctr up %.1f%% since %s", e.URL, change*100, e.Kind)}
		default:
			continue
		}

		if alert.Kind == AlertDecline && m.th.AutoRevert {
			reason := fmt.Sprintf("automatic revert: ctr dropped %.1f%%", -change*100)
			if _, err := m.Revert(ctx, e.ID, types.ActorScheduled, reason); err != nil {
				m.log.WithError(err).WithField("url", e.URL).Error("automatic revert failed")
			} else {
				alert.Reverted = true
				alert.Message += " (reverted)"
			}
		}

		m.log.WithFields(logrus.Fields{
			"experiment": e.ID,
			"url":        e.URL,
			"alert":      alert.Kind,
			"change":     fmt.Sprintf("%+.1f%%", change*100),
		}).Warn("experiment alert")

		alerts = append(alerts, alert)
	}
	return alerts, nil
}
