package types

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Kind identifies which page element an experiment changes.
type Kind string

const (
	// KindTitle changes the SEO title of a page.
	KindTitle Kind = "title-change"
	// KindStructure changes the body structure of a page (definition block, FAQ, lists).
	KindStructure Kind = "structure-change"
)

// ParseKind converts a CLI/config string into a Kind.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindTitle, KindStructure:
		return Kind(s), nil
	case "title":
		return KindTitle, nil
	case "structure":
		return KindStructure, nil
	default:
		return "", fmt.Errorf("unknown experiment kind %q", s)
	}
}

// Status is the lifecycle state of an experiment.
type Status string

const (
	StatusProposed    Status = "proposed"
	StatusImplemented Status = "implemented"
	StatusMeasuring   Status = "measuring"
	StatusEvaluated   Status = "evaluated"
	StatusReverted    Status = "reverted"
)

// NonTerminalStatuses lists every status that still blocks its page.
var NonTerminalStatuses = []Status{StatusProposed, StatusImplemented, StatusMeasuring}

// Terminal reports whether no further forward transition is possible.
func (s Status) Terminal() bool {
	return s == StatusEvaluated || s == StatusReverted
}

// forward lists the single forward successor of each non-terminal status.
var forward = map[Status]Status{
	StatusProposed:    StatusImplemented,
	StatusImplemented: StatusMeasuring,
	StatusMeasuring:   StatusEvaluated,
}

// CanTransition reports whether from -> to is a legal lifecycle step.
// Forward steps may not skip a state; revert is allowed from any non-terminal status.
func CanTransition(from, to Status) bool {
	if from.Terminal() {
		return false
	}
	if to == StatusReverted {
		return true
	}
	return forward[from] == to
}

// Outcome classifies an evaluated experiment.
type Outcome string

const (
	OutcomeImproved     Outcome = "improved"
	OutcomeWorsened     Outcome = "worsened"
	OutcomeNoChange     Outcome = "no-change"
	OutcomeInconclusive Outcome = "inconclusive"
)

// Actor identifies what triggered a transition.
type Actor string

const (
	ActorScheduled Actor = "scheduled"
	ActorManual    Actor = "manual"
)

// Experiment is a single page-level optimization attempt and its full history.
type Experiment struct {
	ID              uuid.UUID  `json:"id"`
	URL             string     `json:"url"`
	Kind            Kind       `json:"kind"`
	OriginalValue   string     `json:"original_value"`
	NewValue        string     `json:"new_value"`
	IdeaType        string     `json:"idea_type"`
	Hypothesis      string     `json:"hypothesis,omitempty"`
	Status          Status     `json:"status"`
	CreatedAt       time.Time  `json:"created_at"`
	ImplementedAt   *time.Time `json:"implemented_at,omitempty"`
	EvaluationDueAt *time.Time `json:"evaluation_due_at,omitempty"`
	EvaluatedAt     *time.Time `json:"evaluated_at,omitempty"`
	RevertedAt      *time.Time `json:"reverted_at,omitempty"`

	PreCTR         float64 `json:"pre_ctr"`
	PreImpressions int64   `json:"pre_impressions"`
	PrePosition    float64 `json:"pre_position"`

	PostCTR         *float64 `json:"post_ctr,omitempty"`
	PostImpressions *int64   `json:"post_impressions,omitempty"`
	PostClicks      *int64   `json:"post_clicks,omitempty"`
	PostPosition    *float64 `json:"post_position,omitempty"`

	Outcome      *Outcome `json:"outcome,omitempty"`
	OutcomeNotes string   `json:"outcome_notes,omitempty"`
	RevertReason string   `json:"revert_reason,omitempty"`
}

// Active reports whether the experiment still blocks its page.
func (e *Experiment) Active() bool {
	return !e.Status.Terminal()
}

// LastChangeAt returns the most recent time this experiment changed live page content.
// An experiment that was never implemented never touched the page.
func (e *Experiment) LastChangeAt() *time.Time {
	if e.ImplementedAt == nil {
		return nil
	}
	if e.RevertedAt != nil && e.RevertedAt.After(*e.ImplementedAt) {
		return e.RevertedAt
	}
	return e.ImplementedAt
}

// CTRDelta returns the relative CTR change (post-pre)/pre, or false when not evaluated.
// A zero baseline counts as +100% when any post-change click was recorded.
func (e *Experiment) CTRDelta() (float64, bool) {
	if e.PostCTR == nil {
		return 0, false
	}
	if e.PreCTR <= 0 {
		if *e.PostCTR > 0 {
			return 1.0, true
		}
		return 0, true
	}
	return (*e.PostCTR - e.PreCTR) / e.PreCTR, true
}

// Transition is one audit-trail entry of an experiment's lifecycle.
type Transition struct {
	ID           int64     `json:"id,omitempty"`
	ExperimentID uuid.UUID `json:"experiment_id"`
	From         Status    `json:"from"`
	To           Status    `json:"to"`
	Actor        Actor     `json:"actor"`
	Reason       string    `json:"reason,omitempty"`
	At           time.Time `json:"at"`
}

// ExperimentFilter narrows experiment listings.
type ExperimentFilter struct {
	URL      string
	Statuses []Status
	Limit    int
}

// Matches reports whether e satisfies the filter.
func (f ExperimentFilter) Matches(e *Experiment) bool {
	if f.URL != "" && e.URL != f.URL {
		return false
	}
	if len(f.Statuses) == 0 {
		return true
	}
	for _, s := range f.Statuses {
		if e.Status == s {
			return true
		}
	}
	return false
}
