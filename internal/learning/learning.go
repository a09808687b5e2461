// Package learning aggregates evaluated experiments into per idea-type priors.
package learning

import (
	"sort"
	"time"

	"github.com/jonathan/ctr-optimizer/internal/types"
)

// Recompute derives one Learning per idea type from the evaluated experiments.
// Inconclusive experiments carry no signal and are skipped.
// The result is sorted by idea type.
func Recompute(experiments []types.Experiment, now time.Time) []types.Learning {
	type acc struct {
		sum      float64
		n        int
		improved int
		worsened int
	}
	byType := make(map[string]*acc)

	for i := range experiments {
		e := &experiments[i]
		if e.Status != types.StatusEvaluated || e.Outcome == nil || *e.Outcome == types.OutcomeInconclusive {
			continue
		}
		delta, ok := e.CTRDelta()
		if !ok {
			continue
		}
		a, exists := byType[e.IdeaType]
		if !exists {
			a = &acc{}
			byType[e.IdeaType] = a
		}
		a.sum += delta
		a.n++
		switch *e.Outcome {
		case types.OutcomeImproved:
			a.improved++
		case types.OutcomeWorsened:
			a.worsened++
		}
	}

	learnings := make([]types.Learning, 0, len(byType))
	for ideaType, a := range byType {
		learnings = append(learnings, types.Learning{
			IdeaType:      ideaType,
			SampleCount:   a.n,
			AvgCTRDelta:   a.sum / float64(a.n),
			ImprovedCount: a.improved,
			WorsenedCount: a.worsened,
			ComputedAt:    now,
		})
	}
	sort.Slice(learnings, func(i, j int) bool {
		return learnings[i].IdeaType < learnings[j].IdeaType
	})
	return learnings
}

// Priors looks up the learned mean CTR delta of an idea type.
type Priors struct {
	byType     map[string]types.Learning
	minSamples int
}

// NewPriors indexes learnings. Idea types with fewer than minSamples samples are treated as unknown.
func NewPriors(learnings []types.Learning, minSamples int) Priors {
	if minSamples < 1 {
		minSamples = 1
	}
	byType := make(map[string]types.Learning, len(learnings))
	for _, l := range learnings {
		byType[l.IdeaType] = l
	}
	return Priors{byType: byType, minSamples: minSamples}
}

// Prior returns the mean CTR delta for ideaType, or a neutral 0 without enough samples.
func (p Priors) Prior(ideaType string) float64 {
	l, ok := p.byType[ideaType]
	if !ok || l.SampleCount < p.minSamples {
		return 0
	}
	return l.AvgCTRDelta
}

// Top returns up to n learnings ordered by prior, best first.
// Used to give ideation the idea types that have worked on this site.
func (p Priors) Top(n int) []types.Learning {
	out := make([]types.Learning, 0, len(p.byType))
	for _, l := range p.byType {
		if l.SampleCount >= p.minSamples {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].AvgCTRDelta != out[j].AvgCTRDelta {
			return out[i].AvgCTRDelta > out[j].AvgCTRDelta
		}
		return out[i].IdeaType < out[j].IdeaType
	})
	if n >= 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// SelectVariant picks the variant whose idea type has the highest prior.
// Ties keep the collaborator's order, so the first of equals wins.
// It returns false only for an empty list.
func SelectVariant(variants []types.Variant, priors Priors) (types.Variant, bool) {
	if len(variants) == 0 {
		return types.Variant{}, false
	}
	best := 0
	bestPrior := priors.Prior(variants[0].IdeaType)
	for i := 1; i < len(variants); i++ {
		if p := priors.Prior(variants[i].IdeaType); p > bestPrior {
			best, bestPrior = i, p
		}
	}
	return variants[best], true
}
