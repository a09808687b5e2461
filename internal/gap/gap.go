// Package gap finds pages whose CTR falls short of the site benchmark and ranks them.
package gap

import (
	"fmt"
	"sort"
	"time"

	"github.com/jonathan/ctr-optimizer/internal/config"
	"github.com/jonathan/ctr-optimizer/internal/types"
)

// Input is everything one analysis run looks at.
type Input struct {
	// Snapshots holds the latest snapshot per page.
	Snapshots   []types.PageMetricSnapshot
	Benchmark   *types.Benchmark
	Experiments []types.Experiment
	Now         time.Time
}

// Result is the ranked opportunity list plus the reason every other page was left out.
type Result struct {
	Opportunities []types.Opportunity
	Exclusions    []types.Exclusion
}

// Analyzer ranks underperforming pages.
type Analyzer struct {
	th config.Thresholds
}

// NewAnalyzer validates the thresholds and returns an Analyzer bound to them.
func NewAnalyzer(th config.Thresholds) (*Analyzer, error) {
	if err := th.Validate(); err != nil {
		return nil, fmt.Errorf("failed to create gap analyzer: %w", err)
	}
	return &Analyzer{th: th}, nil
}

// pageHistory is what the experiment log says about one URL.
type pageHistory struct {
	active     bool
	lastChange *time.Time
}

// Analyze returns opportunities ordered by priority desc, impressions desc, url asc,
// capped at MaxCandidates.
func (a *Analyzer) Analyze(in Input) Result {
	history := buildHistory(in.Experiments)

	var result Result
	candidates := make([]types.Opportunity, 0, len(in.Snapshots))

	for _, s := range in.Snapshots {
		if reason := a.exclude(s, history[s.URL], in.Now); reason != "" {
			result.Exclusions = append(result.Exclusions, types.Exclusion{URL: s.URL, Reason: reason})
			continue
		}

		expected, ok := in.Benchmark.ExpectedAt(s.Position)
		if !ok {
			result.Exclusions = append(result.Exclusions, types.Exclusion{URL: s.URL, Reason: types.ReasonNoBenchmark})
			continue
		}

		actual := s.CTR()
		gap := expected - actual
		if gap <= a.th.MinGap {
			result.Exclusions = append(result.Exclusions, types.Exclusion{URL: s.URL, Reason: types.ReasonNoGap})
			continue
		}

		candidates = append(candidates, types.Opportunity{
			URL:         s.URL,
			ActualCTR:   actual,
			ExpectedCTR: expected,
			Gap:         gap,
			Impressions: s.Impressions,
			Clicks:      s.Clicks,
			Position:    s.Position,
			Snapshot:    s,
		})
	}

	a.score(candidates)
	Sort(candidates)

	if len(candidates) > a.th.MaxCandidates {
		for _, o := range candidates[a.th.MaxCandidates:] {
			result.Exclusions = append(result.Exclusions, types.Exclusion{URL: o.URL, Reason: types.ReasonOverCandidateCap})
		}
		candidates = candidates[:a.th.MaxCandidates]
	}

	result.Opportunities = candidates
	return result
}

func (a *Analyzer) exclude(s types.PageMetricSnapshot, h pageHistory, now time.Time) string {
	if s.Impressions < a.th.MinImpressions {
		return types.ReasonLowImpressions
	}
	if h.active {
		return types.ReasonActiveExperiment
	}
	if h.lastChange != nil {
		if now.Sub(*h.lastChange) < a.th.Cooldown() {
			return types.ReasonCooldown
		}
		// Metrics must describe the page as it is now.
		if s.PeriodStart.Before(*h.lastChange) {
			return types.ReasonStaleData
		}
	}
	return ""
}

// score fills Priority from max-normalised impressions and gap.
func (a *Analyzer) score(opps []types.Opportunity) {
	var maxImpressions int64
	var maxGap float64
	for _, o := range opps {
		if o.Impressions > maxImpressions {
			maxImpressions = o.Impressions
		}
		if o.Gap > maxGap {
			maxGap = o.Gap
		}
	}

	for i := range opps {
		var normImpr, normGap float64
		if maxImpressions > 0 {
			normImpr = float64(opps[i].Impressions) / float64(maxImpressions)
		}
		if maxGap > 0 {
			normGap = opps[i].Gap / maxGap
		}
		opps[i].Priority = a.th.ImpressionWeight*normImpr + a.th.GapWeight*normGap
	}
}

// Sort orders opportunities by priority desc, impressions desc, url asc.
func Sort(opps []types.Opportunity) {
	sort.SliceStable(opps, func(i, j int) bool {
		if opps[i].Priority != opps[j].Priority {
			return opps[i].Priority > opps[j].Priority
		}
		if opps[i].Impressions != opps[j].Impressions {
			return opps[i].Impressions > opps[j].Impressions
		}
		return opps[i].URL < opps[j].URL
	})
}

func buildHistory(experiments []types.Experiment) map[string]pageHistory {
	history := make(map[string]pageHistory)
	for i := range experiments {
		e := &experiments[i]
		h := history[e.URL]
		if e.Active() {
			h.active = true
		}
		if last := e.LastChangeAt(); last != nil && (h.lastChange == nil || last.After(*h.lastChange)) {
			t := *last
			h.lastChange = &t
		}
		history[e.URL] = h
	}
	return history
}
