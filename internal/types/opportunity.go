package types

// Opportunity is a ranked candidate page produced by a gap analysis run.
// It is never persisted directly; it becomes durable only as an Experiment.
type Opportunity struct {
	URL         string             `json:"url"`
	ActualCTR   float64            `json:"actual_ctr"`
	ExpectedCTR float64            `json:"expected_ctr"`
	Gap         float64            `json:"gap"`
	Impressions int64              `json:"impressions"`
	Clicks      int64              `json:"clicks"`
	Position    float64            `json:"position"`
	Priority    float64            `json:"priority"`
	Snapshot    PageMetricSnapshot `json:"snapshot"`
}

// Exclusion records why a page was left out of the opportunity list.
type Exclusion struct {
	URL    string `json:"url"`
	Reason string `json:"reason"`
}

// Exclusion reasons reported by the gap analyzer.
const (
	ReasonLowImpressions    = "below minimum impressions"
	ReasonActiveExperiment  = "active experiment in progress"
	ReasonCooldown          = "changed within cooldown period"
	ReasonStaleData         = "metrics predate last change"
	ReasonNoGap             = "ctr at or above benchmark"
	ReasonNoBenchmark       = "no benchmark for position"
	ReasonOverCandidateCap  = "over max candidates per run"
	ReasonStructureComplete = "structure already optimized"
)
