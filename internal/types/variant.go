package types

import "time"

// Variant is one candidate content value returned by the ideation collaborator.
type Variant struct {
	Content   string `json:"content"`
	IdeaType  string `json:"idea_type"`
	Rationale string `json:"rationale,omitempty"`
}

// Learning aggregates evaluated experiment outcomes for one idea type.
type Learning struct {
	IdeaType      string    `json:"idea_type"`
	SampleCount   int       `json:"sample_count"`
	AvgCTRDelta   float64   `json:"avg_ctr_delta"`
	ImprovedCount int       `json:"improved_count"`
	WorsenedCount int       `json:"worsened_count"`
	ComputedAt    time.Time `json:"computed_at"`
}

// SuccessRate returns the share of samples classified as improved.
func (l Learning) SuccessRate() float64 {
	if l.SampleCount == 0 {
		return 0
	}
	return float64(l.ImprovedCount) / float64(l.SampleCount)
}
