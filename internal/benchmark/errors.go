package benchmark

import "fmt"

// InsufficientDataError is returned when the site has too little search data
// to produce a trustworthy curve. Callers keep the previous benchmark.
type InsufficientDataError struct {
	TotalImpressions int64
	Required         int64
	Message          string
}

func (e *InsufficientDataError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("insufficient data for benchmark: %s", e.Message)
	}
	return fmt.Sprintf("insufficient data for benchmark: %d impressions, need %d", e.TotalImpressions, e.Required)
}
