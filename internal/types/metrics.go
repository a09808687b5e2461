// Package types provides type definitions for the search metrics, benchmarks,
// opportunities and experiments shared across the ctr-optimizer system.
//
//nolint:revive // types is a standard Go package name pattern
package types

import (
	"fmt"
	"time"
)

// DateLayout is the day format used by Search Console date ranges.
const DateLayout = "2006-01-02"

// DateRange is an inclusive range of days.
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// String renders the range as "start..end".
func (r DateRange) String() string {
	return fmt.Sprintf("%s..%s", r.Start.Format(DateLayout), r.End.Format(DateLayout))
}

// TrailingWindow returns the window of the given number of days ending lag days before now.
// Search Console data lags a few days, so lag is usually 3.
func TrailingWindow(now time.Time, days, lag int) DateRange {
	end := truncateDay(now).AddDate(0, 0, -lag)
	return DateRange{
		Start: end.AddDate(0, 0, -days),
		End:   end,
	}
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// PageMetricSnapshot holds the search metrics of one page over one period.
// Snapshots are immutable once ingested; newer snapshots supersede older ones.
type PageMetricSnapshot struct {
	ID          int64     `json:"id,omitempty"`
	URL         string    `json:"url"`
	PeriodStart time.Time `json:"period_start"`
	PeriodEnd   time.Time `json:"period_end"`
	Impressions int64     `json:"impressions"`
	Clicks      int64     `json:"clicks"`
	Position    float64   `json:"position"`
	IngestedAt  time.Time `json:"ingested_at"`
}

// CTR returns clicks / impressions, or 0 for a page without impressions.
func (s PageMetricSnapshot) CTR() float64 {
	if s.Impressions <= 0 {
		return 0
	}
	return float64(s.Clicks) / float64(s.Impressions)
}

// Validate checks the ingestion invariants of a snapshot.
func (s PageMetricSnapshot) Validate() error {
	if s.URL == "" {
		return fmt.Errorf("snapshot url is empty")
	}
	if s.Impressions < 0 {
		return fmt.Errorf("snapshot %s: impressions must be non-negative, got %d", s.URL, s.Impressions)
	}
	if s.Clicks < 0 || s.Clicks > s.Impressions {
		return fmt.Errorf("snapshot %s: clicks must be within [0, impressions], got %d of %d", s.URL, s.Clicks, s.Impressions)
	}
	if s.Position <= 0 {
		return fmt.Errorf("snapshot %s: position must be positive, got %f", s.URL, s.Position)
	}
	if s.PeriodEnd.Before(s.PeriodStart) {
		return fmt.Errorf("snapshot %s: period end precedes period start", s.URL)
	}
	return nil
}

// LatestPerPage returns the most recent snapshot (by period end, then ingestion time) for each URL.
func LatestPerPage(snapshots []PageMetricSnapshot) map[string]PageMetricSnapshot {
	latest := make(map[string]PageMetricSnapshot, len(snapshots))
	for _, s := range snapshots {
		cur, ok := latest[s.URL]
		if !ok || s.PeriodEnd.After(cur.PeriodEnd) ||
			(s.PeriodEnd.Equal(cur.PeriodEnd) && s.IngestedAt.After(cur.IngestedAt)) {
			latest[s.URL] = s
		}
	}
	return latest
}

// CtrBenchmark is the expected CTR for one integer position bucket.
type CtrBenchmark struct {
	Bucket        int       `json:"bucket"`
	ExpectedCTR   float64   `json:"expected_ctr"`
	SampleSize    int64     `json:"sample_size"`
	SnapshotCount int       `json:"snapshot_count"`
	Smoothed      bool      `json:"smoothed"`
	ComputedAt    time.Time `json:"computed_at"`
}

// Benchmark is a complete expected-CTR curve ordered by bucket (1..N).
type Benchmark struct {
	Buckets []CtrBenchmark `json:"buckets"`
}

// BucketFor maps an average position to its bucket within [1, maxBucket].
func BucketFor(position float64, maxBucket int) int {
	b := int(position + 0.5)
	if b < 1 {
		b = 1
	}
	if maxBucket > 0 && b > maxBucket {
		b = maxBucket
	}
	return b
}

// Empty reports whether the benchmark has no buckets.
func (b *Benchmark) Empty() bool {
	return b == nil || len(b.Buckets) == 0
}

// MaxBucket returns the deepest bucket of the curve.
func (b *Benchmark) MaxBucket() int {
	if b.Empty() {
		return 0
	}
	return b.Buckets[len(b.Buckets)-1].Bucket
}

// ExpectedAt returns the expected CTR at the given average position.
// Positions past the deepest bucket use the deepest bucket.
func (b *Benchmark) ExpectedAt(position float64) (float64, bool) {
	if b.Empty() {
		return 0, false
	}
	bucket := BucketFor(position, b.MaxBucket())
	for _, entry := range b.Buckets {
		if entry.Bucket == bucket {
			return entry.ExpectedCTR, true
		}
	}
	return 0, false
}
