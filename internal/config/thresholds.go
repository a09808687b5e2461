package config

import (
	"fmt"
	"math"
	"time"

	"github.com/go-playground/validator/v10"
)

// Threshold modes for outcome classification.
const (
	ThresholdRelative = "relative"
	ThresholdAbsolute = "absolute"
)

// weightTolerance absorbs float rounding in the weight-sum check.
const weightTolerance = 1e-6

// Thresholds is the immutable tuning of the benchmark, gap and experiment engine.
// It is passed by value into each component constructor and validated there.
type Thresholds struct {
	// Benchmark calculator
	MinTotalImpressions  int64 `yaml:"min_total_impressions" validate:"gte=0"`
	MinBucketImpressions int64 `yaml:"min_bucket_impressions" validate:"gte=0"`
	MaxBucket            int   `yaml:"max_bucket" validate:"gte=1,lte=100"`

	// Gap analyzer
	MinImpressions   int64   `yaml:"min_impressions" validate:"gte=0"`
	MinGap           float64 `yaml:"min_gap" validate:"gte=0,lte=1"`
	ImpressionWeight float64 `yaml:"impression_weight" validate:"gte=0,lte=1"`
	GapWeight        float64 `yaml:"gap_weight" validate:"gte=0,lte=1"`
	MaxCandidates    int     `yaml:"max_candidates" validate:"gte=1"`
	CooldownDays     int     `yaml:"cooldown_days" validate:"gte=0"`

	// Experiment manager
	MeasurementWindowDays     int     `yaml:"measurement_window_days" validate:"gte=1"`
	GracePeriodDays           int     `yaml:"grace_period_days" validate:"gte=1,gtefield=MeasurementWindowDays"`
	MinPostImpressions        int64   `yaml:"min_post_impressions" validate:"gte=0"`
	OutcomeThreshold          float64 `yaml:"outcome_threshold" validate:"gt=0"`
	ThresholdMode             string  `yaml:"threshold_mode" validate:"oneof=relative absolute"`
	PositionConfoundThreshold float64 `yaml:"position_confound_threshold" validate:"gte=0"`
	SevereDropThreshold       float64 `yaml:"severe_drop_threshold" validate:"gt=0,lte=1"`
	StrongGainThreshold       float64 `yaml:"strong_gain_threshold" validate:"gt=0"`
	AutoRevert                bool    `yaml:"auto_revert"`

	// Learning feedback
	MinLearningSamples int `yaml:"min_learning_samples" validate:"gte=1"`

	// Structure experiments
	OptimizationThresholdScore int `yaml:"optimization_threshold_score" validate:"gte=0"`

	// Metrics ingestion window
	WindowDays  int `yaml:"window_days" validate:"gte=1"`
	DataLagDays int `yaml:"data_lag_days" validate:"gte=0"`
}

// DefaultThresholds returns the values the site has been tuned with.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MinTotalImpressions:  1000,
		MinBucketImpressions: 200,
		MaxBucket:            20,

		MinImpressions:   100,
		MinGap:           0,
		ImpressionWeight: 0.4,
		GapWeight:        0.6,
		MaxCandidates:    50,
		CooldownDays:     30,

		MeasurementWindowDays:     21,
		GracePeriodDays:           120,
		MinPostImpressions:        50,
		OutcomeThreshold:          0.05,
		ThresholdMode:             ThresholdRelative,
		PositionConfoundThreshold: 2.0,
		SevereDropThreshold:       0.25,
		StrongGainThreshold:       0.30,

		MinLearningSamples: 1,

		OptimizationThresholdScore: 3,

		WindowDays:  28,
		DataLagDays: 3,
	}
}

// Validate checks field ranges and that the priority weights sum to 1.
func (t Thresholds) Validate() error {
	validate := validator.New()
	if err := validate.Struct(t); err != nil {
		return fmt.Errorf("invalid thresholds: %w", err)
	}
	if sum := t.ImpressionWeight + t.GapWeight; math.Abs(sum-1) > weightTolerance {
		return fmt.Errorf("invalid thresholds: impression_weight + gap_weight must equal 1, got %.4f", sum)
	}
	return nil
}

// MergeWithDefaults fills zero-valued fields from defaults.
// The weights are merged as a pair so a partial override cannot break their sum.
func (t Thresholds) MergeWithDefaults(defaults Thresholds) Thresholds {
	result := t

	if result.MinTotalImpressions == 0 {
		result.MinTotalImpressions = defaults.MinTotalImpressions
	}
	if result.MinBucketImpressions == 0 {
		result.MinBucketImpressions = defaults.MinBucketImpressions
	}
	if result.MaxBucket == 0 {
		result.MaxBucket = defaults.MaxBucket
	}
	if result.MinImpressions == 0 {
		result.MinImpressions = defaults.MinImpressions
	}
	if result.ImpressionWeight == 0 && result.GapWeight == 0 {
		result.ImpressionWeight = defaults.ImpressionWeight
		result.GapWeight = defaults.GapWeight
	}
	if result.MaxCandidates == 0 {
		result.MaxCandidates = defaults.MaxCandidates
	}
	if result.CooldownDays == 0 {
		result.CooldownDays = defaults.CooldownDays
	}
	if result.MeasurementWindowDays == 0 {
		result.MeasurementWindowDays = defaults.MeasurementWindowDays
	}
	if result.GracePeriodDays == 0 {
		result.GracePeriodDays = defaults.GracePeriodDays
	}
	if result.MinPostImpressions == 0 {
		result.MinPostImpressions = defaults.MinPostImpressions
	}
	if result.OutcomeThreshold == 0 {
		result.OutcomeThreshold = defaults.OutcomeThreshold
	}
	if result.ThresholdMode == "" {
		result.ThresholdMode = defaults.ThresholdMode
	}
	if result.PositionConfoundThreshold == 0 {
		result.PositionConfoundThreshold = defaults.PositionConfoundThreshold
	}
	if result.SevereDropThreshold == 0 {
		result.SevereDropThreshold = defaults.SevereDropThreshold
	}
	if result.StrongGainThreshold == 0 {
		result.StrongGainThreshold = defaults.StrongGainThreshold
	}
	if result.MinLearningSamples == 0 {
		result.MinLearningSamples = defaults.MinLearningSamples
	}
	if result.OptimizationThresholdScore == 0 {
		result.OptimizationThresholdScore = defaults.OptimizationThresholdScore
	}
	if result.WindowDays == 0 {
		result.WindowDays = defaults.WindowDays
	}
	if result.DataLagDays == 0 {
		result.DataLagDays = defaults.DataLagDays
	}

	return result
}

// Cooldown is the minimum time between two changes of the same page.
func (t Thresholds) Cooldown() time.Duration {
	return days(t.CooldownDays)
}

// MeasurementWindow is the time from implementation until evaluation is due.
func (t Thresholds) MeasurementWindow() time.Duration {
	return days(t.MeasurementWindowDays)
}

// GracePeriod is the time from implementation after which an under-sampled experiment is inconclusive.
func (t Thresholds) GracePeriod() time.Duration {
	return days(t.GracePeriodDays)
}

func days(n int) time.Duration {
	return time.Duration(n) * 24 * time.Hour
}
