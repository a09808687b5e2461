// Package store defines the persistence contract of the experiment engine
// and an in-memory implementation of it.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jonathan/ctr-optimizer/internal/types"
)

var (
	// ErrNotFound is returned when an experiment id is unknown.
	ErrNotFound = errors.New("experiment not found")
	// ErrActiveExperiment is returned when a page already has a non-terminal experiment.
	ErrActiveExperiment = errors.New("page already has an active experiment")
)

// Store persists metrics, the benchmark, experiments with their audit trail, learnings and run archives.
// Implementations must reject a second non-terminal experiment for the same URL with ErrActiveExperiment.
type Store interface {
	// SaveSnapshots stores validated snapshots, replacing any row for the same page and date range.
	SaveSnapshots(ctx context.Context, snapshots []types.PageMetricSnapshot) error
	// LatestSnapshots returns the newest snapshot of every page, ordered by URL.
	LatestSnapshots(ctx context.Context) ([]types.PageMetricSnapshot, error)
	// SnapshotsAfter returns the snapshots of url whose period starts strictly after t.
	SnapshotsAfter(ctx context.Context, url string, t time.Time) ([]types.PageMetricSnapshot, error)

	// SaveBenchmark replaces the whole benchmark in one step.
	SaveBenchmark(ctx context.Context, b *types.Benchmark) error
	// LoadBenchmark returns the current benchmark, or nil when none was ever computed.
	LoadBenchmark(ctx context.Context) (*types.Benchmark, error)

	// CreateExperiment inserts a new experiment together with its first transition.
	CreateExperiment(ctx context.Context, e *types.Experiment, t types.Transition) error
	// UpdateExperiment persists e and appends the transitions atomically.
	UpdateExperiment(ctx context.Context, e *types.Experiment, transitions ...types.Transition) error
	GetExperiment(ctx context.Context, id uuid.UUID) (*types.Experiment, error)
	ListExperiments(ctx context.Context, filter types.ExperimentFilter) ([]types.Experiment, error)
	Transitions(ctx context.Context, experimentID uuid.UUID) ([]types.Transition, error)

	// ReplaceLearnings swaps the stored learnings for the given set.
	ReplaceLearnings(ctx context.Context, learnings []types.Learning) error
	Learnings(ctx context.Context) ([]types.Learning, error)

	SaveRun(ctx context.Context, run types.RunRecord) error
	ListRuns(ctx context.Context, limit int) ([]types.RunRecord, error)
}
