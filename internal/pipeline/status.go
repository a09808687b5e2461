package pipeline

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jonathan/ctr-optimizer/internal/gap"
	"github.com/jonathan/ctr-optimizer/internal/types"
	"golang.org/x/sync/errgroup"
)

// Status is the read-only overview printed by the status command.
type Status struct {
	Summary   types.Summary
	Active    []types.Experiment
	Recent    []types.Experiment
	Benchmark *types.Benchmark
	Learnings []types.Learning
	Runs      []types.RunRecord
}

// recentLimit bounds the finished experiments and runs shown by Status.
const recentLimit = 10

// Status loads the overview concurrently. It never writes.
func (r *Runner) Status(ctx context.Context) (*Status, error) {
	var (
		st   Status
		exps []types.Experiment
	)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var err error
		exps, err = r.deps.Store.ListExperiments(gctx, types.ExperimentFilter{})
		if err != nil {
			return fmt.Errorf("failed to list experiments: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		st.Benchmark, err = r.deps.Store.LoadBenchmark(gctx)
		if err != nil {
			return fmt.Errorf("failed to load benchmark: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		st.Learnings, err = r.deps.Store.Learnings(gctx)
		if err != nil {
			return fmt.Errorf("failed to load learnings: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		st.Runs, err = r.deps.Store.ListRuns(gctx, recentLimit)
		if err != nil {
			return fmt.Errorf("failed to list runs: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	st.Summary = types.Summarize(exps)
	for _, e := range exps {
		if e.Active() {
			st.Active = append(st.Active, e)
		} else if len(st.Recent) < recentLimit {
			st.Recent = append(st.Recent, e)
		}
	}
	return &st, nil
}

// Analyze runs benchmark and gap analysis over stored metrics without
// persisting anything.
func (r *Runner) Analyze(ctx context.Context) (*types.Benchmark, gap.Result, error) {
	snapshots, err := r.deps.Store.LatestSnapshots(ctx)
	if err != nil {
		return nil, gap.Result{}, fmt.Errorf("failed to load snapshots: %w", err)
	}
	bench, _, err := r.refreshBenchmark(ctx, snapshots, false)
	if err != nil {
		return nil, gap.Result{}, err
	}
	exps, err := r.deps.Store.ListExperiments(ctx, types.ExperimentFilter{})
	if err != nil {
		return nil, gap.Result{}, fmt.Errorf("failed to list experiments: %w", err)
	}
	return bench, r.analyzer.Analyze(gap.Input{
		Snapshots:   snapshots,
		Benchmark:   bench,
		Experiments: exps,
		Now:         r.now(),
	}), nil
}

// RecomputeBenchmark rebuilds and stores the benchmark from stored metrics.
// Unlike the monthly run it reports insufficient data as an error.
func (r *Runner) RecomputeBenchmark(ctx context.Context) (*types.Benchmark, error) {
	snapshots, err := r.deps.Store.LatestSnapshots(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshots: %w", err)
	}
	bench, note, err := r.refreshBenchmark(ctx, snapshots, true)
	if err != nil {
		return nil, err
	}
	if note != "" {
		return nil, fmt.Errorf("benchmark not updated: %s", note)
	}
	return bench, nil
}

// Revert manually restores the original value of an experiment.
func (r *Runner) Revert(ctx context.Context, id uuid.UUID, reason string) (*types.Experiment, error) {
	if reason == "" {
		reason = "manual revert"
	}
	return r.manager.Revert(ctx, id, types.ActorManual, reason)
}
