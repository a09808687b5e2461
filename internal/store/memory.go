package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonathan/ctr-optimizer/internal/types"
)

// Memory is a Store kept in process memory. It backs dry runs without a
// database and the engine's tests.
type Memory struct {
	mu          sync.Mutex
	snapshots   []types.PageMetricSnapshot
	nextSnapID  int64
	benchmark   *types.Benchmark
	experiments map[uuid.UUID]types.Experiment
	order       []uuid.UUID
	transitions map[uuid.UUID][]types.Transition
	nextTransID int64
	learnings   []types.Learning
	runs        []types.RunRecord
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		experiments: make(map[uuid.UUID]types.Experiment),
		transitions: make(map[uuid.UUID][]types.Transition),
	}
}

var _ Store = (*Memory)(nil)

func (m *Memory) SaveSnapshots(_ context.Context, snapshots []types.PageMetricSnapshot) error {
	for _, s := range snapshots {
		if err := s.Validate(); err != nil {
			return fmt.Errorf("failed to save snapshots: %w", err)
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range snapshots {
		if i := m.snapshotIndex(s); i >= 0 {
			s.ID = m.snapshots[i].ID
			m.snapshots[i] = s
			continue
		}
		m.nextSnapID++
		s.ID = m.nextSnapID
		m.snapshots = append(m.snapshots, s)
	}
	return nil
}

// snapshotIndex finds the stored row for the same page and date range. Callers hold mu.
func (m *Memory) snapshotIndex(s types.PageMetricSnapshot) int {
	for i, have := range m.snapshots {
		if have.URL == s.URL && have.PeriodStart.Equal(s.PeriodStart) && have.PeriodEnd.Equal(s.PeriodEnd) {
			return i
		}
	}
	return -1
}

func (m *Memory) LatestSnapshots(_ context.Context) ([]types.PageMetricSnapshot, error) {
	m.mu.Lock()
	latest := types.LatestPerPage(m.snapshots)
	m.mu.Unlock()

	out := make([]types.PageMetricSnapshot, 0, len(latest))
	for _, s := range latest {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].URL < out[j].URL })
	return out, nil
}

func (m *Memory) SnapshotsAfter(_ context.Context, url string, t time.Time) ([]types.PageMetricSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []types.PageMetricSnapshot
	for _, s := range m.snapshots {
		if s.URL == url && s.PeriodStart.After(t) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *Memory) SaveBenchmark(_ context.Context, b *types.Benchmark) error {
	if b.Empty() {
		return fmt.Errorf("failed to save benchmark: no buckets")
	}
	cp := &types.Benchmark{Buckets: append([]types.CtrBenchmark(nil), b.Buckets...)}
	m.mu.Lock()
	m.benchmark = cp
	m.mu.Unlock()
	return nil
}

func (m *Memory) LoadBenchmark(_ context.Context) (*types.Benchmark, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.benchmark == nil {
		return nil, nil
	}
	return &types.Benchmark{Buckets: append([]types.CtrBenchmark(nil), m.benchmark.Buckets...)}, nil
}

func (m *Memory) CreateExperiment(_ context.Context, e *types.Experiment, t types.Transition) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.experiments[e.ID]; exists {
		return fmt.Errorf("failed to create experiment: duplicate id %s", e.ID)
	}
	if e.Active() {
		for _, other := range m.experiments {
			if other.URL == e.URL && other.Active() {
				return ErrActiveExperiment
			}
		}
	}

	m.experiments[e.ID] = *e
	m.order = append(m.order, e.ID)
	m.appendTransitions(e.ID, t)
	return nil
}

func (m *Memory) UpdateExperiment(_ context.Context, e *types.Experiment, transitions ...types.Transition) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.experiments[e.ID]; !ok {
		return ErrNotFound
	}
	if e.Active() {
		for id, other := range m.experiments {
			if id != e.ID && other.URL == e.URL && other.Active() {
				return ErrActiveExperiment
			}
		}
	}
	m.experiments[e.ID] = *e
	m.appendTransitions(e.ID, transitions...)
	return nil
}

// appendTransitions must be called with mu held.
func (m *Memory) appendTransitions(id uuid.UUID, transitions ...types.Transition) {
	for _, t := range transitions {
		m.nextTransID++
		t.ID = m.nextTransID
		t.ExperimentID = id
		m.transitions[id] = append(m.transitions[id], t)
	}
}

func (m *Memory) GetExperiment(_ context.Context, id uuid.UUID) (*types.Experiment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.experiments[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &e, nil
}

// ListExperiments returns matching experiments newest first.
func (m *Memory) ListExperiments(_ context.Context, filter types.ExperimentFilter) ([]types.Experiment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []types.Experiment
	for i := len(m.order) - 1; i >= 0; i-- {
		e := m.experiments[m.order[i]]
		if !filter.Matches(&e) {
			continue
		}
		out = append(out, e)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

func (m *Memory) Transitions(_ context.Context, experimentID uuid.UUID) ([]types.Transition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]types.Transition(nil), m.transitions[experimentID]...), nil
}

func (m *Memory) ReplaceLearnings(_ context.Context, learnings []types.Learning) error {
	m.mu.Lock()
	m.learnings = append([]types.Learning(nil), learnings...)
	m.mu.Unlock()
	return nil
}

func (m *Memory) Learnings(_ context.Context) ([]types.Learning, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]types.Learning(nil), m.learnings...), nil
}

func (m *Memory) SaveRun(_ context.Context, run types.RunRecord) error {
	m.mu.Lock()
	m.runs = append(m.runs, run)
	m.mu.Unlock()
	return nil
}

// ListRuns returns archived runs newest first.
func (m *Memory) ListRuns(_ context.Context, limit int) ([]types.RunRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []types.RunRecord
	for i := len(m.runs) - 1; i >= 0; i-- {
		out = append(out, m.runs[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}
