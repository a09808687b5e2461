package db

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jonathan/ctr-optimizer/internal/store"
	"github.com/jonathan/ctr-optimizer/internal/types"
)

const experimentColumns = `id, url, kind, original_value, new_value, idea_type, hypothesis, status,
	created_at, implemented_at, evaluation_due_at, evaluated_at, reverted_at,
	pre_ctr, pre_impressions, pre_position,
	post_ctr, post_impressions, post_clicks, post_position,
	outcome, outcome_notes, revert_reason`

// CreateExperiment inserts e and its first transition. A second active
// experiment for the same URL fails with store.ErrActiveExperiment.
func (db *DB) CreateExperiment(ctx context.Context, e *types.Experiment, t types.Transition) error {
	err := pgx.BeginFunc(ctx, db.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO experiments (`+experimentColumns+`)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23)`,
			experimentArgs(e)...,
		)
		if err != nil {
			return err
		}
		return insertTransitions(ctx, tx, e.ID, t)
	})
	if isActiveConflict(err) {
		return store.ErrActiveExperiment
	}
	if err != nil {
		return fmt.Errorf("failed to create experiment: %w", err)
	}
	return nil
}

// UpdateExperiment writes every mutable column of e and appends transitions atomically.
func (db *DB) UpdateExperiment(ctx context.Context, e *types.Experiment, transitions ...types.Transition) error {
	err := pgx.BeginFunc(ctx, db.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE experiments SET
				url = $2, kind = $3, original_value = $4, new_value = $5, idea_type = $6, hypothesis = $7, status = $8,
				created_at = $9, implemented_at = $10, evaluation_due_at = $11, evaluated_at = $12, reverted_at = $13,
				pre_ctr = $14, pre_impressions = $15, pre_position = $16,
				post_ctr = $17, post_impressions = $18, post_clicks = $19, post_position = $20,
				outcome = $21, outcome_notes = $22, revert_reason = $23
			 WHERE id = $1`,
			experimentArgs(e)...,
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return store.ErrNotFound
		}
		return insertTransitions(ctx, tx, e.ID, transitions...)
	})
	switch {
	case err == nil:
		return nil
	case isActiveConflict(err):
		return store.ErrActiveExperiment
	case errors.Is(err, store.ErrNotFound):
		return err
	default:
		return fmt.Errorf("failed to update experiment %s: %w", e.ID, err)
	}
}

func insertTransitions(ctx context.Context, tx pgx.Tx, id uuid.UUID, transitions ...types.Transition) error {
	for _, t := range transitions {
		_, err := tx.Exec(ctx,
			`INSERT INTO experiment_transitions (experiment_id, from_status, to_status, actor, reason, at)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			id, string(t.From), string(t.To), string(t.Actor), t.Reason, t.At,
		)
		if err != nil {
			return fmt.Errorf("failed to record transition to %s: %w", t.To, err)
		}
	}
	return nil
}

func experimentArgs(e *types.Experiment) []any {
	var outcome *string
	if e.Outcome != nil {
		s := string(*e.Outcome)
		outcome = &s
	}
	return []any{
		e.ID, e.URL, string(e.Kind), e.OriginalValue, e.NewValue, e.IdeaType, e.Hypothesis, string(e.Status),
		e.CreatedAt, e.ImplementedAt, e.EvaluationDueAt, e.EvaluatedAt, e.RevertedAt,
		e.PreCTR, e.PreImpressions, e.PrePosition,
		e.PostCTR, e.PostImpressions, e.PostClicks, e.PostPosition,
		outcome, e.OutcomeNotes, e.RevertReason,
	}
}

func scanExperiment(row pgx.Row) (*types.Experiment, error) {
	var (
		e            types.Experiment
		kind, status string
		outcome      *string
	)
	err := row.Scan(
		&e.ID, &e.URL, &kind, &e.OriginalValue, &e.NewValue, &e.IdeaType, &e.Hypothesis, &status,
		&e.CreatedAt, &e.ImplementedAt, &e.EvaluationDueAt, &e.EvaluatedAt, &e.RevertedAt,
		&e.PreCTR, &e.PreImpressions, &e.PrePosition,
		&e.PostCTR, &e.PostImpressions, &e.PostClicks, &e.PostPosition,
		&outcome, &e.OutcomeNotes, &e.RevertReason,
	)
	if err != nil {
		return nil, err
	}
	e.Kind = types.Kind(kind)
	e.Status = types.Status(status)
	if outcome != nil {
		o := types.Outcome(*outcome)
		e.Outcome = &o
	}
	return &e, nil
}

// GetExperiment returns store.ErrNotFound for an unknown id.
func (db *DB) GetExperiment(ctx context.Context, id uuid.UUID) (*types.Experiment, error) {
	row := db.pool.QueryRow(ctx, `SELECT `+experimentColumns+` FROM experiments WHERE id = $1`, id)
	e, err := scanExperiment(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get experiment: %w", err)
	}
	return e, nil
}

// ListExperiments returns matching experiments newest first.
func (db *DB) ListExperiments(ctx context.Context, filter types.ExperimentFilter) ([]types.Experiment, error) {
	query, args := listQuery(filter)
	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list experiments: %w", err)
	}
	defer rows.Close()

	var out []types.Experiment
	for rows.Next() {
		e, err := scanExperiment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan experiment: %w", err)
		}
		out = append(out, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list experiments: %w", err)
	}
	return out, nil
}

// listQuery builds the filtered listing statement.
func listQuery(filter types.ExperimentFilter) (string, []any) {
	var (
		where []string
		args  []any
	)
	if filter.URL != "" {
		args = append(args, filter.URL)
		where = append(where, fmt.Sprintf("url = $%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, s := range filter.Statuses {
			statuses[i] = string(s)
		}
		args = append(args, statuses)
		where = append(where, fmt.Sprintf("status = ANY($%d)", len(args)))
	}

	var b strings.Builder
	b.WriteString(`SELECT ` + experimentColumns + ` FROM experiments`)
	if len(where) > 0 {
		b.WriteString(" WHERE " + strings.Join(where, " AND "))
	}
	b.WriteString(" ORDER BY created_at DESC, id")
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		fmt.Fprintf(&b, " LIMIT $%d", len(args))
	}
	return b.String(), args
}

// Transitions returns the audit trail of one experiment in insertion order.
func (db *DB) Transitions(ctx context.Context, experimentID uuid.UUID) ([]types.Transition, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, experiment_id, from_status, to_status, actor, reason, at
		 FROM experiment_transitions WHERE experiment_id = $1 ORDER BY id`,
		experimentID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query transitions: %w", err)
	}
	defer rows.Close()

	var out []types.Transition
	for rows.Next() {
		var (
			t              types.Transition
			from, to, actr string
		)
		if err := rows.Scan(&t.ID, &t.ExperimentID, &from, &to, &actr, &t.Reason, &t.At); err != nil {
			return nil, fmt.Errorf("failed to scan transition: %w", err)
		}
		t.From, t.To, t.Actor = types.Status(from), types.Status(to), types.Actor(actr)
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to query transitions: %w", err)
	}
	return out, nil
}
