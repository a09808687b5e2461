package db

import (
	"context"
	"fmt"

	"github.com/jonathan/ctr-optimizer/internal/types"
)

// SaveRun archives a finished run.
func (db *DB) SaveRun(ctx context.Context, run types.RunRecord) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO runs (id, command, dry_run, started_at, finished_at, successes, skips, failures, aborted, markdown)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		run.ID, run.Command, run.DryRun, run.StartedAt, run.FinishedAt,
		run.Successes, run.Skips, run.Failures, run.Aborted, run.Markdown,
	)
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	return nil
}

// ListRuns retrieves recent runs, newest first. A non-positive limit returns all.
func (db *DB) ListRuns(ctx context.Context, limit int) ([]types.RunRecord, error) {
	query := `SELECT id, command, dry_run, started_at, finished_at, successes, skips, failures, aborted, markdown
		 FROM runs ORDER BY started_at DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}

	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []types.RunRecord
	for rows.Next() {
		var r types.RunRecord
		if err := rows.Scan(&r.ID, &r.Command, &r.DryRun, &r.StartedAt, &r.FinishedAt,
			&r.Successes, &r.Skips, &r.Failures, &r.Aborted, &r.Markdown); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
