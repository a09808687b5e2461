package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jonathan/ctr-optimizer/internal/types"
)

// ReplaceLearnings swaps the whole table in one transaction.
func (db *DB) ReplaceLearnings(ctx context.Context, learnings []types.Learning) error {
	return pgx.BeginFunc(ctx, db.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM learnings`); err != nil {
			return fmt.Errorf("failed to clear learnings: %w", err)
		}
		for _, l := range learnings {
			_, err := tx.Exec(ctx,
				`INSERT INTO learnings (idea_type, sample_count, avg_ctr_delta, improved_count, worsened_count, computed_at)
				 VALUES ($1, $2, $3, $4, $5, $6)`,
				l.IdeaType, l.SampleCount, l.AvgCTRDelta, l.ImprovedCount, l.WorsenedCount, l.ComputedAt,
			)
			if err != nil {
				return fmt.Errorf("failed to save learning %s: %w", l.IdeaType, err)
			}
		}
		return nil
	})
}

// Learnings returns every stored learning ordered by idea type.
func (db *DB) Learnings(ctx context.Context) ([]types.Learning, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT idea_type, sample_count, avg_ctr_delta, improved_count, worsened_count, computed_at
		 FROM learnings ORDER BY idea_type`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query learnings: %w", err)
	}
	defer rows.Close()

	var out []types.Learning
	for rows.Next() {
		var l types.Learning
		if err := rows.Scan(&l.IdeaType, &l.SampleCount, &l.AvgCTRDelta, &l.ImprovedCount, &l.WorsenedCount, &l.ComputedAt); err != nil {
			return nil, fmt.Errorf("failed to scan learning: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}
