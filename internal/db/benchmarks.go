package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jonathan/ctr-optimizer/internal/types"
)

// SaveBenchmark replaces every bucket in one transaction, so readers never
// see a mix of two computations.
func (db *DB) SaveBenchmark(ctx context.Context, b *types.Benchmark) error {
	if b.Empty() {
		return fmt.Errorf("failed to save benchmark: no buckets")
	}

	return pgx.BeginFunc(ctx, db.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM ctr_benchmarks`); err != nil {
			return fmt.Errorf("failed to clear benchmark: %w", err)
		}

		batch := &pgx.Batch{}
		for _, bucket := range b.Buckets {
			batch.Queue(
				`INSERT INTO ctr_benchmarks (bucket, expected_ctr, sample_size, snapshot_count, smoothed, computed_at)
				 VALUES ($1, $2, $3, $4, $5, $6)`,
				bucket.Bucket, bucket.ExpectedCTR, bucket.SampleSize, bucket.SnapshotCount, bucket.Smoothed, bucket.ComputedAt,
			)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("failed to save benchmark: %w", err)
		}
		return nil
	})
}

// LoadBenchmark returns the stored curve, or nil if none has been computed.
func (db *DB) LoadBenchmark(ctx context.Context) (*types.Benchmark, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT bucket, expected_ctr, sample_size, snapshot_count, smoothed, computed_at
		 FROM ctr_benchmarks ORDER BY bucket`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load benchmark: %w", err)
	}
	defer rows.Close()

	var b types.Benchmark
	for rows.Next() {
		var c types.CtrBenchmark
		if err := rows.Scan(&c.Bucket, &c.ExpectedCTR, &c.SampleSize, &c.SnapshotCount, &c.Smoothed, &c.ComputedAt); err != nil {
			return nil, fmt.Errorf("failed to scan benchmark bucket: %w", err)
		}
		b.Buckets = append(b.Buckets, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to load benchmark: %w", err)
	}
	if len(b.Buckets) == 0 {
		return nil, nil
	}
	return &b, nil
}
