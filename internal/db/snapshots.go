package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jonathan/ctr-optimizer/internal/types"
)

// SaveSnapshots upserts all snapshots in one transaction, or none of them.
// A page has at most one row per date range; re-ingesting a range replaces it.
func (db *DB) SaveSnapshots(ctx context.Context, snapshots []types.PageMetricSnapshot) error {
	for _, s := range snapshots {
		if err := s.Validate(); err != nil {
			return fmt.Errorf("failed to save snapshots: %w", err)
		}
	}
	if len(snapshots) == 0 {
		return nil
	}

	return pgx.BeginFunc(ctx, db.pool, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, s := range snapshots {
			ingested := s.IngestedAt
			if ingested.IsZero() {
				ingested = time.Now()
			}
			batch.Queue(
				`INSERT INTO page_metric_snapshots (url, period_start, period_end, impressions, clicks, position, ingested_at)
				 VALUES ($1, $2, $3, $4, $5, $6, $7)
				 ON CONFLICT (url, period_start, period_end) DO UPDATE SET
				     impressions = EXCLUDED.impressions,
				     clicks      = EXCLUDED.clicks,
				     position    = EXCLUDED.position,
				     ingested_at = EXCLUDED.ingested_at`,
				s.URL, s.PeriodStart, s.PeriodEnd, s.Impressions, s.Clicks, s.Position, ingested,
			)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("failed to save snapshots: %w", err)
		}
		return nil
	})
}

const snapshotColumns = `id, url, period_start, period_end, impressions, clicks, position, ingested_at`

// LatestSnapshots returns the newest snapshot of every page, ordered by URL.
func (db *DB) LatestSnapshots(ctx context.Context) ([]types.PageMetricSnapshot, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT DISTINCT ON (url) `+snapshotColumns+`
		 FROM page_metric_snapshots
		 ORDER BY url, period_end DESC, ingested_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query latest snapshots: %w", err)
	}
	return collectSnapshots(rows)
}

// SnapshotsAfter returns the snapshots of url whose period starts strictly after t.
func (db *DB) SnapshotsAfter(ctx context.Context, url string, t time.Time) ([]types.PageMetricSnapshot, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+snapshotColumns+`
		 FROM page_metric_snapshots
		 WHERE url = $1 AND period_start > $2
		 ORDER BY period_start, ingested_at`,
		url, t,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots for %s: %w", url, err)
	}
	return collectSnapshots(rows)
}

func collectSnapshots(rows pgx.Rows) ([]types.PageMetricSnapshot, error) {
	defer rows.Close()

	var out []types.PageMetricSnapshot
	for rows.Next() {
		var s types.PageMetricSnapshot
		if err := rows.Scan(&s.ID, &s.URL, &s.PeriodStart, &s.PeriodEnd, &s.Impressions, &s.Clicks, &s.Position, &s.IngestedAt); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read snapshots: %w", err)
	}
	return out, nil
}
