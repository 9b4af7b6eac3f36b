package database

import (
	"context"
	"database/sql"
	"fmt"
)

// QueueDepth is the report log split into its two populations: the
// unprocessed tail the workers are chewing on and everything already
// aggregated.
type QueueDepth struct {
	Pending   int64
	Processed int64
}

// ReportQueueDepth counts pending and processed reports in one scan. The
// CASE form works unchanged on both engines.
func (db *Database) ReportQueueDepth(ctx context.Context) (QueueDepth, error) {
	const query = `
SELECT
  COALESCE(SUM(CASE WHEN processed_at IS NULL THEN 1 ELSE 0 END), 0),
  COALESCE(SUM(CASE WHEN processed_at IS NOT NULL THEN 1 ELSE 0 END), 0)
FROM report`

	var d QueueDepth
	if err := db.DB.QueryRowContext(ctx, query).Scan(&d.Pending, &d.Processed); err != nil {
		return QueueDepth{}, fmt.Errorf("report queue depth: %w", err)
	}
	return d, nil
}

// CountEmitters returns the number of learned aggregates for one kind.
func (db *Database) CountEmitters(ctx context.Context, kind string) (int64, error) {
	var table string
	switch kind {
	case "wifi":
		table = "wifi_emitter"
	case "bluetooth":
		table = "bluetooth_emitter"
	case "cell":
		table = "cell_emitter"
	default:
		return 0, fmt.Errorf("unknown emitter kind: %s", kind)
	}

	var n int64
	if err := db.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return n, nil
}

// CountCoarseCells returns the size of the imported reference dataset,
// zero when the import never ran.
func (db *Database) CountCoarseCells(ctx context.Context) (int64, error) {
	var n int64
	err := db.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM coarse_cell").Scan(&n)
	if err != nil {
		if err == sql.ErrNoRows {
			return 0, nil
		}
		return 0, fmt.Errorf("count coarse cells: %w", err)
	}
	return n, nil
}
