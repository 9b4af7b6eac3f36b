package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// AppendReports stores a batch of raw submissions durably and returns the
// assigned ids in input order. submitted_at is the receive time and routes
// each row into the partition covering this instant, so the forward
// horizon must exist before ingestion starts.
func (db *Database) AppendReports(ctx context.Context, rows []ReportRow) ([]int64, error) {
	if len(rows) == 0 {
		return nil, nil
	}
	now := time.Now().UTC()

	switch db.Driver {
	case "pgx":
		// The sequence fills id; RETURNING hands the batch back in
		// insertion order.
		var sb strings.Builder
		sb.WriteString("INSERT INTO report (submitted_at, timestamp, latitude, longitude, user_agent, raw) VALUES ")
		args := make([]interface{}, 0, len(rows)*6)
		argn := 0
		for j, r := range rows {
			if j > 0 {
				sb.WriteString(",")
			}
			sb.WriteString("(")
			for k := 0; k < 6; k++ {
				if k > 0 {
					sb.WriteString(",")
				}
				argn++
				fmt.Fprintf(&sb, "$%d", argn)
			}
			sb.WriteString(")")
			args = append(args, now, db.nullableTimeArg(r.Timestamp), r.Lat, r.Lon, r.UserAgent, r.Raw)
		}
		sb.WriteString(" RETURNING id")

		res, err := db.DB.QueryContext(ctx, sb.String(), args...)
		if err != nil {
			return nil, fmt.Errorf("append reports: %w", err)
		}
		defer res.Close()
		ids := make([]int64, 0, len(rows))
		for res.Next() {
			var id int64
			if err := res.Scan(&id); err != nil {
				return nil, fmt.Errorf("scan report id: %w", err)
			}
			ids = append(ids, id)
		}
		if err := res.Err(); err != nil {
			return nil, fmt.Errorf("append reports: %w", err)
		}
		return ids, nil

	default:
		// sqlite: explicit ids from the generator channel keep the primary
		// key monotone without a sequence.
		var sb strings.Builder
		sb.WriteString("INSERT INTO report (id, submitted_at, timestamp, latitude, longitude, user_agent, raw) VALUES ")
		args := make([]interface{}, 0, len(rows)*7)
		ids := make([]int64, 0, len(rows))
		for j, r := range rows {
			if j > 0 {
				sb.WriteString(",")
			}
			sb.WriteString("(?,?,?,?,?,?,?)")
			id := <-db.idGenerator
			ids = append(ids, id)
			args = append(args, id, now.UnixMilli(), db.nullableTimeArg(r.Timestamp), r.Lat, r.Lon, r.UserAgent, r.Raw)
		}
		if _, err := db.DB.ExecContext(ctx, sb.String(), args...); err != nil {
			return nil, fmt.Errorf("append reports: %w", err)
		}
		return ids, nil
	}
}

// ReserveReports selects up to batchSize unprocessed reports in submission
// order for the duration of the caller's transaction. On PostgreSQL the
// rows are locked with SKIP LOCKED so parallel workers never collide; on
// sqlite the single write connection already serializes workers.
func (db *Database) ReserveReports(ctx context.Context, tx *sql.Tx, batchSize int) ([]PendingReport, error) {
	if batchSize <= 0 {
		batchSize = 256
	}

	var query string
	switch db.Driver {
	case "pgx":
		query = `
SELECT id, submitted_at, raw
FROM report
WHERE processed_at IS NULL
ORDER BY submitted_at, id
LIMIT $1
FOR UPDATE SKIP LOCKED`
	default:
		query = `
SELECT id, submitted_at, raw
FROM report
WHERE processed_at IS NULL
ORDER BY submitted_at, id
LIMIT ?`
	}

	rows, err := tx.QueryContext(ctx, query, batchSize)
	if err != nil {
		return nil, fmt.Errorf("reserve reports: %w", err)
	}
	defer rows.Close()

	var out []PendingReport
	for rows.Next() {
		var p PendingReport
		if db.Driver == "pgx" {
			if err := rows.Scan(&p.ID, &p.SubmittedAt, &p.Raw); err != nil {
				return nil, fmt.Errorf("scan pending report: %w", err)
			}
			p.SubmittedAt = p.SubmittedAt.UTC()
		} else {
			var ms int64
			if err := rows.Scan(&p.ID, &ms, &p.Raw); err != nil {
				return nil, fmt.Errorf("scan pending report: %w", err)
			}
			p.SubmittedAt = time.UnixMilli(ms).UTC()
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reserve reports: %w", err)
	}
	return out, nil
}

// MarkReportDone stamps a reserved report as aggregated. Matching on the
// (id, submitted_at) pair lets PostgreSQL prune straight to one partition.
func (db *Database) MarkReportDone(ctx context.Context, tx *sql.Tx, id int64, submittedAt time.Time) error {
	return db.markReport(ctx, tx, id, submittedAt, nil)
}

// MarkReportFailed stamps a report as permanently failed with a short
// diagnostic. Failed reports are never retried.
func (db *Database) MarkReportFailed(ctx context.Context, tx *sql.Tx, id int64, submittedAt time.Time, reason string) error {
	return db.markReport(ctx, tx, id, submittedAt, &reason)
}

func (db *Database) markReport(ctx context.Context, tx *sql.Tx, id int64, submittedAt time.Time, reason *string) error {
	now := time.Now().UTC()

	var query string
	switch db.Driver {
	case "pgx":
		query = `UPDATE report SET processed_at = $1, processing_error = $2 WHERE id = $3 AND submitted_at = $4`
	default:
		query = `UPDATE report SET processed_at = ?, processing_error = ? WHERE id = ? AND submitted_at = ?`
	}

	res, err := db.exec(tx).ExecContext(ctx, query, db.timeArg(now), reason, id, db.timeArg(submittedAt))
	if err != nil {
		return fmt.Errorf("mark report %d: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("mark report %d: no row at %s", id, submittedAt.Format(time.RFC3339))
	}
	return nil
}
