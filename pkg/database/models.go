package database

import (
	"context"
	"database/sql"
	"time"

	"radiolocate/pkg/emitter"
)

// ReportRow is one raw submission headed for the report log. Raw keeps the
// request bytes untouched so the aggregation worker can re-parse them with
// whatever rules are current at processing time.
type ReportRow struct {
	Timestamp time.Time // device-side measurement time, zero when absent
	Lat       float64   // GNSS truth
	Lon       float64
	UserAgent string
	Raw       []byte
}

// PendingReport is one reserved work-queue entry. The (ID, SubmittedAt)
// pair identifies the row across partitions.
type PendingReport struct {
	ID          int64
	SubmittedAt time.Time
	Raw         []byte
}

// Partition describes one daily child of the partitioned report log.
type Partition struct {
	Name string
	Day  time.Time
}

// CellEmitterRow pairs a cell key with its learned aggregate when streaming
// the store, for example into the daily export.
type CellEmitterRow struct {
	Key emitter.CellKey
	Agg emitter.Aggregate
}

// CoarseCell is one row of the imported reference dataset: a cell key with
// a single location prior instead of a learned aggregate.
type CoarseCell struct {
	Key    emitter.CellKey
	Lat    float64
	Lon    float64
	Radius float64
}

// sqlExecutor lets store methods run against either the pooled handle or a
// caller-owned transaction.
type sqlExecutor interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// exec picks the transaction when one is supplied, otherwise the pool.
func (db *Database) exec(tx *sql.Tx) sqlExecutor {
	if tx != nil {
		return tx
	}
	return db.DB
}

// timeArg renders a timestamp the way the active engine stores it:
// PostgreSQL takes time.Time, sqlite stores epoch milliseconds.
func (db *Database) timeArg(t time.Time) interface{} {
	if db.Driver == "pgx" {
		return t.UTC()
	}
	return t.UnixMilli()
}

// nullableTimeArg is timeArg with NULL for the zero time.
func (db *Database) nullableTimeArg(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return db.timeArg(t)
}
