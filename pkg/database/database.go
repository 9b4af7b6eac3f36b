// Package database is the storage layer: the partitioned report log, the
// three emitter stores, and the imported coarse-cell reference, all spoken
// through database/sql with per-engine SQL. PostgreSQL ("pgx") is the
// production engine; sqlite is the embedded engine for development and
// tests.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"
	"time"
)

// Database wraps the SQL handle together with the id generator channel and
// the normalized driver name so SQL builders can stay declarative.
type Database struct {
	DB          *sql.DB
	idGenerator chan int64 // unique report ids for engines without sequences
	Driver      string     // "pgx" or "sqlite"
}

// Config holds what NewDatabase needs to open an engine.
type Config struct {
	DBType string // "pgx" (PostgreSQL) or "sqlite"
	DSN    string // postgres:// URL for pgx, file path for sqlite
}

// normalizeDBType trims and lowercases driver names so downstream switch
// blocks never miss an engine because a caller passed mixed case.
func normalizeDBType(dbType string) string {
	return strings.ToLower(strings.TrimSpace(dbType))
}

// startIDGenerator launches a goroutine handing out unique ids.
func startIDGenerator(initialID int64) chan int64 {
	idChannel := make(chan int64)
	go func(start int64) {
		currentID := start
		for {
			idChannel <- currentID
			currentID++
		}
	}(initialID)
	return idChannel
}

// NewDatabase opens the engine and configures connection pooling.
// sqlite is forced into single-connection mode: one writer, one stable
// connection that keeps the session pragmas alive for the whole process.
func NewDatabase(config Config) (*Database, error) {
	driverName := normalizeDBType(config.DBType)
	dsn := strings.TrimSpace(config.DSN)

	switch driverName {
	case "sqlite":
		if dsn == "" {
			dsn = "radiolocate.sqlite"
		}
	case "pgx":
		if dsn == "" {
			return nil, fmt.Errorf("postgres engine requires a DSN")
		}
	default:
		return nil, fmt.Errorf("unsupported database type: %s", config.DBType)
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("error opening the database: %v", err)
	}

	if driverName == "sqlite" {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(0)
		tuneCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := tuneSQLiteConnection(tuneCtx, db, log.Printf); err != nil {
			log.Printf("sqlite tuning skipped: %v", err)
		}
		cancel()
	}

	// Cheap liveness probe with timeout so we don't hang at startup.
	{
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("error connecting to the database: %v", err)
		}
	}

	log.Printf("Using database driver: %s", driverName)

	// Bootstrap the id generator from the highest report id so every append
	// gets a unique key on engines without sequences. The error is ignored
	// to keep startup robust when the table does not exist yet.
	var maxID sql.NullInt64
	_ = db.QueryRow(`SELECT MAX(id) FROM report`).Scan(&maxID)
	initialID := int64(1)
	if maxID.Valid && maxID.Int64 >= initialID {
		initialID = maxID.Int64 + 1
	}
	idChannel := startIDGenerator(initialID)

	return &Database{
		DB:          db,
		idGenerator: idChannel,
		Driver:      driverName,
	}, nil
}

// tuneSQLiteConnection applies WAL/synchronous/busy pragmas. The steps run
// through a small channel pipeline so the work happens outside the caller
// goroutine, following "Don't communicate by sharing memory; share memory
// by communicating".
func tuneSQLiteConnection(ctx context.Context, db *sql.DB, logf func(string, ...any)) error {
	type pragma struct {
		label     string
		query     string
		expectRow bool
	}

	steps := []pragma{
		{label: "journal_mode", query: "PRAGMA journal_mode=WAL;", expectRow: true},
		{label: "synchronous", query: "PRAGMA synchronous=NORMAL;"},
		{label: "temp_store", query: "PRAGMA temp_store=MEMORY;"},
		{label: "cache_size", query: "PRAGMA cache_size=-20000;"},
		{label: "busy_timeout", query: "PRAGMA busy_timeout=5000;"},
	}

	jobs := make(chan pragma)
	errs := make(chan error, 1)

	go func() {
		defer close(errs)
		for step := range jobs {
			select {
			case <-ctx.Done():
				errs <- ctx.Err()
				return
			default:
			}

			if step.expectRow {
				var mode string
				if err := db.QueryRowContext(ctx, step.query).Scan(&mode); err != nil {
					errs <- fmt.Errorf("apply %s: %w", step.label, err)
					return
				}
				logf("SQLite tuning %s -> %s", step.label, mode)
				continue
			}

			if _, err := db.ExecContext(ctx, step.query); err != nil {
				errs <- fmt.Errorf("apply %s: %w", step.label, err)
				return
			}
			logf("SQLite tuning %s applied", step.label)
		}
		errs <- nil
	}()

	go func() {
		defer close(jobs)
		for _, step := range steps {
			jobs <- step
		}
	}()

	if err := <-errs; err != nil {
		return err
	}
	return nil
}

// InitSchema creates the minimal required schema synchronously so the app
// can accept traffic immediately. Secondary indexes are built later by
// EnsureIndexesAsync in background; per-partition indexes belong to the
// partition manager.
func (db *Database) InitSchema() error {
	var schema string

	switch db.Driver {
	case "pgx":
		// The report log is range-partitioned by receive time; the parent
		// carries no storage of its own. Emitter tables are updated in
		// place on every observation, so they get aggressive autovacuum.
		schema = `
CREATE SEQUENCE IF NOT EXISTS report_id_seq;

CREATE TABLE IF NOT EXISTS report (
  id               BIGINT NOT NULL DEFAULT nextval('report_id_seq'),
  submitted_at     TIMESTAMPTZ NOT NULL,
  timestamp        TIMESTAMPTZ,
  latitude         DOUBLE PRECISION,
  longitude        DOUBLE PRECISION,
  user_agent       TEXT,
  raw              BYTEA NOT NULL,
  processed_at     TIMESTAMPTZ,
  processing_error TEXT,
  PRIMARY KEY (id, submitted_at)
) PARTITION BY RANGE (submitted_at);

CREATE TABLE IF NOT EXISTS wifi_emitter (
  mac          TEXT PRIMARY KEY,
  min_lat      DOUBLE PRECISION NOT NULL,
  min_lon      DOUBLE PRECISION NOT NULL,
  max_lat      DOUBLE PRECISION NOT NULL,
  max_lon      DOUBLE PRECISION NOT NULL,
  lat          DOUBLE PRECISION NOT NULL,
  lon          DOUBLE PRECISION NOT NULL,
  accuracy     DOUBLE PRECISION NOT NULL DEFAULT 0,
  total_weight DOUBLE PRECISION NOT NULL,
  min_strength DOUBLE PRECISION NOT NULL,
  max_strength DOUBLE PRECISION NOT NULL,
  updated_at   TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS bluetooth_emitter (
  mac          TEXT PRIMARY KEY,
  min_lat      DOUBLE PRECISION NOT NULL,
  min_lon      DOUBLE PRECISION NOT NULL,
  max_lat      DOUBLE PRECISION NOT NULL,
  max_lon      DOUBLE PRECISION NOT NULL,
  lat          DOUBLE PRECISION NOT NULL,
  lon          DOUBLE PRECISION NOT NULL,
  accuracy     DOUBLE PRECISION NOT NULL DEFAULT 0,
  total_weight DOUBLE PRECISION NOT NULL,
  min_strength DOUBLE PRECISION NOT NULL,
  max_strength DOUBLE PRECISION NOT NULL,
  updated_at   TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS cell_emitter (
  radio        SMALLINT NOT NULL,
  country      SMALLINT NOT NULL,
  network      SMALLINT NOT NULL,
  area         INTEGER NOT NULL,
  cell         BIGINT NOT NULL,
  unit         SMALLINT NOT NULL DEFAULT 0,
  min_lat      DOUBLE PRECISION NOT NULL,
  min_lon      DOUBLE PRECISION NOT NULL,
  max_lat      DOUBLE PRECISION NOT NULL,
  max_lon      DOUBLE PRECISION NOT NULL,
  lat          DOUBLE PRECISION NOT NULL,
  lon          DOUBLE PRECISION NOT NULL,
  accuracy     DOUBLE PRECISION NOT NULL DEFAULT 0,
  total_weight DOUBLE PRECISION NOT NULL,
  min_strength DOUBLE PRECISION NOT NULL,
  max_strength DOUBLE PRECISION NOT NULL,
  updated_at   TIMESTAMPTZ NOT NULL,
  PRIMARY KEY (radio, country, network, area, cell, unit)
);

CREATE TABLE IF NOT EXISTS coarse_cell (
  radio   SMALLINT NOT NULL,
  country SMALLINT NOT NULL,
  network SMALLINT NOT NULL,
  area    INTEGER NOT NULL,
  cell    BIGINT NOT NULL,
  unit    SMALLINT NOT NULL DEFAULT 0,
  lat     DOUBLE PRECISION NOT NULL,
  lon     DOUBLE PRECISION NOT NULL,
  radius  DOUBLE PRECISION NOT NULL,
  PRIMARY KEY (radio, country, network, area, cell, unit)
);

ALTER TABLE wifi_emitter SET (autovacuum_vacuum_scale_factor = 0.02, autovacuum_analyze_scale_factor = 0.02);
ALTER TABLE bluetooth_emitter SET (autovacuum_vacuum_scale_factor = 0.02, autovacuum_analyze_scale_factor = 0.02);
ALTER TABLE cell_emitter SET (autovacuum_vacuum_scale_factor = 0.02, autovacuum_analyze_scale_factor = 0.02);
`

	case "sqlite":
		// One plain report table stands in for the partition tree; the
		// work-queue partial index and the range index are created here
		// because there is no per-partition lifecycle.
		schema = `
CREATE TABLE IF NOT EXISTS report (
  id               INTEGER PRIMARY KEY,
  submitted_at     BIGINT NOT NULL,
  timestamp        BIGINT,
  latitude         REAL,
  longitude        REAL,
  user_agent       TEXT,
  raw              BLOB NOT NULL,
  processed_at     BIGINT,
  processing_error TEXT
);
CREATE INDEX IF NOT EXISTS idx_report_todo
  ON report (processed_at, submitted_at) WHERE processed_at IS NULL;
CREATE INDEX IF NOT EXISTS idx_report_submitted
  ON report (submitted_at);

CREATE TABLE IF NOT EXISTS wifi_emitter (
  mac          TEXT PRIMARY KEY,
  min_lat      REAL NOT NULL,
  min_lon      REAL NOT NULL,
  max_lat      REAL NOT NULL,
  max_lon      REAL NOT NULL,
  lat          REAL NOT NULL,
  lon          REAL NOT NULL,
  accuracy     REAL NOT NULL DEFAULT 0,
  total_weight REAL NOT NULL,
  min_strength REAL NOT NULL,
  max_strength REAL NOT NULL,
  updated_at   BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS bluetooth_emitter (
  mac          TEXT PRIMARY KEY,
  min_lat      REAL NOT NULL,
  min_lon      REAL NOT NULL,
  max_lat      REAL NOT NULL,
  max_lon      REAL NOT NULL,
  lat          REAL NOT NULL,
  lon          REAL NOT NULL,
  accuracy     REAL NOT NULL DEFAULT 0,
  total_weight REAL NOT NULL,
  min_strength REAL NOT NULL,
  max_strength REAL NOT NULL,
  updated_at   BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS cell_emitter (
  radio        INTEGER NOT NULL,
  country      INTEGER NOT NULL,
  network      INTEGER NOT NULL,
  area         INTEGER NOT NULL,
  cell         BIGINT NOT NULL,
  unit         INTEGER NOT NULL DEFAULT 0,
  min_lat      REAL NOT NULL,
  min_lon      REAL NOT NULL,
  max_lat      REAL NOT NULL,
  max_lon      REAL NOT NULL,
  lat          REAL NOT NULL,
  lon          REAL NOT NULL,
  accuracy     REAL NOT NULL DEFAULT 0,
  total_weight REAL NOT NULL,
  min_strength REAL NOT NULL,
  max_strength REAL NOT NULL,
  updated_at   BIGINT NOT NULL,
  PRIMARY KEY (radio, country, network, area, cell, unit)
);

CREATE TABLE IF NOT EXISTS coarse_cell (
  radio   INTEGER NOT NULL,
  country INTEGER NOT NULL,
  network INTEGER NOT NULL,
  area    INTEGER NOT NULL,
  cell    BIGINT NOT NULL,
  unit    INTEGER NOT NULL DEFAULT 0,
  lat     REAL NOT NULL,
  lon     REAL NOT NULL,
  radius  REAL NOT NULL,
  PRIMARY KEY (radio, country, network, area, cell, unit)
);
`

	default:
		return fmt.Errorf("unsupported database type: %s", db.Driver)
	}

	if _, err := db.DB.Exec(schema); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

// EnsureIndexesAsync builds non-critical indexes in background, politely.
// - No pinned connections (important for sqlite with MaxOpenConns(1)).
// - No pre-checks: just CREATE INDEX IF NOT EXISTS.
// - Retries with exponential backoff on "database is locked"/"SQLITE_BUSY".
func (db *Database) EnsureIndexesAsync(ctx context.Context, logf func(string, ...any)) {
	indexes := desiredIndexesPortable()
	if len(indexes) == 0 {
		return
	}

	// single worker: avoids DDL self-contention and keeps the app responsive
	worker := func() {
		logf("⏳ background index build scheduled (engine=%s)", db.Driver)

		for _, it := range indexes {
			start := time.Now()
			logf("▶️  start index %s", it.name)

			backoff := 50 * time.Millisecond
			for {
				select {
				case <-ctx.Done():
					logf("⏹️  stop index builder due to context cancel: %v", ctx.Err())
					return
				default:
				}

				_, err := db.DB.ExecContext(ctx, it.sql)
				if err == nil {
					logf("✅ index %s ready in %s", it.name, time.Since(start).Truncate(time.Millisecond))
					break
				}

				msg := strings.ToLower(err.Error())
				// treat "already exists" style as success (race, or double run)
				if strings.Contains(msg, "already exists") ||
					strings.Contains(msg, "duplicate key value") ||
					strings.Contains(msg, "sqlstate 23505") {
					logf("⏭️  index %s appears to exist. continue.", it.name)
					break
				}

				// busy/locked → backoff and retry, capped at 1s
				if strings.Contains(msg, "database is locked") ||
					strings.Contains(msg, "sqlite_busy") ||
					strings.Contains(msg, "resource busy") ||
					strings.Contains(msg, "locked") {
					time.Sleep(backoff)
					if backoff < time.Second {
						backoff *= 2
						if backoff > time.Second {
							backoff = time.Second
						}
					}
					continue
				}

				// other errors: log and continue with next index
				logf("❌ index %s failed after %s: %v", it.name, time.Since(start).Truncate(time.Millisecond), err)
				break
			}
		}
	}

	go worker()
}

// desiredIndexesPortable declares the secondary indexes both engines want.
// The SQL is identical on PostgreSQL and sqlite, so there is no per-engine
// switch here; partition-local indexes live in partitions.go instead.
func desiredIndexesPortable() []struct{ name, sql string } {
	return []struct{ name, sql string }{
		// updated_at drives the export snapshot and freshness queries.
		{"idx_wifi_emitter_updated",
			`CREATE INDEX IF NOT EXISTS idx_wifi_emitter_updated ON wifi_emitter (updated_at)`},
		{"idx_bluetooth_emitter_updated",
			`CREATE INDEX IF NOT EXISTS idx_bluetooth_emitter_updated ON bluetooth_emitter (updated_at)`},
		{"idx_cell_emitter_updated",
			`CREATE INDEX IF NOT EXISTS idx_cell_emitter_updated ON cell_emitter (updated_at)`},
		// country groups the export and stats by operator region.
		{"idx_cell_emitter_country",
			`CREATE INDEX IF NOT EXISTS idx_cell_emitter_country ON cell_emitter (country)`},
	}
}
