package database

import (
	"context"
	"fmt"
	"time"
)

// partitionLockKey seeds the cluster-wide advisory lock guarding partition
// DDL. The value spells "report" in hex so collisions with other tools
// sharing the database stay unlikely.
const partitionLockKey int64 = 0x7265706f7274

// PartitionName returns the daily child table name for a given day.
func PartitionName(day time.Time) string {
	day = day.UTC()
	return fmt.Sprintf("report_%04d_%02d_%02d", day.Year(), int(day.Month()), day.Day())
}

// PartitionDay parses the covered day back out of a partition name.
func PartitionDay(name string) (time.Time, error) {
	day, err := time.Parse("report_2006_01_02", name)
	if err != nil {
		return time.Time{}, fmt.Errorf("not a report partition: %s", name)
	}
	return day.UTC(), nil
}

// EnsurePartitionsForward creates the daily partitions covering today
// through today+horizonDays if absent, installing the hot indexes on each.
// sqlite keeps every day in its one table, so this is a no-op there.
func (db *Database) EnsurePartitionsForward(ctx context.Context, horizonDays int) error {
	if db.Driver != "pgx" {
		return nil
	}
	if horizonDays < 0 {
		horizonDays = 0
	}

	today := time.Now().UTC().Truncate(24 * time.Hour)
	for offset := 0; offset <= horizonDays; offset++ {
		day := today.AddDate(0, 0, offset)
		name := PartitionName(day)
		stmt := fmt.Sprintf(
			`CREATE TABLE IF NOT EXISTS %s PARTITION OF report FOR VALUES FROM ('%s') TO ('%s')`,
			name,
			day.Format(time.RFC3339),
			day.AddDate(0, 0, 1).Format(time.RFC3339),
		)
		if _, err := db.DB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create partition %s: %w", name, err)
		}
		if err := db.InstallHotIndexes(ctx, name); err != nil {
			return fmt.Errorf("index partition %s: %w", name, err)
		}
	}
	return nil
}

// DropExpiredPartitions removes daily partitions whose covered day lies
// strictly before today−retainDays. Individual drop failures are logged
// and skipped, never fatal to the batch. sqlite expires by range delete
// instead and reports the number of rows removed.
func (db *Database) DropExpiredPartitions(ctx context.Context, retainDays int, cascade bool, logf func(string, ...any)) (int, error) {
	cutoff := time.Now().UTC().Truncate(24 * time.Hour).AddDate(0, 0, -retainDays)

	if db.Driver != "pgx" {
		res, err := db.DB.ExecContext(ctx, `DELETE FROM report WHERE submitted_at < ?`, cutoff.UnixMilli())
		if err != nil {
			return 0, fmt.Errorf("delete expired reports: %w", err)
		}
		n, _ := res.RowsAffected()
		if n > 0 {
			logf("🧹 removed %d reports older than %s", n, cutoff.Format("2006-01-02"))
		}
		return int(n), nil
	}

	parts, err := db.ListReportPartitions(ctx)
	if err != nil {
		return 0, err
	}

	dropped := 0
	for _, p := range parts {
		if !p.Day.Before(cutoff) {
			continue
		}
		stmt := fmt.Sprintf("DROP TABLE IF EXISTS %s", p.Name)
		if cascade {
			stmt += " CASCADE"
		}
		if _, err := db.DB.ExecContext(ctx, stmt); err != nil {
			logf("❌ drop partition %s: %v", p.Name, err)
			continue
		}
		dropped++
		logf("🧹 dropped partition %s", p.Name)
	}
	return dropped, nil
}

// ListReportPartitions returns the attached daily partitions, oldest
// first. Children whose name does not follow the daily pattern are left
// out; they belong to somebody else.
func (db *Database) ListReportPartitions(ctx context.Context) ([]Partition, error) {
	if db.Driver != "pgx" {
		return nil, nil
	}

	const query = `
SELECT c.relname
FROM pg_inherits i
JOIN pg_class c ON c.oid = i.inhrelid
JOIN pg_class p ON p.oid = i.inhparent
WHERE p.relname = 'report'
ORDER BY c.relname`

	rows, err := db.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list partitions: %w", err)
	}
	defer rows.Close()

	var out []Partition
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan partition name: %w", err)
		}
		day, err := PartitionDay(name)
		if err != nil {
			continue
		}
		out = append(out, Partition{Name: name, Day: day})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list partitions: %w", err)
	}
	return out, nil
}

// InstallHotIndexes idempotently creates the two per-partition indexes:
// the partial index that keeps the dequeue scan proportional to the
// unprocessed tail, and the range index for reads by receive time. On
// sqlite both exist table-wide from InitSchema.
func (db *Database) InstallHotIndexes(ctx context.Context, partition string) error {
	if db.Driver != "pgx" {
		return nil
	}
	stmts := []string{
		fmt.Sprintf(
			`CREATE INDEX IF NOT EXISTS %s_todo_idx ON %s (processed_at, submitted_at) WHERE processed_at IS NULL`,
			partition, partition),
		fmt.Sprintf(
			`CREATE INDEX IF NOT EXISTS %s_submitted_idx ON %s (submitted_at)`,
			partition, partition),
	}
	for _, stmt := range stmts {
		if _, err := db.DB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("install hot indexes on %s: %w", partition, err)
		}
	}
	return nil
}

// InstallColdIndex adds the BRIN range index once a partition has left the
// hot write path. BRIN stays tiny on append-ordered timestamps, which is
// all cold partitions are read by.
func (db *Database) InstallColdIndex(ctx context.Context, partition string) error {
	if db.Driver != "pgx" {
		return nil
	}
	stmt := fmt.Sprintf(
		`CREATE INDEX IF NOT EXISTS %s_brin_idx ON %s USING BRIN (submitted_at)`,
		partition, partition)
	if _, err := db.DB.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("install cold index on %s: %w", partition, err)
	}
	return nil
}

// AcquirePartitionLock takes the advisory lock that keeps two instances
// from running partition DDL at once. The lock is session scoped, so the
// underlying connection stays pinned until release is called. Not
// acquiring it is no error, just wasted work avoided.
func (db *Database) AcquirePartitionLock(ctx context.Context) (release func(), acquired bool, err error) {
	if db.Driver != "pgx" {
		return func() {}, true, nil
	}

	conn, err := db.DB.Conn(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("open lock connection: %w", err)
	}

	var got bool
	if err := conn.QueryRowContext(ctx, `SELECT pg_try_advisory_lock($1)`, partitionLockKey).Scan(&got); err != nil {
		_ = conn.Close()
		return nil, false, fmt.Errorf("advisory lock: %w", err)
	}
	if !got {
		_ = conn.Close()
		return func() {}, false, nil
	}

	release = func() {
		// Detached context so shutdown still unlocks after the caller's
		// context is cancelled.
		unlockCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_, _ = conn.ExecContext(unlockCtx, `SELECT pg_advisory_unlock($1)`, partitionLockKey)
		_ = conn.Close()
	}
	return release, true, nil
}
