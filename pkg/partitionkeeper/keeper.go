// Package partitionkeeper owns the report log's partition lifecycle:
// creating daily partitions ahead of the write head, expiring the tail,
// and demoting partitions that left the hot path to cheaper indexes.
// On sqlite the storage layer degrades each step itself, so the keeper
// runs unchanged against both engines.
package partitionkeeper

import (
	"context"
	"log"
	"time"

	"radiolocate/pkg/database"
)

// Config tunes one keeper instance. Zero values fall back to defaults.
type Config struct {
	HorizonDays   int           // days of partitions kept ready ahead of today
	RetainDays    int           // covered days kept before expiry
	ColdAfterDays int           // age at which a partition gets its cold index
	Interval      time.Duration // pass cadence
}

func (c Config) withDefaults() Config {
	if c.HorizonDays <= 0 {
		c.HorizonDays = 7
	}
	if c.RetainDays <= 0 {
		c.RetainDays = 120
	}
	if c.ColdAfterDays <= 0 {
		c.ColdAfterDays = 2
	}
	if c.Interval <= 0 {
		c.Interval = time.Hour
	}
	return c
}

// Start launches the scheduler and worker goroutine pair. The worker is
// self-contained and shares state only through the jobs channel,
// following "Don't communicate by sharing memory".
func Start(ctx context.Context, db *database.Database, cfg Config, logf func(string, ...any)) {
	if ctx == nil || db == nil {
		return
	}
	if logf == nil {
		logf = log.Printf
	}
	cfg = cfg.withDefaults()

	jobs := make(chan time.Time, 1)
	go schedule(ctx, cfg.Interval, jobs)
	go worker(ctx, jobs, db, cfg, logf)
}

// schedule feeds pass timestamps to the worker: one immediately, then on
// the ticker. Ticks are dropped while a pass is still running so slow
// DDL never piles up a backlog.
func schedule(ctx context.Context, interval time.Duration, jobs chan<- time.Time) {
	defer close(jobs)

	select {
	case <-ctx.Done():
		return
	case jobs <- time.Now().UTC():
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case t := <-ticker.C:
			select {
			case <-ctx.Done():
				return
			case jobs <- t.UTC():
			default:
				// Worker still busy; skip this tick.
			}
		}
	}
}

func worker(ctx context.Context, jobs <-chan time.Time, db *database.Database, cfg Config, logf func(string, ...any)) {
	for {
		select {
		case <-ctx.Done():
			return
		case now, ok := <-jobs:
			if !ok {
				return
			}
			runCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
			if err := RunPass(runCtx, db, cfg, now, logf); err != nil {
				logf("partition pass failed: %v", err)
			}
			cancel()
		}
	}
}

// RunPass executes one full maintenance pass under the cluster-wide
// advisory lock. A lock held elsewhere means a sibling instance is
// already doing the work, so the pass is skipped without error.
func RunPass(ctx context.Context, db *database.Database, cfg Config, now time.Time, logf func(string, ...any)) error {
	cfg = cfg.withDefaults()
	if logf == nil {
		logf = log.Printf
	}

	release, acquired, err := db.AcquirePartitionLock(ctx)
	if err != nil {
		return err
	}
	if !acquired {
		logf("partition pass skipped: lock held by another instance")
		return nil
	}
	defer release()

	if err := db.EnsurePartitionsForward(ctx, cfg.HorizonDays); err != nil {
		return err
	}

	dropped, err := db.DropExpiredPartitions(ctx, cfg.RetainDays, true, logf)
	if err != nil {
		return err
	}

	cold, err := installColdIndexes(ctx, db, cfg.ColdAfterDays, now, logf)
	if err != nil {
		return err
	}

	logf("partition pass done: %d days ahead, %d expired, %d cold-indexed",
		cfg.HorizonDays, dropped, cold)
	return nil
}

// installColdIndexes walks the attached partitions and adds the BRIN
// index to everything strictly older than the hot window. Per-partition
// failures are logged and skipped like expiry drops are.
func installColdIndexes(ctx context.Context, db *database.Database, coldAfterDays int, now time.Time, logf func(string, ...any)) (int, error) {
	parts, err := db.ListReportPartitions(ctx)
	if err != nil {
		return 0, err
	}

	cutoff := now.UTC().Truncate(24 * time.Hour).AddDate(0, 0, -coldAfterDays)
	installed := 0
	for _, p := range parts {
		if !p.Day.Before(cutoff) {
			continue
		}
		if err := db.InstallColdIndex(ctx, p.Name); err != nil {
			logf("cold index on %s failed: %v", p.Name, err)
			continue
		}
		installed++
	}
	return installed, nil
}
