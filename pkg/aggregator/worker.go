// Package aggregator drains the report log and folds each report's
// observations into the emitter stores. Reservation, upserts, and done
// marks share one transaction per batch, so a crash anywhere re-delivers
// the whole batch and every report contributes exactly zero or one time.
package aggregator

import (
	"context"
	"fmt"
	"log"
	"time"

	"radiolocate/pkg/database"
	"radiolocate/pkg/emitter"
	"radiolocate/pkg/logger"
	"radiolocate/pkg/report"
	"radiolocate/pkg/reportbus"
)

// Logger keeps logging dependency injection minimal so tests can pass a
// stub while production wiring points at log.Printf. We only accept the
// printf-like signature we rely on which mirrors the Go proverb "The
// bigger the interface, the weaker the abstraction".
type Logger func(string, ...any)

// Config bounds one worker pool.
type Config struct {
	BatchSize          int           // reports reserved per pass
	Concurrency        int           // parallel workers
	TickInterval       time.Duration // fallback wake-up period
	MaxGNSSAccuracyM   float64       // reports with a looser fix fail validation
	DefaultStrengthDBm float64       // substituted for emitters without a reading
}

// withDefaults fills the zero values so a partially set Config still
// behaves.
func (c Config) withDefaults() Config {
	if c.BatchSize <= 0 {
		c.BatchSize = 256
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 2
	}
	if c.TickInterval <= 0 {
		c.TickInterval = 5 * time.Second
	}
	if c.MaxGNSSAccuracyM <= 0 {
		c.MaxGNSSAccuracyM = 200
	}
	if c.DefaultStrengthDBm == 0 {
		c.DefaultStrengthDBm = emitter.DefaultStrengthDBm
	}
	return c
}

// Worker owns one aggregation pipeline over one database. All workers of
// a pool share the Worker value; per-pass state lives on the stack.
type Worker struct {
	db   *database.Database
	cfg  Config
	logf Logger
}

// NewWorker wires a worker to its store.
func NewWorker(db *database.Database, cfg Config, logf Logger) *Worker {
	if logf == nil {
		logf = log.Printf
	}
	return &Worker{db: db, cfg: cfg.withDefaults(), logf: logf}
}

// Start launches the worker pool. Workers wake on their ticker and on
// every ingest publish from the bus, then drain the log until a pass
// comes back short.
func Start(ctx context.Context, db *database.Database, bus *reportbus.Bus, cfg Config, logf Logger) *Worker {
	if ctx == nil || db == nil {
		return nil
	}
	w := NewWorker(db, cfg, logf)
	for i := 0; i < w.cfg.Concurrency; i++ {
		go w.loop(ctx, bus)
	}
	return w
}

func (w *Worker) loop(ctx context.Context, bus *reportbus.Bus) {
	var wake <-chan int
	if bus != nil {
		wake = bus.Subscribe(ctx, 4)
	}

	ticker := time.NewTicker(w.cfg.TickInterval)
	defer ticker.Stop()

	// Catch up on whatever the log already holds before the first tick.
	w.drain(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case _, ok := <-wake:
			if !ok {
				return
			}
		}
		w.drain(ctx)
	}
}

// drain runs passes until one comes back short of a full batch. Errors
// end the drain; the next wake-up retries from the log.
func (w *Worker) drain(ctx context.Context) {
	for {
		n, err := w.RunOnce(ctx)
		if err != nil {
			if database.IsRetryable(err) {
				w.logf("⚠ aggregation pass aborted, will retry: %v", err)
			} else {
				w.logf("❌ aggregation pass failed: %v", err)
			}
			return
		}
		if n < w.cfg.BatchSize {
			return
		}
	}
}

// failedReport pairs a reserved report with its permanent rejection
// reason.
type failedReport struct {
	pending database.PendingReport
	reason  string
}

// RunOnce processes one batch inside one transaction and returns the
// number of reports consumed. Zero with a nil error means the log was
// empty.
func (w *Worker) RunOnce(ctx context.Context) (int, error) {
	tx, err := w.db.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin aggregation tx: %w", err)
	}

	pending, err := w.db.ReserveReports(ctx, tx, w.cfg.BatchSize)
	if err != nil {
		_ = tx.Rollback()
		return 0, err
	}
	if len(pending) == 0 {
		_ = tx.Rollback()
		return 0, nil
	}

	// The lead id names the batch in the log; detail lines buffer until
	// the batch's fate is known.
	batchID := fmt.Sprintf("batch-%d", pending[0].ID)
	logger.Begin(batchID)

	now := time.Now().UTC()
	var (
		wifi      []emitter.MACDelta
		bluetooth []emitter.MACDelta
		cells     []emitter.CellDelta
		done      []database.PendingReport
		failed    []failedReport
		skipped   int
	)

	for _, p := range pending {
		rep, err := report.Parse(p.Raw)
		if err != nil {
			failed = append(failed, failedReport{p, fmt.Sprintf("parse: %v", err)})
			logger.Append(batchID, fmt.Sprintf("report %d rejected: parse: %v", p.ID, err))
			continue
		}
		if err := rep.Validate(now, w.cfg.MaxGNSSAccuracyM); err != nil {
			failed = append(failed, failedReport{p, err.Error()})
			logger.Append(batchID, fmt.Sprintf("report %d rejected: %v", p.ID, err))
			continue
		}
		obs := rep.Observations(w.cfg.DefaultStrengthDBm)
		if obs.Total() == 0 {
			failed = append(failed, failedReport{p, "no usable emitters"})
			logger.Append(batchID, fmt.Sprintf("report %d rejected: no usable emitters (%d skipped)", p.ID, obs.Skipped))
			continue
		}
		if obs.Skipped > 0 {
			logger.Append(batchID, fmt.Sprintf("report %d: %d emitters skipped during normalization", p.ID, obs.Skipped))
		}
		skipped += obs.Skipped
		wifi = append(wifi, obs.Wifi...)
		bluetooth = append(bluetooth, obs.Bluetooth...)
		cells = append(cells, obs.Cells...)
		done = append(done, p)
	}

	fail := func(err error) (int, error) {
		_ = tx.Rollback()
		logger.FlushError(batchID, err)
		return 0, err
	}

	if err := w.db.UpsertWifiEmitters(ctx, tx, wifi); err != nil {
		return fail(err)
	}
	if err := w.db.UpsertBluetoothEmitters(ctx, tx, bluetooth); err != nil {
		return fail(err)
	}
	if err := w.db.UpsertCellEmitters(ctx, tx, cells); err != nil {
		return fail(err)
	}

	for _, p := range done {
		if err := w.db.MarkReportDone(ctx, tx, p.ID, p.SubmittedAt); err != nil {
			return fail(err)
		}
	}
	for _, f := range failed {
		if err := w.db.MarkReportFailed(ctx, tx, f.pending.ID, f.pending.SubmittedAt, f.reason); err != nil {
			return fail(err)
		}
	}

	if err := tx.Commit(); err != nil {
		logger.FlushError(batchID, fmt.Errorf("commit aggregation batch: %w", err))
		return 0, err
	}

	logger.Success(batchID, fmt.Sprintf(
		"aggregated %d reports into %d wifi, %d bluetooth, %d cell observations (%d emitters skipped, %d reports rejected)",
		len(done), len(wifi), len(bluetooth), len(cells), skipped, len(failed)))
	return len(pending), nil
}
