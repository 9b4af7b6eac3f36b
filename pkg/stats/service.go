// Package stats keeps the service counters fresh in the background so
// the overview endpoint answers from memory instead of hitting the
// database on every request.
package stats

import (
	"context"
	"log"
	"time"

	"radiolocate/pkg/database"
)

// Snapshot is one consistent view of the service counters.
type Snapshot struct {
	ReportsPending    int64     `json:"reports_pending"`
	ReportsProcessed  int64     `json:"reports_processed"`
	WifiEmitters      int64     `json:"wifi_emitters"`
	BluetoothEmitters int64     `json:"bluetooth_emitters"`
	CellEmitters      int64     `json:"cell_emitters"`
	CoarseCells       int64     `json:"coarse_cells"`
	RefreshedAt       time.Time `json:"refreshed_at"`
}

// Service refreshes the counters on a timer and serves cached snapshots
// through channels so request handlers never block on counting queries.
type Service struct {
	db       *database.Database
	logf     func(string, ...any)
	requests chan snapshotRequest
	interval time.Duration
	clock    func() time.Time
}

// snapshotRequest serializes snapshot reads through the run goroutine so
// handlers avoid races without sharing mutable counters directly.
type snapshotRequest struct {
	ctx  context.Context
	resp chan Snapshot
}

// NewService prepares the pipeline without starting it so callers can
// decide when to spawn goroutines.
func NewService(db *database.Database, interval time.Duration, logf func(string, ...any)) *Service {
	if logf == nil {
		logf = log.Printf
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &Service{
		db:       db,
		logf:     logf,
		requests: make(chan snapshotRequest, 32),
		interval: interval,
		clock:    time.Now,
	}
}

// Start launches the background worker that refreshes the counters.
func (s *Service) Start(ctx context.Context) {
	if s == nil {
		return
	}
	go s.run(ctx)
}

// Snapshot returns the latest cached counters.
func (s *Service) Snapshot(ctx context.Context) (Snapshot, error) {
	req := snapshotRequest{ctx: ctx, resp: make(chan Snapshot, 1)}

	select {
	case s.requests <- req:
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}

	select {
	case snap := <-req.resp:
		return snap, nil
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
}

func (s *Service) run(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}

	// Prime the cache before serving the first request.
	current := s.refresh(ctx, Snapshot{})

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case req := <-s.requests:
			select {
			case req.resp <- current:
			case <-req.ctx.Done():
			}
		case <-ticker.C:
			current = s.refresh(ctx, current)
		}
	}
}

// refresh recounts everything, holding on to the previous value for any
// counter whose query failed so the overview never flashes zeros during a
// database hiccup.
func (s *Service) refresh(ctx context.Context, prev Snapshot) Snapshot {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	snap := prev

	if depth, err := s.db.ReportQueueDepth(ctx); err != nil {
		s.logf("stats: queue depth failed: %v", err)
	} else {
		snap.ReportsPending = depth.Pending
		snap.ReportsProcessed = depth.Processed
	}

	for _, c := range []struct {
		kind string
		dst  *int64
	}{
		{"wifi", &snap.WifiEmitters},
		{"bluetooth", &snap.BluetoothEmitters},
		{"cell", &snap.CellEmitters},
	} {
		if n, err := s.db.CountEmitters(ctx, c.kind); err != nil {
			s.logf("stats: count %s failed: %v", c.kind, err)
		} else {
			*c.dst = n
		}
	}

	if n, err := s.db.CountCoarseCells(ctx); err != nil {
		s.logf("stats: count coarse cells failed: %v", err)
	} else {
		snap.CoarseCells = n
	}

	snap.RefreshedAt = s.clock().UTC()
	s.logf("stats: pending=%d processed=%d wifi=%d bluetooth=%d cell=%d coarse=%d",
		snap.ReportsPending, snap.ReportsProcessed,
		snap.WifiEmitters, snap.BluetoothEmitters, snap.CellEmitters, snap.CoarseCells)
	return snap
}
