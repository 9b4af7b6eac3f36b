// Package cellexport maintains a cells.csv.gz snapshot of the learned
// cell aggregates so bulk consumers download a file instead of walking
// the store row by row over HTTP.
package cellexport

import (
	"compress/gzip"
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"radiolocate/pkg/database"
	"radiolocate/pkg/mcc"
)

// Info describes the current snapshot. We expose the on-disk path so the
// HTTP handler can stream straight from disk without buffering the whole
// file in memory, following the Go proverb "Share memory by
// communicating".
type Info struct {
	Path    string
	ModTime time.Time
	Rows    int64
}

// Generator keeps the snapshot fresh on a timer and rebuilds on demand
// when a download arrives before the first build finished.
// Synchronisation happens via channels so we rely on message passing
// instead of mutexes.
type Generator struct {
	requests chan chan result
	done     chan struct{}
}

type result struct {
	info Info
	err  error
}

// Start launches the background worker. The worker streams every cell
// aggregate into a temporary csv.gz and atomically replaces the
// destination once the build succeeds, so downloads never observe a
// partial file. The initial build runs in the background to keep startup
// responsive; Fetch blocks until the first snapshot exists.
func Start(
	ctx context.Context,
	db *database.Database,
	destPath string,
	refreshInterval time.Duration,
	logf func(string, ...any),
) *Generator {
	requests := make(chan chan result)
	done := make(chan struct{})
	buildRequests := make(chan struct{}, 1)
	buildResults := make(chan result, 1)

	destPath = filepath.Clean(destPath)

	triggerBuild := func() {
		select {
		case buildRequests <- struct{}{}:
		default:
		}
	}

	// Builder goroutine keeps disk IO and the store walk away from the
	// coordination loop so Fetch calls stay responsive.
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-buildRequests:
				res := runBuild(ctx, db, destPath)
				if logf != nil {
					if res.err != nil {
						logf("cell export rebuild failed: %v", res.err)
					} else {
						logf("cell export ready: %s (%d rows)", res.info.Path, res.info.Rows)
					}
				}
				select {
				case <-ctx.Done():
					return
				case buildResults <- res:
				}
			}
		}
	}()

	triggerBuild()
	if logf != nil {
		logf("cell export initial build scheduled: %s", destPath)
	}

	// Coordinator goroutine multiplexes ticker events and HTTP requests.
	go func() {
		defer close(done)

		ticker := time.NewTicker(refreshInterval)
		defer ticker.Stop()

		current := result{}
		haveResult := false

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				triggerBuild()
			case res := <-buildResults:
				current = res
				haveResult = true
			case ch := <-requests:
				// The select may hand us a request that raced shutdown;
				// answer with the context error instead of stale data.
				if err := ctx.Err(); err != nil {
					ch <- result{err: err}
					close(ch)
					return
				}
				if !haveResult || current.err != nil {
					triggerBuild()
					select {
					case <-ctx.Done():
						ch <- result{err: ctx.Err()}
						close(ch)
						return
					case res := <-buildResults:
						current = res
						haveResult = true
					}
				}
				ch <- current
				close(ch)
			}
		}
	}()

	return &Generator{requests: requests, done: done}
}

// Fetch returns the current snapshot info, building it on demand if the
// timer has not produced one yet.
func (g *Generator) Fetch(ctx context.Context) (Info, error) {
	respCh := make(chan result, 1)

	select {
	case <-ctx.Done():
		return Info{}, ctx.Err()
	case <-g.done:
		return Info{}, fmt.Errorf("cell export generator stopped")
	case g.requests <- respCh:
	}

	select {
	case <-ctx.Done():
		return Info{}, ctx.Err()
	case <-g.done:
		return Info{}, fmt.Errorf("cell export generator stopped")
	case res := <-respCh:
		return res.info, res.err
	}
}

func runBuild(ctx context.Context, db *database.Database, destPath string) result {
	info, err := buildSnapshot(ctx, db, destPath)
	if err != nil {
		return result{err: err}
	}
	return result{info: info}
}

// buildSnapshot streams aggregates straight into a gzipped CSV. The
// destination is only replaced after the writer chain closed cleanly.
func buildSnapshot(ctx context.Context, db *database.Database, destPath string) (Info, error) {
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return Info{}, fmt.Errorf("create export directory: %w", err)
	}

	tmpFile, err := os.CreateTemp(filepath.Dir(destPath), "cells-*.csv.gz")
	if err != nil {
		return Info{}, fmt.Errorf("tmp export: %w", err)
	}

	cleanup := func() {
		_ = tmpFile.Close()
		_ = os.Remove(tmpFile.Name())
	}

	gz := gzip.NewWriter(tmpFile)
	w := csv.NewWriter(gz)

	header := []string{"radio", "mcc", "mnc", "area", "cell", "unit",
		"lat", "lon", "accuracy", "samples_weight", "region"}
	if err := w.Write(header); err != nil {
		cleanup()
		return Info{}, fmt.Errorf("write header: %w", err)
	}

	rowsCh, errCh := db.StreamCellEmitters(ctx)
	var rows int64
	for row := range rowsCh {
		if err := ctx.Err(); err != nil {
			<-errCh
			cleanup()
			return Info{}, err
		}
		if err := w.Write(exportRecord(row)); err != nil {
			<-errCh
			cleanup()
			return Info{}, fmt.Errorf("write row: %w", err)
		}
		rows++
	}
	if err := <-errCh; err != nil {
		cleanup()
		return Info{}, err
	}

	w.Flush()
	if err := w.Error(); err != nil {
		cleanup()
		return Info{}, fmt.Errorf("flush csv: %w", err)
	}
	if err := gz.Close(); err != nil {
		cleanup()
		return Info{}, fmt.Errorf("close gzip: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		cleanup()
		return Info{}, fmt.Errorf("close export file: %w", err)
	}

	if err := replaceFile(tmpFile.Name(), destPath); err != nil {
		cleanup()
		return Info{}, err
	}

	stat, err := os.Stat(destPath)
	if err != nil {
		return Info{}, fmt.Errorf("stat export: %w", err)
	}
	return Info{Path: destPath, ModTime: stat.ModTime(), Rows: rows}, nil
}

// exportRecord renders one aggregate. The region column carries the
// ISO 3166 code resolved from the MCC, empty for unallocated codes.
func exportRecord(row database.CellEmitterRow) []string {
	region, _ := mcc.Resolve(row.Key.Country)
	return []string{
		row.Key.Radio.String(),
		strconv.FormatInt(int64(row.Key.Country), 10),
		strconv.FormatInt(int64(row.Key.Network), 10),
		strconv.FormatInt(int64(row.Key.Area), 10),
		strconv.FormatInt(row.Key.Cell, 10),
		strconv.FormatInt(int64(row.Key.Unit), 10),
		strconv.FormatFloat(row.Agg.Lat, 'f', 6, 64),
		strconv.FormatFloat(row.Agg.Lon, 'f', 6, 64),
		strconv.FormatFloat(row.Agg.Accuracy, 'f', 0, 64),
		strconv.FormatFloat(row.Agg.TotalWeight, 'f', 4, 64),
		region,
	}
}

// replaceFile atomically replaces the destination with the temporary
// file, retrying once through an explicit remove for filesystems where
// rename does not overwrite.
func replaceFile(tmpPath, destPath string) error {
	if err := os.Rename(tmpPath, destPath); err != nil {
		if removeErr := os.Remove(destPath); removeErr != nil && !os.IsNotExist(removeErr) {
			return fmt.Errorf("remove old export: %w", removeErr)
		}
		if err := os.Rename(tmpPath, destPath); err != nil {
			return fmt.Errorf("replace export: %w", err)
		}
	}
	return nil
}
