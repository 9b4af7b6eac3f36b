// Package coarseimport loads the public cell reference dataset into the
// coarse_cell table. The file is the usual tower dump: a CSV with a
// header row and one tower per line, optionally gzip-compressed.
package coarseimport

import (
	"compress/gzip"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"radiolocate/pkg/database"
	"radiolocate/pkg/emitter"
)

// insertBatch bounds memory while still amortizing the insert round trip.
const insertBatch = 5000

// defaultRadiusMeters stands in for missing or nonsense range values so
// the fallback path never reports a zero-radius fix.
const defaultRadiusMeters = 1000

// Summary counts what one import run did with the file.
type Summary struct {
	Read    int64 // data lines consumed
	Loaded  int64 // rows handed to storage
	Skipped int64 // unknown radio, zero coordinates, or unparseable fields
}

// ImportFile opens the dataset, transparently decompressing .gz, and
// streams it into storage.
func ImportFile(ctx context.Context, db *database.Database, path string, logf func(string, ...any)) (Summary, error) {
	f, err := os.Open(path)
	if err != nil {
		return Summary{}, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return Summary{}, fmt.Errorf("open gzip: %w", err)
		}
		defer gz.Close()
		r = gz
	}

	return ImportReader(ctx, db, r, logf)
}

// ImportReader streams CSV rows into coarse_cell in bounded batches.
// Columns are located by header name so trailing dataset columns and
// reordered exports both work. Rows the dataset cannot vouch for are
// skipped and counted, never guessed at.
func ImportReader(ctx context.Context, db *database.Database, r io.Reader, logf func(string, ...any)) (Summary, error) {
	if logf == nil {
		logf = func(string, ...any) {}
	}

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err != nil {
		return Summary{}, fmt.Errorf("read header: %w", err)
	}
	cols, err := mapColumns(header)
	if err != nil {
		return Summary{}, err
	}

	var (
		sum   Summary
		batch = make([]database.CoarseCell, 0, insertBatch)
	)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if _, err := db.InsertCoarseCells(ctx, batch); err != nil {
			return fmt.Errorf("store batch: %w", err)
		}
		sum.Loaded += int64(len(batch))
		batch = batch[:0]
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return sum, ctx.Err()
		default:
		}

		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return sum, fmt.Errorf("read row %d: %w", sum.Read+1, err)
		}
		sum.Read++

		cell, ok := parseRow(cols, record)
		if !ok {
			sum.Skipped++
		} else {
			batch = append(batch, cell)
			if len(batch) == insertBatch {
				if err := flush(); err != nil {
					return sum, err
				}
			}
		}

		if sum.Read%100_000 == 0 {
			logf("cell import: %d rows read, %d loaded, %d skipped", sum.Read, sum.Loaded, sum.Skipped)
		}
	}

	if err := flush(); err != nil {
		return sum, err
	}
	logf("cell import: done, %d rows read, %d loaded, %d skipped", sum.Read, sum.Loaded, sum.Skipped)
	return sum, nil
}

// columnIndexes holds the positions of the fields we consume.
type columnIndexes struct {
	radio, mcc, net, area, cell, unit, lon, lat, rng int
}

func mapColumns(header []string) (columnIndexes, error) {
	idx := columnIndexes{radio: -1, mcc: -1, net: -1, area: -1, cell: -1, unit: -1, lon: -1, lat: -1, rng: -1}
	for i, name := range header {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "radio":
			idx.radio = i
		case "mcc":
			idx.mcc = i
		case "net", "mnc":
			idx.net = i
		case "area", "lac", "tac":
			idx.area = i
		case "cell", "cid":
			idx.cell = i
		case "unit":
			idx.unit = i
		case "lon":
			idx.lon = i
		case "lat":
			idx.lat = i
		case "range":
			idx.rng = i
		}
	}
	// unit and range are optional in older dumps, the rest are not.
	for _, req := range []struct {
		name string
		pos  int
	}{
		{"radio", idx.radio}, {"mcc", idx.mcc}, {"net", idx.net},
		{"area", idx.area}, {"cell", idx.cell}, {"lon", idx.lon}, {"lat", idx.lat},
	} {
		if req.pos < 0 {
			return columnIndexes{}, fmt.Errorf("dataset header lacks column %q", req.name)
		}
	}
	return idx, nil
}

// parseRow turns one CSV record into a storage row. A false return means
// the row is unusable: radio outside the four families, coordinates at
// zero, or numbers that do not parse.
func parseRow(cols columnIndexes, record []string) (database.CoarseCell, bool) {
	field := func(i int) string {
		if i < 0 || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	radio := parseRadio(field(cols.radio))
	if radio == 0 {
		return database.CoarseCell{}, false
	}

	mcc, err1 := strconv.ParseInt(field(cols.mcc), 10, 16)
	net, err2 := strconv.ParseInt(field(cols.net), 10, 16)
	area, err3 := strconv.ParseInt(field(cols.area), 10, 32)
	cid, err4 := strconv.ParseInt(field(cols.cell), 10, 64)
	lat, err5 := strconv.ParseFloat(field(cols.lat), 64)
	lon, err6 := strconv.ParseFloat(field(cols.lon), 64)
	for _, err := range []error{err1, err2, err3, err4, err5, err6} {
		if err != nil {
			return database.CoarseCell{}, false
		}
	}
	if lat == 0 && lon == 0 {
		return database.CoarseCell{}, false
	}
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return database.CoarseCell{}, false
	}
	if area <= 0 || cid <= 0 {
		return database.CoarseCell{}, false
	}

	var unit int16
	if s := field(cols.unit); s != "" {
		if v, err := strconv.ParseInt(s, 10, 16); err == nil && v > 0 {
			unit = int16(v)
		}
	}

	radius := float64(defaultRadiusMeters)
	if s := field(cols.rng); s != "" {
		if v, err := strconv.ParseFloat(s, 64); err == nil && v > 0 {
			radius = v
		}
	}

	return database.CoarseCell{
		Key: emitter.CellKey{
			Radio:   radio,
			Country: emitter.ClampCode(mcc),
			Network: emitter.ClampCode(net),
			Area:    int32(area),
			Cell:    cid,
			Unit:    unit,
		},
		Lat:    lat,
		Lon:    lon,
		Radius: radius,
	}, true
}

// parseRadio maps the dataset's radio spellings onto the stored family
// codes. CDMA and anything newer than we know stay out of the table.
func parseRadio(s string) emitter.CellRadio {
	switch strings.ToUpper(s) {
	case "GSM":
		return emitter.RadioGSM
	case "UMTS", "WCDMA":
		return emitter.RadioWCDMA
	case "LTE":
		return emitter.RadioLTE
	case "NR", "5G":
		return emitter.RadioNR
	}
	return 0
}
