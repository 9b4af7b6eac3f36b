package coarseimport

import (
	"compress/gzip"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"radiolocate/pkg/database"
	"radiolocate/pkg/database/drivers"
	"radiolocate/pkg/emitter"
)

func init() { drivers.Ready() }

func newTestDB(t *testing.T) *database.Database {
	t.Helper()
	db, err := database.NewDatabase(database.Config{
		DBType: "sqlite",
		DSN:    filepath.Join(t.TempDir(), "coarseimport_test.sqlite"),
	})
	if err != nil {
		t.Fatalf("NewDatabase: %v", err)
	}
	t.Cleanup(func() { _ = db.DB.Close() })
	if err := db.InitSchema(); err != nil {
		t.Fatalf("InitSchema: %v", err)
	}
	return db
}

const sampleCSV = `radio,mcc,net,area,cell,unit,lon,lat,range,samples,changeable,created,updated,averageSignal
LTE,250,2,9040,191161,231,37.4765,56.0112,2500,17,1,1459625490,1693520029,-97
GSM,234,10,21,9301,,-0.1246,51.5007,,4,1,1459625490,1693520029,0
UMTS,250,1,700,42,11,37.62,55.75,1200,2,1,1459625490,1693520029,-101
CDMA,310,26,4132,50542,,-97.7,30.3,3000,9,1,1459625490,1693520029,0
LTE,250,2,9040,191162,0,0,0,1000,1,1,1459625490,1693520029,0
NR,250,99,700,8877665544,,not-a-number,55.71,500,1,1,1459625490,1693520029,0
`

// TestImportReaderLoadsAndSkips walks the usual dataset shapes: good
// rows with and without optional columns, the CDMA family we do not
// store, a tower parked on 0,0, and a row with a broken number.
func TestImportReaderLoadsAndSkips(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	ctx := context.Background()

	var logged int
	logf := func(string, ...any) { logged++ }

	sum, err := ImportReader(ctx, db, strings.NewReader(sampleCSV), logf)
	if err != nil {
		t.Fatalf("ImportReader: %v", err)
	}
	if sum.Read != 6 {
		t.Fatalf("Read = %d, want 6", sum.Read)
	}
	if sum.Loaded != 3 {
		t.Fatalf("Loaded = %d, want 3", sum.Loaded)
	}
	if sum.Skipped != 3 {
		t.Fatalf("Skipped = %d, want 3", sum.Skipped)
	}
	if logged == 0 {
		t.Fatalf("completion line never logged")
	}

	n, err := db.CountCoarseCells(ctx)
	if err != nil {
		t.Fatalf("CountCoarseCells: %v", err)
	}
	if n != 3 {
		t.Fatalf("stored rows = %d, want 3", n)
	}

	// The GSM row had empty unit and range: unit 0, default radius.
	cells, err := db.LookupCoarseCells(ctx, []emitter.CellKey{
		{Radio: emitter.RadioGSM, Country: 234, Network: 10, Area: 21, Cell: 9301},
	})
	if err != nil {
		t.Fatalf("LookupCoarseCells: %v", err)
	}
	if len(cells) != 1 {
		t.Fatalf("gsm lookup = %d rows, want 1", len(cells))
	}
	got := cells[0]
	if got.Key.Unit != 0 {
		t.Errorf("unit = %d, want 0", got.Key.Unit)
	}
	if got.Radius != defaultRadiusMeters {
		t.Errorf("radius = %v, want %v", got.Radius, float64(defaultRadiusMeters))
	}
	if got.Lat != 51.5007 || got.Lon != -0.1246 {
		t.Errorf("position = %v,%v", got.Lat, got.Lon)
	}

	cells, err = db.LookupCoarseCells(ctx, []emitter.CellKey{
		{Radio: emitter.RadioLTE, Country: 250, Network: 2, Area: 9040, Cell: 191161},
	})
	if err != nil {
		t.Fatalf("LookupCoarseCells: %v", err)
	}
	if len(cells) != 1 || cells[0].Key.Unit != 231 || cells[0].Radius != 2500 {
		t.Fatalf("lte row = %+v", cells)
	}
}

// TestImportReaderIsIdempotent re-runs the same file and expects the
// conflict policy to keep the table unchanged.
func TestImportReaderIsIdempotent(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	ctx := context.Background()

	if _, err := ImportReader(ctx, db, strings.NewReader(sampleCSV), nil); err != nil {
		t.Fatalf("first import: %v", err)
	}
	sum, err := ImportReader(ctx, db, strings.NewReader(sampleCSV), nil)
	if err != nil {
		t.Fatalf("second import: %v", err)
	}
	if sum.Loaded != 3 {
		t.Fatalf("Loaded = %d, want 3", sum.Loaded)
	}

	n, err := db.CountCoarseCells(ctx)
	if err != nil {
		t.Fatalf("CountCoarseCells: %v", err)
	}
	if n != 3 {
		t.Fatalf("stored rows after replay = %d, want 3", n)
	}
}

// TestImportReaderRejectsForeignHeader refuses files that are not the
// tower dump rather than loading garbage.
func TestImportReaderRejectsForeignHeader(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	csv := "id,name,value\n1,foo,2\n"
	if _, err := ImportReader(context.Background(), db, strings.NewReader(csv), nil); err == nil {
		t.Fatalf("foreign header accepted")
	}
}

// TestImportFileGzip exercises the transparent decompression path.
func TestImportFileGzip(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "towers.csv.gz")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	gz := gzip.NewWriter(f)
	if _, err := gz.Write([]byte(sampleCSV)); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := gz.Close(); err != nil {
		t.Fatalf("close gzip: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close file: %v", err)
	}

	sum, err := ImportFile(ctx, db, path, nil)
	if err != nil {
		t.Fatalf("ImportFile: %v", err)
	}
	if sum.Loaded != 3 || sum.Skipped != 3 {
		t.Fatalf("summary = %+v", sum)
	}
}
