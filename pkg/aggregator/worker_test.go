package aggregator

import (
	"context"
	"math"
	"path/filepath"
	"testing"
	"time"

	"radiolocate/pkg/database"
	"radiolocate/pkg/database/drivers"
	"radiolocate/pkg/emitter"
	"radiolocate/pkg/locate"
	"radiolocate/pkg/report"
	"radiolocate/pkg/reportbus"
)

func init() { drivers.Ready() }

func newTestWorker(t *testing.T) (*Worker, *database.Database) {
	t.Helper()
	db, err := database.NewDatabase(database.Config{
		DBType: "sqlite",
		DSN:    filepath.Join(t.TempDir(), "aggregator_test.sqlite"),
	})
	if err != nil {
		t.Fatalf("NewDatabase: %v", err)
	}
	t.Cleanup(func() { _ = db.DB.Close() })
	if err := db.InitSchema(); err != nil {
		t.Fatalf("InitSchema: %v", err)
	}
	quiet := func(string, ...any) {}
	return NewWorker(db, Config{}, quiet), db
}

func appendRaw(t *testing.T, db *database.Database, items ...string) {
	t.Helper()
	rows := make([]database.ReportRow, 0, len(items))
	for _, raw := range items {
		rows = append(rows, database.ReportRow{Raw: []byte(raw)})
	}
	if _, err := db.AppendReports(context.Background(), rows); err != nil {
		t.Fatalf("AppendReports: %v", err)
	}
}

// TestRunOnceAggregates walks two reports of the same access point, one
// with a colon MAC and one with a bare MAC, through a full pass and
// expects a single learned row carrying both observations.
func TestRunOnceAggregates(t *testing.T) {
	w, db := newTestWorker(t)
	ctx := context.Background()

	appendRaw(t, db,
		`{"gnss":{"latitude":56.01115,"longitude":37.47645,"accuracy":5},"wifi":[{"mac":"50:FF:20:EC:90:D7","rssi":-73}]}`,
		`{"gnss":{"latitude":56.01125,"longitude":37.47655,"accuracy":5},"wifi":[{"mac":"50ff20ec90d7","rssi":-73}]}`,
	)

	n, err := w.RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if n != 2 {
		t.Fatalf("consumed %d reports, want 2", n)
	}

	depth, err := db.ReportQueueDepth(ctx)
	if err != nil {
		t.Fatalf("ReportQueueDepth: %v", err)
	}
	if depth.Pending != 0 || depth.Processed != 2 {
		t.Fatalf("depth = %+v, want everything processed", depth)
	}

	got, err := db.GetWifiEmitters(ctx, []string{"50ff20ec90d7"})
	if err != nil {
		t.Fatalf("GetWifiEmitters: %v", err)
	}
	agg, ok := got["50ff20ec90d7"]
	if !ok {
		t.Fatalf("emitter missing after aggregation")
	}
	// Both readings clamp to weight 1, so the model holds exactly two
	// observations.
	if want := 2 * emitter.Weight(-73); math.Abs(agg.TotalWeight-want) > 1e-9 {
		t.Fatalf("total weight = %g, want %g", agg.TotalWeight, want)
	}
	if d := emitter.DistanceMeters(agg.Lat, agg.Lon, 56.0112, 37.4765); d > 1 {
		t.Fatalf("centroid %.1f m away from the midpoint", d)
	}
}

// TestRunOnceMarksBadReports feeds one unparseable payload, one payload
// without emitters, and one payload with a hopeless GNSS fix. All three
// must be marked failed with a reason, and nothing may be learned.
func TestRunOnceMarksBadReports(t *testing.T) {
	w, db := newTestWorker(t)
	ctx := context.Background()

	appendRaw(t, db,
		`{invalid`,
		`{"gnss":{"latitude":56.0,"longitude":37.0,"accuracy":5}}`,
		`{"gnss":{"latitude":56.0,"longitude":37.0,"accuracy":500},"wifi":[{"mac":"aabbccddeeff","rssi":-60}]}`,
	)

	if _, err := w.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	depth, err := db.ReportQueueDepth(ctx)
	if err != nil {
		t.Fatalf("ReportQueueDepth: %v", err)
	}
	if depth.Pending != 0 || depth.Processed != 3 {
		t.Fatalf("depth = %+v, want all three settled", depth)
	}

	var failures int
	if err := db.DB.QueryRow(`SELECT COUNT(*) FROM report WHERE processing_error IS NOT NULL`).Scan(&failures); err != nil {
		t.Fatalf("count failures: %v", err)
	}
	if failures != 3 {
		t.Fatalf("failures = %d, want 3", failures)
	}

	if n, err := db.CountEmitters(ctx, "wifi"); err != nil || n != 0 {
		t.Fatalf("wifi emitters = %d (err %v), want none", n, err)
	}
}

// TestRunOnceLegacyShape exercises the geosubmit mapping end to end: a
// camelCase item with a wifi access point and a GSM tower that only
// reports ASU.
func TestRunOnceLegacyShape(t *testing.T) {
	w, db := newTestWorker(t)
	ctx := context.Background()

	appendRaw(t, db,
		`{"position":{"latitude":55.7558,"longitude":37.6173,"accuracy":8},`+
			`"wifiAccessPoints":[{"macAddress":"5C:A6:E6:69:E5:EC","signalStrength":-67}],`+
			`"cellTowers":[{"radioType":"gsm","mobileCountryCode":250,"mobileNetworkCode":99,"locationAreaCode":772,"cellId":12021,"asu":20}]}`,
	)

	if _, err := w.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	wifi, err := db.GetWifiEmitters(ctx, []string{"5ca6e669e5ec"})
	if err != nil {
		t.Fatalf("GetWifiEmitters: %v", err)
	}
	if _, ok := wifi["5ca6e669e5ec"]; !ok {
		t.Fatalf("legacy wifi access point not learned")
	}

	key := emitter.CellKey{Radio: emitter.RadioGSM, Country: 250, Network: 99, Area: 772, Cell: 12021}
	cells, err := db.GetCellEmitters(ctx, []emitter.CellKey{key})
	if err != nil {
		t.Fatalf("GetCellEmitters: %v", err)
	}
	agg, ok := cells[key]
	if !ok {
		t.Fatalf("legacy tower not learned")
	}
	// ASU 20 on GSM is 2*20-113 = -73 dBm.
	if agg.MinStrength != -73 || agg.MaxStrength != -73 {
		t.Fatalf("strength envelope [%g, %g], want [-73, -73]", agg.MinStrength, agg.MaxStrength)
	}
}

// TestRunOnceIsExactlyOnce re-runs the worker over a settled log and
// expects the learned model to stay put.
func TestRunOnceIsExactlyOnce(t *testing.T) {
	w, db := newTestWorker(t)
	ctx := context.Background()

	appendRaw(t, db,
		`{"gnss":{"latitude":56.0112,"longitude":37.4765,"accuracy":5},"wifi":[{"mac":"50ff20ec90d7","rssi":-73}]}`,
	)
	if _, err := w.RunOnce(ctx); err != nil {
		t.Fatalf("first RunOnce: %v", err)
	}

	n, err := w.RunOnce(ctx)
	if err != nil {
		t.Fatalf("second RunOnce: %v", err)
	}
	if n != 0 {
		t.Fatalf("second pass consumed %d reports, want 0", n)
	}

	got, err := db.GetWifiEmitters(ctx, []string{"50ff20ec90d7"})
	if err != nil {
		t.Fatalf("GetWifiEmitters: %v", err)
	}
	if w := got["50ff20ec90d7"].TotalWeight; math.Abs(w-emitter.Weight(-73)) > 1e-9 {
		t.Fatalf("total weight = %g after replay, want one observation", w)
	}
}

// TestIngestThenLocate runs the whole training path: raw reports in, a
// worker pass, then a locate query against the learned emitters.
func TestIngestThenLocate(t *testing.T) {
	w, db := newTestWorker(t)
	ctx := context.Background()

	appendRaw(t, db,
		`{"gnss":{"latitude":56.01115,"longitude":37.47645,"accuracy":5},"wifi":[{"mac":"50ff20ec90d7","rssi":-73},{"mac":"5ca6e669e5ec","rssi":-78}]}`,
		`{"gnss":{"latitude":56.01125,"longitude":37.47655,"accuracy":5},"wifi":[{"mac":"50ff20ec90d7","rssi":-71},{"mac":"5ca6e669e5ec","rssi":-74}]}`,
	)
	if _, err := w.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	f := func(v float64) *float64 { return &v }
	eng := locate.NewEngine(db, emitter.DefaultStrengthDBm)
	loc, err := eng.Locate(ctx, report.Report{
		Wifi: []report.Wifi{
			{MAC: "50:FF:20:EC:90:D7", RSSI: f(-70)},
			{MAC: "5ca6e669e5ec", RSSI: f(-72)},
		},
	})
	if err != nil {
		t.Fatalf("Locate: %v", err)
	}
	if d := emitter.DistanceMeters(loc.Latitude, loc.Longitude, 56.0112, 37.4765); d > 1 {
		t.Fatalf("located %.2f m from the survey spot", d)
	}
	if loc.AccuracyM < locate.MinAccuracyM {
		t.Fatalf("accuracy = %v, below the floor", loc.AccuracyM)
	}
}

// TestStartDrainsOnWake proves the pool wakes on a bus publish without
// waiting for its ticker.
func TestStartDrainsOnWake(t *testing.T) {
	_, db := newTestWorker(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := reportbus.NewBus(4)
	quiet := func(string, ...any) {}
	// A very long tick isolates the wake-up path.
	Start(ctx, db, bus, Config{TickInterval: time.Hour, Concurrency: 1}, quiet)

	appendRaw(t, db,
		`{"gnss":{"latitude":56.0112,"longitude":37.4765,"accuracy":5},"wifi":[{"mac":"50ff20ec90d7","rssi":-73}]}`,
	)

	// Publish until the pass lands; the first wake-ups may race the
	// subscription.
	deadline := time.Now().Add(5 * time.Second)
	for {
		bus.Publish(1)
		depth, err := db.ReportQueueDepth(ctx)
		if err != nil {
			t.Fatalf("ReportQueueDepth: %v", err)
		}
		if depth.Pending == 0 && depth.Processed == 1 {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("queue never drained after wake-up: %+v", depth)
		}
		time.Sleep(10 * time.Millisecond)
	}
}
