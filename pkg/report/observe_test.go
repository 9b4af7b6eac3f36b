package report

import (
	"strings"
	"testing"
	"time"

	"radiolocate/pkg/emitter"
)

func f64(v float64) *float64 { return &v }
func i64(v int64) *int64     { return &v }

func validGNSS() *GNSS {
	return &GNSS{Latitude: 56.0112, Longitude: 37.4765, Accuracy: f64(12)}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		rep     Report
		wantErr string
	}{
		{
			name: "valid",
			rep:  Report{Timestamp: Timestamp{Time: now.Add(-time.Hour)}, GNSS: validGNSS()},
		},
		{
			name:    "missing gnss",
			rep:     Report{Timestamp: Timestamp{Time: now}},
			wantErr: "missing gnss",
		},
		{
			name:    "too old",
			rep:     Report{Timestamp: Timestamp{Time: now.Add(-31 * 24 * time.Hour)}, GNSS: validGNSS()},
			wantErr: "outside acceptance window",
		},
		{
			name:    "too far in the future",
			rep:     Report{Timestamp: Timestamp{Time: now.Add(25 * time.Hour)}, GNSS: validGNSS()},
			wantErr: "outside acceptance window",
		},
		{
			name: "future within a day",
			rep:  Report{Timestamp: Timestamp{Time: now.Add(23 * time.Hour)}, GNSS: validGNSS()},
		},
		{
			name:    "latitude out of range",
			rep:     Report{GNSS: &GNSS{Latitude: 90.5, Longitude: 0}},
			wantErr: "latitude",
		},
		{
			name:    "longitude out of range",
			rep:     Report{GNSS: &GNSS{Latitude: 0, Longitude: -180.5}},
			wantErr: "longitude",
		},
		{
			name:    "loose gnss fix",
			rep:     Report{GNSS: &GNSS{Latitude: 1, Longitude: 2, Accuracy: f64(350)}},
			wantErr: "accuracy",
		},
		{
			name: "no accuracy is accepted",
			rep:  Report{GNSS: &GNSS{Latitude: 1, Longitude: 2}},
		},
		{
			name: "absent timestamp defaults to now",
			rep:  Report{GNSS: validGNSS()},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.rep.Validate(now, 200)
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate passed, want error containing %q", tc.wantErr)
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("Validate error %q, want it to contain %q", err, tc.wantErr)
			}
		})
	}
}

// TestObservationsNormalization runs the full emitter filter chain on a
// single mixed report.
func TestObservationsNormalization(t *testing.T) {
	t.Parallel()
	rep := Report{
		GNSS: validGNSS(),
		Wifi: []Wifi{
			{MAC: "5C:A6:E6:69:E5:EC", RSSI: f64(-81)},
			{MAC: "50ff20ec90d7", RSSI: f64(-73)},
			{MAC: "0250ff20ec90", RSSI: f64(-60)},             // locally administered
			{MAC: "0150ff20ec90", RSSI: f64(-60)},             // multicast
			{MAC: "not-a-mac", RSSI: f64(-60)},                // invalid
			{MAC: "a0b1c2d3e4f5", SSID: "MyNet_nomap"},        // opted out
			{MAC: "a0b1c2d3e4f6", SSID: "CarCam-7", RSSI: f64(-50)}, // dashcam
			{MAC: "a0b1c2d3e4f7"},                             // no strength, gets default
		},
		Bluetooth: []Bluetooth{
			{MAC: "C0:FF:EE:00:00:01", RSSI: f64(-60)},
			{MAC: "short"},
		},
		Cells: &Cells{
			LTE: []CellLTE{
				{MCC: 250, MNC: 2, TAC: 5016, ECI: 40944044, RSRP: f64(-97), PCI: i64(231)},
				{MCC: 250, MNC: 2, TAC: 0, ECI: 40944044, RSRP: f64(-97)},  // missing area
				{MCC: 250, MNC: 2, TAC: 5016, ECI: 0, RSRP: f64(-97)},      // missing cell
				{MCC: 250, MNC: 2, TAC: -5, ECI: 40944044, RSRP: f64(-97)}, // negative area
			},
			GSM: []CellGSM{
				{MCC: 1044, MNC: 0, LAC: 772, CI: 12021, RXLEV: f64(-77)}, // codes clamp
			},
		},
	}

	obs := rep.Observations(-90)

	if len(obs.Wifi) != 3 {
		t.Fatalf("wifi deltas = %d, want 3: %+v", len(obs.Wifi), obs.Wifi)
	}
	if obs.Wifi[0].MAC != "5ca6e669e5ec" || obs.Wifi[1].MAC != "50ff20ec90d7" {
		t.Fatalf("wifi macs not normalized: %+v", obs.Wifi)
	}
	if obs.Wifi[2].StrengthDBm != -90 {
		t.Fatalf("default strength = %g, want -90", obs.Wifi[2].StrengthDBm)
	}
	for _, d := range obs.Wifi {
		if d.Lat != 56.0112 || d.Lon != 37.4765 {
			t.Fatalf("wifi delta lost the truth: %+v", d)
		}
	}

	if len(obs.Bluetooth) != 1 || obs.Bluetooth[0].MAC != "c0ffee000001" {
		t.Fatalf("bluetooth deltas = %+v", obs.Bluetooth)
	}

	if len(obs.Cells) != 2 {
		t.Fatalf("cell deltas = %d, want 2: %+v", len(obs.Cells), obs.Cells)
	}
	gsm, lte := obs.Cells[0], obs.Cells[1]
	wantLTE := emitter.CellKey{Radio: emitter.RadioLTE, Country: 250, Network: 2, Area: 5016, Cell: 40944044, Unit: 231}
	if lte.Key != wantLTE {
		t.Fatalf("lte key = %+v, want %+v", lte.Key, wantLTE)
	}
	if gsm.Key.Country != 999 || gsm.Key.Network != 1 {
		t.Fatalf("mcc/mnc clamp = %+v, want country 999, network 1", gsm.Key)
	}
	if gsm.Key.Unit != 0 {
		t.Fatalf("gsm unit = %d, want 0", gsm.Key.Unit)
	}

	// 5 wifi + 1 bluetooth + 3 cells skipped.
	if obs.Skipped != 9 {
		t.Fatalf("skipped = %d, want 9", obs.Skipped)
	}
	if obs.Total() != 6 {
		t.Fatalf("total = %d, want 6", obs.Total())
	}
}

// TestObservationsStaleAge drops emitters observed too far from the fix.
func TestObservationsStaleAge(t *testing.T) {
	t.Parallel()
	gnss := validGNSS()
	gnss.Age = i64(1000)
	gnss.Speed = f64(20)

	rep := Report{
		GNSS: gnss,
		Wifi: []Wifi{
			{MAC: "a0b1c2d3e4f1", RSSI: f64(-70), Age: i64(2000)},   // 1 s apart, fine
			{MAC: "a0b1c2d3e4f2", RSSI: f64(-70), Age: i64(40000)},  // 39 s apart, stale
			{MAC: "a0b1c2d3e4f3", RSSI: f64(-70), Age: i64(-31000)}, // absolute diff
			{MAC: "a0b1c2d3e4f4", RSSI: f64(-70), Age: i64(11000)},  // 20 m/s * 10 s, too far
			{MAC: "a0b1c2d3e4f5", RSSI: f64(-70)},                   // no age, kept
		},
	}

	obs := rep.Observations(-90)
	if len(obs.Wifi) != 2 {
		t.Fatalf("wifi deltas = %d, want 2: %+v", len(obs.Wifi), obs.Wifi)
	}
	if obs.Wifi[0].MAC != "a0b1c2d3e4f1" || obs.Wifi[1].MAC != "a0b1c2d3e4f5" {
		t.Fatalf("wrong survivors: %+v", obs.Wifi)
	}
	if obs.Skipped != 3 {
		t.Fatalf("skipped = %d, want 3", obs.Skipped)
	}
}

// TestObservationsNoGNSS yields nothing without a fix.
func TestObservationsNoGNSS(t *testing.T) {
	t.Parallel()
	rep := Report{Wifi: []Wifi{{MAC: "a0b1c2d3e4f1", RSSI: f64(-70)}}}
	if got := rep.Observations(-90).Total(); got != 0 {
		t.Fatalf("observations without gnss = %d, want 0", got)
	}
}

func TestNullIsland(t *testing.T) {
	t.Parallel()
	tests := []struct {
		lat, lon float64
		want     bool
	}{
		{0, 0, true},
		{0.5, -0.5, true},
		{1, 1, true},
		{1.01, 0, false},
		{56.0112, 37.4765, false},
		{0, 2, false},
	}
	for _, tc := range tests {
		if got := NullIsland(tc.lat, tc.lon); got != tc.want {
			t.Errorf("NullIsland(%g, %g) = %v, want %v", tc.lat, tc.lon, got, tc.want)
		}
	}
}
