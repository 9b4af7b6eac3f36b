package report

import (
	"encoding/json"
	"testing"
)

// TestParseCanonical decodes the snake_case shape with all three emitter
// kinds present.
func TestParseCanonical(t *testing.T) {
	t.Parallel()
	raw := []byte(`{
		"timestamp": 1726000000000,
		"device_id": "dev-1",
		"gnss": {"latitude": 56.0112, "longitude": 37.4765, "accuracy": 12.5, "altitude": 180},
		"wifi": [{"mac": "5C:A6:E6:69:E5:EC", "rssi": -81, "ssid": "home"}],
		"bluetooth": [{"mac": "c0ffee000001", "rssi": -60}],
		"cell": {
			"lte": [{"mcc": 250, "mnc": 2, "tac": 5016, "eci": 40944044, "rsrp": -97, "pci": 231}],
			"gsm": [{"mcc": 250, "mnc": 99, "lac": 772, "ci": 12021, "rxlev": -77}]
		}
	}`)

	rep, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if rep.GNSS == nil || rep.GNSS.Latitude != 56.0112 || rep.GNSS.Longitude != 37.4765 {
		t.Fatalf("gnss = %+v", rep.GNSS)
	}
	if len(rep.Wifi) != 1 || rep.Wifi[0].MAC != "5C:A6:E6:69:E5:EC" || *rep.Wifi[0].RSSI != -81 {
		t.Fatalf("wifi = %+v", rep.Wifi)
	}
	if len(rep.Bluetooth) != 1 || *rep.Bluetooth[0].RSSI != -60 {
		t.Fatalf("bluetooth = %+v", rep.Bluetooth)
	}
	if rep.Cells == nil || len(rep.Cells.LTE) != 1 || rep.Cells.LTE[0].ECI != 40944044 {
		t.Fatalf("cells = %+v", rep.Cells)
	}
	if *rep.Cells.LTE[0].PCI != 231 {
		t.Fatalf("lte pci = %v", rep.Cells.LTE[0].PCI)
	}
	if len(rep.Cells.GSM) != 1 || *rep.Cells.GSM[0].RXLEV != -77 {
		t.Fatalf("gsm = %+v", rep.Cells.GSM)
	}
}

// TestParseLegacy decodes the camelCase stumbler shape and checks the
// field mapping onto the canonical report.
func TestParseLegacy(t *testing.T) {
	t.Parallel()
	raw := []byte(`{
		"timestamp": 1726000000000,
		"position": {"latitude": 56.0112, "longitude": 37.4765, "accuracy": 9.0, "speed": 1.5, "heading": 90},
		"wifiAccessPoints": [{"macAddress": "50:FF:20:EC:90:D7", "signalStrength": -73, "ssid": "cafe"}],
		"bluetoothBeacons": [{"macAddress": "c0ffee000002", "signalStrength": -70, "name": "tag"}],
		"cellTowers": [
			{"radioType": "lte", "mobileCountryCode": 250, "mobileNetworkCode": 2,
			 "locationAreaCode": 5016, "cellId": 40944044, "primaryScramblingCode": 231, "signalStrength": -97},
			{"radioType": "wcdma", "mobileCountryCode": 250, "mobileNetworkCode": 99,
			 "locationAreaCode": 772, "cellId": 88211, "asu": 35}
		]
	}`)

	rep, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if rep.GNSS == nil {
		t.Fatal("legacy position did not map to gnss")
	}
	if rep.GNSS.Bearing == nil || *rep.GNSS.Bearing != 90 {
		t.Fatalf("heading did not map to bearing: %+v", rep.GNSS)
	}
	if len(rep.Wifi) != 1 || rep.Wifi[0].MAC != "50:FF:20:EC:90:D7" || rep.Wifi[0].SSID != "cafe" {
		t.Fatalf("wifi = %+v", rep.Wifi)
	}
	if len(rep.Bluetooth) != 1 || rep.Bluetooth[0].Name != "tag" {
		t.Fatalf("bluetooth = %+v", rep.Bluetooth)
	}
	if rep.Cells == nil || len(rep.Cells.LTE) != 1 {
		t.Fatalf("cells = %+v", rep.Cells)
	}
	lte := rep.Cells.LTE[0]
	if lte.TAC != 5016 || lte.ECI != 40944044 || *lte.PCI != 231 || *lte.RSRP != -97 {
		t.Fatalf("lte mapping = %+v", lte)
	}
	// The WCDMA entry has no signalStrength, so ASU 35 converts to -85.
	if len(rep.Cells.WCDMA) != 1 {
		t.Fatalf("wcdma = %+v", rep.Cells.WCDMA)
	}
	if got := *rep.Cells.WCDMA[0].RSCP; got != -85 {
		t.Fatalf("wcdma asu conversion = %g, want -85", got)
	}
}

// TestASUConversion pins the per-family conversion formulas.
func TestASUConversion(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		radio string
		asu   int64
		want  float64
		none  bool
	}{
		{"gsm 15 asu", "gsm", 15, -83, false},
		{"gsm 5 asu", "gsm", 5, -103, false},
		{"wcdma 35 asu", "wcdma", 35, -85, false},
		{"lte 32 asu", "lte", 32, -108, false},
		{"nr 40 asu", "nr", 40, -100, false},
		{"asu 99 unknown", "lte", 99, 0, true},
		{"unknown radio", "cdma", 10, 0, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			asu := tc.asu
			got := asuToDBm(tc.radio, &asu)
			if tc.none {
				if got != nil {
					t.Fatalf("asuToDBm = %v, want nil", *got)
				}
				return
			}
			if got == nil || *got != tc.want {
				t.Fatalf("asuToDBm(%s, %d) = %v, want %g", tc.radio, tc.asu, got, tc.want)
			}
		})
	}
	if got := asuToDBm("lte", nil); got != nil {
		t.Fatalf("asuToDBm(nil) = %v, want nil", *got)
	}
}

// TestParseNRARFCNAlias accepts the transposed spelling on input.
func TestParseNRARFCNAlias(t *testing.T) {
	t.Parallel()
	raw := []byte(`{
		"gnss": {"latitude": 1.5, "longitude": 2.5},
		"cell": {"nr": [
			{"mcc": 250, "mnc": 2, "tac": 9000, "nci": 123456789, "ss_rsrp": -100, "arfcn": 632000},
			{"mcc": 250, "mnc": 2, "tac": 9000, "nci": 123456790, "ss_rsrp": -101, "arcfn": 632001}
		]}
	}`)
	rep, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	nr := rep.Cells.NR
	if len(nr) != 2 {
		t.Fatalf("nr entries = %d, want 2", len(nr))
	}
	if nr[0].ARCFN == nil || *nr[0].ARCFN != 632000 {
		t.Fatalf("arfcn alias not folded: %+v", nr[0])
	}
	if nr[1].ARCFN == nil || *nr[1].ARCFN != 632001 {
		t.Fatalf("arcfn spelling lost: %+v", nr[1])
	}
}

// TestParseMalformed rejects bytes that fit neither shape.
func TestParseMalformed(t *testing.T) {
	t.Parallel()
	if _, err := Parse([]byte(`"just a string"`)); err == nil {
		t.Fatal("Parse accepted a bare string")
	}
	if _, err := Parse([]byte(`{"gnss": "not an object"}`)); err == nil {
		t.Fatal("Parse accepted a non-object gnss")
	}
}

// TestParseCanonicalWithoutGNSS keeps the canonical decoding when no
// legacy markers exist; validation rejects it later.
func TestParseCanonicalWithoutGNSS(t *testing.T) {
	t.Parallel()
	rep, err := Parse([]byte(`{"wifi": [{"mac": "50ff20ec90d7", "rssi": -73}]}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if rep.GNSS != nil {
		t.Fatalf("gnss = %+v, want nil", rep.GNSS)
	}
	if len(rep.Wifi) != 1 {
		t.Fatalf("wifi = %+v", rep.Wifi)
	}
}

// TestBatchRawItems checks that batch items stay raw for storage.
func TestBatchRawItems(t *testing.T) {
	t.Parallel()
	body := []byte(`{"items": [{"gnss": {"latitude": 1, "longitude": 2}}, {"position": {"latitude": 3, "longitude": 4}}]}`)
	var batch Batch
	if err := json.Unmarshal(body, &batch); err != nil {
		t.Fatalf("unmarshal batch: %v", err)
	}
	if len(batch.Items) != 2 {
		t.Fatalf("items = %d, want 2", len(batch.Items))
	}
	if _, err := Parse(batch.Items[0]); err != nil {
		t.Fatalf("first item: %v", err)
	}
	rep, err := Parse(batch.Items[1])
	if err != nil {
		t.Fatalf("second item: %v", err)
	}
	if rep.GNSS == nil || rep.GNSS.Latitude != 3 {
		t.Fatalf("legacy item mapping = %+v", rep.GNSS)
	}
}
