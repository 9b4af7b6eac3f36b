package report

import (
	"fmt"
	"strings"
	"time"

	"radiolocate/pkg/emitter"
)

// Validation windows for the device timestamp relative to receive time.
const (
	MaxTimestampAge    = 30 * 24 * time.Hour
	MaxTimestampFuture = 24 * time.Hour
)

// Emitter staleness limits, from the observed behavior of stumbler
// clients: an emitter seen more than 30 s away from the fix, or far
// enough away at the reported speed, belongs to another place.
const (
	maxEmitterAgeMS      = 30_000
	maxSpeedAgeProductMS = 150_000
)

// ssidIgnored lists SSID substrings of networks that move with a
// vehicle, dashcams mostly. Networks ending in "_nomap" asked to stay
// out of location databases and are dropped too.
var ssidIgnored = []string{"carcam"}

// Validate checks the report-level constraints: a GNSS block must exist,
// the timestamp must fall inside the acceptance window around now, the
// truth coordinates must be on the globe, and the fix must be tight
// enough to train on. The returned error text ends up in
// processing_error, so it stays short and concrete.
func (r Report) Validate(now time.Time, maxGNSSAccuracyM float64) error {
	if r.GNSS == nil {
		return fmt.Errorf("missing gnss block")
	}
	ts := r.Timestamp.OrNow(now)
	if ts.Before(now.Add(-MaxTimestampAge)) || ts.After(now.Add(MaxTimestampFuture)) {
		return fmt.Errorf("timestamp %s outside acceptance window", ts.UTC().Format(time.RFC3339))
	}
	if r.GNSS.Latitude < -90 || r.GNSS.Latitude > 90 {
		return fmt.Errorf("latitude %g out of range", r.GNSS.Latitude)
	}
	if r.GNSS.Longitude < -180 || r.GNSS.Longitude > 180 {
		return fmt.Errorf("longitude %g out of range", r.GNSS.Longitude)
	}
	if acc := r.GNSS.Accuracy; acc != nil && *acc > maxGNSSAccuracyM {
		return fmt.Errorf("gnss accuracy %.0f m above limit %.0f m", *acc, maxGNSSAccuracyM)
	}
	return nil
}

// Observations is the per-kind delta set derived from one report.
type Observations struct {
	Wifi      []emitter.MACDelta
	Bluetooth []emitter.MACDelta
	Cells     []emitter.CellDelta

	// Skipped counts emitters dropped during normalization: bad MACs,
	// randomized or multicast addresses, opted-out SSIDs, stale ages,
	// keyless cells.
	Skipped int
}

// Total returns the number of usable observations.
func (o Observations) Total() int {
	return len(o.Wifi) + len(o.Bluetooth) + len(o.Cells)
}

// Observations normalizes every emitter in the report into deltas
// carrying the GNSS truth. Individually invalid emitters are skipped and
// counted; the caller fails the report only when nothing survives.
// Emitters without a strength reading get defaultStrengthDBm.
func (r Report) Observations(defaultStrengthDBm float64) Observations {
	var out Observations
	if r.GNSS == nil {
		return out
	}
	lat, lon := r.GNSS.Latitude, r.GNSS.Longitude

	for _, w := range r.Wifi {
		mac, err := NormalizeMAC(w.MAC)
		if err != nil || IsLocalMAC(mac) || IsMulticastMAC(mac) {
			out.Skipped++
			continue
		}
		if ssidOptedOut(w.SSID) || r.staleEmitter(w.Age) {
			out.Skipped++
			continue
		}
		out.Wifi = append(out.Wifi, emitter.MACDelta{
			MAC: mac, Lat: lat, Lon: lon,
			StrengthDBm: strengthOr(w.RSSI, defaultStrengthDBm),
		})
	}

	for _, b := range r.Bluetooth {
		mac, err := NormalizeMAC(b.MAC)
		if err != nil {
			out.Skipped++
			continue
		}
		if r.staleEmitter(b.Age) {
			out.Skipped++
			continue
		}
		out.Bluetooth = append(out.Bluetooth, emitter.MACDelta{
			MAC: mac, Lat: lat, Lon: lon,
			StrengthDBm: strengthOr(b.RSSI, defaultStrengthDBm),
		})
	}

	if r.Cells != nil {
		for _, c := range r.Cells.GSM {
			r.appendCell(&out, emitter.RadioGSM, c.MCC, c.MNC, c.LAC, c.CI, nil, c.RXLEV, c.Age, defaultStrengthDBm)
		}
		for _, c := range r.Cells.WCDMA {
			r.appendCell(&out, emitter.RadioWCDMA, c.MCC, c.MNC, c.LAC, c.CI, c.PSC, c.RSCP, c.Age, defaultStrengthDBm)
		}
		for _, c := range r.Cells.LTE {
			r.appendCell(&out, emitter.RadioLTE, c.MCC, c.MNC, c.TAC, c.ECI, c.PCI, c.RSRP, c.Age, defaultStrengthDBm)
		}
		for _, c := range r.Cells.NR {
			r.appendCell(&out, emitter.RadioNR, c.MCC, c.MNC, c.TAC, c.NCI, c.SSBI, c.SSRSRP, c.Age, defaultStrengthDBm)
		}
	}

	return out
}

// appendCell synthesizes the six-tuple key for one cellular entry.
// Entries without an area or cell id cannot form a key; negative values
// are rejected because every identifier is unsigned on the air.
func (r Report) appendCell(out *Observations, radio emitter.CellRadio, mcc, mnc, area, cell int64, unit *int64, strength *float64, age *int64, defaultStrengthDBm float64) {
	if area <= 0 || cell <= 0 || r.staleEmitter(age) {
		out.Skipped++
		return
	}
	key := emitter.CellKey{
		Radio:   radio,
		Country: emitter.ClampCode(mcc),
		Network: emitter.ClampCode(mnc),
		Area:    int32(area),
		Cell:    cell,
	}
	if unit != nil && *unit > 0 {
		key.Unit = int16(*unit)
	}
	lat, lon := r.GNSS.Latitude, r.GNSS.Longitude
	out.Cells = append(out.Cells, emitter.CellDelta{
		Key: key, Lat: lat, Lon: lon,
		StrengthDBm: strengthOr(strength, defaultStrengthDBm),
	})
}

// staleEmitter applies the age rules when both the fix and the emitter
// carry an age. diff is in milliseconds; speed is m/s.
func (r Report) staleEmitter(age *int64) bool {
	if age == nil || r.GNSS == nil || r.GNSS.Age == nil {
		return false
	}
	diff := *r.GNSS.Age - *age
	if diff < 0 {
		diff = -diff
	}
	if diff > maxEmitterAgeMS {
		return true
	}
	if r.GNSS.Speed != nil && *r.GNSS.Speed*float64(diff) > maxSpeedAgeProductMS {
		return true
	}
	return false
}

func ssidOptedOut(ssid string) bool {
	if ssid == "" {
		return false
	}
	low := strings.ToLower(ssid)
	if strings.HasSuffix(low, "_nomap") {
		return true
	}
	for _, marker := range ssidIgnored {
		if strings.Contains(low, marker) {
			return true
		}
	}
	return false
}

func strengthOr(v *float64, def float64) float64 {
	if v != nil {
		return *v
	}
	return def
}
