// Package locate answers position queries from the learned emitter
// stores. A query carries the radio environment a device sees right now;
// the engine resolves each emitter against the store, fuses the matches
// into a weighted centroid, and falls back to the imported coarse-cell
// dataset when nothing resolves.
package locate

import (
	"context"
	"errors"
	"math"
	"sort"

	"radiolocate/pkg/database"
	"radiolocate/pkg/emitter"
	"radiolocate/pkg/report"
)

// ErrNoCoverage reports that nothing in the query matched any store.
// The HTTP layer maps it to 404.
var ErrNoCoverage = errors.New("no coverage")

const (
	// GNSSDefaultAccuracyM backs a pass-through fix without an accuracy.
	GNSSDefaultAccuracyM = 10.0

	// MinAccuracyM floors every emitter-derived accuracy claim.
	MinAccuracyM = 10.0
)

// Location is a resolved position. Altitude is set only on the GNSS
// pass-through path.
type Location struct {
	Latitude  float64
	Longitude float64
	Altitude  *float64
	AccuracyM float64
	Source    string // "gnss", "emitters" or "coarse"
}

// Engine resolves locate queries against one database.
type Engine struct {
	db                 *database.Database
	defaultStrengthDBm float64
}

// NewEngine wires the engine to its store. defaultStrengthDBm substitutes
// for query emitters reported without a signal reading, matching what the
// aggregation worker assumed when it learned them.
func NewEngine(db *database.Database, defaultStrengthDBm float64) *Engine {
	return &Engine{db: db, defaultStrengthDBm: defaultStrengthDBm}
}

// candidate is one resolved emitter ready for fusion. The weight combines
// how strongly the device hears the emitter now with how tightly the
// store has pinned it down.
type candidate struct {
	lat, lon float64
	weight   float64
	storeAcc float64
}

// Locate resolves one query. A usable GNSS block short-circuits
// everything else; otherwise the query emitters are looked up per kind
// and fused. Unknown keys drop silently. When nothing resolves the cell
// keys get one more chance against the coarse dataset before
// ErrNoCoverage.
func (e *Engine) Locate(ctx context.Context, q report.Report) (Location, error) {
	if loc, ok := gnssPassThrough(q); ok {
		return loc, nil
	}

	wifiObs := e.collectMACs(q.Wifi, nil)
	btObs := e.collectMACs(nil, q.Bluetooth)
	cellObs := e.collectCells(q.Cells)

	var cands []candidate

	if len(wifiObs) > 0 {
		keys := sortedMACs(wifiObs)
		aggs, err := e.db.GetWifiEmitters(ctx, keys)
		if err != nil {
			return Location{}, err
		}
		cands = appendMACCandidates(cands, keys, wifiObs, aggs)
	}
	if len(btObs) > 0 {
		keys := sortedMACs(btObs)
		aggs, err := e.db.GetBluetoothEmitters(ctx, keys)
		if err != nil {
			return Location{}, err
		}
		cands = appendMACCandidates(cands, keys, btObs, aggs)
	}

	cellKeys := sortedCellKeys(cellObs)
	if len(cellKeys) > 0 {
		aggs, err := e.db.GetCellEmitters(ctx, cellKeys)
		if err != nil {
			return Location{}, err
		}
		for _, key := range cellKeys {
			if agg, ok := aggs[key]; ok {
				cands = append(cands, newCandidate(agg, cellObs[key]))
			}
		}
	}

	if len(cands) == 0 {
		return e.coarseFallback(ctx, cellKeys)
	}
	return fuse(cands), nil
}

// gnssPassThrough returns the query's own fix when it is usable: finite
// and on the globe. Reported accuracy survives verbatim, absent accuracy
// becomes the default.
func gnssPassThrough(q report.Report) (Location, bool) {
	g := q.GNSS
	if g == nil || !onGlobe(g.Latitude, g.Longitude) {
		return Location{}, false
	}
	acc := GNSSDefaultAccuracyM
	if a := g.Accuracy; a != nil && *a > 0 && !math.IsInf(*a, 0) {
		acc = *a
	}
	return Location{
		Latitude:  round6(g.Latitude),
		Longitude: round6(g.Longitude),
		Altitude:  g.Altitude,
		AccuracyM: math.Round(acc),
		Source:    "gnss",
	}, true
}

// collectMACs normalizes MAC entries from either array and keeps the
// strongest reading per emitter. Entries that do not normalize drop; the
// store would never know them anyway.
func (e *Engine) collectMACs(wifi []report.Wifi, bluetooth []report.Bluetooth) map[string]float64 {
	out := make(map[string]float64)
	note := func(raw string, rssi *float64) {
		mac, err := report.NormalizeMAC(raw)
		if err != nil {
			return
		}
		s := strengthOr(rssi, e.defaultStrengthDBm)
		if prev, ok := out[mac]; !ok || s > prev {
			out[mac] = s
		}
	}
	for _, w := range wifi {
		note(w.MAC, w.RSSI)
	}
	for _, b := range bluetooth {
		note(b.MAC, b.RSSI)
	}
	return out
}

// collectCells builds six-tuple keys under the same rules ingestion uses,
// keeping the strongest reading per key.
func (e *Engine) collectCells(cells *report.Cells) map[emitter.CellKey]float64 {
	out := make(map[emitter.CellKey]float64)
	if cells == nil {
		return out
	}
	note := func(radio emitter.CellRadio, mcc, mnc, area, cell int64, unit *int64, strength *float64) {
		if area <= 0 || cell <= 0 {
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
		s := strengthOr(strength, e.defaultStrengthDBm)
		if prev, ok := out[key]; !ok || s > prev {
			out[key] = s
		}
	}
	for _, c := range cells.GSM {
		note(emitter.RadioGSM, c.MCC, c.MNC, c.LAC, c.CI, nil, c.RXLEV)
	}
	for _, c := range cells.WCDMA {
		note(emitter.RadioWCDMA, c.MCC, c.MNC, c.LAC, c.CI, c.PSC, c.RSCP)
	}
	for _, c := range cells.LTE {
		note(emitter.RadioLTE, c.MCC, c.MNC, c.TAC, c.ECI, c.PCI, c.RSRP)
	}
	for _, c := range cells.NR {
		note(emitter.RadioNR, c.MCC, c.MNC, c.TAC, c.NCI, c.SSBI, c.SSRSRP)
	}
	return out
}

// coarseFallback resolves cell keys against the imported reference
// dataset. The smallest advertised radius wins: it is the most specific
// claim available.
func (e *Engine) coarseFallback(ctx context.Context, keys []emitter.CellKey) (Location, error) {
	if len(keys) == 0 {
		return Location{}, ErrNoCoverage
	}
	cells, err := e.db.LookupCoarseCells(ctx, keys)
	if err != nil {
		return Location{}, err
	}
	if len(cells) == 0 {
		return Location{}, ErrNoCoverage
	}
	best := cells[0]
	for _, c := range cells[1:] {
		if c.Radius < best.Radius {
			best = c
		}
	}
	return Location{
		Latitude:  round6(best.Lat),
		Longitude: round6(best.Lon),
		AccuracyM: math.Round(best.Radius),
		Source:    "coarse",
	}, nil
}

func newCandidate(agg emitter.Aggregate, queryStrengthDBm float64) candidate {
	return candidate{
		lat:      agg.Lat,
		lon:      agg.Lon,
		weight:   emitter.Weight(queryStrengthDBm) / math.Max(agg.Accuracy, 1),
		storeAcc: agg.Accuracy,
	}
}

func appendMACCandidates(cands []candidate, keys []string, obs map[string]float64, aggs map[string]emitter.Aggregate) []candidate {
	for _, mac := range keys {
		if agg, ok := aggs[mac]; ok {
			cands = append(cands, newCandidate(agg, obs[mac]))
		}
	}
	return cands
}

// fuse folds resolved emitters into one location. With more than three
// candidates the ceil(10%) farthest from the initial centroid are trimmed
// before the final pass; stumblers routinely report one emitter from the
// far side of a tunnel.
func fuse(cands []candidate) Location {
	lat, lon := centroid(cands)

	if len(cands) > 3 {
		drop := (len(cands) + 9) / 10
		if len(cands)-drop < 1 {
			drop = len(cands) - 1
		}
		dists := make([]float64, len(cands))
		for i, c := range cands {
			dists[i] = emitter.DistanceMeters(c.lat, c.lon, lat, lon)
		}
		order := make([]int, len(cands))
		for i := range order {
			order[i] = i
		}
		sort.SliceStable(order, func(i, j int) bool { return dists[order[i]] < dists[order[j]] })

		kept := make([]candidate, 0, len(cands)-drop)
		for _, idx := range order[:len(cands)-drop] {
			kept = append(kept, cands[idx])
		}
		cands = kept
		lat, lon = centroid(cands)
	}

	// Accuracy is the weighted RMS spread of the survivors, never tighter
	// than the floor and never looser than the worst store accuracy among
	// them.
	var wsum, spread, maxStore float64
	for _, c := range cands {
		d := emitter.DistanceMeters(c.lat, c.lon, lat, lon)
		wsum += c.weight
		spread += c.weight * d * d
		if c.storeAcc > maxStore {
			maxStore = c.storeAcc
		}
	}
	acc := math.Sqrt(spread / wsum)
	if acc > maxStore {
		acc = maxStore
	}
	if acc < MinAccuracyM {
		acc = MinAccuracyM
	}

	return Location{
		Latitude:  round6(lat),
		Longitude: round6(lon),
		AccuracyM: math.Round(acc),
		Source:    "emitters",
	}
}

func centroid(cands []candidate) (lat, lon float64) {
	var wsum, latSum, lonSum float64
	for _, c := range cands {
		wsum += c.weight
		latSum += c.weight * c.lat
		lonSum += c.weight * c.lon
	}
	return latSum / wsum, lonSum / wsum
}

func sortedMACs(obs map[string]float64) []string {
	keys := make([]string, 0, len(obs))
	for mac := range obs {
		keys = append(keys, mac)
	}
	sort.Strings(keys)
	return keys
}

func sortedCellKeys(obs map[emitter.CellKey]float64) []emitter.CellKey {
	keys := make([]emitter.CellKey, 0, len(obs))
	for key := range obs {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })
	return keys
}

func onGlobe(lat, lon float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lon) {
		return false
	}
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}

func round6(v float64) float64 { return math.Round(v*1e6) / 1e6 }

func strengthOr(v *float64, def float64) float64 {
	if v != nil {
		return *v
	}
	return def
}
