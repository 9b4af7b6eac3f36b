package database

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"radiolocate/pkg/emitter"
)

// emitterPayloadCols is the shared payload column order of the three
// emitter tables, matching the field order of emitter.Aggregate plus the
// update stamp.
var emitterPayloadCols = []string{
	"min_lat", "min_lon", "max_lat", "max_lon",
	"lat", "lon", "accuracy", "total_weight",
	"min_strength", "max_strength", "updated_at",
}

// UpsertWifiEmitters folds a batch of Wi-Fi observations into the store.
// Safe to call inside the aggregation transaction.
func (db *Database) UpsertWifiEmitters(ctx context.Context, tx *sql.Tx, deltas []emitter.MACDelta) error {
	return db.upsertMACEmitters(ctx, tx, "wifi_emitter", deltas)
}

// UpsertBluetoothEmitters folds a batch of Bluetooth observations into the
// store.
func (db *Database) UpsertBluetoothEmitters(ctx context.Context, tx *sql.Tx, deltas []emitter.MACDelta) error {
	return db.upsertMACEmitters(ctx, tx, "bluetooth_emitter", deltas)
}

// UpsertCellEmitters folds a batch of cellular observations into the store.
func (db *Database) UpsertCellEmitters(ctx context.Context, tx *sql.Tx, deltas []emitter.CellDelta) error {
	keys, folded := foldCellDeltas(deltas)
	if len(keys) == 0 {
		return nil
	}

	query := upsertEmitterSQL(db.Driver, "cell_emitter", []string{"radio", "country", "network", "area", "cell", "unit"})
	now := time.Now().UTC()
	exec := db.exec(tx)
	for _, key := range keys {
		agg := folded[key]
		args := append(
			[]interface{}{int16(key.Radio), key.Country, key.Network, key.Area, key.Cell, key.Unit},
			aggregateArgs(agg, db.timeArg(now))...,
		)
		if _, err := exec.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("upsert cell %s: %w", key, err)
		}
	}
	return nil
}

func (db *Database) upsertMACEmitters(ctx context.Context, tx *sql.Tx, table string, deltas []emitter.MACDelta) error {
	macs, folded := foldMACDeltas(deltas)
	if len(macs) == 0 {
		return nil
	}

	query := upsertEmitterSQL(db.Driver, table, []string{"mac"})
	now := time.Now().UTC()
	exec := db.exec(tx)
	for _, mac := range macs {
		agg := folded[mac]
		args := append([]interface{}{mac}, aggregateArgs(agg, db.timeArg(now))...)
		if _, err := exec.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("upsert %s %s: %w", table, mac, err)
		}
	}
	return nil
}

// foldMACDeltas pre-merges duplicate keys in Go so one batch costs one
// round-trip per distinct key. Keys come back sorted: concurrent batches
// then lock rows in the same direction and cannot deadlock each other.
func foldMACDeltas(deltas []emitter.MACDelta) ([]string, map[string]emitter.Aggregate) {
	folded := make(map[string]emitter.Aggregate, len(deltas))
	for _, d := range deltas {
		if agg, ok := folded[d.MAC]; ok {
			agg.Observe(d.Lat, d.Lon, d.StrengthDBm)
			folded[d.MAC] = agg
		} else {
			folded[d.MAC] = emitter.New(d.Lat, d.Lon, d.StrengthDBm)
		}
	}
	macs := make([]string, 0, len(folded))
	for mac := range folded {
		macs = append(macs, mac)
	}
	sort.Strings(macs)
	return macs, folded
}

func foldCellDeltas(deltas []emitter.CellDelta) ([]emitter.CellKey, map[emitter.CellKey]emitter.Aggregate) {
	folded := make(map[emitter.CellKey]emitter.Aggregate, len(deltas))
	for _, d := range deltas {
		if agg, ok := folded[d.Key]; ok {
			agg.Observe(d.Lat, d.Lon, d.StrengthDBm)
			folded[d.Key] = agg
		} else {
			folded[d.Key] = emitter.New(d.Lat, d.Lon, d.StrengthDBm)
		}
	}
	keys := make([]emitter.CellKey, 0, len(folded))
	for key := range folded {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })
	return keys, folded
}

func aggregateArgs(agg emitter.Aggregate, updatedAt interface{}) []interface{} {
	return []interface{}{
		agg.MinLat, agg.MinLon, agg.MaxLat, agg.MaxLon,
		agg.Lat, agg.Lon, agg.Accuracy, agg.TotalWeight,
		agg.MinStrength, agg.MaxStrength, updatedAt,
	}
}

// upsertEmitterSQL renders the single-statement merge for one emitter
// table. The inserted row may itself be a locally folded partial
// aggregate, so the conflict branch runs the full merge: box union,
// weighted centroid, envelope union, and the accuracy recomputed as the
// half-diagonal of the merged box (equirectangular, R matching
// emitter.EarthRadiusMeters). The row lock taken by the upsert serializes
// concurrent writers per key.
func upsertEmitterSQL(driver, table string, keyCols []string) string {
	least, greatest := "LEAST", "GREATEST"
	if driver != "pgx" {
		// sqlite spells the two-argument forms min()/max().
		least, greatest = "min", "max"
	}

	cols := append(append([]string{}, keyCols...), emitterPayloadCols...)
	placeholders := make([]string, len(cols))
	for i := range cols {
		if driver == "pgx" {
			placeholders[i] = fmt.Sprintf("$%d", i+1)
		} else {
			placeholders[i] = "?"
		}
	}

	merged := func(fn, col string) string {
		return fmt.Sprintf("%s(%s.%s, EXCLUDED.%s)", fn, table, col, col)
	}
	boxMinLat := merged(least, "min_lat")
	boxMinLon := merged(least, "min_lon")
	boxMaxLat := merged(greatest, "max_lat")
	boxMaxLon := merged(greatest, "max_lon")
	weightSum := fmt.Sprintf("(%s.total_weight + EXCLUDED.total_weight)", table)
	centroid := func(col string) string {
		return fmt.Sprintf("(%s.%s * %s.total_weight + EXCLUDED.%s * EXCLUDED.total_weight) / %s",
			table, col, table, col, weightSum)
	}
	accuracy := fmt.Sprintf(
		"sqrt(pow(radians(%s - %s) * 6371008.8, 2) + pow(radians(%s - %s) * cos(radians((%s + %s) / 2)) * 6371008.8, 2)) / 2",
		boxMaxLat, boxMinLat,
		boxMaxLon, boxMinLon,
		boxMaxLat, boxMinLat,
	)

	var sb strings.Builder
	fmt.Fprintf(&sb, "INSERT INTO %s (%s) VALUES (%s)", table, strings.Join(cols, ","), strings.Join(placeholders, ","))
	fmt.Fprintf(&sb, " ON CONFLICT (%s) DO UPDATE SET\n", strings.Join(keyCols, ","))
	fmt.Fprintf(&sb, "min_lat = %s,\n", boxMinLat)
	fmt.Fprintf(&sb, "min_lon = %s,\n", boxMinLon)
	fmt.Fprintf(&sb, "max_lat = %s,\n", boxMaxLat)
	fmt.Fprintf(&sb, "max_lon = %s,\n", boxMaxLon)
	fmt.Fprintf(&sb, "lat = %s,\n", centroid("lat"))
	fmt.Fprintf(&sb, "lon = %s,\n", centroid("lon"))
	fmt.Fprintf(&sb, "accuracy = %s,\n", accuracy)
	fmt.Fprintf(&sb, "total_weight = %s,\n", weightSum)
	fmt.Fprintf(&sb, "min_strength = %s,\n", merged(least, "min_strength"))
	fmt.Fprintf(&sb, "max_strength = %s,\n", merged(greatest, "max_strength"))
	sb.WriteString("updated_at = EXCLUDED.updated_at")
	return sb.String()
}

// GetWifiEmitters looks up learned Wi-Fi aggregates by normalized MAC.
// Missing keys are simply absent from the result.
func (db *Database) GetWifiEmitters(ctx context.Context, macs []string) (map[string]emitter.Aggregate, error) {
	return db.getMACEmitters(ctx, "wifi_emitter", macs)
}

// GetBluetoothEmitters looks up learned Bluetooth aggregates by MAC.
func (db *Database) GetBluetoothEmitters(ctx context.Context, macs []string) (map[string]emitter.Aggregate, error) {
	return db.getMACEmitters(ctx, "bluetooth_emitter", macs)
}

func (db *Database) getMACEmitters(ctx context.Context, table string, macs []string) (map[string]emitter.Aggregate, error) {
	unique := dedupeStrings(macs)
	if len(unique) == 0 {
		return map[string]emitter.Aggregate{}, nil
	}

	placeholders := make([]string, len(unique))
	args := make([]interface{}, len(unique))
	for i, mac := range unique {
		if db.Driver == "pgx" {
			placeholders[i] = fmt.Sprintf("$%d", i+1)
		} else {
			placeholders[i] = "?"
		}
		args[i] = mac
	}

	query := fmt.Sprintf(`
SELECT mac, min_lat, min_lon, max_lat, max_lon, lat, lon, accuracy, total_weight, min_strength, max_strength
FROM %s
WHERE mac IN (%s)`, table, strings.Join(placeholders, ","))

	rows, err := db.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", table, err)
	}
	defer rows.Close()

	out := make(map[string]emitter.Aggregate, len(unique))
	for rows.Next() {
		var (
			mac string
			agg emitter.Aggregate
		)
		if err := rows.Scan(&mac,
			&agg.MinLat, &agg.MinLon, &agg.MaxLat, &agg.MaxLon,
			&agg.Lat, &agg.Lon, &agg.Accuracy, &agg.TotalWeight,
			&agg.MinStrength, &agg.MaxStrength); err != nil {
			return nil, fmt.Errorf("scan %s: %w", table, err)
		}
		if err := agg.Check(); err != nil {
			return nil, fmt.Errorf("%s %s: %w: %v", table, mac, ErrInvariant, err)
		}
		out[mac] = agg
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("get %s: %w", table, err)
	}
	return out, nil
}

// GetCellEmitters looks up learned cell aggregates by their six-tuple
// keys. Missing keys are simply absent from the result.
func (db *Database) GetCellEmitters(ctx context.Context, keys []emitter.CellKey) (map[emitter.CellKey]emitter.Aggregate, error) {
	unique := dedupeCellKeys(keys)
	if len(unique) == 0 {
		return map[emitter.CellKey]emitter.Aggregate{}, nil
	}

	tuples := make([]string, len(unique))
	args := make([]interface{}, 0, len(unique)*6)
	argn := 0
	for i, key := range unique {
		parts := make([]string, 6)
		for k := 0; k < 6; k++ {
			if db.Driver == "pgx" {
				argn++
				parts[k] = fmt.Sprintf("$%d", argn)
			} else {
				parts[k] = "?"
			}
		}
		tuples[i] = "(" + strings.Join(parts, ",") + ")"
		args = append(args, int16(key.Radio), key.Country, key.Network, key.Area, key.Cell, key.Unit)
	}

	query := fmt.Sprintf(`
SELECT radio, country, network, area, cell, unit, min_lat, min_lon, max_lat, max_lon, lat, lon, accuracy, total_weight, min_strength, max_strength
FROM cell_emitter
WHERE (radio, country, network, area, cell, unit) IN (%s)`, strings.Join(tuples, ","))

	rows, err := db.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("get cell_emitter: %w", err)
	}
	defer rows.Close()

	out := make(map[emitter.CellKey]emitter.Aggregate, len(unique))
	for rows.Next() {
		var (
			radio int16
			key   emitter.CellKey
			agg   emitter.Aggregate
		)
		if err := rows.Scan(&radio, &key.Country, &key.Network, &key.Area, &key.Cell, &key.Unit,
			&agg.MinLat, &agg.MinLon, &agg.MaxLat, &agg.MaxLon,
			&agg.Lat, &agg.Lon, &agg.Accuracy, &agg.TotalWeight,
			&agg.MinStrength, &agg.MaxStrength); err != nil {
			return nil, fmt.Errorf("scan cell_emitter: %w", err)
		}
		key.Radio = emitter.CellRadio(radio)
		if err := agg.Check(); err != nil {
			return nil, fmt.Errorf("cell_emitter %s: %w: %v", key, ErrInvariant, err)
		}
		out[key] = agg
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("get cell_emitter: %w", err)
	}
	return out, nil
}

func dedupeStrings(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

func dedupeCellKeys(in []emitter.CellKey) []emitter.CellKey {
	seen := make(map[emitter.CellKey]struct{}, len(in))
	out := make([]emitter.CellKey, 0, len(in))
	for _, key := range in {
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, key)
	}
	return out
}
