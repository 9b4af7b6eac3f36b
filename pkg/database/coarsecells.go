package database

import (
	"context"
	"fmt"
	"strings"

	"radiolocate/pkg/emitter"
)

// coarseInsertChunk bounds the multi-row INSERT so the statement stays
// well under sqlite's parameter limit (9 columns per row).
const coarseInsertChunk = 1000

// LookupCoarseCells returns reference rows matching the queried cells.
// The match deliberately ignores unit: public datasets rarely carry the
// physical-layer identifier, and a tower that changed its PCI must still
// resolve. Callers pick among multiple matches by radius.
func (db *Database) LookupCoarseCells(ctx context.Context, keys []emitter.CellKey) ([]CoarseCell, error) {
	type fiveTuple struct {
		radio   int16
		country int16
		network int16
		area    int32
		cell    int64
	}
	seen := make(map[fiveTuple]struct{}, len(keys))
	tuples := make([]string, 0, len(keys))
	args := make([]interface{}, 0, len(keys)*5)
	argn := 0
	for _, key := range keys {
		ft := fiveTuple{int16(key.Radio), key.Country, key.Network, key.Area, key.Cell}
		if _, ok := seen[ft]; ok {
			continue
		}
		seen[ft] = struct{}{}
		parts := make([]string, 5)
		for k := 0; k < 5; k++ {
			if db.Driver == "pgx" {
				argn++
				parts[k] = fmt.Sprintf("$%d", argn)
			} else {
				parts[k] = "?"
			}
		}
		tuples = append(tuples, "("+strings.Join(parts, ",")+")")
		args = append(args, ft.radio, ft.country, ft.network, ft.area, ft.cell)
	}
	if len(tuples) == 0 {
		return nil, nil
	}

	query := fmt.Sprintf(`
SELECT radio, country, network, area, cell, unit, lat, lon, radius
FROM coarse_cell
WHERE (radio, country, network, area, cell) IN (%s)`, strings.Join(tuples, ","))

	rows, err := db.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("lookup coarse cells: %w", err)
	}
	defer rows.Close()

	var out []CoarseCell
	for rows.Next() {
		var (
			radio int16
			c     CoarseCell
		)
		if err := rows.Scan(&radio, &c.Key.Country, &c.Key.Network, &c.Key.Area, &c.Key.Cell, &c.Key.Unit,
			&c.Lat, &c.Lon, &c.Radius); err != nil {
			return nil, fmt.Errorf("scan coarse cell: %w", err)
		}
		c.Key.Radio = emitter.CellRadio(radio)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("lookup coarse cells: %w", err)
	}
	return out, nil
}

// InsertCoarseCells loads reference rows in bulk, skipping keys already
// present. PostgreSQL goes through COPY for throughput; sqlite takes
// chunked multi-row inserts. Returns the number of rows submitted, which
// counts duplicates the conflict policy silently dropped.
func (db *Database) InsertCoarseCells(ctx context.Context, cells []CoarseCell) (int, error) {
	if len(cells) == 0 {
		return 0, nil
	}

	submitted := 0
	for start := 0; start < len(cells); start += coarseInsertChunk {
		select {
		case <-ctx.Done():
			return submitted, ctx.Err()
		default:
		}

		end := start + coarseInsertChunk
		if end > len(cells) {
			end = len(cells)
		}
		chunk := cells[start:end]

		if db.Driver == "pgx" {
			if err := db.insertCoarseCellsPostgreSQLCopy(ctx, chunk); err != nil {
				return submitted, err
			}
			submitted += len(chunk)
			continue
		}

		var sb strings.Builder
		sb.WriteString("INSERT INTO coarse_cell (radio,country,network,area,cell,unit,lat,lon,radius) VALUES ")
		args := make([]interface{}, 0, len(chunk)*9)
		for j, c := range chunk {
			if j > 0 {
				sb.WriteString(",")
			}
			sb.WriteString("(?,?,?,?,?,?,?,?,?)")
			args = append(args, int16(c.Key.Radio), c.Key.Country, c.Key.Network, c.Key.Area, c.Key.Cell, c.Key.Unit,
				c.Lat, c.Lon, c.Radius)
		}
		sb.WriteString(" ON CONFLICT DO NOTHING")
		if _, err := db.DB.ExecContext(ctx, sb.String(), args...); err != nil {
			return submitted, fmt.Errorf("insert coarse cells: %w", err)
		}
		submitted += len(chunk)
	}
	return submitted, nil
}
