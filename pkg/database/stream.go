package database

import (
	"context"
	"fmt"

	"radiolocate/pkg/emitter"
)

// StreamCellEmitters streams every learned cell aggregate row by row
// through a channel, ordered by key. It avoids loading the whole store
// into memory and stops when the context is done; the export snapshot is
// the consumer.
func (db *Database) StreamCellEmitters(ctx context.Context) (<-chan CellEmitterRow, <-chan error) {
	out := make(chan CellEmitterRow)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		const query = `
SELECT radio, country, network, area, cell, unit,
       min_lat, min_lon, max_lat, max_lon,
       lat, lon, accuracy, total_weight, min_strength, max_strength
FROM cell_emitter
ORDER BY radio, country, network, area, cell, unit`

		rows, err := db.DB.QueryContext(ctx, query)
		if err != nil {
			errCh <- fmt.Errorf("query cell emitters: %w", err)
			return
		}
		defer rows.Close()

		for rows.Next() {
			var (
				radio int16
				row   CellEmitterRow
			)
			if err := rows.Scan(&radio, &row.Key.Country, &row.Key.Network, &row.Key.Area, &row.Key.Cell, &row.Key.Unit,
				&row.Agg.MinLat, &row.Agg.MinLon, &row.Agg.MaxLat, &row.Agg.MaxLon,
				&row.Agg.Lat, &row.Agg.Lon, &row.Agg.Accuracy, &row.Agg.TotalWeight,
				&row.Agg.MinStrength, &row.Agg.MaxStrength); err != nil {
				errCh <- fmt.Errorf("scan cell emitter: %w", err)
				return
			}
			row.Key.Radio = emitter.CellRadio(radio)
			select {
			case out <- row:
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			}
		}

		if err := rows.Err(); err != nil {
			errCh <- fmt.Errorf("iterate cell emitters: %w", err)
		}
	}()

	return out, errCh
}
