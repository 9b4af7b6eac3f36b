package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
)

// insertCoarseCellsPostgreSQLCopy streams a chunk of reference cells into
// PostgreSQL using COPY to keep the public-dataset import fast. We lean on a
// temporary table so we can still enforce the ON CONFLICT policy from the
// main table without losing COPY's throughput. The helper stays
// connection-local to avoid mutexes and follows "Don't communicate by
// sharing memory; share memory by communicating" by letting the database
// enforce ordering.
func (db *Database) insertCoarseCellsPostgreSQLCopy(ctx context.Context, chunk []CoarseCell) error {
	if len(chunk) == 0 {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if db == nil || db.DB == nil {
		return fmt.Errorf("database unavailable")
	}

	conn, err := db.DB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open postgres connection: %w", err)
	}
	defer conn.Close()

	// The timestamp-based suffix keeps names unique per call while staying
	// predictable for debugging. Temporary scope avoids cross-connection
	// contention. Avoid ON COMMIT DROP so the table survives PostgreSQL's
	// autocommit mode long enough for COPY and the final INSERT to finish.
	tempTable := fmt.Sprintf("temp_coarse_cell_%d", time.Now().UnixNano())
	createTemp := fmt.Sprintf(`CREATE TEMP TABLE %s (
radio SMALLINT,
country SMALLINT,
network SMALLINT,
area INTEGER,
cell BIGINT,
unit SMALLINT,
lat DOUBLE PRECISION,
lon DOUBLE PRECISION,
radius DOUBLE PRECISION
)`, tempTable)
	if _, err := conn.ExecContext(ctx, createTemp); err != nil {
		return fmt.Errorf("create temp table: %w", err)
	}

	// Ensure cleanup even if the COPY or final insert fails; use a detached
	// context to avoid blocking shutdown when the caller's context is already
	// cancelled.
	dropCtx, dropCancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer dropCancel()
	defer conn.ExecContext(dropCtx, fmt.Sprintf("DROP TABLE IF EXISTS %s", tempTable))

	rows := make([][]interface{}, 0, len(chunk))
	for _, c := range chunk {
		rows = append(rows, []interface{}{
			int16(c.Key.Radio), c.Key.Country, c.Key.Network, c.Key.Area, c.Key.Cell, c.Key.Unit,
			c.Lat, c.Lon, c.Radius,
		})
	}

	copyErr := conn.Raw(func(driverConn any) error {
		direct, ok := driverConn.(*stdlib.Conn)
		if !ok {
			return fmt.Errorf("unexpected postgres driver %T", driverConn)
		}
		_, err := direct.Conn().CopyFrom(
			ctx,
			pgx.Identifier{tempTable},
			[]string{"radio", "country", "network", "area", "cell", "unit", "lat", "lon", "radius"},
			pgx.CopyFromRows(rows),
		)
		return err
	})
	if copyErr != nil {
		return fmt.Errorf("copy coarse cells into temp table: %w", copyErr)
	}

	insertFromTemp := fmt.Sprintf(`INSERT INTO coarse_cell
(radio,country,network,area,cell,unit,lat,lon,radius)
SELECT radio,country,network,area,cell,unit,lat,lon,radius FROM %s
ON CONFLICT (radio,country,network,area,cell,unit) DO NOTHING`, tempTable)
	if _, err := conn.ExecContext(ctx, insertFromTemp); err != nil {
		return fmt.Errorf("merge temp coarse cells: %w", err)
	}

	return nil
}
