// Package export writes the ways of a map file to GeoJSON, Parquet and
// PostGIS.
package export

import (
	"context"
	"fmt"
	"sort"

	"github.com/wegman-software/simpletile-go/internal/grid"
	"github.com/wegman-software/simpletile-go/internal/proj"
	"github.com/wegman-software/simpletile-go/internal/query"
)

// Row is one way of one tile in absolute Mercator coordinates
type Row struct {
	TileID int64
	WayID  int
	Points []proj.Point
}

// Rows flattens tiles into rows ordered by tile id, then way id
func Rows(tiles map[int64]*query.Tile) []Row {
	ids := make([]int64, 0, len(tiles))
	for id := range tiles {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var rows []Row
	for _, id := range ids {
		rows = appendTile(rows, tiles[id])
	}
	return rows
}

func appendTile(rows []Row, t *query.Tile) []Row {
	for _, wayID := range t.WayIDs() {
		rows = append(rows, Row{TileID: t.ID, WayID: wayID, Points: t.Ways[wayID]})
	}
	return rows
}

// Walk reads the tiles in ids one at a time and hands their rows to fn in
// tile/way order. Only one tile is held in memory.
func Walk(ctx context.Context, l *query.Layer, ids []int64, fn func(Row) error) error {
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return err
		}
		t, err := l.ReadTile(id)
		if err != nil {
			return fmt.Errorf("tile %d: %w", id, err)
		}
		for _, r := range appendTile(nil, t) {
			if err := fn(r); err != nil {
				return err
			}
		}
	}
	return nil
}

// AllTiles returns every tile id of g in ascending order
func AllTiles(g *grid.Grid) []int64 {
	ids := make([]int64, g.NTiles)
	for i := range ids {
		ids[i] = int64(i)
	}
	return ids
}

// Filter drops rows for which none of the points lie inside b
func Filter(rows []Row, b grid.BBox) []Row {
	out := rows[:0:0]
	for _, r := range rows {
		for _, p := range r.Points {
			if b.Contains(p) {
				out = append(out, r)
				break
			}
		}
	}
	return out
}
