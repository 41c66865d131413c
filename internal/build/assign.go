package build

import (
	"errors"

	"github.com/wegman-software/simpletile-go/internal/grid"
	"github.com/wegman-software/simpletile-go/internal/proj"
	"github.com/wegman-software/simpletile-go/internal/store"
)

// Assign cuts a way into the runs that are stored in the tile with the
// given bounds, in tile-local coordinates.
//
// Nodes inside the closed tile box are kept. A segment crossing the north
// or east edge also keeps its outside end, so the tile can draw the segment
// up to its border; segments leaving south or west are drawn by the
// neighbouring tile instead. Every run becomes one way in the tile.
//
// Outside neighbours too far away for int16 offsets are left out and counted.
func Assign(points []proj.Point, tile grid.BBox) (runs [][]store.Coord, dropped int64) {
	var run []store.Coord
	prevIn := false

	add := func(p proj.Point) {
		c, err := store.LocalCoord(p, tile.LL)
		if err != nil {
			if errors.Is(err, store.ErrCoordinateRange) {
				dropped++
			}
			return
		}
		run = append(run, c)
	}
	closeRun := func() {
		if len(run) > 0 {
			runs = append(runs, run)
			run = nil
		}
	}

	for j, p := range points {
		in := tile.Contains(p)
		if in {
			if !prevIn && j > 0 && tile.IsSouthWestOf(points[j-1]) {
				add(points[j-1])
			}
			add(p)
		} else if prevIn {
			if tile.IsSouthWestOf(p) {
				add(p)
			}
			closeRun()
		}
		prevIn = in
	}
	closeRun()

	return runs, dropped
}
