// Package build turns projected ways into a tiled map file.
package build

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wegman-software/simpletile-go/internal/grid"
	"github.com/wegman-software/simpletile-go/internal/logger"
	"github.com/wegman-software/simpletile-go/internal/proj"
	"github.com/wegman-software/simpletile-go/internal/store"
)

// DefaultTileSize is the tile edge length in Mercator meters
const DefaultTileSize = 512

// ErrNoWays is returned when there is nothing to put into a map
var ErrNoWays = errors.New("no ways to build")

// Builder assigns ways to tiles and encodes them
type Builder struct {
	TileSize int64
	Workers  int
}

// Stats describes a finished build
type Stats struct {
	Ways          int   // ways with at least one point
	Tiles         int64 // tiles in the grid
	FilledTiles   int64 // tiles holding at least one point
	Points        int64 // points written, separators excluded
	Separators    int64
	DroppedPoints int64 // neighbour points too far from the tile origin
}

// Result is an encoded map ready to be written
type Result struct {
	Header *store.Header
	Tiles  [][]byte
	Stats  Stats
}

// wayExtent caches the cell span of one way
type wayExtent struct {
	points             []proj.Point
	col0, row0, nx, ny int64
}

// tileResult is what a worker produced for one tile
type tileResult struct {
	data       []byte
	records    int64
	points     int64
	separators int64
	dropped    int64
}

// Build lays a grid over the extent of ways and encodes every tile.
// totalWays is stored in the header; zero stores the number of ways given.
func (b *Builder) Build(ctx context.Context, ways [][]proj.Point, totalWays uint64) (*Result, error) {
	log := logger.Named("build")

	tileSize := b.TileSize
	if tileSize == 0 {
		tileSize = DefaultTileSize
	}
	if tileSize < 0 || tileSize > math.MaxInt16 {
		return nil, fmt.Errorf("tile size %d outside (0, %d]", tileSize, math.MaxInt16)
	}

	extent, ok := Extent(ways)
	if !ok {
		return nil, ErrNoWays
	}

	g, err := NewGrid(extent, tileSize)
	if err != nil {
		return nil, err
	}
	nyTiles := g.NYTiles()

	log.Info("Grid laid out",
		zap.Stringer("extent", extent),
		zap.Int64("tile_size", tileSize),
		zap.Int64("x_tiles", g.NXTiles),
		zap.Int64("y_tiles", nyTiles))

	extents := make([]wayExtent, 0, len(ways))
	for _, w := range ways {
		box, ok := grid.NewBBoxFromPoints(w)
		if !ok {
			continue
		}
		// the way box always lies inside the map, so the span needs no clamping
		ll := box.LL.Sub(g.Origin)
		ur := box.UR.Sub(g.Origin)
		e := wayExtent{
			points: w,
			col0:   ll.X / tileSize,
			row0:   ll.Y / tileSize,
		}
		e.nx = ur.X/tileSize - e.col0 + 1
		e.ny = ur.Y/tileSize - e.row0 + 1
		extents = append(extents, e)
	}

	workers := b.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if int64(workers) > nyTiles {
		workers = int(nyTiles)
	}

	start := time.Now()
	results := make([]tileResult, g.NTiles)

	// each worker owns a band of tile rows and walks all ways in input order,
	// so tile contents do not depend on scheduling
	eg, egCtx := errgroup.WithContext(ctx)
	rowsPerBand := (nyTiles + int64(workers) - 1) / int64(workers)
	for r0 := int64(0); r0 < nyTiles; r0 += rowsPerBand {
		r0 := r0
		r1 := min(r0+rowsPerBand, nyTiles)
		eg.Go(func() error {
			return assignBand(egCtx, g, extents, r0, r1, results)
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	res := &Result{Tiles: make([][]byte, g.NTiles)}
	res.Stats.Ways = len(extents)
	res.Stats.Tiles = g.NTiles

	var maxRecords int64
	for i, t := range results {
		res.Tiles[i] = t.data
		maxRecords = max(maxRecords, t.records)
		if t.points > 0 {
			res.Stats.FilledTiles++
		}
		res.Stats.Points += t.points
		res.Stats.Separators += t.separators
		res.Stats.DroppedPoints += t.dropped
	}

	if totalWays == 0 {
		totalWays = uint64(len(ways))
	}
	res.Header = &store.Header{
		MapX:           g.Origin.X,
		MapY:           g.Origin.Y,
		MapWidth:       uint64(g.Width),
		MapHeight:      uint64(g.Height),
		NXTiles:        uint64(g.NXTiles),
		TileSize:       uint64(tileSize),
		NTiles:         uint64(g.NTiles),
		MaxTileNodes:   uint64(maxRecords),
		TotalTileNodes: uint64(res.Stats.Points),
		WayCount:       totalWays,
	}

	log.Info("Tiles encoded",
		zap.Int("ways", res.Stats.Ways),
		zap.Int64("tiles", res.Stats.Tiles),
		zap.Int64("filled_tiles", res.Stats.FilledTiles),
		zap.Int64("points", res.Stats.Points),
		zap.Int64("dropped_points", res.Stats.DroppedPoints),
		zap.Duration("duration", time.Since(start).Round(time.Millisecond)))
	if res.Stats.DroppedPoints > 0 {
		log.Warn("Some segments leave their tile too far for int16 offsets",
			zap.Int64("dropped_points", res.Stats.DroppedPoints))
	}

	return res, nil
}

// WriteFile writes the encoded map to path
func (r *Result) WriteFile(path string) error {
	return store.WriteFile(path, r.Header, r.Tiles)
}

// Extent returns the bounding box over all points of all ways
func Extent(ways [][]proj.Point) (grid.BBox, bool) {
	var (
		box   grid.BBox
		found bool
	)
	for _, w := range ways {
		b, ok := grid.NewBBoxFromPoints(w)
		if !ok {
			continue
		}
		if !found {
			box, found = b, true
			continue
		}
		box = box.Union(b)
	}
	return box, found
}

// NewGrid lays tiles over extent starting at its lower-left corner.
// One extra column and row make sure points on the upper and right edge
// still fall inside a tile.
func NewGrid(extent grid.BBox, tileSize int64) (*grid.Grid, error) {
	nx := extent.Width()/tileSize + 1
	ny := extent.Height()/tileSize + 1
	return grid.New(extent.LL, extent.Width(), extent.Height(), tileSize, nx, nx*ny)
}

func assignBand(ctx context.Context, g *grid.Grid, extents []wayExtent, r0, r1 int64, results []tileResult) error {
	runs := make(map[int64][][]store.Coord)

	for i, e := range extents {
		if i%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}

		rowStart := max(e.row0, r0)
		rowEnd := min(e.row0+e.ny, r1)
		for row := rowStart; row < rowEnd; row++ {
			for col := e.col0; col < e.col0+e.nx; col++ {
				id := row*g.NXTiles + col
				tileRuns, dropped := Assign(e.points, g.TileBounds(id))
				results[id].dropped += dropped
				if len(tileRuns) > 0 {
					runs[id] = append(runs[id], tileRuns...)
				}
			}
		}
	}

	for id, tileRuns := range runs {
		data, err := store.EncodeTile(tileRuns)
		if err != nil {
			return fmt.Errorf("tile %d: %w", id, err)
		}
		t := &results[id]
		t.data = data
		t.separators = int64(len(tileRuns))
		t.records = int64(len(data) / store.RecordLength)
		t.points = t.records - t.separators
	}
	return nil
}
