// Package query answers bounding-box questions against a map file: which
// tiles a box touches, and the ways stored in them in absolute coordinates.
package query

import (
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/wegman-software/simpletile-go/internal/grid"
	"github.com/wegman-software/simpletile-go/internal/logger"
	"github.com/wegman-software/simpletile-go/internal/proj"
	"github.com/wegman-software/simpletile-go/internal/store"
)

// Tile is a decoded tile with ways in absolute Mercator coordinates
type Tile struct {
	ID   int64
	LL   proj.Point
	UR   proj.Point
	Ways map[int][]proj.Point
}

// Bounds returns the tile box
func (t *Tile) Bounds() grid.BBox {
	return grid.BBox{LL: t.LL, UR: t.UR}
}

// WayIDs returns the way ids of the tile in ascending order
func (t *Tile) WayIDs() []int {
	ids := make([]int, 0, len(t.Ways))
	for id := range t.Ways {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// NumPoints returns the number of points over all ways
func (t *Tile) NumPoints() int {
	n := 0
	for _, w := range t.Ways {
		n += len(w)
	}
	return n
}

// Layer runs queries against one open map file
type Layer struct {
	reader *store.Reader
	grid   *grid.Grid
	log    *zap.Logger
}

// New wraps an open reader
func New(r *store.Reader) *Layer {
	return &Layer{
		reader: r,
		grid:   r.Grid(),
		log:    logger.Named("query"),
	}
}

// Open opens the map file at path. With mapped set the file stays
// memory-mapped until Close, otherwise every read opens the file anew.
func Open(path string, mapped bool) (*Layer, error) {
	open := store.Open
	if mapped {
		open = store.OpenMapped
	}
	r, err := open(path)
	if err != nil {
		return nil, err
	}
	return New(r), nil
}

// Close releases the underlying reader
func (l *Layer) Close() error {
	return l.reader.Close()
}

// Header returns the map file header
func (l *Layer) Header() *store.Header {
	return l.reader.Header()
}

// Grid returns the map grid
func (l *Layer) Grid() *grid.Grid {
	return l.grid
}

// TilesForBBox returns the ids of all tiles touching the box [ll, ur].
// Both corners must lie inside the map.
func (l *Layer) TilesForBBox(ll, ur proj.Point) ([]int64, error) {
	if !(grid.BBox{LL: ll, UR: ur}).Valid() {
		return nil, fmt.Errorf("%w: lower-left %v is not below and left of upper-right %v",
			proj.ErrMalformedInput, ll, ur)
	}
	if _, err := l.grid.TileIDForPoint(ll); err != nil {
		return nil, fmt.Errorf("lower-left corner: %w", err)
	}
	if _, err := l.grid.TileIDForPoint(ur); err != nil {
		return nil, fmt.Errorf("upper-right corner: %w", err)
	}
	return l.grid.CollidingTiles(ll, ur), nil
}

// ReadTile reads tile id and translates its ways to absolute coordinates
func (l *Layer) ReadTile(id int64) (*Tile, error) {
	local, err := l.reader.ReadTile(id)
	if err != nil {
		return nil, err
	}
	return newTile(l.grid, id, local), nil
}

// Assemble reads every tile in ids. The first failing read aborts the
// whole call and no partial result is returned.
func (l *Layer) Assemble(ids []int64) (map[int64]*Tile, error) {
	tiles := make(map[int64]*Tile, len(ids))
	for _, id := range ids {
		if _, ok := tiles[id]; ok {
			continue
		}
		t, err := l.ReadTile(id)
		if err != nil {
			return nil, fmt.Errorf("tile %d: %w", id, err)
		}
		tiles[id] = t
	}
	return tiles, nil
}

// QueryBBox returns all tiles touching [ll, ur]
func (l *Layer) QueryBBox(ll, ur proj.Point) (map[int64]*Tile, error) {
	ids, err := l.TilesForBBox(ll, ur)
	if err != nil {
		return nil, err
	}
	tiles, err := l.Assemble(ids)
	if err != nil {
		return nil, err
	}
	l.log.Debug("bbox query",
		zap.Stringer("ll", ll),
		zap.Stringer("ur", ur),
		zap.Int("tiles", len(tiles)))
	return tiles, nil
}

// TileIDForLonLat returns the tile holding a WGS84 position
func (l *Layer) TileIDForLonLat(lon, lat float64) (int64, error) {
	return l.grid.TileIDForPoint(proj.LonLatToMercator(lon, lat))
}

// Block reads the tiles around center within radius, see grid.TileBlock
func (l *Layer) Block(center int64, radius int) (map[int64]*Tile, error) {
	if !l.grid.ValidID(center) {
		return nil, fmt.Errorf("%w: %d not in [0, %d)", store.ErrTileIndex, center, l.grid.NTiles)
	}
	return l.Assemble(l.grid.TileBlock(center, radius))
}

// ReadHeader reads the header of the map file at path
func ReadHeader(path string) (*store.Header, error) {
	return store.ReadHeader(path)
}

// ReadTile reads a single tile of the map file at path, using header for
// the grid. The file is opened and closed within the call.
func ReadTile(id int64, header *store.Header, path string) (*Tile, error) {
	g, err := header.Grid()
	if err != nil {
		return nil, err
	}
	r, err := store.Open(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	local, err := r.ReadTile(id)
	if err != nil {
		return nil, err
	}
	return newTile(g, id, local), nil
}

// HighwayBoundingBox returns the componentwise min/max over all points
func HighwayBoundingBox(ways ...[]proj.Point) (grid.BBox, error) {
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
	if !found {
		return grid.BBox{}, fmt.Errorf("%w: no points", proj.ErrMalformedInput)
	}
	return box, nil
}

func newTile(g *grid.Grid, id int64, local map[int][]store.Coord) *Tile {
	bounds := g.TileBounds(id)
	t := &Tile{
		ID:   id,
		LL:   bounds.LL,
		UR:   bounds.UR,
		Ways: make(map[int][]proj.Point, len(local)),
	}
	for wayID, coords := range local {
		points := make([]proj.Point, len(coords))
		for i, c := range coords {
			points[i] = c.Abs(bounds.LL)
		}
		t.Ways[wayID] = points
	}
	return t
}
