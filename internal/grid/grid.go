// Package grid maps Mercator points onto the row-major tile grid of a map file.
//
// Tile 0 sits at the map origin (the lower-left corner), ids grow eastwards
// along a row and then northwards by NXTiles per row.
package grid

import (
	"errors"
	"fmt"

	"github.com/wegman-software/simpletile-go/internal/proj"
)

var (
	// ErrOutOfBounds is returned for points outside the map extent
	ErrOutOfBounds = errors.New("point out of map bounds")

	// ErrInvalidGrid is returned for grid parameters that cannot describe a map
	ErrInvalidGrid = errors.New("invalid grid")
)

// Grid describes the tiling of a map. It is immutable once created.
type Grid struct {
	Origin   proj.Point
	Width    int64
	Height   int64
	TileSize int64
	NXTiles  int64
	NTiles   int64
}

// New validates the parameters and returns a grid
func New(origin proj.Point, width, height, tileSize, nXTiles, nTiles int64) (*Grid, error) {
	if tileSize <= 0 {
		return nil, fmt.Errorf("%w: tile size %d", ErrInvalidGrid, tileSize)
	}
	if nXTiles <= 0 {
		return nil, fmt.Errorf("%w: %d tiles per row", ErrInvalidGrid, nXTiles)
	}
	if nTiles < 0 {
		return nil, fmt.Errorf("%w: %d tiles", ErrInvalidGrid, nTiles)
	}
	if width < 0 || height < 0 {
		return nil, fmt.Errorf("%w: negative extent %dx%d", ErrInvalidGrid, width, height)
	}
	return &Grid{
		Origin:   origin,
		Width:    width,
		Height:   height,
		TileSize: tileSize,
		NXTiles:  nXTiles,
		NTiles:   nTiles,
	}, nil
}

// NYTiles returns the number of tile rows, counting a partially filled last row
func (g *Grid) NYTiles() int64 {
	return (g.NTiles + g.NXTiles - 1) / g.NXTiles
}

// Extent returns the map box as stored in the header
func (g *Grid) Extent() BBox {
	return BBox{
		LL: g.Origin,
		UR: proj.Point{X: g.Origin.X + g.Width, Y: g.Origin.Y + g.Height},
	}
}

// TileIDForPoint returns the id of the tile containing p.
// A point on the shared edge of two tiles belongs to the east or north one.
func (g *Grid) TileIDForPoint(p proj.Point) (int64, error) {
	d := p.Sub(g.Origin)
	if d.X < 0 || d.Y < 0 || d.X > g.Width || d.Y > g.Height {
		return 0, fmt.Errorf("%w: %v outside extent %v", ErrOutOfBounds, p, g.Extent())
	}

	col := floorDiv(d.X, g.TileSize)
	row := floorDiv(d.Y, g.TileSize)
	id := g.NXTiles*row + col
	if col >= g.NXTiles || id >= g.NTiles {
		return 0, fmt.Errorf("%w: %v maps to cell (%d, %d) beyond the %d-tile grid",
			ErrOutOfBounds, p, col, row, g.NTiles)
	}
	return id, nil
}

// TileOrigin returns the lower-left corner of tile id. The id is not checked.
func (g *Grid) TileOrigin(id int64) proj.Point {
	return proj.Point{
		X: g.Origin.X + (id%g.NXTiles)*g.TileSize,
		Y: g.Origin.Y + (id/g.NXTiles)*g.TileSize,
	}
}

// TileBounds returns the closed box covered by tile id
func (g *Grid) TileBounds(id int64) BBox {
	ll := g.TileOrigin(id)
	return BBox{
		LL: ll,
		UR: proj.Point{X: ll.X + g.TileSize, Y: ll.Y + g.TileSize},
	}
}

// ValidID reports whether id addresses a tile of the grid
func (g *Grid) ValidID(id int64) bool {
	return id >= 0 && id < g.NTiles
}

// span returns the cell of ll and the number of cells covered in x and y
func (g *Grid) span(ll, ur proj.Point) (anchor, nx, ny int64) {
	llc := ll.Sub(g.Origin)
	urc := ur.Sub(g.Origin)

	col0 := floorDiv(llc.X, g.TileSize)
	row0 := floorDiv(llc.Y, g.TileSize)
	nx = floorDiv(urc.X, g.TileSize) - col0 + 1
	ny = floorDiv(urc.Y, g.TileSize) - row0 + 1
	if nx < 0 {
		nx = 0
	}
	if ny < 0 {
		ny = 0
	}
	return g.NXTiles*row0 + col0, nx, ny
}

// NumCollidingTiles returns len(CollidingTiles(ll, ur)) without allocating
func (g *Grid) NumCollidingTiles(ll, ur proj.Point) int64 {
	_, nx, ny := g.span(ll, ur)
	return nx * ny
}

// CollidingTiles returns the ids of all cells overlapping the closed box
// [ll, ur], row by row starting at the cell containing ll.
//
// This is plain grid arithmetic: boxes reaching outside the map produce ids
// that do not exist in the file. Callers validate the box first.
func (g *Grid) CollidingTiles(ll, ur proj.Point) []int64 {
	anchor, nx, ny := g.span(ll, ur)

	ids := make([]int64, 0, nx*ny)
	for i := int64(0); i < ny; i++ {
		for j := int64(0); j < nx; j++ {
			ids = append(ids, anchor+j+g.NXTiles*i)
		}
	}
	return ids
}

// TileBlock returns the (2r+1)x(2r+1) neighbourhood of center, row by row
// from the lower-left. Cells falling off the grid are left out.
func (g *Grid) TileBlock(center int64, radius int) []int64 {
	if !g.ValidID(center) || radius < 0 {
		return nil
	}

	r := int64(radius)
	col := center % g.NXTiles
	row := center / g.NXTiles
	rows := g.NYTiles()

	ids := make([]int64, 0, (2*r+1)*(2*r+1))
	for y := row - r; y <= row+r; y++ {
		if y < 0 || y >= rows {
			continue
		}
		for x := col - r; x <= col+r; x++ {
			if x < 0 || x >= g.NXTiles {
				continue
			}
			if id := y*g.NXTiles + x; id < g.NTiles {
				ids = append(ids, id)
			}
		}
	}
	return ids
}

// floorDiv divides rounding towards negative infinity
func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
