package grid

import (
	"fmt"

	"github.com/wegman-software/simpletile-go/internal/proj"
)

// BBox is an axis-aligned box in Mercator meters, closed on all sides
type BBox struct {
	LL proj.Point // lower-left
	UR proj.Point // upper-right
}

// NewBBoxFromPoint creates a degenerate bbox around a single point
func NewBBoxFromPoint(p proj.Point) BBox {
	return BBox{LL: p, UR: p}
}

// NewBBoxFromPoints returns the componentwise min/max of points.
// The second return value is false when points is empty.
func NewBBoxFromPoints(points []proj.Point) (BBox, bool) {
	if len(points) == 0 {
		return BBox{}, false
	}
	b := NewBBoxFromPoint(points[0])
	for _, p := range points[1:] {
		b.Extend(p)
	}
	return b, true
}

// Valid reports whether LL lies at or below UR on both axes
func (b BBox) Valid() bool {
	return b.LL.X <= b.UR.X && b.LL.Y <= b.UR.Y
}

// Contains reports whether p lies inside the box, edges included
func (b BBox) Contains(p proj.Point) bool {
	return p.X >= b.LL.X && p.X <= b.UR.X &&
		p.Y >= b.LL.Y && p.Y <= b.UR.Y
}

// Intersects reports whether the two boxes share at least one point
func (b BBox) Intersects(o BBox) bool {
	return b.LL.X <= o.UR.X && o.LL.X <= b.UR.X &&
		b.LL.Y <= o.UR.Y && o.LL.Y <= b.UR.Y
}

// Extend grows the box to include p
func (b *BBox) Extend(p proj.Point) {
	if p.X < b.LL.X {
		b.LL.X = p.X
	}
	if p.Y < b.LL.Y {
		b.LL.Y = p.Y
	}
	if p.X > b.UR.X {
		b.UR.X = p.X
	}
	if p.Y > b.UR.Y {
		b.UR.Y = p.Y
	}
}

// Union returns the smallest box covering both
func (b BBox) Union(o BBox) BBox {
	b.Extend(o.LL)
	b.Extend(o.UR)
	return b
}

// IsSouthWestOf reports whether the box lies south or west of p,
// i.e. p is strictly east of the right edge or strictly north of the top edge.
func (b BBox) IsSouthWestOf(p proj.Point) bool {
	return b.UR.X < p.X || b.UR.Y < p.Y
}

// Width returns the extent along x
func (b BBox) Width() int64 {
	return b.UR.X - b.LL.X
}

// Height returns the extent along y
func (b BBox) Height() int64 {
	return b.UR.Y - b.LL.Y
}

func (b BBox) String() string {
	return fmt.Sprintf("%d,%d,%d,%d", b.LL.X, b.LL.Y, b.UR.X, b.UR.Y)
}
