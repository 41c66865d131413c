package query

import (
	"sort"

	"github.com/dhconnelly/rtreego"

	"github.com/wegman-software/simpletile-go/internal/grid"
	"github.com/wegman-software/simpletile-go/internal/proj"
)

// WayRef identifies a way inside a tile
type WayRef struct {
	TileID int64
	WayID  int
	Bounds grid.BBox
}

// indexedWay wraps a way reference for R-tree storage
type indexedWay struct {
	ref WayRef
}

// Bounds implements rtreego.Spatial
func (w *indexedWay) Bounds() rtreego.Rect {
	return toRect(w.ref.Bounds, 0)
}

// WayIndex narrows tile-level query results down to the ways whose
// bounding boxes actually touch the query box
type WayIndex struct {
	tree *rtreego.Rtree
}

// NewWayIndex indexes every way of tiles
func NewWayIndex(tiles map[int64]*Tile) *WayIndex {
	x := &WayIndex{tree: rtreego.NewTree(2, 25, 50)}
	for _, t := range tiles {
		for wayID, points := range t.Ways {
			x.Insert(t.ID, wayID, points)
		}
	}
	return x
}

// Insert adds one way. Ways without points are ignored.
func (x *WayIndex) Insert(tileID int64, wayID int, points []proj.Point) {
	b, ok := grid.NewBBoxFromPoints(points)
	if !ok {
		return
	}
	x.tree.Insert(&indexedWay{ref: WayRef{TileID: tileID, WayID: wayID, Bounds: b}})
}

// Len returns the number of indexed ways
func (x *WayIndex) Len() int {
	return x.tree.Size()
}

// Search returns the ways whose bounds intersect b (edges included),
// ordered by tile and way id
func (x *WayIndex) Search(b grid.BBox) []WayRef {
	// rtreego treats touching rectangles as disjoint, so pad the query
	// and apply the closed-box test afterwards
	hits := x.tree.SearchIntersect(toRect(b, 0.5))

	refs := make([]WayRef, 0, len(hits))
	for _, h := range hits {
		ref := h.(*indexedWay).ref
		if ref.Bounds.Intersects(b) {
			refs = append(refs, ref)
		}
	}
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].TileID != refs[j].TileID {
			return refs[i].TileID < refs[j].TileID
		}
		return refs[i].WayID < refs[j].WayID
	})
	return refs
}

// Filter returns a copy of tiles holding only the ways found by Search(b).
// Tiles left without ways are dropped.
func (x *WayIndex) Filter(tiles map[int64]*Tile, b grid.BBox) map[int64]*Tile {
	out := make(map[int64]*Tile)
	for _, ref := range x.Search(b) {
		src, ok := tiles[ref.TileID]
		if !ok {
			continue
		}
		dst, ok := out[ref.TileID]
		if !ok {
			dst = &Tile{ID: src.ID, LL: src.LL, UR: src.UR, Ways: make(map[int][]proj.Point)}
			out[ref.TileID] = dst
		}
		dst.Ways[ref.WayID] = src.Ways[ref.WayID]
	}
	return out
}

func toRect(b grid.BBox, pad float64) rtreego.Rect {
	// zero-length sides are not allowed
	const epsilon = 1e-3

	point := rtreego.Point{float64(b.LL.X) - pad, float64(b.LL.Y) - pad}
	w := float64(b.Width()) + 2*pad
	h := float64(b.Height()) + 2*pad
	if w < epsilon {
		w = epsilon
	}
	if h < epsilon {
		h = epsilon
	}
	// NewRect only fails on non-positive sides, ruled out above
	rect, _ := rtreego.NewRect(point, []float64{w, h})
	return rect
}
