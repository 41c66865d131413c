package grid

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/wegman-software/simpletile-go/internal/proj"
)

func testGrid(t *testing.T) *Grid {
	t.Helper()
	g, err := New(proj.Point{}, 10000, 10000, 1000, 10, 100)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return g
}

func pt(x, y int64) proj.Point {
	return proj.Point{X: x, Y: y}
}

func TestNew(t *testing.T) {
	tests := []struct {
		name                string
		w, h, ts, nx, ntile int64
		wantErr             bool
	}{
		{"valid", 100, 100, 10, 11, 121, false},
		{"empty map", 0, 0, 10, 1, 1, false},
		{"zero tile size", 100, 100, 0, 11, 121, true},
		{"negative tile size", 100, 100, -5, 11, 121, true},
		{"zero columns", 100, 100, 10, 0, 121, true},
		{"negative tile count", 100, 100, 10, 11, -1, true},
		{"negative width", -1, 100, 10, 11, 121, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(proj.Point{}, tt.w, tt.h, tt.ts, tt.nx, tt.ntile)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidGrid) {
					t.Errorf("expected ErrInvalidGrid, got %v", err)
				}
				return
			}
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestTileIDForPoint(t *testing.T) {
	g := testGrid(t)

	tests := []struct {
		name    string
		p       proj.Point
		want    int64
		wantErr bool
	}{
		{"origin", pt(0, 0), 0, false},
		{"inside first tile", pt(999, 999), 0, false},
		{"east edge goes to next column", pt(1000, 0), 1, false},
		{"north edge goes to next row", pt(0, 1000), 10, false},
		{"middle", pt(2500, 3500), 32, false},
		{"last tile", pt(9999, 9999), 99, false},
		{"negative x", pt(-1, 500), 0, true},
		{"negative y", pt(500, -1), 0, true},
		{"beyond width", pt(10001, 500), 0, true},
		{"beyond height", pt(500, 10001), 0, true},
		{"on max edge past last column", pt(10000, 500), 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := g.TileIDForPoint(tt.p)
			if tt.wantErr {
				if !errors.Is(err, ErrOutOfBounds) {
					t.Errorf("expected ErrOutOfBounds, got id=%d err=%v", got, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("TileIDForPoint(%v) = %d, want %d", tt.p, got, tt.want)
			}
		})
	}
}

func TestTileIDForPointOffsetOrigin(t *testing.T) {
	g, err := New(pt(-5000, 7000), 3000, 3000, 1000, 4, 16)
	if err != nil {
		t.Fatal(err)
	}

	id, err := g.TileIDForPoint(pt(-3500, 8200))
	if err != nil {
		t.Fatal(err)
	}
	if id != 4+1 {
		t.Errorf("id = %d, want 5", id)
	}

	if _, err := g.TileIDForPoint(pt(-5001, 7000)); !errors.Is(err, ErrOutOfBounds) {
		t.Errorf("expected ErrOutOfBounds, got %v", err)
	}
}

func TestGridRoundTrip(t *testing.T) {
	grids := []*Grid{
		testGrid(t),
		{Origin: pt(-20037508, 4970071), Width: 5123, Height: 2100, TileSize: 512, NXTiles: 11, NTiles: 55},
		{Origin: pt(826502, 5425047), Width: 0, Height: 0, TileSize: 512, NXTiles: 1, NTiles: 1},
	}

	for _, g := range grids {
		for id := int64(0); id < g.NTiles; id++ {
			got, err := g.TileIDForPoint(g.TileOrigin(id))
			if err != nil {
				t.Fatalf("tile %d: %v", id, err)
			}
			if got != id {
				t.Errorf("TileIDForPoint(TileOrigin(%d)) = %d", id, got)
			}
		}
	}
}

func TestTileOrigin(t *testing.T) {
	g := testGrid(t)

	if got := g.TileOrigin(0); got != pt(0, 0) {
		t.Errorf("TileOrigin(0) = %v", got)
	}
	if got := g.TileOrigin(37); got != pt(7000, 3000) {
		t.Errorf("TileOrigin(37) = %v", got)
	}
	if got := g.TileBounds(37); got != (BBox{LL: pt(7000, 3000), UR: pt(8000, 4000)}) {
		t.Errorf("TileBounds(37) = %v", got)
	}
}

func TestCollidingTiles(t *testing.T) {
	g := testGrid(t)

	tests := []struct {
		name   string
		ll, ur proj.Point
		want   []int64
	}{
		{"2x2 block at column 2 row 2", pt(2500, 2500), pt(3500, 3500), []int64{22, 23, 32, 33}},
		{"2x2 block at column 3 row 3", pt(3500, 3500), pt(4500, 4500), []int64{33, 34, 43, 44}},
		{"single cell", pt(100, 100), pt(900, 900), []int64{0}},
		{"edge on boundary", pt(0, 0), pt(1000, 0), []int64{0, 1}},
		{"row strip", pt(0, 5500), pt(2999, 5600), []int64{50, 51, 52}},
		{"column strip", pt(9500, 0), pt(9600, 2000), []int64{9, 19, 29}},
		{"inverted box", pt(3000, 3000), pt(1000, 1000), []int64{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := g.CollidingTiles(tt.ll, tt.ur)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("CollidingTiles mismatch (-want +got):\n%s", diff)
			}
			if n := g.NumCollidingTiles(tt.ll, tt.ur); n != int64(len(tt.want)) {
				t.Errorf("NumCollidingTiles = %d, want %d", n, len(tt.want))
			}
		})
	}
}

func TestCollidingTilesSinglePoint(t *testing.T) {
	g := testGrid(t)
	for _, p := range []proj.Point{pt(0, 0), pt(1000, 1000), pt(4321, 8765), pt(9999, 0)} {
		want, err := g.TileIDForPoint(p)
		if err != nil {
			t.Fatal(err)
		}
		got := g.CollidingTiles(p, p)
		if len(got) != 1 || got[0] != want {
			t.Errorf("CollidingTiles(%v, %v) = %v, want [%d]", p, p, got, want)
		}
	}
}

func TestCollidingTilesRowMajorUnique(t *testing.T) {
	g := testGrid(t)
	ll, ur := pt(1200, 300), pt(6100, 4800)

	ids := g.CollidingTiles(ll, ur)
	if len(ids) != 6*5 {
		t.Fatalf("got %d ids, want 30", len(ids))
	}

	seen := make(map[int64]bool)
	for i, id := range ids {
		if seen[id] {
			t.Errorf("duplicate id %d", id)
		}
		seen[id] = true
		if i > 0 && id <= ids[i-1] {
			t.Errorf("ids not ascending at %d: %d after %d", i, id, ids[i-1])
		}
	}
	if ids[0] != 1 || ids[5] != 6 || ids[6] != 11 {
		t.Errorf("unexpected layout: %v", ids)
	}
}

func TestCollidingTilesNegativeOffset(t *testing.T) {
	g := testGrid(t)

	// floor(-1/1000) is -1, not 0
	got := g.CollidingTiles(pt(-1, 0), pt(0, 0))
	if diff := cmp.Diff([]int64{-1, 0}, got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestTileBlock(t *testing.T) {
	g := testGrid(t)

	tests := []struct {
		name   string
		center int64
		radius int
		want   []int64
	}{
		{"interior", 55, 1, []int64{44, 45, 46, 54, 55, 56, 64, 65, 66}},
		{"radius zero", 55, 0, []int64{55}},
		{"lower-left corner", 0, 1, []int64{0, 1, 10, 11}},
		{"upper-right corner", 99, 1, []int64{88, 89, 98, 99}},
		{"east edge", 19, 1, []int64{8, 9, 18, 19, 28, 29}},
		{"invalid center", 100, 1, nil},
		{"negative radius", 5, -1, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := g.TileBlock(tt.center, tt.radius)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("TileBlock mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestFloorDiv(t *testing.T) {
	tests := []struct{ a, b, want int64 }{
		{7, 2, 3},
		{-7, 2, -4},
		{-8, 2, -4},
		{0, 5, 0},
		{-1, 1000, -1},
		{999, 1000, 0},
	}
	for _, tt := range tests {
		if got := floorDiv(tt.a, tt.b); got != tt.want {
			t.Errorf("floorDiv(%d, %d) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}
