package query

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wegman-software/simpletile-go/internal/grid"
	"github.com/wegman-software/simpletile-go/internal/proj"
)

func testTiles() map[int64]*Tile {
	return map[int64]*Tile{
		0: {
			ID: 0, LL: pt(0, 0), UR: pt(1000, 1000),
			Ways: map[int][]proj.Point{
				0: {pt(10, 10), pt(200, 200)},
				2: {pt(800, 800), pt(900, 950)},
			},
		},
		1: {
			ID: 1, LL: pt(1000, 0), UR: pt(2000, 1000),
			Ways: map[int][]proj.Point{
				0: {pt(1500, 500)},
				1: {pt(1100, 100), pt(1100, 900)},
			},
		},
	}
}

func TestWayIndexSearch(t *testing.T) {
	x := NewWayIndex(testTiles())
	require.Equal(t, 4, x.Len())

	tests := []struct {
		name string
		box  grid.BBox
		want [][2]int64
	}{
		{"lower-left corner", grid.BBox{LL: pt(0, 0), UR: pt(100, 100)}, [][2]int64{{0, 0}}},
		{"touching edge counts", grid.BBox{LL: pt(200, 200), UR: pt(300, 300)}, [][2]int64{{0, 0}}},
		{"single point way", grid.BBox{LL: pt(1500, 500), UR: pt(1500, 500)}, [][2]int64{{1, 0}}},
		{"vertical way", grid.BBox{LL: pt(1050, 400), UR: pt(1100, 450)}, [][2]int64{{1, 1}}},
		{"empty area", grid.BBox{LL: pt(300, 300), UR: pt(700, 700)}, nil},
		{"everything", grid.BBox{LL: pt(0, 0), UR: pt(2000, 1000)}, [][2]int64{{0, 0}, {0, 2}, {1, 0}, {1, 1}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			refs := x.Search(tt.box)
			var got [][2]int64
			for _, r := range refs {
				got = append(got, [2]int64{r.TileID, int64(r.WayID)})
			}
			require.Equal(t, tt.want, got)
		})
	}
}

func TestWayIndexFilter(t *testing.T) {
	tiles := testTiles()
	x := NewWayIndex(tiles)

	out := x.Filter(tiles, grid.BBox{LL: pt(850, 850), UR: pt(1100, 900)})
	require.Len(t, out, 2)
	require.Equal(t, []int{2}, out[0].WayIDs())
	require.Equal(t, []int{1}, out[1].WayIDs())
	require.Equal(t, tiles[1].Ways[1], out[1].Ways[1])

	// the input is left alone
	require.Len(t, tiles[0].Ways, 2)
}

func TestWayIndexIgnoresEmptyWays(t *testing.T) {
	x := NewWayIndex(nil)
	x.Insert(5, 0, nil)
	require.Equal(t, 0, x.Len())
}
