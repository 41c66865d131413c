package build

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/wegman-software/simpletile-go/internal/grid"
	"github.com/wegman-software/simpletile-go/internal/proj"
	"github.com/wegman-software/simpletile-go/internal/store"
)

func pt(x, y int64) proj.Point {
	return proj.Point{X: x, Y: y}
}

func TestAssign(t *testing.T) {
	tile := grid.BBox{LL: pt(0, 0), UR: pt(1000, 1000)}

	tests := []struct {
		name        string
		way         []proj.Point
		want        [][]store.Coord
		wantDropped int64
	}{
		{
			name: "inside",
			way:  []proj.Point{pt(10, 10), pt(500, 500)},
			want: [][]store.Coord{{{10, 10}, {500, 500}}},
		},
		{
			name: "leaving east keeps outside node",
			way:  []proj.Point{pt(500, 500), pt(1500, 500)},
			want: [][]store.Coord{{{500, 500}, {1500, 500}}},
		},
		{
			name: "leaving west drops outside node",
			way:  []proj.Point{pt(500, 500), pt(-500, 500)},
			want: [][]store.Coord{{{500, 500}}},
		},
		{
			name: "entering from north keeps previous node",
			way:  []proj.Point{pt(500, 1500), pt(500, 500)},
			want: [][]store.Coord{{{500, 1500}, {500, 500}}},
		},
		{
			name: "entering from south drops previous node",
			way:  []proj.Point{pt(500, -500), pt(500, 500)},
			want: [][]store.Coord{{{500, 500}}},
		},
		{
			name: "leaving and coming back makes two runs",
			way:  []proj.Point{pt(100, 100), pt(2000, 100), pt(200, 200)},
			want: [][]store.Coord{
				{{100, 100}, {2000, 100}},
				{{2000, 100}, {200, 200}},
			},
		},
		{
			name: "node on origin avoids the separator",
			way:  []proj.Point{pt(0, 0), pt(1000, 1000)},
			want: [][]store.Coord{{{1, 0}, {1000, 1000}}},
		},
		{
			name:        "neighbour too far away",
			way:         []proj.Point{pt(500, 500), pt(40000, 500)},
			want:        [][]store.Coord{{{500, 500}}},
			wantDropped: 1,
		},
		{
			name: "outside",
			way:  []proj.Point{pt(1500, 1500), pt(2500, 2500)},
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, dropped := Assign(tt.way, tile)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Assign mismatch (-want +got):\n%s", diff)
			}
			if dropped != tt.wantDropped {
				t.Errorf("dropped = %d, want %d", dropped, tt.wantDropped)
			}
		})
	}
}

func TestAssignNeighbourTileDrawsSegmentFromWest(t *testing.T) {
	// the east tile only sees its own node, the west tile carries the segment
	way := []proj.Point{pt(500, 500), pt(1500, 500)}

	west, _ := Assign(way, grid.BBox{LL: pt(0, 0), UR: pt(1000, 1000)})
	east, _ := Assign(way, grid.BBox{LL: pt(1000, 0), UR: pt(2000, 1000)})

	if diff := cmp.Diff([][]store.Coord{{{500, 500}, {1500, 500}}}, west); diff != "" {
		t.Errorf("west tile mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([][]store.Coord{{{500, 500}}}, east); diff != "" {
		t.Errorf("east tile mismatch (-want +got):\n%s", diff)
	}
}
