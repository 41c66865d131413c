package export

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/memory"
	"github.com/apache/arrow/go/v14/parquet/file"
	"github.com/apache/arrow/go/v14/parquet/pqarrow"
	"github.com/google/go-cmp/cmp"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/require"

	"github.com/wegman-software/simpletile-go/internal/grid"
	"github.com/wegman-software/simpletile-go/internal/proj"
	"github.com/wegman-software/simpletile-go/internal/query"
	"github.com/wegman-software/simpletile-go/internal/store"
)

func pt(x, y int64) proj.Point {
	return proj.Point{X: x, Y: y}
}

func mercator(t *testing.T) *proj.Transformer {
	t.Helper()
	tr, err := proj.NewTransformer(proj.SRID3857)
	require.NoError(t, err)
	return tr
}

func testTiles() map[int64]*query.Tile {
	return map[int64]*query.Tile{
		5: {ID: 5, Ways: map[int][]proj.Point{
			1: {pt(5100, 100)},
			0: {pt(5010, 20), pt(5500, 600)},
		}},
		2: {ID: 2, Ways: map[int][]proj.Point{
			0: {pt(2000, 0), pt(2100, 50), pt(2200, 75)},
		}},
		9: {ID: 9, Ways: map[int][]proj.Point{}},
	}
}

func TestRows(t *testing.T) {
	rows := Rows(testTiles())

	want := []Row{
		{TileID: 2, WayID: 0, Points: []proj.Point{pt(2000, 0), pt(2100, 50), pt(2200, 75)}},
		{TileID: 5, WayID: 0, Points: []proj.Point{pt(5010, 20), pt(5500, 600)}},
		{TileID: 5, WayID: 1, Points: []proj.Point{pt(5100, 100)}},
	}
	if diff := cmp.Diff(want, rows); diff != "" {
		t.Errorf("Rows mismatch (-want +got):\n%s", diff)
	}

	require.Empty(t, Rows(nil))
}

func TestFilter(t *testing.T) {
	rows := Rows(testTiles())

	got := Filter(rows, grid.BBox{LL: pt(5000, 0), UR: pt(5200, 200)})
	require.Len(t, got, 2)
	require.Equal(t, int64(5), got[0].TileID)
	require.Equal(t, 1, got[1].WayID)

	// the input slice is left alone
	require.Len(t, rows, 3)
	require.Equal(t, int64(2), rows[0].TileID)
}

func writeMap(t *testing.T) string {
	t.Helper()
	tiles := make([][]byte, 4)

	var err error
	tiles[0], err = store.EncodeTile([][]store.Coord{{{10, 10}, {20, 20}}})
	require.NoError(t, err)
	tiles[3], err = store.EncodeTile([][]store.Coord{{{1, 0}}, {{5, 5}, {6, 6}}})
	require.NoError(t, err)

	h := &store.Header{MapWidth: 2000, MapHeight: 2000, NXTiles: 2, TileSize: 1000, WayCount: 2}
	path := filepath.Join(t.TempDir(), "map.bin")
	require.NoError(t, store.WriteFile(path, h, tiles))
	return path
}

func TestWalk(t *testing.T) {
	l, err := query.Open(writeMap(t), false)
	require.NoError(t, err)
	defer l.Close()

	ids := AllTiles(l.Grid())
	require.Equal(t, []int64{0, 1, 2, 3}, ids)

	var rows []Row
	require.NoError(t, Walk(context.Background(), l, ids, func(r Row) error {
		rows = append(rows, r)
		return nil
	}))

	want := []Row{
		{TileID: 0, WayID: 0, Points: []proj.Point{pt(10, 10), pt(20, 20)}},
		{TileID: 3, WayID: 0, Points: []proj.Point{pt(1001, 1000)}},
		{TileID: 3, WayID: 1, Points: []proj.Point{pt(1005, 1005), pt(1006, 1006)}},
	}
	if diff := cmp.Diff(want, rows); diff != "" {
		t.Errorf("Walk mismatch (-want +got):\n%s", diff)
	}

	stop := errors.New("stop")
	err = Walk(context.Background(), l, ids, func(Row) error { return stop })
	require.ErrorIs(t, err, stop)

	err = Walk(context.Background(), l, []int64{7}, func(Row) error { return nil })
	require.ErrorIs(t, err, store.ErrTileIndex)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, Walk(ctx, l, ids, func(Row) error { return nil }), context.Canceled)
}

func TestGeoJSON(t *testing.T) {
	rows := Rows(testTiles())
	rows = append(rows, Row{TileID: 9, WayID: 0})

	fc := GeoJSON(rows, mercator(t))
	require.Len(t, fc.Features, 3)

	f := fc.Features[0]
	require.Equal(t, orb.LineString{{2000, 0}, {2100, 50}, {2200, 75}}, f.Geometry)
	require.Equal(t, int64(2), f.Properties["tile_id"])
	require.Equal(t, 0, f.Properties["way_id"])

	require.Equal(t, orb.Point{5100, 100}, fc.Features[2].Geometry)
}

func TestWriteGeoJSON(t *testing.T) {
	wgs84, err := proj.NewTransformer(proj.SRID4326)
	require.NoError(t, err)

	hamburg := proj.LonLatToMercator(10, 53.55)
	rows := []Row{{TileID: 33, WayID: 4, Points: []proj.Point{hamburg, hamburg.Add(pt(500, 500))}}}

	var buf bytes.Buffer
	require.NoError(t, WriteGeoJSON(&buf, rows, wgs84, true))

	fc, err := geojson.UnmarshalFeatureCollection(buf.Bytes())
	require.NoError(t, err)
	require.Len(t, fc.Features, 1)
	require.EqualValues(t, 33, fc.Features[0].Properties["tile_id"])
	require.EqualValues(t, 4, fc.Features[0].Properties["way_id"])

	ls, ok := fc.Features[0].Geometry.(orb.LineString)
	require.True(t, ok, "got %T", fc.Features[0].Geometry)
	require.InDelta(t, 10, ls[0].Lon(), 1e-4)
	require.InDelta(t, 53.55, ls[0].Lat(), 1e-4)
}

func TestParquetWriter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ways.parquet")
	w, err := NewParquetWriter(path, mercator(t), 2)
	require.NoError(t, err)

	for _, r := range Rows(testTiles()) {
		require.NoError(t, w.Write(r))
	}
	require.Equal(t, int64(3), w.Written())
	require.NoError(t, w.Close())

	pf, err := file.OpenParquetFile(path, false)
	require.NoError(t, err)
	defer pf.Close()

	fr, err := pqarrow.NewFileReader(pf, pqarrow.ArrowReadProperties{}, memory.DefaultAllocator)
	require.NoError(t, err)
	tbl, err := fr.ReadTable(context.Background())
	require.NoError(t, err)
	defer tbl.Release()

	require.Equal(t, int64(3), tbl.NumRows())
	for i, f := range ParquetSchema.Fields() {
		require.Equal(t, f.Name, tbl.Schema().Field(i).Name)
	}

	var (
		tileIDs []int64
		wayIDs  []int32
		counts  []int32
		geoms   []orb.Geometry
	)
	for _, c := range tbl.Column(0).Data().Chunks() {
		tileIDs = append(tileIDs, c.(*array.Int64).Int64Values()...)
	}
	for _, c := range tbl.Column(1).Data().Chunks() {
		wayIDs = append(wayIDs, c.(*array.Int32).Int32Values()...)
	}
	for _, c := range tbl.Column(2).Data().Chunks() {
		counts = append(counts, c.(*array.Int32).Int32Values()...)
	}
	for _, c := range tbl.Column(3).Data().Chunks() {
		b := c.(*array.Binary)
		for i := 0; i < b.Len(); i++ {
			g, err := wkb.Unmarshal(b.Value(i))
			require.NoError(t, err)
			geoms = append(geoms, g)
		}
	}

	require.Equal(t, []int64{2, 5, 5}, tileIDs)
	require.Equal(t, []int32{0, 0, 1}, wayIDs)
	require.Equal(t, []int32{3, 2, 1}, counts)
	require.Equal(t, []orb.Geometry{
		orb.LineString{{2000, 0}, {2100, 50}, {2200, 75}},
		orb.LineString{{5010, 20}, {5500, 600}},
		orb.Point{5100, 100},
	}, geoms)
}

func TestPostGISSQL(t *testing.T) {
	table := QualifiedTable("public", "simpletile_ways")
	require.Equal(t, `"public"."simpletile_ways"`, table)
	require.Equal(t, `"ways"`, QualifiedTable("", "ways"))
	require.Equal(t, `"we""ird"`, QualifiedTable("", `we"ird`))

	require.Equal(t, `CREATE SCHEMA IF NOT EXISTS "roads"`, CreateSchemaSQL("roads"))
	require.Equal(t, `DROP TABLE IF EXISTS "public"."simpletile_ways" CASCADE`, DropTableSQL(table))
	require.Equal(t, `TRUNCATE "public"."simpletile_ways"`, TruncateSQL(table))

	create := CreateTableSQL(table, proj.SRID3857)
	require.Contains(t, create, `CREATE TABLE IF NOT EXISTS "public"."simpletile_ways"`)
	require.Contains(t, create, "geom GEOMETRY(Geometry, 3857) NOT NULL")
	require.Contains(t, create, "PRIMARY KEY (tile_id, way_id)")

	require.Contains(t, TempTableSQL("tmp"), `CREATE TEMP TABLE "tmp"`)
	require.Contains(t, TempTableSQL("tmp"), "ON COMMIT DROP")

	insert := InsertSQL(table, "tmp")
	require.Contains(t, insert, `INSERT INTO "public"."simpletile_ways" (tile_id, way_id, num_points, geom)`)
	require.Contains(t, insert, "ST_GeomFromEWKB(geom_wkb)")
	require.Contains(t, insert, `FROM "tmp"`)

	idx := IndexSQL(table, "simpletile_ways")
	require.Equal(t, []string{
		`CREATE INDEX IF NOT EXISTS "simpletile_ways_geom_idx" ON "public"."simpletile_ways" USING GIST (geom)`,
		`ANALYZE "public"."simpletile_ways"`,
	}, idx)
}

func TestRowSource(t *testing.T) {
	rows := make(chan []any, 2)
	rows <- []any{int64(1), int32(0), int32(2), []byte{1}}
	rows <- []any{int64(2), int32(1), int32(1), []byte{2}}
	close(rows)

	src := &rowSource{rows: rows}
	var n int
	for src.Next() {
		v, err := src.Values()
		require.NoError(t, err)
		require.Len(t, v, len(copyColumns))
		n++
	}
	require.Equal(t, 2, n)
	require.NoError(t, src.Err())
}
