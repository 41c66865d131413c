package export

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/paulmach/orb/geojson"

	"github.com/wegman-software/simpletile-go/internal/proj"
	"github.com/wegman-software/simpletile-go/internal/wkb"
)

// GeoJSON converts rows into a feature collection in the projection of t.
// Every feature carries its tile_id and way_id.
func GeoJSON(rows []Row, t *proj.Transformer) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, r := range rows {
		if len(r.Points) == 0 {
			continue
		}
		f := geojson.NewFeature(wkb.Geometry(r.Points, t))
		f.Properties["tile_id"] = r.TileID
		f.Properties["way_id"] = r.WayID
		fc.Append(f)
	}
	return fc
}

// WriteGeoJSON writes the feature collection of rows to w
func WriteGeoJSON(w io.Writer, rows []Row, t *proj.Transformer, indent bool) error {
	fc := GeoJSON(rows, t)

	var (
		data []byte
		err  error
	)
	if indent {
		data, err = json.MarshalIndent(fc, "", "  ")
	} else {
		data, err = json.Marshal(fc)
	}
	if err != nil {
		return fmt.Errorf("failed to marshal GeoJSON: %w", err)
	}
	if _, err := w.Write(append(data, '\n')); err != nil {
		return err
	}
	return nil
}
