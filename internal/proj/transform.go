package proj

import (
	"fmt"
)

// SRID constants for the supported output projections
const (
	SRID4326 = 4326 // WGS84 (lon/lat)
	SRID3857 = 3857 // Web Mercator, the map file's native space
)

// Transformer converts stored Mercator points into an output projection
type Transformer struct {
	TargetSRID int
}

// NewTransformer creates a transformer from Mercator to the target SRID
func NewTransformer(targetSRID int) (*Transformer, error) {
	if targetSRID != SRID4326 && targetSRID != SRID3857 {
		return nil, fmt.Errorf("unsupported target SRID: %d (only 4326 and 3857 supported)", targetSRID)
	}
	return &Transformer{TargetSRID: targetSRID}, nil
}

// Transform converts a Mercator point to x, y in the target projection.
// For 4326 x is the longitude and y the latitude.
func (t *Transformer) Transform(p Point) (x, y float64) {
	if t.TargetSRID == SRID4326 {
		g := MercatorToLonLat(p)
		return g.Lon, g.Lat
	}
	return float64(p.X), float64(p.Y)
}

// TransformPoints converts a point sequence into a flat [x1, y1, x2, y2, ...] array
func (t *Transformer) TransformPoints(points []Point) []float64 {
	coords := make([]float64, 0, len(points)*2)
	for _, p := range points {
		x, y := t.Transform(p)
		coords = append(coords, x, y)
	}
	return coords
}

// ParseSRID parses a projection string to SRID
// Accepts: "4326", "3857", "EPSG:4326", "EPSG:3857"
func ParseSRID(s string) (int, error) {
	switch s {
	case "4326", "EPSG:4326":
		return SRID4326, nil
	case "3857", "EPSG:3857":
		return SRID3857, nil
	default:
		return 0, fmt.Errorf("unsupported projection: %s (supported: 4326, 3857)", s)
	}
}
