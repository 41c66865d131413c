package proj

import (
	"errors"
	"fmt"
	"math"
)

// EarthRadius is the WGS84 equatorial radius in meters
const EarthRadius = 6378137.0

// ErrMalformedInput is returned when a coordinate array does not have the (lon, lat) shape
var ErrMalformedInput = errors.New("malformed input")

// GeoPoint is a WGS84 position in degrees
type GeoPoint struct {
	Lon, Lat float64
}

// Point is a planar Mercator position in whole meters.
// Values are truncated toward zero from the projected float.
type Point struct {
	X, Y int64
}

// Add returns p translated by o
func (p Point) Add(o Point) Point {
	return Point{X: p.X + o.X, Y: p.Y + o.Y}
}

// Sub returns the offset of p from o
func (p Point) Sub(o Point) Point {
	return Point{X: p.X - o.X, Y: p.Y - o.Y}
}

func (p Point) String() string {
	return fmt.Sprintf("(%d, %d)", p.X, p.Y)
}

// LonToX converts a longitude in degrees to Mercator x in meters
func LonToX(lon float64) float64 {
	return EarthRadius * (lon * (math.Pi / 180.0))
}

// LatToY converts a latitude in degrees to Mercator y in meters.
//
// The latitude term is a rational polynomial approximation taken from
// libosmium. The coefficients must stay exactly as they are: map files
// already written with them depend on the truncated results.
func LatToY(lat float64) float64 {
	num := float64((((((((((-3.1112583378460085319e-23*lat+
		2.0465852743943268009e-19)*lat+
		6.4905282018672673884e-18)*lat+
		-1.9685447939983315591e-14)*lat+
		-2.2022588158115104182e-13)*lat+
		5.1617537365509453239e-10)*lat+
		2.5380136069803016519e-9)*lat+
		-5.1448323697228488745e-6)*lat+
		-9.4888671473357768301e-6)*lat+
		1.7453292518154191887e-2)*lat)

	den := float64((((((((((-1.9741136066814230637e-22*lat+
		-1.258514031244679556e-20)*lat+
		4.8141483273572351796e-17)*lat+
		8.6876090870176172185e-16)*lat+
		-2.3298743439377541768e-12)*lat+
		-1.9300094785736130185e-11)*lat+
		4.3251609106864178231e-8)*lat+
		1.7301944508516974048e-7)*lat+
		-3.4554675198786337842e-4)*lat+
		-5.4367203601085991108e-4)*lat + 1.0)

	return EarthRadius * (num / den)
}

// LonLatToMercator projects a single WGS84 position.
// Input outside [-180,180]x[-90,90] is not checked and gives meaningless results.
func LonLatToMercator(lon, lat float64) Point {
	return Point{
		X: int64(LonToX(lon)),
		Y: int64(LatToY(lat)),
	}
}

// Project converts geodetic positions to Mercator points.
// The input slice is left untouched.
func Project(points []GeoPoint) []Point {
	out := make([]Point, len(points))
	for i, p := range points {
		out[i] = LonLatToMercator(p.Lon, p.Lat)
	}
	return out
}

// ProjectCoords projects a raw coordinate array where every row is [lon, lat]
func ProjectCoords(coords [][]float64) ([]Point, error) {
	out := make([]Point, len(coords))
	for i, c := range coords {
		if len(c) != 2 {
			return nil, fmt.Errorf("%w: coordinate %d has %d values, want 2", ErrMalformedInput, i, len(c))
		}
		out[i] = LonLatToMercator(c[0], c[1])
	}
	return out, nil
}

// MercatorToLonLat is the spherical inverse of the projection.
// It does not invert the polynomial exactly: up to 80 degrees latitude the
// round trip stays within 1e-5 degrees, beyond that the error grows quickly.
func MercatorToLonLat(p Point) GeoPoint {
	lon := float64(p.X) / EarthRadius * (180.0 / math.Pi)
	lat := (2*math.Atan(math.Exp(float64(p.Y)/EarthRadius)) - math.Pi/2) * (180.0 / math.Pi)
	return GeoPoint{Lon: lon, Lat: lat}
}
