// Package wkb encodes ways as well-known binary for the export sinks.
// PostGIS gets EWKB with an embedded SRID, Parquet plain ISO WKB.
package wkb

import (
	"encoding/binary"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"

	"github.com/wegman-software/simpletile-go/internal/proj"
)

// WKB type constants (ISO SQL/MM specification)
const (
	wkbPoint           = 1
	wkbLineString      = 2
	wkbMultiLineString = 5

	// SRID flag for EWKB (PostGIS extended WKB)
	wkbSRIDFlag = 0x20000000
)

// Encoder encodes geometries to EWKB.
// Uses little-endian byte order. The returned slices are reused by the
// next call.
type Encoder struct {
	buf  []byte
	srid uint32
}

// NewEncoder creates an encoder for the given SRID
func NewEncoder(srid int) *Encoder {
	return &Encoder{
		buf:  make([]byte, 0, 256),
		srid: uint32(srid),
	}
}

// SRID returns the encoder's SRID
func (e *Encoder) SRID() int {
	return int(e.srid)
}

// EncodePoint encodes a single point
func (e *Encoder) EncodePoint(x, y float64) []byte {
	e.header(wkbPoint, 16)
	e.appendFloat64(x)
	e.appendFloat64(y)
	return e.buf
}

// EncodeLineString encodes a linestring.
// coords is a flat array of [x1, y1, x2, y2, ...]
func (e *Encoder) EncodeLineString(coords []float64) []byte {
	numPoints := len(coords) / 2
	e.header(wkbLineString, 4+numPoints*16)
	e.appendCoords(coords)
	return e.buf
}

// EncodeMultiLineString encodes several flat coordinate arrays as one
// geometry. Embedded linestrings carry no SRID.
func (e *Encoder) EncodeMultiLineString(lines [][]float64) []byte {
	size := 4
	for _, l := range lines {
		size += 9 + len(l)/2*16
	}
	e.header(wkbMultiLineString, size)
	e.appendUint32(uint32(len(lines)))
	for _, l := range lines {
		e.buf = append(e.buf, 0x01)
		e.appendUint32(wkbLineString)
		e.appendCoords(l)
	}
	return e.buf
}

// EncodeWay transforms a way and encodes it as a linestring.
// A single-point way becomes a point.
func (e *Encoder) EncodeWay(points []proj.Point, t *proj.Transformer) []byte {
	if len(points) == 1 {
		x, y := t.Transform(points[0])
		return e.EncodePoint(x, y)
	}
	return e.EncodeLineString(t.TransformPoints(points))
}

func (e *Encoder) header(typ uint32, bodySize int) {
	e.buf = e.buf[:0]
	// byte order + type + srid
	if need := 9 + bodySize; cap(e.buf) < need {
		e.buf = make([]byte, 0, need)
	}
	e.buf = append(e.buf, 0x01)
	e.appendUint32(typ | wkbSRIDFlag)
	e.appendUint32(e.srid)
}

func (e *Encoder) appendCoords(coords []float64) {
	e.appendUint32(uint32(len(coords) / 2))
	for i := 0; i+1 < len(coords); i += 2 {
		e.appendFloat64(coords[i])
		e.appendFloat64(coords[i+1])
	}
}

func (e *Encoder) appendUint32(v uint32) {
	e.buf = binary.LittleEndian.AppendUint32(e.buf, v)
}

func (e *Encoder) appendFloat64(v float64) {
	e.buf = binary.LittleEndian.AppendUint64(e.buf, math.Float64bits(v))
}

// Geometry converts a way into an orb geometry in the target projection:
// a point for single-point ways, a linestring otherwise.
func Geometry(points []proj.Point, t *proj.Transformer) orb.Geometry {
	if len(points) == 1 {
		x, y := t.Transform(points[0])
		return orb.Point{x, y}
	}
	ls := make(orb.LineString, len(points))
	for i, p := range points {
		x, y := t.Transform(p)
		ls[i] = orb.Point{x, y}
	}
	return ls
}

// Marshal encodes a way as plain ISO WKB without SRID
func Marshal(points []proj.Point, t *proj.Transformer) ([]byte, error) {
	return wkb.Marshal(Geometry(points, t))
}
