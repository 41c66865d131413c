package store

import (
	"encoding/binary"
	"fmt"

	"go.uber.org/zap"

	"github.com/wegman-software/simpletile-go/internal/logger"
	"github.com/wegman-software/simpletile-go/internal/proj"
)

// RecordLength is the size of one coordinate record
const RecordLength = 4

// Coord is a tile-local coordinate as stored in the file
type Coord struct {
	X, Y int16
}

// Separator ends a way in the coordinate stream
var Separator = Coord{}

// IsSeparator reports whether c is the (0, 0) way separator
func (c Coord) IsSeparator() bool {
	return c == Separator
}

// Abs translates c to absolute coordinates relative to origin
func (c Coord) Abs(origin proj.Point) proj.Point {
	return proj.Point{X: origin.X + int64(c.X), Y: origin.Y + int64(c.Y)}
}

func (c Coord) String() string {
	return fmt.Sprintf("(%d, %d)", c.X, c.Y)
}

// DecodeStats describes what the decoder saw in a tile stream
type DecodeStats struct {
	Records        int // complete 4-byte records
	Ways           int // ways returned
	EmptyWays      int // ids consumed by back-to-back separators
	DanglingPoints int // points after the last separator, dropped
	TrailingBytes  int // bytes of an incomplete last record, ignored
}

// DecodeWays splits a tile stream into ways keyed by their position in the tile.
//
// Each separator closes the current way and advances the id, so an empty way
// consumes an id and leaves a gap in the keys. Points after the last
// separator are dropped.
func DecodeWays(data []byte) map[int][]Coord {
	ways, stats := DecodeWaysStats(data)
	if stats.DanglingPoints > 0 || stats.TrailingBytes > 0 {
		logger.Get().Debug("incomplete tile stream",
			zap.Int("dangling_points", stats.DanglingPoints),
			zap.Int("trailing_bytes", stats.TrailingBytes))
	}
	return ways
}

// DecodeWaysStats is DecodeWays that also reports stream statistics
func DecodeWaysStats(data []byte) (map[int][]Coord, DecodeStats) {
	var stats DecodeStats
	stats.Records = len(data) / RecordLength
	stats.TrailingBytes = len(data) % RecordLength

	ways := make(map[int][]Coord)
	var current []Coord
	wayID := 0

	for i := 0; i+RecordLength <= len(data); i += RecordLength {
		c := Coord{
			X: int16(binary.LittleEndian.Uint16(data[i:])),
			Y: int16(binary.LittleEndian.Uint16(data[i+2:])),
		}
		if !c.IsSeparator() {
			current = append(current, c)
			continue
		}
		if len(current) > 0 {
			ways[wayID] = current
			current = nil
		} else {
			stats.EmptyWays++
		}
		wayID++
	}

	stats.Ways = len(ways)
	stats.DanglingPoints = len(current)
	return ways, stats
}

// AppendCoord appends the encoded record of c to buf
func AppendCoord(buf []byte, c Coord) []byte {
	buf = binary.LittleEndian.AppendUint16(buf, uint16(c.X))
	return binary.LittleEndian.AppendUint16(buf, uint16(c.Y))
}
