// Package store reads and writes the tiled road map file.
//
// Layout, all little-endian:
//
//	header        80 bytes (Header)
//	offset table  NTiles x uint64, relative to the start of the data section
//	data          per-tile coordinate streams (see DecodeWays)
package store

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/wegman-software/simpletile-go/internal/grid"
	"github.com/wegman-software/simpletile-go/internal/proj"
)

// HeaderLength is the encoded size of Header
const HeaderLength = 80

// offsetEntryLength is the size of one offset table entry
const offsetEntryLength = 8

var (
	// ErrTruncatedFile is returned when the file ends before a declared structure
	ErrTruncatedFile = errors.New("truncated map file")

	// ErrTileIndex is returned for tile ids outside [0, n_tiles)
	ErrTileIndex = errors.New("tile index out of range")
)

// Header is the fixed-size file header. Field order is the on-disk order.
type Header struct {
	MapX           int64  // map origin x, Mercator meters
	MapY           int64  // map origin y
	MapWidth       uint64 // extent along x
	MapHeight      uint64 // extent along y
	NXTiles        uint64 // tiles per row
	TileSize       uint64 // tile edge length
	NTiles         uint64 // number of offset table entries
	MaxTileNodes   uint64 // largest record count of a single tile
	TotalTileNodes uint64 // points over all tiles, separators excluded
	WayCount       uint64 // ways in the source data
}

// DecodeHeader reads a header from r
func DecodeHeader(r io.Reader) (*Header, error) {
	var h Header
	if err := binary.Read(r, binary.LittleEndian, &h); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: header: %w", ErrTruncatedFile, err)
		}
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	return &h, nil
}

// ParseHeader decodes a header from the first HeaderLength bytes of buf
func ParseHeader(buf []byte) (*Header, error) {
	return DecodeHeader(bytes.NewReader(buf))
}

// Encode writes the header to w
func (h *Header) Encode(w io.Writer) error {
	return binary.Write(w, binary.LittleEndian, h)
}

// Bytes returns the encoded header
func (h *Header) Bytes() []byte {
	var buf bytes.Buffer
	buf.Grow(HeaderLength)
	// writes to a bytes.Buffer cannot fail
	_ = h.Encode(&buf)
	return buf.Bytes()
}

// ReadHeader reads only the header of the file at path
func ReadHeader(path string) (*Header, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open map file: %w", err)
	}
	defer f.Close()

	h, err := DecodeHeader(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return h, nil
}

// Origin returns the lower-left corner of the map
func (h *Header) Origin() proj.Point {
	return proj.Point{X: h.MapX, Y: h.MapY}
}

// Grid returns the tile grid described by the header
func (h *Header) Grid() (*grid.Grid, error) {
	return grid.New(h.Origin(),
		int64(h.MapWidth), int64(h.MapHeight),
		int64(h.TileSize), int64(h.NXTiles), int64(h.NTiles))
}

// OffsetTableOffset is the absolute position of the offset table
func (h *Header) OffsetTableOffset() int64 {
	return HeaderLength
}

// DataOffset is the absolute position where tile data begins
func (h *Header) DataOffset() int64 {
	if h.NTiles > (math.MaxInt64-HeaderLength)/offsetEntryLength {
		return math.MaxInt64
	}
	return HeaderLength + offsetEntryLength*int64(h.NTiles)
}

func (h *Header) String() string {
	return fmt.Sprintf("origin=(%d,%d) size=%dx%d tile_size=%d tiles=%d (%d per row) ways=%d nodes=%d max_tile_nodes=%d",
		h.MapX, h.MapY, h.MapWidth, h.MapHeight, h.TileSize, h.NTiles, h.NXTiles,
		h.WayCount, h.TotalTileNodes, h.MaxTileNodes)
}
