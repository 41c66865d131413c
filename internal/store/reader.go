package store

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/wegman-software/simpletile-go/internal/grid"
)

// Reader gives access to single tiles of a map file. Only the header is kept
// in memory; every tile read fetches its offset entries and data on demand.
type Reader struct {
	src    Source
	header *Header
	grid   *grid.Grid
}

// Open returns a reader that opens the file for every read
func Open(path string) (*Reader, error) {
	src, err := NewFileSource(path)
	if err != nil {
		return nil, err
	}
	r, err := NewReader(src)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return r, nil
}

// OpenMapped returns a reader backed by a memory mapping held until Close
func OpenMapped(path string) (*Reader, error) {
	src, err := NewMappedSource(path)
	if err != nil {
		return nil, err
	}
	r, err := NewReader(src)
	if err != nil {
		src.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return r, nil
}

// NewReader reads the header from src
func NewReader(src Source) (*Reader, error) {
	buf, err := readFull(src, 0, HeaderLength)
	if err != nil {
		return nil, fmt.Errorf("header: %w", err)
	}
	h, err := ParseHeader(buf)
	if err != nil {
		return nil, err
	}
	// the offset table must fit into the file
	if size := src.Size(); h.NTiles > uint64(size-HeaderLength)/offsetEntryLength {
		return nil, fmt.Errorf("%w: header claims %d tiles, file has %d bytes",
			ErrTruncatedFile, h.NTiles, size)
	}
	g, err := h.Grid()
	if err != nil {
		return nil, fmt.Errorf("header describes no usable grid: %w", err)
	}
	return &Reader{src: src, header: h, grid: g}, nil
}

// Header returns the decoded file header
func (r *Reader) Header() *Header {
	return r.header
}

// Grid returns the tile grid of the file
func (r *Reader) Grid() *grid.Grid {
	return r.grid
}

// Size returns the size of the underlying file
func (r *Reader) Size() int64 {
	return r.src.Size()
}

// Close releases the source
func (r *Reader) Close() error {
	return r.src.Close()
}

// TileRange returns the absolute byte range [start, end) of tile id
func (r *Reader) TileRange(id int64) (start, end int64, err error) {
	n := int64(r.header.NTiles)
	if id < 0 || id >= n {
		return 0, 0, fmt.Errorf("%w: %d not in [0, %d)", ErrTileIndex, id, n)
	}

	size := r.src.Size()
	dataStart := r.header.DataOffset()
	if dataStart > size {
		return 0, 0, fmt.Errorf("%w: offset table needs %d bytes, file has %d",
			ErrTruncatedFile, dataStart, size)
	}

	// the last tile has no successor entry and runs to the end of the file
	entries := int64(2)
	if id == n-1 {
		entries = 1
	}
	buf, err := readFull(r.src, r.header.OffsetTableOffset()+offsetEntryLength*id, int(entries*offsetEntryLength))
	if err != nil {
		return 0, 0, fmt.Errorf("offset table entry %d: %w", id, err)
	}

	rel := binary.LittleEndian.Uint64(buf)
	relEnd := uint64(size - dataStart)
	if entries == 2 {
		relEnd = binary.LittleEndian.Uint64(buf[offsetEntryLength:])
	}

	limit := uint64(size - dataStart)
	if rel > limit || relEnd > limit {
		return 0, 0, fmt.Errorf("%w: tile %d spans [%d, %d) beyond data section of %d bytes",
			ErrTruncatedFile, id, rel, relEnd, limit)
	}
	if relEnd < rel {
		return 0, 0, fmt.Errorf("%w: tile %d ends at %d before it starts at %d",
			ErrTruncatedFile, id, relEnd, rel)
	}
	return dataStart + int64(rel), dataStart + int64(relEnd), nil
}

// ReadTileData returns the raw coordinate stream of tile id
func (r *Reader) ReadTileData(id int64) ([]byte, error) {
	start, end, err := r.TileRange(id)
	if err != nil {
		return nil, err
	}
	if start == end {
		return nil, nil
	}
	data, err := readFull(r.src, start, int(end-start))
	if err != nil {
		return nil, fmt.Errorf("tile %d: %w", id, err)
	}
	return data, nil
}

// ReadTile decodes tile id into ways of tile-local coordinates
func (r *Reader) ReadTile(id int64) (map[int][]Coord, error) {
	data, err := r.ReadTileData(id)
	if err != nil {
		return nil, err
	}
	return DecodeWays(data), nil
}

// Offsets returns the full offset table, for inspection tools
func (r *Reader) Offsets() ([]uint64, error) {
	n := int(r.header.NTiles)
	if r.header.DataOffset() > r.src.Size() {
		return nil, fmt.Errorf("%w: offset table needs %d bytes, file has %d",
			ErrTruncatedFile, r.header.DataOffset(), r.src.Size())
	}
	buf, err := readFull(r.src, r.header.OffsetTableOffset(), n*offsetEntryLength)
	if err != nil {
		return nil, fmt.Errorf("offset table: %w", err)
	}
	offsets := make([]uint64, n)
	for i := range offsets {
		offsets[i] = binary.LittleEndian.Uint64(buf[i*offsetEntryLength:])
	}
	return offsets, nil
}

// readFull reads exactly n bytes at off, reporting short reads as truncation
func readFull(src Source, off int64, n int) ([]byte, error) {
	buf := make([]byte, n)
	got, err := src.ReadAt(buf, off)
	if got == n {
		return buf, nil
	}
	if err == nil || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, fmt.Errorf("%w: wanted %d bytes at %d, got %d", ErrTruncatedFile, n, off, got)
	}
	return nil, err
}
