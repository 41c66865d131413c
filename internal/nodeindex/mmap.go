package nodeindex

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"sync/atomic"

	"github.com/edsrzf/mmap-go"

	"github.com/wegman-software/simpletile-go/internal/proj"
)

const (
	// Each node entry: x (int32) + y (int32) Mercator meters = 8 bytes
	entrySize = 8

	// DefaultCapacity covers current OSM node ids with headroom
	DefaultCapacity = 16_000_000_000
)

// MmapIndex is a node location index backed by a sparse memory-mapped file.
// The entry for node id lives at offset id*8, so lookups are O(1) and only
// pages holding written nodes use disk space.
type MmapIndex struct {
	file     *os.File
	data     mmap.MMap
	capacity int64
	count    atomic.Int64
}

// NewMmapIndex creates (or truncates) the index file at path, sized for
// node ids in [0, capacity)
func NewMmapIndex(path string, capacity int64) (*MmapIndex, error) {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	size := capacity * entrySize

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to create node index file: %w", err)
	}

	// Truncate to full size (creates sparse file on Linux)
	if err := f.Truncate(size); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to size node index file: %w", err)
	}

	data, err := mmap.MapRegion(f, int(size), mmap.RDWR, 0, 0)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to mmap node index file: %w", err)
	}

	return &MmapIndex{file: f, data: data, capacity: capacity}, nil
}

// Put projects and stores a node location. Ids outside the capacity are ignored.
func (m *MmapIndex) Put(id int64, lon, lat float64) {
	if id < 0 || id >= m.capacity {
		return
	}
	p := proj.LonLatToMercator(lon, lat)
	if p.X < math.MinInt32 || p.X > math.MaxInt32 || p.Y < math.MinInt32 || p.Y > math.MaxInt32 {
		return
	}

	off := id * entrySize
	binary.LittleEndian.PutUint32(m.data[off:], uint32(int32(p.X)))
	binary.LittleEndian.PutUint32(m.data[off+4:], uint32(int32(p.Y)))
	m.count.Add(1)
}

// Get returns the stored location of id.
// A node projected exactly onto (0, 0) reads as missing.
func (m *MmapIndex) Get(id int64) (proj.Point, bool) {
	if id < 0 || id >= m.capacity {
		return proj.Point{}, false
	}

	off := id * entrySize
	x := int32(binary.LittleEndian.Uint32(m.data[off:]))
	y := int32(binary.LittleEndian.Uint32(m.data[off+4:]))
	if x == 0 && y == 0 {
		return proj.Point{}, false
	}
	return proj.Point{X: int64(x), Y: int64(y)}, true
}

// Len returns the number of Put calls that stored a location
func (m *MmapIndex) Len() int64 {
	return m.count.Load()
}

// Sync flushes the mapping to disk
func (m *MmapIndex) Sync() error {
	return m.data.Flush()
}

// Close unmaps and closes the index file
func (m *MmapIndex) Close() error {
	if err := m.data.Unmap(); err != nil {
		m.file.Close()
		return fmt.Errorf("failed to unmap node index: %w", err)
	}
	return m.file.Close()
}

// Remove closes the index and deletes its file
func (m *MmapIndex) Remove() error {
	name := m.file.Name()
	if err := m.Close(); err != nil {
		return err
	}
	return os.Remove(name)
}
