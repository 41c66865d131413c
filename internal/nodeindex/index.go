// Package nodeindex stores projected node locations by OSM node id.
package nodeindex

import (
	"sync"

	"github.com/wegman-software/simpletile-go/internal/proj"
)

// Index maps node ids to Mercator points.
//
// Put may be called concurrently with other Puts. Get must not race with Put.
type Index interface {
	Put(id int64, lon, lat float64)
	Get(id int64) (proj.Point, bool)
	Len() int64
	Close() error
}

// MemIndex keeps all locations in a map. Suitable for city-sized extracts.
type MemIndex struct {
	mu     sync.Mutex
	points map[int64]proj.Point
}

// NewMemIndex creates an empty in-memory index
func NewMemIndex() *MemIndex {
	return &MemIndex{points: make(map[int64]proj.Point)}
}

// Put projects and stores a node location
func (m *MemIndex) Put(id int64, lon, lat float64) {
	p := proj.LonLatToMercator(lon, lat)
	m.mu.Lock()
	m.points[id] = p
	m.mu.Unlock()
}

// Get returns the stored location of id
func (m *MemIndex) Get(id int64) (proj.Point, bool) {
	p, ok := m.points[id]
	return p, ok
}

// Len returns the number of stored nodes
func (m *MemIndex) Len() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.points))
}

// Close drops all entries
func (m *MemIndex) Close() error {
	m.mu.Lock()
	m.points = nil
	m.mu.Unlock()
	return nil
}
