package nodeindex

import (
	"path/filepath"
	"sync"
	"testing"

	"github.com/wegman-software/simpletile-go/internal/proj"
)

func testIndexes(t *testing.T) map[string]Index {
	t.Helper()
	mm, err := NewMmapIndex(filepath.Join(t.TempDir(), "nodes.idx"), 1<<16)
	if err != nil {
		t.Fatalf("NewMmapIndex: %v", err)
	}
	return map[string]Index{
		"memory": NewMemIndex(),
		"mmap":   mm,
	}
}

func TestPutGet(t *testing.T) {
	for name, idx := range testIndexes(t) {
		t.Run(name, func(t *testing.T) {
			defer idx.Close()

			idx.Put(1, 9.989095, 53.557078)
			idx.Put(4242, -74.006, 40.7128)

			tests := []struct {
				id     int64
				want   proj.Point
				wantOK bool
			}{
				{1, proj.LonLatToMercator(9.989095, 53.557078), true},
				{4242, proj.LonLatToMercator(-74.006, 40.7128), true},
				{2, proj.Point{}, false},
				{-1, proj.Point{}, false},
			}
			for _, tt := range tests {
				got, ok := idx.Get(tt.id)
				if ok != tt.wantOK || got != tt.want {
					t.Errorf("Get(%d) = %v, %v; want %v, %v", tt.id, got, ok, tt.want, tt.wantOK)
				}
			}

			if n := idx.Len(); n != 2 {
				t.Errorf("Len = %d, want 2", n)
			}
		})
	}
}

func TestMmapIndexBounds(t *testing.T) {
	idx, err := NewMmapIndex(filepath.Join(t.TempDir(), "nodes.idx"), 100)
	if err != nil {
		t.Fatal(err)
	}
	defer idx.Close()

	idx.Put(100, 1, 1)
	idx.Put(-5, 1, 1)
	if _, ok := idx.Get(100); ok {
		t.Error("id at capacity should be missing")
	}
	if idx.Len() != 0 {
		t.Errorf("Len = %d, want 0", idx.Len())
	}

	// the origin is indistinguishable from an unwritten slot
	idx.Put(3, 0, 0)
	if _, ok := idx.Get(3); ok {
		t.Error("(0, 0) should read as missing")
	}

	idx.Put(99, 13.4, 52.52)
	if err := idx.Sync(); err != nil {
		t.Errorf("Sync: %v", err)
	}
	if p, ok := idx.Get(99); !ok || p != proj.LonLatToMercator(13.4, 52.52) {
		t.Errorf("Get(99) = %v, %v", p, ok)
	}
}

func TestConcurrentPut(t *testing.T) {
	for name, idx := range testIndexes(t) {
		t.Run(name, func(t *testing.T) {
			defer idx.Close()

			var wg sync.WaitGroup
			for w := 0; w < 4; w++ {
				wg.Add(1)
				go func(w int) {
					defer wg.Done()
					for i := 0; i < 250; i++ {
						id := int64(w*250 + i + 1)
						idx.Put(id, float64(i)/100, float64(w)+1)
					}
				}(w)
			}
			wg.Wait()

			if n := idx.Len(); n != 1000 {
				t.Errorf("Len = %d, want 1000", n)
			}
			if _, ok := idx.Get(1000); !ok {
				t.Error("Get(1000) missing")
			}
		})
	}
}

func TestRemove(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nodes.idx")
	idx, err := NewMmapIndex(path, 10)
	if err != nil {
		t.Fatal(err)
	}
	if err := idx.Remove(); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	idx, err = NewMmapIndex(path, 10)
	if err != nil {
		t.Fatalf("recreate after Remove: %v", err)
	}
	idx.Close()
}
