package store

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/wegman-software/simpletile-go/internal/proj"
)

// ErrCoordinateRange is returned for points too far from their tile origin
// to be stored as int16
var ErrCoordinateRange = errors.New("coordinate out of int16 range")

// LocalCoord converts p into a coordinate relative to origin.
// A point landing exactly on the origin is moved to (1, 0) since (0, 0)
// separates ways.
func LocalCoord(p, origin proj.Point) (Coord, error) {
	d := p.Sub(origin)
	if d.X < math.MinInt16 || d.X > math.MaxInt16 || d.Y < math.MinInt16 || d.Y > math.MaxInt16 {
		return Coord{}, fmt.Errorf("%w: %v is %v from tile origin %v", ErrCoordinateRange, p, d, origin)
	}
	c := Coord{X: int16(d.X), Y: int16(d.Y)}
	if c.IsSeparator() {
		c.X = 1
	}
	return c, nil
}

// EncodeTile serializes ways, each followed by a separator.
// Separators inside a way are rejected.
func EncodeTile(ways [][]Coord) ([]byte, error) {
	n := 0
	for _, w := range ways {
		n += len(w) + 1
	}

	buf := make([]byte, 0, n*RecordLength)
	for i, w := range ways {
		for _, c := range w {
			if c.IsSeparator() {
				return nil, fmt.Errorf("way %d contains the separator coordinate", i)
			}
			buf = AppendCoord(buf, c)
		}
		buf = AppendCoord(buf, Separator)
	}
	return buf, nil
}

// Encode writes header, offset table and tile data to w.
// NTiles is set from len(tiles).
func Encode(w io.Writer, h *Header, tiles [][]byte) error {
	h.NTiles = uint64(len(tiles))

	bw := bufio.NewWriterSize(w, 1<<20)
	if err := h.Encode(bw); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	var off uint64
	entry := make([]byte, offsetEntryLength)
	for _, t := range tiles {
		binary.LittleEndian.PutUint64(entry, off)
		if _, err := bw.Write(entry); err != nil {
			return fmt.Errorf("failed to write offset table: %w", err)
		}
		off += uint64(len(t))
	}

	for i, t := range tiles {
		if _, err := bw.Write(t); err != nil {
			return fmt.Errorf("failed to write tile %d: %w", i, err)
		}
	}
	return bw.Flush()
}

// WriteFile writes a complete map file. The file is written under a
// temporary name and renamed into place, so readers never see a partial map.
func WriteFile(path string, h *Header, tiles [][]byte) (err error) {
	dir := filepath.Dir(path)
	f, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create map file: %w", err)
	}
	tmp := f.Name()
	defer func() {
		if err != nil {
			f.Close()
			os.Remove(tmp)
		}
	}()

	if err = Encode(f, h, tiles); err != nil {
		return err
	}
	if err = f.Sync(); err != nil {
		return fmt.Errorf("failed to sync map file: %w", err)
	}
	if err = f.Close(); err != nil {
		return fmt.Errorf("failed to close map file: %w", err)
	}
	if err = os.Chmod(tmp, 0644); err != nil {
		return fmt.Errorf("failed to set map file mode: %w", err)
	}
	if err = os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to move map file into place: %w", err)
	}
	return nil
}
