package store

import (
	"fmt"
	"io"
	"os"

	"github.com/edsrzf/mmap-go"
)

// Source gives random access to the bytes of a map file
type Source interface {
	io.ReaderAt
	io.Closer
	Size() int64
}

// FileSource opens the file for every read and closes it again,
// so no descriptor is held between calls
type FileSource struct {
	path string
	size int64
}

// NewFileSource stats path and returns a source reading from it
func NewFileSource(path string) (*FileSource, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat map file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}
	return &FileSource{path: path, size: info.Size()}, nil
}

// ReadAt opens the file, reads len(p) bytes at off and closes it
func (s *FileSource) ReadAt(p []byte, off int64) (int, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return 0, fmt.Errorf("failed to open map file: %w", err)
	}
	defer f.Close()
	return f.ReadAt(p, off)
}

// Size returns the file size observed when the source was created
func (s *FileSource) Size() int64 {
	return s.size
}

// Close is a no-op, FileSource holds no resources
func (s *FileSource) Close() error {
	return nil
}

// MappedSource maps the whole file read-only until Close
type MappedSource struct {
	file *os.File
	data mmap.MMap
}

// NewMappedSource memory-maps the file at path
func NewMappedSource(path string) (*MappedSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open map file: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to stat map file: %w", err)
	}

	// mapping an empty file fails on most platforms
	if info.Size() == 0 {
		return &MappedSource{file: f}, nil
	}

	data, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to mmap map file: %w", err)
	}
	return &MappedSource{file: f, data: data}, nil
}

// ReadAt copies from the mapping
func (s *MappedSource) ReadAt(p []byte, off int64) (int, error) {
	return readAtBytes(s.data, p, off)
}

// Size returns the mapped length
func (s *MappedSource) Size() int64 {
	return int64(len(s.data))
}

// Close unmaps the file and closes it
func (s *MappedSource) Close() error {
	var err error
	if s.data != nil {
		err = s.data.Unmap()
		s.data = nil
	}
	if cerr := s.file.Close(); err == nil {
		err = cerr
	}
	return err
}

// BytesSource serves a map file held in memory
type BytesSource []byte

// ReadAt copies from the slice
func (s BytesSource) ReadAt(p []byte, off int64) (int, error) {
	return readAtBytes(s, p, off)
}

// Size returns len(s)
func (s BytesSource) Size() int64 {
	return int64(len(s))
}

// Close is a no-op
func (s BytesSource) Close() error {
	return nil
}

func readAtBytes(data, p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("negative offset %d", off)
	}
	if off >= int64(len(data)) {
		if len(p) == 0 {
			return 0, nil
		}
		return 0, io.EOF
	}
	n := copy(p, data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}
