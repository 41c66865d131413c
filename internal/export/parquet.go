package export

import (
	"errors"
	"os"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/memory"
	"github.com/apache/arrow/go/v14/parquet"
	"github.com/apache/arrow/go/v14/parquet/compress"
	"github.com/apache/arrow/go/v14/parquet/pqarrow"

	"github.com/wegman-software/simpletile-go/internal/proj"
	"github.com/wegman-software/simpletile-go/internal/wkb"
)

// ParquetSchema is the layout of exported way files
var ParquetSchema = arrow.NewSchema([]arrow.Field{
	{Name: "tile_id", Type: arrow.PrimitiveTypes.Int64, Nullable: false},
	{Name: "way_id", Type: arrow.PrimitiveTypes.Int32, Nullable: false},
	{Name: "num_points", Type: arrow.PrimitiveTypes.Int32, Nullable: false},
	{Name: "geom_wkb", Type: arrow.BinaryTypes.Binary, Nullable: false},
}, nil)

// ParquetWriter writes rows with ISO WKB geometry to a Parquet file
type ParquetWriter struct {
	file        *os.File
	writer      *pqarrow.FileWriter
	builder     *array.RecordBuilder
	transformer *proj.Transformer
	batchSize   int
	count       int
	written     int64
}

// NewParquetWriter creates a new Parquet writer. Geometries are written in
// the projection of t.
func NewParquetWriter(path string, t *proj.Transformer, batchSize int) (*ParquetWriter, error) {
	if batchSize < 1 {
		batchSize = 10000
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}

	writerProps := parquet.NewWriterProperties(
		parquet.WithCompression(compress.Codecs.Zstd),
		parquet.WithDictionaryDefault(false),
	)

	writer, err := pqarrow.NewFileWriter(ParquetSchema, f, writerProps, pqarrow.DefaultWriterProps())
	if err != nil {
		f.Close()
		return nil, err
	}

	return &ParquetWriter{
		file:        f,
		writer:      writer,
		builder:     array.NewRecordBuilder(memory.DefaultAllocator, ParquetSchema),
		transformer: t,
		batchSize:   batchSize,
	}, nil
}

// Write appends one row
func (w *ParquetWriter) Write(r Row) error {
	geom, err := wkb.Marshal(r.Points, w.transformer)
	if err != nil {
		return err
	}

	w.builder.Field(0).(*array.Int64Builder).Append(r.TileID)
	w.builder.Field(1).(*array.Int32Builder).Append(int32(r.WayID))
	w.builder.Field(2).(*array.Int32Builder).Append(int32(len(r.Points)))
	w.builder.Field(3).(*array.BinaryBuilder).Append(geom)

	w.count++
	if w.count >= w.batchSize {
		return w.flush()
	}
	return nil
}

// Written returns the number of rows written so far
func (w *ParquetWriter) Written() int64 {
	return w.written + int64(w.count)
}

func (w *ParquetWriter) flush() error {
	if w.count == 0 {
		return nil
	}
	rec := w.builder.NewRecord()
	defer rec.Release()
	err := w.writer.Write(rec)
	w.written += int64(w.count)
	w.count = 0
	return err
}

// Close flushes pending rows and closes the file
func (w *ParquetWriter) Close() error {
	defer w.builder.Release()
	if err := w.flush(); err != nil {
		w.writer.Close()
		return err
	}
	if err := w.writer.Close(); err != nil {
		w.file.Close()
		return err
	}
	// the arrow writer may already have closed the file
	if err := w.file.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
		return err
	}
	return nil
}
