package writer

import (
	"bytes"
	"fmt"

	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/source"
	"github.com/xitongsys/parquet-go/writer"

	appconfig "gasflow/config"
	"gasflow/models"
)

// ParquetRecord is one cell of a table in long layout: the row key, the value
// column name and the value. Key fields the table does not use stay empty.
type ParquetRecord struct {
	Timestamp int64    `parquet:"name=timestamp, type=INT64, convertedtype=TIMESTAMP_MILLIS"`
	PointID   string   `parquet:"name=point_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	PointType string   `parquet:"name=point_type, type=BYTE_ARRAY, convertedtype=UTF8"`
	Column    string   `parquet:"name=column, type=BYTE_ARRAY, convertedtype=UTF8"`
	Value     *float64 `parquet:"name=value, type=DOUBLE, repetitiontype=OPTIONAL"`
}

// memoryFileWriter implements source.ParquetFile on top of a buffer.
type memoryFileWriter struct {
	buffer *bytes.Buffer
}

func newMemoryFileWriter() *memoryFileWriter {
	return &memoryFileWriter{buffer: &bytes.Buffer{}}
}

func (mfw *memoryFileWriter) Create(name string) (source.ParquetFile, error) {
	return mfw, nil
}

func (mfw *memoryFileWriter) Open(name string) (source.ParquetFile, error) {
	return mfw, nil
}

// Seek only reports the current size; the writer never seeks backwards.
func (mfw *memoryFileWriter) Seek(offset int64, whence int) (int64, error) {
	return int64(mfw.buffer.Len()), nil
}

func (mfw *memoryFileWriter) Read(b []byte) (int, error) {
	return mfw.buffer.Read(b)
}

func (mfw *memoryFileWriter) Write(b []byte) (int, error) {
	return mfw.buffer.Write(b)
}

func (mfw *memoryFileWriter) Close() error {
	return nil
}

func (mfw *memoryFileWriter) Bytes() []byte {
	return mfw.buffer.Bytes()
}

func compressionCodec(name string) parquet.CompressionCodec {
	switch name {
	case "snappy":
		return parquet.CompressionCodec_SNAPPY
	case "gzip":
		return parquet.CompressionCodec_GZIP
	default:
		return parquet.CompressionCodec_UNCOMPRESSED
	}
}

// ParquetRecords flattens a table into long-layout records, one per row and
// value column, in row order.
func ParquetRecords(t models.Table) []ParquetRecord {
	out := make([]ParquetRecord, 0, len(t.Rows)*len(t.ValueColumns))
	for _, r := range t.Rows {
		for i, col := range t.ValueColumns {
			var v *float64
			if i < len(r.Values) {
				v = r.Values[i]
			}
			out = append(out, ParquetRecord{
				Timestamp: r.Timestamp.UTC().UnixMilli(),
				PointID:   r.PointID,
				PointType: string(r.PointType),
				Column:    col,
				Value:     v,
			})
		}
	}
	return out
}

// EncodeParquet renders the table as an in-memory parquet file.
func EncodeParquet(t models.Table, cfg appconfig.ParquetConfig) ([]byte, error) {
	fw := newMemoryFileWriter()
	if err := writeParquet(fw, t, cfg); err != nil {
		return nil, err
	}
	return fw.Bytes(), nil
}

// writeParquet writes the table's long-layout records to fw and finalizes
// the file. fw is not closed.
func writeParquet(fw source.ParquetFile, t models.Table, cfg appconfig.ParquetConfig) error {
	np := cfg.Parallelism
	if np < 1 {
		np = 1
	}
	pw, err := writer.NewParquetWriter(fw, new(ParquetRecord), np)
	if err != nil {
		return fmt.Errorf("failed to create parquet writer: %w", err)
	}
	pw.CompressionType = compressionCodec(cfg.Compression)
	if cfg.RowGroupSize > 0 {
		pw.RowGroupSize = cfg.RowGroupSize
	}

	for _, rec := range ParquetRecords(t) {
		if err := pw.Write(rec); err != nil {
			pw.WriteStop()
			return fmt.Errorf("failed to write parquet record: %w", err)
		}
	}

	if err := pw.WriteStop(); err != nil {
		return fmt.Errorf("failed to finalize parquet writing: %w", err)
	}
	return nil
}
