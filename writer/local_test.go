package writer

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"gasflow/models"
)

func TestLocalEmitterWritesParquetFile(t *testing.T) {
	cfg := testS3Config()
	cfg.Storage.Local.Dir = t.TempDir()
	e := NewLocalEmitter(cfg)

	b := Batch{Asset: "entsog_flows_daily", Partition: "2024-01", RunID: "run-1", Table: sampleTable()}
	if err := e.Emit(context.Background(), b); err != nil {
		t.Fatalf("emit: %v", err)
	}

	path := filepath.Join(cfg.Storage.Local.Dir, "gasflow", "entsog_flows_daily", "year=2024", "month=01", "entsog_flows_daily_run-1.parquet")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	if !bytes.HasPrefix(data, []byte("PAR1")) {
		t.Fatalf("output is not a parquet file")
	}
}

func TestLocalEmitterSkipsEmptyTable(t *testing.T) {
	cfg := testS3Config()
	cfg.Storage.Local.Dir = t.TempDir()
	e := NewLocalEmitter(cfg)

	b := Batch{Asset: "entsog_flows_daily", Partition: "2024-01", RunID: "run-1", Table: models.Table{
		KeyColumns:   []string{models.KeyTimestamp},
		ValueColumns: []string{"value"},
	}}
	if err := e.Emit(context.Background(), b); err != nil {
		t.Fatalf("emit: %v", err)
	}
	entries, err := os.ReadDir(cfg.Storage.Local.Dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected nothing written, got %d entries", len(entries))
	}
}
