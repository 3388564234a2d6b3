package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DataFile describes a single parquet file written for a table partition.
type DataFile struct {
	Path        string         `json:"path"`
	FileSize    int64          `json:"file_size_in_bytes"`
	RecordCount int64          `json:"record_count"`
	Partition   map[string]any `json:"partition"`
	Timestamp   time.Time      `json:"-"`
}

// ManifestEntry mirrors the information kept in an Iceberg manifest file.
type ManifestEntry struct {
	Status   int      `json:"status"`
	DataFile DataFile `json:"data_file"`
}

// Snapshot points a partition at the manifest of its latest run.
type Snapshot struct {
	SnapshotID  int64  `json:"snapshot-id"`
	TimestampMs int64  `json:"timestamp-ms"`
	RunID       string `json:"run-id"`
	Manifest    string `json:"manifest"`
	DataFile    string `json:"data-file"`
}

// TableMetadata lists the snapshots recorded by this process for a table.
type TableMetadata struct {
	FormatVersion     int        `json:"format-version"`
	TableUUID         string     `json:"table-uuid"`
	Location          string     `json:"location"`
	CurrentSnapshotID int64      `json:"current-snapshot-id"`
	Snapshots         []Snapshot `json:"snapshots"`
}

// Store persists metadata documents under a key.
type Store interface {
	Put(ctx context.Context, key string, body []byte) error
}

type tableState struct {
	uuid      string
	snapshots []Snapshot
}

// Generator records data files per table. Every file gets its own manifest,
// and the partition pointer is rewritten to the newest one, so a rerun of a
// partition supersedes earlier files without deleting them.
type Generator struct {
	store    Store
	location string
	prefix   string

	mu     sync.Mutex
	tables map[string]*tableState
}

// NewGenerator returns a generator writing under prefix. location is the
// URI root reported in table metadata, e.g. "s3://bucket".
func NewGenerator(store Store, location, prefix string) *Generator {
	return &Generator{
		store:    store,
		location: location,
		prefix:   prefix,
		tables:   make(map[string]*tableState),
	}
}

func (g *Generator) metadataDir(table string) string {
	return path.Join(g.prefix, table, "metadata")
}

// PartitionPointer is the key of the document naming the current data file
// of a table partition.
func (g *Generator) PartitionPointer(table, partition string) string {
	return path.Join(g.metadataDir(table), "partitions", partition+".json")
}

// AddFile records a newly written data file for the table partition.
func (g *Generator) AddFile(ctx context.Context, table, partition, runID string, df DataFile) error {
	snapID := df.Timestamp.UnixNano()
	manifestKey := path.Join(g.metadataDir(table), fmt.Sprintf("manifest-%d.json", snapID))

	b, err := json.Marshal([]ManifestEntry{{Status: 1, DataFile: df}})
	if err != nil {
		return err
	}
	if err := g.store.Put(ctx, manifestKey, b); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}

	snapshot := Snapshot{
		SnapshotID:  snapID,
		TimestampMs: df.Timestamp.UnixMilli(),
		RunID:       runID,
		Manifest:    manifestKey,
		DataFile:    df.Path,
	}
	b, err = json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return err
	}
	if err := g.store.Put(ctx, g.PartitionPointer(table, partition), b); err != nil {
		return fmt.Errorf("write partition pointer: %w", err)
	}

	g.mu.Lock()
	st, ok := g.tables[table]
	if !ok {
		st = &tableState{uuid: uuid.NewString()}
		g.tables[table] = st
	}
	st.snapshots = append(st.snapshots, snapshot)
	tm := TableMetadata{
		FormatVersion:     2,
		TableUUID:         st.uuid,
		Location:          g.location + "/" + path.Join(g.prefix, table),
		CurrentSnapshotID: snapID,
		Snapshots:         append([]Snapshot(nil), st.snapshots...),
	}
	g.mu.Unlock()

	b, err = json.MarshalIndent(tm, "", "  ")
	if err != nil {
		return err
	}
	return g.store.Put(ctx, path.Join(g.metadataDir(table), fmt.Sprintf("snapshots-%s.json", runID)), b)
}
