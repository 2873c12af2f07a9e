// Package metadata maintains Iceberg-style table metadata for the parquet
// archive so query engines can discover the files without listing buckets.
package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"sync"
	"time"

	"github.com/google/uuid"

	"optionflow/internal/objectstore"
)

// DataFile describes a single parquet file written by the archiver.
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

// Snapshot holds minimal information required for time-travel queries.
type Snapshot struct {
	SnapshotID  int64  `json:"snapshot-id"`
	TimestampMs int64  `json:"timestamp-ms"`
	Manifest    string `json:"manifest-list"`
}

// TableMetadata represents the high level Iceberg table metadata file.
type TableMetadata struct {
	FormatVersion     int               `json:"format-version"`
	TableUUID         string            `json:"table-uuid"`
	Location          string            `json:"location"`
	CurrentSnapshotID int64             `json:"current-snapshot-id"`
	Snapshots         []Snapshot        `json:"snapshots"`
	Properties        map[string]string `json:"properties,omitempty"`
}

const statusAdded = 1

// Table appends one snapshot per data file and rewrites metadata.json after
// every addition. It is safe for concurrent use.
type Table struct {
	store  objectstore.Store
	prefix string
	name   string
	uuid   string

	mu        sync.Mutex
	snapshots []Snapshot
}

// NewTable keeps metadata for the table rooted at prefix in store.
func NewTable(store objectstore.Store, prefix, name string) *Table {
	return &Table{
		store:  store,
		prefix: prefix,
		name:   name,
		uuid:   uuid.NewString(),
	}
}

// AddFile writes a manifest for df and a new metadata.json pointing at it.
func (t *Table) AddFile(ctx context.Context, df DataFile) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	snapID := df.Timestamp.UnixNano()
	if n := len(t.snapshots); n > 0 && snapID <= t.snapshots[n-1].SnapshotID {
		snapID = t.snapshots[n-1].SnapshotID + 1
	}

	manifestFile := fmt.Sprintf("manifest-%d.json", snapID)
	b, err := json.Marshal([]ManifestEntry{{Status: statusAdded, DataFile: df}})
	if err != nil {
		return err
	}
	if err := t.store.Put(ctx, t.key(manifestFile), b, map[string]string{"content-type": "application/json"}); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}

	t.snapshots = append(t.snapshots, Snapshot{
		SnapshotID:  snapID,
		TimestampMs: df.Timestamp.UnixMilli(),
		Manifest:    manifestFile,
	})

	meta := t.metadataLocked()
	b, err = json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return err
	}
	if err := t.store.Put(ctx, t.key("metadata.json"), b, map[string]string{"content-type": "application/json"}); err != nil {
		return fmt.Errorf("write table metadata: %w", err)
	}
	return nil
}

// Metadata returns the current table metadata.
func (t *Table) Metadata() TableMetadata {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.metadataLocked()
}

// MetadataLocation is where metadata.json lives.
func (t *Table) MetadataLocation() string {
	return t.store.Location(t.key("metadata.json"))
}

func (t *Table) metadataLocked() TableMetadata {
	tm := TableMetadata{
		FormatVersion: 2,
		TableUUID:     t.uuid,
		Location:      t.store.Location(t.prefix),
		Snapshots:     append([]Snapshot(nil), t.snapshots...),
		Properties:    map[string]string{"name": t.name, "write.format.default": "parquet"},
	}
	if n := len(t.snapshots); n > 0 {
		tm.CurrentSnapshotID = t.snapshots[n-1].SnapshotID
	}
	return tm
}

func (t *Table) key(file string) string {
	return path.Join(t.prefix, "metadata", file)
}
