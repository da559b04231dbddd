package index

import (
	"strings"
	"time"
)

// SnapshotSuffix terminates every snapshot blob name.
const SnapshotSuffix = "-definition.json"

// Snapshot is the stored, schema-only copy of one index definition.
type Snapshot struct {
	IndexName  string     `json:"indexName"`
	Key        string     `json:"key"`
	CapturedAt time.Time  `json:"capturedAt"`
	Size       int64      `json:"size"`
	Definition Definition `json:"definition,omitempty"`
}

// SnapshotKey returns the blob name for an index.
func SnapshotKey(indexName string) string {
	return indexName + SnapshotSuffix
}

// IndexNameFromKey reverses SnapshotKey. ok is false for blobs that are not snapshots.
func IndexNameFromKey(key string) (name string, ok bool) {
	if !strings.HasSuffix(key, SnapshotSuffix) {
		return "", false
	}
	name = strings.TrimSuffix(key, SnapshotSuffix)
	if name == "" || strings.Contains(name, "/") {
		return "", false
	}
	return name, true
}
