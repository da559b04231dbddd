package ports

import (
	"context"
	"time"
)

// ObjectInfo describes one stored blob.
type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// BlobStore is durable key/value storage with no knowledge of what it holds.
// Download of a missing key returns an error matching index.ErrNotFound.
type BlobStore interface {
	Upload(ctx context.Context, key string, data []byte) error
	Download(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	List(ctx context.Context) ([]ObjectInfo, error)
	Exists(ctx context.Context, key string) (bool, error)
}
