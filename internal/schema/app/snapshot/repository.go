package snapshot

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/indexvault-go/internal/domain/index"
	"github.com/indexvault-go/internal/schema/ports"
	"github.com/indexvault-go/pkg/logger"
)

// Repository maps index definitions onto blobs named <index>-definition.json.
type Repository struct {
	store  ports.BlobStore
	logger logger.Logger
}

func NewRepository(store ports.BlobStore, log logger.Logger) *Repository {
	if log == nil {
		log = logger.NewNop()
	}
	return &Repository{
		store:  store,
		logger: log,
	}
}

// Save writes def under the key derived from its name, replacing any previous
// snapshot of the same index.
func (r *Repository) Save(ctx context.Context, def index.Definition) (*index.Snapshot, error) {
	name := def.Name()
	if name == "" {
		return nil, &index.SerializationError{Key: "", Err: errors.New("definition has no name")}
	}
	key := index.SnapshotKey(name)
	if got, ok := index.IndexNameFromKey(key); !ok || got != name {
		return nil, &index.SerializationError{Key: key, Err: fmt.Errorf("index name %q cannot be used as a blob name", name)}
	}

	data, err := def.Encode()
	if err != nil {
		return nil, &index.SerializationError{Key: key, Err: err}
	}

	if err := r.store.Upload(ctx, key, data); err != nil {
		return nil, &index.StorageError{Op: "upload", Key: key, Err: err}
	}

	r.logger.Debug("Snapshot saved", "index", name, "key", key, "bytes", len(data))

	return &index.Snapshot{
		IndexName:  name,
		Key:        key,
		Size:       int64(len(data)),
		Definition: def,
	}, nil
}

// Load reads the snapshot of one index. A missing snapshot matches
// index.ErrNotFound; content that is not a definition of that index yields a
// *index.SerializationError.
func (r *Repository) Load(ctx context.Context, name string) (*index.Snapshot, error) {
	key := index.SnapshotKey(name)

	data, err := r.store.Download(ctx, key)
	if err != nil {
		if errors.Is(err, index.ErrNotFound) {
			return nil, &index.NotFoundError{Resource: "snapshot", Name: name}
		}
		return nil, &index.StorageError{Op: "download", Key: key, Err: err}
	}

	def, err := index.Decode(data)
	if err != nil {
		return nil, &index.SerializationError{Key: key, Err: err}
	}

	switch stored := def.Name(); {
	case stored == "":
		return nil, &index.SerializationError{Key: key, Err: errors.New("definition has no name")}
	case stored != name:
		return nil, &index.SerializationError{Key: key, Err: fmt.Errorf("definition is named %q", stored)}
	}

	return &index.Snapshot{
		IndexName:  name,
		Key:        key,
		Size:       int64(len(data)),
		Definition: def,
	}, nil
}

// List returns metadata for every snapshot in the store, sorted by index name.
// Blobs that do not follow the snapshot naming scheme are ignored.
func (r *Repository) List(ctx context.Context) ([]index.Snapshot, error) {
	objects, err := r.store.List(ctx)
	if err != nil {
		return nil, &index.StorageError{Op: "list", Err: err}
	}

	snapshots := make([]index.Snapshot, 0, len(objects))
	for _, obj := range objects {
		name, ok := index.IndexNameFromKey(obj.Key)
		if !ok {
			r.logger.Debug("Ignoring foreign blob", "key", obj.Key)
			continue
		}
		snapshots = append(snapshots, index.Snapshot{
			IndexName:  name,
			Key:        obj.Key,
			CapturedAt: obj.LastModified,
			Size:       obj.Size,
		})
	}

	sort.Slice(snapshots, func(i, j int) bool {
		return snapshots[i].IndexName < snapshots[j].IndexName
	})
	return snapshots, nil
}

// Names returns the index names that have a snapshot, sorted.
func (r *Repository) Names(ctx context.Context) ([]string, error) {
	snapshots, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(snapshots))
	for i, s := range snapshots {
		names[i] = s.IndexName
	}
	return names, nil
}

// Keys returns the blob keys of every snapshot, sorted by index name.
func (r *Repository) Keys(ctx context.Context) ([]string, error) {
	snapshots, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	keys := make([]string, len(snapshots))
	for i, s := range snapshots {
		keys[i] = s.Key
	}
	return keys, nil
}

// Delete removes the snapshot of one index. It is only ever called on explicit
// operator request.
func (r *Repository) Delete(ctx context.Context, name string) error {
	key := index.SnapshotKey(name)
	if err := r.store.Delete(ctx, key); err != nil {
		if errors.Is(err, index.ErrNotFound) {
			return &index.NotFoundError{Resource: "snapshot", Name: name}
		}
		return &index.StorageError{Op: "delete", Key: key, Err: err}
	}
	r.logger.Info("Snapshot deleted", "index", name, "key", key)
	return nil
}
