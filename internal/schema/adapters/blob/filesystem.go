package blob

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/indexvault-go/internal/domain/index"
	"github.com/indexvault-go/internal/schema/ports"
)

var _ ports.BlobStore = (*FilesystemStore)(nil)

// FilesystemStore keeps each blob as a file in one directory. Writes go through
// a temporary file and a rename, so readers never see a partial blob.
type FilesystemStore struct {
	dir string
}

// NewFilesystemStore stores blobs under root/container/prefix.
func NewFilesystemStore(root, container, prefix string) *FilesystemStore {
	return &FilesystemStore{dir: filepath.Join(root, container, filepath.FromSlash(prefix))}
}

// Dir returns the directory holding the blobs.
func (s *FilesystemStore) Dir() string {
	return s.dir
}

// EnsureContainer creates the blob directory.
func (s *FilesystemStore) EnsureContainer(ctx context.Context) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", s.dir, err)
	}
	return nil
}

func (s *FilesystemStore) Upload(ctx context.Context, key string, data []byte) error {
	path, err := s.path(key)
	if err != nil {
		return err
	}
	if err := s.EnsureContainer(ctx); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", key, err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("failed to set permissions on %s: %w", key, err)
	}
	return os.Rename(tmp.Name(), path)
}

func (s *FilesystemStore) Download(ctx context.Context, key string) ([]byte, error) {
	path, err := s.path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, &index.NotFoundError{Resource: "blob", Name: key}
	}
	return data, err
}

func (s *FilesystemStore) Delete(ctx context.Context, key string) error {
	path, err := s.path(key)
	if err != nil {
		return err
	}
	err = os.Remove(path)
	if errors.Is(err, fs.ErrNotExist) {
		return &index.NotFoundError{Resource: "blob", Name: key}
	}
	return err
}

// List returns every blob in the directory. A missing directory is an empty store.
func (s *FilesystemStore) List(ctx context.Context) ([]ports.ObjectInfo, error) {
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	objects := make([]ports.ObjectInfo, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			// Removed between ReadDir and Info.
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, err
		}
		objects = append(objects, ports.ObjectInfo{
			Key:          entry.Name(),
			Size:         info.Size(),
			LastModified: info.ModTime().UTC(),
		})
	}
	return objects, nil
}

func (s *FilesystemStore) Exists(ctx context.Context, key string) (bool, error) {
	path, err := s.path(key)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return err == nil, err
}

func (s *FilesystemStore) path(key string) (string, error) {
	if key == "" || key != filepath.Base(key) || strings.HasPrefix(key, ".") {
		return "", fmt.Errorf("invalid blob key %q", key)
	}
	return filepath.Join(s.dir, key), nil
}
