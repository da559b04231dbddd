// Package testutil provides in-memory collaborators for orchestrator and CLI tests.
package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/indexvault-go/internal/domain/index"
	"github.com/indexvault-go/internal/schema/ports"
)

var _ ports.BlobStore = (*MemoryBlobStore)(nil)

// MemoryBlobStore is a BlobStore backed by a map. The exported error fields let
// tests inject failures per key.
type MemoryBlobStore struct {
	mu      sync.RWMutex
	objects map[string]memoryObject

	ListErr     error
	UploadErr   map[string]error
	DownloadErr map[string]error
}

type memoryObject struct {
	data     []byte
	modified time.Time
}

func NewMemoryBlobStore() *MemoryBlobStore {
	return &MemoryBlobStore{
		objects:     make(map[string]memoryObject),
		UploadErr:   make(map[string]error),
		DownloadErr: make(map[string]error),
	}
}

func (s *MemoryBlobStore) Upload(ctx context.Context, key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.UploadErr[key]; err != nil {
		return err
	}
	s.objects[key] = memoryObject{
		data:     append([]byte(nil), data...),
		modified: time.Now().UTC(),
	}
	return nil
}

func (s *MemoryBlobStore) Download(ctx context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.DownloadErr[key]; err != nil {
		return nil, err
	}
	obj, ok := s.objects[key]
	if !ok {
		return nil, &index.NotFoundError{Resource: "blob", Name: key}
	}
	return append([]byte(nil), obj.data...), nil
}

func (s *MemoryBlobStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.objects[key]; !ok {
		return &index.NotFoundError{Resource: "blob", Name: key}
	}
	delete(s.objects, key)
	return nil
}

func (s *MemoryBlobStore) List(ctx context.Context) ([]ports.ObjectInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.ListErr != nil {
		return nil, s.ListErr
	}
	infos := make([]ports.ObjectInfo, 0, len(s.objects))
	for key, obj := range s.objects {
		infos = append(infos, ports.ObjectInfo{
			Key:          key,
			Size:         int64(len(obj.data)),
			LastModified: obj.modified,
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Key < infos[j].Key })
	return infos, nil
}

func (s *MemoryBlobStore) Exists(ctx context.Context, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.objects[key]
	return ok, nil
}

// Put stores raw bytes, bypassing error injection.
func (s *MemoryBlobStore) Put(key string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = memoryObject{data: append([]byte(nil), data...), modified: time.Now().UTC()}
}

// Keys returns the stored keys in sorted order.
func (s *MemoryBlobStore) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.objects))
	for key := range s.objects {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
