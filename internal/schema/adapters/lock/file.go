package lock

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"
	"github.com/indexvault-go/internal/schema/ports"
	"github.com/indexvault-go/pkg/logger"
)

// FileLocker takes an advisory lock on <dir>/<name>.lock. It only excludes
// processes on the same host.
type FileLocker struct {
	dir    string
	opts   Options
	logger logger.Logger
}

func NewFileLocker(dir string, opts Options, log logger.Logger) *FileLocker {
	if dir == "" {
		dir = os.TempDir()
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &FileLocker{dir: dir, opts: opts, logger: log}
}

// Path returns the lock file used for name.
func (l *FileLocker) Path(name string) string {
	safe := strings.NewReplacer("/", "_", string(filepath.Separator), "_").Replace(name)
	return filepath.Join(l.dir, safe+".lock")
}

func (l *FileLocker) Acquire(ctx context.Context, name string) (ports.Lock, error) {
	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}

	path := l.Path(name)
	fl := flock.New(path)
	err := poll(ctx, l.opts, func(ctx context.Context) (bool, error) {
		locked, err := fl.TryLock()
		if err != nil {
			return false, fmt.Errorf("cannot acquire lock %s: %w", path, err)
		}
		return locked, nil
	})
	if err != nil {
		return nil, err
	}

	l.logger.Debug("Acquired file lock", "path", path)
	return &fileLock{flock: fl, logger: l.logger}, nil
}

func (l *FileLocker) Close() error { return nil }

type fileLock struct {
	flock  *flock.Flock
	logger logger.Logger
}

func (f *fileLock) Release(ctx context.Context) error {
	if err := f.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to release lock %s: %w", f.flock.Path(), err)
	}
	f.logger.Debug("Released file lock", "path", f.flock.Path())
	return nil
}
