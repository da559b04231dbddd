package ports

import (
	"context"
)

// Lock is an exclusive lease held by one lifecycle command.
type Lock interface {
	Release(ctx context.Context) error
}

// Locker acquires named locks. Acquire returns index.ErrLocked when the lock is
// held elsewhere and could not be obtained in time.
type Locker interface {
	Acquire(ctx context.Context, name string) (Lock, error)
}
