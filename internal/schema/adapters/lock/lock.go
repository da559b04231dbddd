package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/indexvault-go/internal/domain/index"
	"github.com/indexvault-go/internal/schema/ports"
	"github.com/indexvault-go/pkg/config"
	"github.com/indexvault-go/pkg/logger"
)

// Locker is a ports.Locker that owns a connection or handle.
type Locker interface {
	ports.Locker
	Close() error
}

// Options controls how long Acquire keeps trying.
type Options struct {
	// WaitTimeout of zero means a single attempt.
	WaitTimeout   time.Duration
	RetryInterval time.Duration
	TTL           time.Duration
}

// NewFromConfig builds the locker selected by cfg.Backend.
func NewFromConfig(cfg config.LockConfig, log logger.Logger) (Locker, error) {
	opts := Options{
		WaitTimeout:   cfg.WaitTimeout,
		RetryInterval: cfg.RetryInterval,
		TTL:           cfg.TTL,
	}

	switch cfg.Backend {
	case "file":
		return NewFileLocker(cfg.Path, opts, log), nil
	case "redis":
		return NewRedisLockerFromConfig(cfg, opts, log)
	case "etcd":
		return NewEtcdLocker(cfg.EtcdEndpoints, opts, log)
	case "none", "":
		return NopLocker{}, nil
	default:
		return nil, fmt.Errorf("unknown lock backend %q", cfg.Backend)
	}
}

// NopLocker grants every lock. It is meant for single-operator setups.
type NopLocker struct{}

func (NopLocker) Acquire(ctx context.Context, name string) (ports.Lock, error) {
	return nopLock{}, nil
}

func (NopLocker) Close() error { return nil }

type nopLock struct{}

func (nopLock) Release(ctx context.Context) error { return nil }

// poll calls try until it succeeds, fails, or the wait budget runs out.
func poll(ctx context.Context, opts Options, try func(ctx context.Context) (bool, error)) error {
	interval := opts.RetryInterval
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}

	var deadline time.Time
	if opts.WaitTimeout > 0 {
		deadline = time.Now().Add(opts.WaitTimeout)
	}

	for {
		ok, err := try(ctx)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if deadline.IsZero() || time.Now().Add(interval).After(deadline) {
			return index.ErrLocked
		}

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
