package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/indexvault-go/internal/schema/ports"
	"github.com/indexvault-go/pkg/logger"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/client/v3/concurrency"
)

const etcdKeyPrefix = "/indexvault/locks/"

// EtcdLocker uses an etcd mutex bound to a leased session. The lease expires
// with the session when the holder dies.
type EtcdLocker struct {
	client *clientv3.Client
	opts   Options
	logger logger.Logger
}

func NewEtcdLocker(endpoints []string, opts Options, log logger.Logger) (*EtcdLocker, error) {
	client, err := clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: 5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create etcd client: %w", err)
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &EtcdLocker{client: client, opts: opts, logger: log}, nil
}

func (l *EtcdLocker) Acquire(ctx context.Context, name string) (ports.Lock, error) {
	ttl := int(l.opts.TTL.Seconds())
	if ttl <= 0 {
		ttl = 60
	}

	session, err := concurrency.NewSession(l.client, concurrency.WithTTL(ttl), concurrency.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to create etcd session: %w", err)
	}

	key := etcdKeyPrefix + name
	mutex := concurrency.NewMutex(session, key)
	err = poll(ctx, l.opts, func(ctx context.Context) (bool, error) {
		err := mutex.TryLock(ctx)
		if errors.Is(err, concurrency.ErrLocked) {
			return false, nil
		}
		if err != nil {
			return false, fmt.Errorf("etcd lock error: %w", err)
		}
		return true, nil
	})
	if err != nil {
		session.Close()
		return nil, err
	}

	l.logger.Debug("Acquired etcd lock", "key", key)
	return &etcdLock{session: session, mutex: mutex}, nil
}

func (l *EtcdLocker) Close() error {
	return l.client.Close()
}

type etcdLock struct {
	session *concurrency.Session
	mutex   *concurrency.Mutex
}

func (e *etcdLock) Release(ctx context.Context) error {
	defer e.session.Close()
	if err := e.mutex.Unlock(ctx); err != nil {
		return fmt.Errorf("failed to release etcd lock: %w", err)
	}
	return nil
}
