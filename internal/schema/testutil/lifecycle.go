package testutil

import (
	"context"
	"sync"

	"github.com/indexvault-go/internal/domain/index"
	"github.com/indexvault-go/internal/domain/lifecycle"
	"github.com/indexvault-go/internal/schema/ports"
)

var (
	_ ports.LifecycleRepository = (*MemoryLifecycleRepository)(nil)
	_ ports.Locker              = (*MemoryLocker)(nil)
)

// MemoryLifecycleRepository keeps lifecycle records in memory.
type MemoryLifecycleRepository struct {
	mu          sync.Mutex
	records     map[string]lifecycle.Record
	transitions []lifecycle.Transition
	runs        []lifecycle.Run

	SaveErr error
}

func NewMemoryLifecycleRepository() *MemoryLifecycleRepository {
	return &MemoryLifecycleRepository{records: make(map[string]lifecycle.Record)}
}

func (r *MemoryLifecycleRepository) GetRecord(ctx context.Context, serviceName string) (*lifecycle.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	record, ok := r.records[serviceName]
	if !ok {
		return &lifecycle.Record{ServiceName: serviceName, State: lifecycle.StateIdle}, nil
	}
	return &record, nil
}

func (r *MemoryLifecycleRepository) SaveTransition(ctx context.Context, record *lifecycle.Record, transition *lifecycle.Transition) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.SaveErr != nil {
		return r.SaveErr
	}
	transition.ID = uint(len(r.transitions) + 1)
	r.records[record.ServiceName] = *record
	r.transitions = append(r.transitions, *transition)
	return nil
}

func (r *MemoryLifecycleRepository) SaveRun(ctx context.Context, run *lifecycle.Run) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.SaveErr != nil {
		return r.SaveErr
	}
	r.runs = append(r.runs, *run)
	return nil
}

func (r *MemoryLifecycleRepository) ListTransitions(ctx context.Context, serviceName string, limit int) ([]lifecycle.Transition, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []lifecycle.Transition
	for i := len(r.transitions) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		if r.transitions[i].ServiceName == serviceName {
			out = append(out, r.transitions[i])
		}
	}
	return out, nil
}

func (r *MemoryLifecycleRepository) ListRuns(ctx context.Context, serviceName string, limit int) ([]lifecycle.Run, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []lifecycle.Run
	for i := len(r.runs) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		if r.runs[i].ServiceName == serviceName {
			out = append(out, r.runs[i])
		}
	}
	return out, nil
}

// MemoryLocker is a process-local Locker that fails fast when a name is held.
type MemoryLocker struct {
	mu   sync.Mutex
	held map[string]bool
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{held: make(map[string]bool)}
}

func (l *MemoryLocker) Acquire(ctx context.Context, name string) (ports.Lock, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[name] {
		return nil, index.ErrLocked
	}
	l.held[name] = true
	return &memoryLock{locker: l, name: name}, nil
}

// Held reports whether name is currently locked.
func (l *MemoryLocker) Held(name string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.held[name]
}

type memoryLock struct {
	locker *MemoryLocker
	name   string
}

func (m *memoryLock) Release(ctx context.Context) error {
	m.locker.mu.Lock()
	defer m.locker.mu.Unlock()
	delete(m.locker.held, m.name)
	return nil
}
