package batch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/indexvault-go/internal/domain/index"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunner_Sequential(t *testing.T) {
	runner := NewRunner(Config{Workers: 1}, nil, nil)

	var seen []string
	report := runner.Run(context.Background(), index.OperationBackup, []string{"a", "b", "c"}, func(ctx context.Context, name string) error {
		seen = append(seen, name)
		if name == "b" {
			return errors.New("boom")
		}
		return nil
	})

	assert.Equal(t, []string{"a", "b", "c"}, seen)
	assert.Equal(t, []string{"a", "c"}, report.Succeeded)
	require.Len(t, report.Failed, 1)
	assert.Equal(t, "b", report.Failed[0].Name)
	assert.Equal(t, "boom", report.Failed[0].Reason)
	assert.Equal(t, index.OperationBackup, report.Operation)
	assert.NotEmpty(t, report.RunID)
	assert.False(t, report.FinishedAt.IsZero())
}

func TestRunner_EmptyBatch(t *testing.T) {
	runner := NewRunner(Config{Workers: 4}, nil, nil)

	report := runner.Run(context.Background(), index.OperationRestore, nil, func(ctx context.Context, name string) error {
		t.Fatal("must not be called")
		return nil
	})

	assert.Zero(t, report.Total())
	assert.False(t, report.HasFailures())
}

func TestRunner_BoundedConcurrencyKeepsOrder(t *testing.T) {
	runner := NewRunner(Config{Workers: 3}, nil, nil)

	var active, peak int32
	names := []string{"i0", "i1", "i2", "i3", "i4", "i5", "i6", "i7", "i8", "i9"}

	report := runner.Run(context.Background(), index.OperationBackup, names, func(ctx context.Context, name string) error {
		n := atomic.AddInt32(&active, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt32(&active, -1)
		return nil
	})

	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(3))
	assert.Equal(t, names, report.Succeeded)
}

func TestRunner_CancellationBetweenItems(t *testing.T) {
	runner := NewRunner(Config{Workers: 1}, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var itemCtxErr error
	report := runner.Run(ctx, index.OperationRestore, []string{"a", "b", "c", "d"}, func(itemCtx context.Context, name string) error {
		if name == "b" {
			cancel()
			// The running item keeps a live context.
			itemCtxErr = itemCtx.Err()
		}
		return nil
	})

	assert.NoError(t, itemCtxErr)
	assert.Equal(t, []string{"a", "b"}, report.Succeeded)
	assert.Equal(t, []string{"c", "d"}, report.FailedNames())
	for _, f := range report.Failed {
		assert.ErrorIs(t, f.Err, context.Canceled)
	}
}

func TestRunner_ItemTimeout(t *testing.T) {
	runner := NewRunner(Config{Workers: 1, ItemTimeout: 10 * time.Millisecond}, nil, nil)

	report := runner.Run(context.Background(), index.OperationBackup, []string{"slow", "fast"}, func(ctx context.Context, name string) error {
		if name == "slow" {
			<-ctx.Done()
			return ctx.Err()
		}
		return nil
	})

	assert.Equal(t, []string{"fast"}, report.Succeeded)
	require.Len(t, report.Failed, 1)
	assert.ErrorIs(t, report.Failed[0].Err, context.DeadlineExceeded)
}

func TestRunner_RunIDInItemContext(t *testing.T) {
	runner := NewRunner(Config{Workers: 2}, nil, nil)

	var mu sync.Mutex
	ids := map[string]bool{}
	report := runner.Run(context.Background(), index.OperationVerify, []string{"a", "b"}, func(ctx context.Context, name string) error {
		mu.Lock()
		ids[RunIDFromContext(ctx)] = true
		mu.Unlock()
		return nil
	})

	assert.Equal(t, map[string]bool{report.RunID: true}, ids)
	assert.Empty(t, RunIDFromContext(context.Background()))
}

func TestUnique(t *testing.T) {
	assert.Equal(t, []string{"b", "a", "c"}, Unique([]string{"b", "a", "b", "c", "a"}))
	assert.Empty(t, Unique(nil))
}
