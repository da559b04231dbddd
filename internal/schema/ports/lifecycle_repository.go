package ports

import (
	"context"

	"github.com/indexvault-go/internal/domain/lifecycle"
)

// LifecycleRepository persists lifecycle state, history and batch runs. List
// methods return the newest entries first.
type LifecycleRepository interface {
	// GetRecord returns the record of a service, or an idle record when none exists.
	GetRecord(ctx context.Context, serviceName string) (*lifecycle.Record, error)
	// SaveTransition stores the updated record and its history entry atomically.
	SaveTransition(ctx context.Context, record *lifecycle.Record, transition *lifecycle.Transition) error
	SaveRun(ctx context.Context, run *lifecycle.Run) error
	ListTransitions(ctx context.Context, serviceName string, limit int) ([]lifecycle.Transition, error)
	ListRuns(ctx context.Context, serviceName string, limit int) ([]lifecycle.Run, error)
}
