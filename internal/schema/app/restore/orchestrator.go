// Package restore recreates indexes on a service from their stored snapshots.
package restore

import (
	"context"
	"fmt"

	"github.com/indexvault-go/internal/domain/index"
	"github.com/indexvault-go/internal/schema/app/batch"
	"github.com/indexvault-go/internal/schema/app/sanitizer"
	"github.com/indexvault-go/internal/schema/app/snapshot"
	"github.com/indexvault-go/internal/schema/ports"
	"github.com/indexvault-go/pkg/logger"
)

// Orchestrator runs the restore phase against one service.
type Orchestrator struct {
	gateway ports.ServiceGateway
	repo    *snapshot.Repository
	runner  *batch.Runner
	logger  logger.Logger
}

func NewOrchestrator(gateway ports.ServiceGateway, repo *snapshot.Repository, runner *batch.Runner, log logger.Logger) *Orchestrator {
	if log == nil {
		log = logger.NewNop()
	}
	return &Orchestrator{
		gateway: gateway,
		repo:    repo,
		runner:  runner,
		logger:  log,
	}
}

// RestoreAll recreates every index that has a snapshot. Failing to enumerate
// the snapshots aborts the run. Restoring an index that already exists
// overwrites its schema, so re-running is safe.
func (o *Orchestrator) RestoreAll(ctx context.Context) (*index.Report, error) {
	names, err := o.repo.Names(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	o.logger.Info("Found snapshots to restore", "count", len(names))
	return o.Restore(ctx, names)
}

// Restore recreates the named indexes.
func (o *Orchestrator) Restore(ctx context.Context, names []string) (*index.Report, error) {
	return o.runner.Run(ctx, index.OperationRestore, batch.Unique(names), o.restoreOne), nil
}

func (o *Orchestrator) restoreOne(ctx context.Context, name string) error {
	snap, err := o.repo.Load(ctx, name)
	if err != nil {
		return fmt.Errorf("failed to load snapshot: %w", err)
	}

	if dropped := sanitizer.Dropped(snap.Definition); len(dropped) > 0 {
		o.logger.Debug("Properties not replayed", "index", name, "properties", dropped)
	}

	payload := sanitizer.Restore(snap.Definition)
	if err := o.gateway.CreateOrReplace(ctx, payload); err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	return nil
}
