// Package snapshot captures live index definitions and persists them as snapshots.
package snapshot

import (
	"context"
	"fmt"

	"github.com/indexvault-go/internal/domain/index"
	"github.com/indexvault-go/internal/schema/app/batch"
	"github.com/indexvault-go/internal/schema/app/sanitizer"
	"github.com/indexvault-go/internal/schema/ports"
	"github.com/indexvault-go/pkg/logger"
	"github.com/indexvault-go/pkg/metrics"
)

// Orchestrator runs the backup phase against one service.
type Orchestrator struct {
	gateway ports.ServiceGateway
	repo    *Repository
	runner  *batch.Runner
	logger  logger.Logger
}

func NewOrchestrator(gateway ports.ServiceGateway, repo *Repository, runner *batch.Runner, log logger.Logger) *Orchestrator {
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

// BackupAll snapshots every live index. Failing to enumerate the indexes aborts
// the run; a failure on one index is recorded and the others still run.
func (o *Orchestrator) BackupAll(ctx context.Context) (*index.Report, error) {
	names, err := o.gateway.ListIndexNames(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list indexes: %w", err)
	}
	o.logger.Info("Found indexes to back up", "count", len(names))
	return o.Backup(ctx, names)
}

// Backup snapshots the named indexes.
func (o *Orchestrator) Backup(ctx context.Context, names []string) (*index.Report, error) {
	report := o.runner.Run(ctx, index.OperationBackup, batch.Unique(names), o.backupOne)
	if !report.HasFailures() {
		metrics.LastSuccessfulBackup.SetToCurrentTime()
	}
	return report, nil
}

func (o *Orchestrator) backupOne(ctx context.Context, name string) error {
	def, err := o.gateway.GetDefinition(ctx, name)
	if err != nil {
		return fmt.Errorf("failed to fetch definition: %w", err)
	}

	captured := sanitizer.Capture(def)
	if got := captured.Name(); got != name {
		return &index.SerializationError{
			Key: index.SnapshotKey(name),
			Err: fmt.Errorf("service returned definition named %q", got),
		}
	}

	if _, err := o.repo.Save(ctx, captured); err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}
