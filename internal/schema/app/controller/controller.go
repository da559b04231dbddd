// Package controller drives a search service through its backup, teardown,
// reprovision and restore cycle, persisting the position after every step.
package controller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/indexvault-go/internal/domain/index"
	"github.com/indexvault-go/internal/domain/lifecycle"
	"github.com/indexvault-go/internal/schema/app/batch"
	"github.com/indexvault-go/internal/schema/app/restore"
	"github.com/indexvault-go/internal/schema/app/snapshot"
	"github.com/indexvault-go/internal/schema/ports"
	"github.com/indexvault-go/pkg/events"
	"github.com/indexvault-go/pkg/logger"
	"github.com/indexvault-go/pkg/metrics"
)

const (
	historyLimit = 20
	runsLimit    = 10
)

// Config contains the static settings of the managed service
type Config struct {
	ServiceName string
	// Endpoint is used until a provision step records a new one.
	Endpoint string
	// Provision holds the parameters handed to the provisioner.
	Provision lifecycle.ProvisionParams
}

// Dependencies are the collaborators of a Controller.
type Dependencies struct {
	Repository  ports.LifecycleRepository
	Snapshots   *snapshot.Repository
	Runner      *batch.Runner
	Gateways    ports.GatewayFactory
	Credentials ports.CredentialProvider
	Provisioner ports.Provisioner
	Locker      ports.Locker
	Publisher   events.Publisher
	Logger      logger.Logger
}

// Status is the persisted lifecycle position of a service.
type Status struct {
	Record  *lifecycle.Record
	Allowed []lifecycle.Event
	History []lifecycle.Transition
	Runs    []lifecycle.Run
}

type Controller struct {
	config      Config
	repo        ports.LifecycleRepository
	snapshots   *snapshot.Repository
	runner      *batch.Runner
	gateways    ports.GatewayFactory
	credentials ports.CredentialProvider
	provisioner ports.Provisioner
	locker      ports.Locker
	publisher   events.Publisher
	logger      logger.Logger
}

func NewController(config Config, deps Dependencies) *Controller {
	if deps.Publisher == nil {
		deps.Publisher = events.NopPublisher{}
	}
	if deps.Logger == nil {
		deps.Logger = logger.NewNop()
	}
	if config.Provision.ServiceName == "" {
		config.Provision.ServiceName = config.ServiceName
	}

	return &Controller{
		config:      config,
		repo:        deps.Repository,
		snapshots:   deps.Snapshots,
		runner:      deps.Runner,
		gateways:    deps.Gateways,
		credentials: deps.Credentials,
		provisioner: deps.Provisioner,
		locker:      deps.Locker,
		publisher:   deps.Publisher,
		logger:      deps.Logger.With("service", config.ServiceName),
	}
}

// Backup snapshots the named indexes, or every live index when names is empty.
// The transition to backed_up is skipped only when the indexes cannot be
// enumerated; failed items are recorded in the returned report.
func (c *Controller) Backup(ctx context.Context, names []string) (*index.Report, error) {
	var report *index.Report
	err := c.withLock(ctx, func(ctx context.Context) error {
		record, next, err := c.prepare(ctx, lifecycle.EventBackup)
		if err != nil {
			return err
		}

		gateway, err := c.gateway(ctx, record)
		if err != nil {
			return err
		}

		orch := snapshot.NewOrchestrator(gateway, c.snapshots, c.runner, c.logger)
		if len(names) == 0 {
			report, err = orch.BackupAll(ctx)
		} else {
			report, err = orch.Backup(ctx, names)
		}
		if err != nil {
			return err
		}

		if err := c.saveRun(ctx, report); err != nil {
			return err
		}
		c.publishReport(ctx, events.BackupCompleted, report)
		return c.transition(ctx, record, lifecycle.EventBackup, next, report.RunID, reportNote(report))
	})
	return report, err
}

// Deprovision deletes the search service. It requires explicit operator
// confirmation and never touches stored snapshots.
func (c *Controller) Deprovision(ctx context.Context, confirmed bool) error {
	if !confirmed {
		return index.ErrConfirmationRequired
	}

	return c.withLock(ctx, func(ctx context.Context) error {
		record, next, err := c.prepare(ctx, lifecycle.EventDeprovision)
		if err != nil {
			return err
		}

		c.warnOnIncompleteBackup(ctx)

		c.logger.Warn("Deleting search service")
		if err := c.provisioner.Deprovision(ctx, c.config.ServiceName); err != nil {
			return fmt.Errorf("failed to deprovision service: %w", err)
		}

		record.Endpoint = ""
		return c.transition(ctx, record, lifecycle.EventDeprovision, next, "", "")
	})
}

// Provision recreates the search service and records its endpoint. The
// provisioner must report the configured service name, since credentials are
// looked up by it.
func (c *Controller) Provision(ctx context.Context) (*lifecycle.ServiceInstance, error) {
	var instance lifecycle.ServiceInstance
	err := c.withLock(ctx, func(ctx context.Context) error {
		record, next, err := c.prepare(ctx, lifecycle.EventProvision)
		if err != nil {
			return err
		}

		c.logger.Info("Provisioning search service", "sku", c.config.Provision.SKU, "region", c.config.Provision.Region)
		instance, err = c.provisioner.Provision(ctx, c.config.Provision)
		if err != nil {
			return fmt.Errorf("failed to provision service: %w", err)
		}
		if instance.Name != c.config.ServiceName {
			return fmt.Errorf("provisioner reported service %q, expected %q", instance.Name, c.config.ServiceName)
		}
		if instance.Endpoint == "" {
			return errors.New("provisioner did not report an endpoint")
		}

		record.Endpoint = instance.Endpoint
		return c.transition(ctx, record, lifecycle.EventProvision, next, "", "endpoint "+instance.Endpoint)
	})
	if err != nil {
		return nil, err
	}
	return &instance, nil
}

// Restore recreates the named indexes from their snapshots, or every
// snapshotted index when names is empty.
func (c *Controller) Restore(ctx context.Context, names []string) (*index.Report, error) {
	var report *index.Report
	err := c.withLock(ctx, func(ctx context.Context) error {
		record, next, err := c.prepare(ctx, lifecycle.EventRestore)
		if err != nil {
			return err
		}

		gateway, err := c.gateway(ctx, record)
		if err != nil {
			return err
		}

		orch := restore.NewOrchestrator(gateway, c.snapshots, c.runner, c.logger)
		if len(names) == 0 {
			report, err = orch.RestoreAll(ctx)
		} else {
			report, err = orch.Restore(ctx, names)
		}
		if err != nil {
			return err
		}

		if err := c.saveRun(ctx, report); err != nil {
			return err
		}
		c.publishReport(ctx, events.RestoreCompleted, report)
		return c.transition(ctx, record, lifecycle.EventRestore, next, report.RunID, reportNote(report))
	})
	return report, err
}

// Verify compares live indexes with their snapshots without changing state.
func (c *Controller) Verify(ctx context.Context, names []string) (*index.Report, error) {
	record, err := c.repo.GetRecord(ctx, c.config.ServiceName)
	if err != nil {
		return nil, fmt.Errorf("failed to load lifecycle record: %w", err)
	}
	if record.State == lifecycle.StateDeprovisioned {
		return nil, fmt.Errorf("%w: service is deprovisioned", index.ErrInvalidTransition)
	}

	gateway, err := c.gateway(ctx, record)
	if err != nil {
		return nil, err
	}

	verifier := restore.NewVerifier(gateway, c.snapshots, c.runner, c.logger)
	var report *index.Report
	if len(names) == 0 {
		report, err = verifier.VerifyAll(ctx)
	} else {
		report, err = verifier.Verify(ctx, names)
	}
	if err != nil {
		return nil, err
	}

	if err := c.saveRun(ctx, report); err != nil {
		return nil, err
	}
	return report, nil
}

// Status returns the persisted record with its recent history.
func (c *Controller) Status(ctx context.Context) (*Status, error) {
	record, err := c.repo.GetRecord(ctx, c.config.ServiceName)
	if err != nil {
		return nil, fmt.Errorf("failed to load lifecycle record: %w", err)
	}
	history, err := c.repo.ListTransitions(ctx, c.config.ServiceName, historyLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to load transition history: %w", err)
	}
	runs, err := c.repo.ListRuns(ctx, c.config.ServiceName, runsLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to load run history: %w", err)
	}

	return &Status{
		Record:  record,
		Allowed: AllowedEvents(record.State),
		History: history,
		Runs:    runs,
	}, nil
}

func (c *Controller) withLock(ctx context.Context, fn func(ctx context.Context) error) error {
	lock, err := c.locker.Acquire(ctx, "indexvault-"+c.config.ServiceName)
	if err != nil {
		return fmt.Errorf("failed to acquire lifecycle lock: %w", err)
	}
	defer func() {
		if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
			c.logger.Error("Failed to release lifecycle lock", "error", err)
		}
	}()
	return fn(ctx)
}

// prepare loads the record and validates event against its state.
func (c *Controller) prepare(ctx context.Context, event lifecycle.Event) (*lifecycle.Record, lifecycle.State, error) {
	record, err := c.repo.GetRecord(ctx, c.config.ServiceName)
	if err != nil {
		return nil, "", fmt.Errorf("failed to load lifecycle record: %w", err)
	}
	next, err := Next(record.State, event)
	if err != nil {
		return nil, "", err
	}
	return record, next, nil
}

func (c *Controller) gateway(ctx context.Context, record *lifecycle.Record) (ports.ServiceGateway, error) {
	endpoint := record.Endpoint
	if endpoint == "" {
		endpoint = c.config.Endpoint
	}
	if endpoint == "" {
		return nil, fmt.Errorf("no endpoint known for service %q", c.config.ServiceName)
	}

	key, err := c.credentials.AdminKey(ctx, c.config.ServiceName)
	if err != nil {
		return nil, fmt.Errorf("failed to obtain admin key: %w", err)
	}

	return c.gateways(endpoint, key)
}

func (c *Controller) transition(ctx context.Context, record *lifecycle.Record, event lifecycle.Event, to lifecycle.State, runID, note string) error {
	from := record.State
	entry := &lifecycle.Transition{
		ServiceName: c.config.ServiceName,
		FromState:   from,
		ToState:     to,
		Event:       event,
		RunID:       runID,
		Note:        note,
		CreatedAt:   time.Now().UTC(),
	}

	record.ServiceName = c.config.ServiceName
	record.State = to
	if runID != "" {
		record.LastRunID = runID
	}

	if err := c.repo.SaveTransition(ctx, record, entry); err != nil {
		return fmt.Errorf("failed to persist transition %s -> %s: %w", from, to, err)
	}
	metrics.RecordTransition(string(from), string(to))

	stateEvent := events.NewEventBuilder(events.LifecycleStateChanged).
		WithAggregateID(c.config.ServiceName).
		WithAggregateType("search_service").
		WithCorrelationID(runID).
		WithPayload("fromState", string(from)).
		WithPayload("toState", string(to)).
		WithPayload("event", string(event)).
		WithPayload("endpoint", record.Endpoint).
		Build()
	if err := c.publisher.Publish(ctx, stateEvent); err != nil {
		c.logger.Error("Failed to publish state change event", "error", err, "transition", fmt.Sprintf("%s->%s", from, to))
	}

	c.logger.Info("Lifecycle state transitioned", "from", from, "to", to, "event", event)
	if note != "" && runID != "" {
		c.logger.Warn("Transition recorded with failed indexes", "note", note, "runId", runID)
	}
	return nil
}

func (c *Controller) saveRun(ctx context.Context, report *index.Report) error {
	reasons := make([]string, len(report.Failed))
	for i, f := range report.Failed {
		reasons[i] = f.Reason
	}

	run := &lifecycle.Run{
		ID:          report.RunID,
		ServiceName: c.config.ServiceName,
		Operation:   report.Operation,
		Succeeded:   report.Succeeded,
		Failed:      report.FailedNames(),
		Reasons:     reasons,
		StartedAt:   report.StartedAt,
		FinishedAt:  report.FinishedAt,
	}
	if err := c.repo.SaveRun(ctx, run); err != nil {
		return fmt.Errorf("failed to persist %s run: %w", report.Operation, err)
	}
	return nil
}

func (c *Controller) publishReport(ctx context.Context, eventType string, report *index.Report) {
	event := events.NewEventBuilder(eventType).
		WithAggregateID(c.config.ServiceName).
		WithAggregateType("search_service").
		WithCorrelationID(report.RunID).
		WithPayload("succeeded", len(report.Succeeded)).
		WithPayload("failed", report.FailedNames()).
		Build()
	if err := c.publisher.Publish(ctx, event); err != nil {
		c.logger.Error("Failed to publish report event", "error", err, "type", eventType)
	}
}

// warnOnIncompleteBackup logs indexes the latest backup did not capture.
func (c *Controller) warnOnIncompleteBackup(ctx context.Context) {
	runs, err := c.repo.ListRuns(ctx, c.config.ServiceName, runsLimit)
	if err != nil {
		c.logger.Warn("Could not check the last backup run", "error", err)
		return
	}
	for _, run := range runs {
		if run.Operation != index.OperationBackup {
			continue
		}
		if len(run.Failed) > 0 {
			c.logger.Warn("Last backup did not capture every index; their schemas will be lost",
				"runId", run.ID, "indexes", run.Failed)
		}
		return
	}
}

func reportNote(report *index.Report) string {
	if !report.HasFailures() {
		return ""
	}
	return fmt.Sprintf("%d of %d indexes failed: %v", len(report.Failed), report.Total(), report.FailedNames())
}
