// Package batch runs one operation over a list of indexes and aggregates the
// per-index outcomes into a report.
package batch

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/indexvault-go/internal/domain/index"
	"github.com/indexvault-go/pkg/logger"
	"github.com/indexvault-go/pkg/metrics"
	"github.com/indexvault-go/pkg/telemetry"
)

// ItemFunc processes a single index.
type ItemFunc func(ctx context.Context, name string) error

// Config contains configuration for the runner
type Config struct {
	Workers     int
	ItemTimeout time.Duration
}

// Runner executes an ItemFunc for every name with a bounded number of workers.
//
// Cancellation of the parent context is only observed between items: a started
// item always runs to completion (or to its own timeout), and items that were
// never started are reported as failed with the context error.
type Runner struct {
	workers     int
	itemTimeout time.Duration
	telemetry   *telemetry.Telemetry
	logger      logger.Logger
}

type runIDKey struct{}

// NewRunner creates a new batch runner
func NewRunner(config Config, tel *telemetry.Telemetry, log logger.Logger) *Runner {
	if config.Workers < 1 {
		config.Workers = 1
	}
	if tel == nil {
		tel = telemetry.NewNop()
	}
	if log == nil {
		log = logger.NewNop()
	}

	return &Runner{
		workers:     config.Workers,
		itemTimeout: config.ItemTimeout,
		telemetry:   tel,
		logger:      log,
	}
}

// RunIDFromContext returns the id of the batch run an item belongs to.
func RunIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(runIDKey{}).(string)
	return id
}

// Run processes names and returns the finished report. Results keep the order
// of names regardless of the worker count.
func (r *Runner) Run(ctx context.Context, operation string, names []string, fn ItemFunc) *index.Report {
	runID := uuid.New().String()
	report := index.NewReport(operation, runID)
	log := r.logger.With("operation", operation, "runId", runID)

	ctx, span := r.telemetry.StartSpan(ctx, "batch."+operation)
	span.SetAttributes(telemetry.OperationAttribute(operation), telemetry.RunIDAttribute(runID))
	defer span.End()

	log.Info("Starting batch", "items", len(names), "workers", r.workers)

	results := make([]index.ItemResult, len(names))
	queue := make(chan int)

	var wg sync.WaitGroup
	workers := r.workers
	if workers > len(names) {
		workers = len(names)
	}
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range queue {
				results[i] = r.runItem(ctx, runID, operation, names[i], fn, log)
			}
		}()
	}

	for i := range names {
		queue <- i
	}
	close(queue)
	wg.Wait()

	for _, result := range results {
		report.Add(result)
	}
	report.Finish()

	metrics.RecordBatchDuration(operation, report.Duration().Seconds())
	log.Info("Batch finished",
		"succeeded", len(report.Succeeded),
		"failed", len(report.Failed),
		"duration", report.Duration())

	return report
}

func (r *Runner) runItem(ctx context.Context, runID, operation, name string, fn ItemFunc, log logger.Logger) index.ItemResult {
	if err := ctx.Err(); err != nil {
		log.Warn("Skipping index, batch cancelled", "index", name)
		metrics.RecordBatchItem(operation, false)
		return index.ItemResult{Name: name, Err: err}
	}

	itemCtx := context.WithValue(context.WithoutCancel(ctx), runIDKey{}, runID)
	if r.itemTimeout > 0 {
		var cancel context.CancelFunc
		itemCtx, cancel = context.WithTimeout(itemCtx, r.itemTimeout)
		defer cancel()
	}

	itemCtx, span := r.telemetry.StartSpan(itemCtx, operation+".item")
	span.SetAttributes(telemetry.IndexAttribute(name))

	start := time.Now()
	err := fn(itemCtx, name)
	telemetry.EndSpan(span, err)
	metrics.RecordBatchItem(operation, err == nil)

	if err != nil {
		log.Error("Index failed", "index", name, "error", err, "duration", time.Since(start))
	} else {
		log.Info("Index done", "index", name, "duration", time.Since(start))
	}

	return index.ItemResult{Name: name, Err: err}
}

// Unique returns names without repeats, keeping the first occurrence of each.
func Unique(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, name := range names {
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out
}
