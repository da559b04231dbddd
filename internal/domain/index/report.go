package index

import (
	"time"
)

// Batch operations
const (
	OperationBackup  = "backup"
	OperationRestore = "restore"
	OperationVerify  = "verify"
)

// ItemResult is the outcome of processing one index. A nil Err means success.
type ItemResult struct {
	Name string
	Err  error
}

// Failure is a failed item together with its cause.
type Failure struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
	Err    error  `json:"-"`
}

// Report aggregates the per-item outcomes of one batch run.
type Report struct {
	RunID      string    `json:"runId"`
	Operation  string    `json:"operation"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
	Succeeded  []string  `json:"succeeded"`
	Failed     []Failure `json:"failed"`
}

func NewReport(operation, runID string) *Report {
	return &Report{
		RunID:     runID,
		Operation: operation,
		StartedAt: time.Now().UTC(),
		Succeeded: []string{},
		Failed:    []Failure{},
	}
}

// Add records one item outcome.
func (r *Report) Add(result ItemResult) {
	if result.Err == nil {
		r.Succeeded = append(r.Succeeded, result.Name)
		return
	}
	r.Failed = append(r.Failed, Failure{
		Name:   result.Name,
		Reason: result.Err.Error(),
		Err:    result.Err,
	})
}

// Finish stamps the end time.
func (r *Report) Finish() {
	r.FinishedAt = time.Now().UTC()
}

func (r *Report) HasFailures() bool {
	return len(r.Failed) > 0
}

func (r *Report) Total() int {
	return len(r.Succeeded) + len(r.Failed)
}

func (r *Report) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// FailedNames returns the names of failed items in report order.
func (r *Report) FailedNames() []string {
	names := make([]string, len(r.Failed))
	for i, f := range r.Failed {
		names[i] = f.Name
	}
	return names
}
