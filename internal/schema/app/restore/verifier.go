package restore

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/indexvault-go/internal/domain/index"
	"github.com/indexvault-go/internal/schema/app/batch"
	"github.com/indexvault-go/internal/schema/app/sanitizer"
	"github.com/indexvault-go/internal/schema/app/snapshot"
	"github.com/indexvault-go/internal/schema/ports"
	"github.com/indexvault-go/pkg/logger"
)

// DriftError reports a live index whose replayable schema differs from its
// snapshot.
type DriftError struct {
	Index      string
	Properties []string
}

func (e *DriftError) Error() string {
	return fmt.Sprintf("index %q differs from its snapshot in: %s", e.Index, strings.Join(e.Properties, ", "))
}

// Verifier compares live indexes with their snapshots, property by property,
// after both sides went through restore sanitization.
type Verifier struct {
	gateway ports.ServiceGateway
	repo    *snapshot.Repository
	runner  *batch.Runner
	logger  logger.Logger
}

func NewVerifier(gateway ports.ServiceGateway, repo *snapshot.Repository, runner *batch.Runner, log logger.Logger) *Verifier {
	if log == nil {
		log = logger.NewNop()
	}
	return &Verifier{
		gateway: gateway,
		repo:    repo,
		runner:  runner,
		logger:  log,
	}
}

// VerifyAll checks every snapshot. A missing live index or any drift is a
// per-item failure.
func (v *Verifier) VerifyAll(ctx context.Context) (*index.Report, error) {
	names, err := v.repo.Names(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	return v.Verify(ctx, names)
}

// Verify checks the named indexes.
func (v *Verifier) Verify(ctx context.Context, names []string) (*index.Report, error) {
	return v.runner.Run(ctx, index.OperationVerify, batch.Unique(names), v.verifyOne), nil
}

func (v *Verifier) verifyOne(ctx context.Context, name string) error {
	snap, err := v.repo.Load(ctx, name)
	if err != nil {
		return fmt.Errorf("failed to load snapshot: %w", err)
	}

	live, err := v.gateway.GetDefinition(ctx, name)
	if err != nil {
		return fmt.Errorf("failed to fetch live definition: %w", err)
	}

	if diff := Diff(sanitizer.Restore(snap.Definition), sanitizer.Restore(sanitizer.Capture(live))); len(diff) > 0 {
		return &DriftError{Index: name, Properties: diff}
	}
	return nil
}

// Diff returns, sorted, the top-level properties whose values differ between
// two definitions, including properties present on one side only.
func Diff(want, got index.Definition) []string {
	var diff []string
	for key, w := range want {
		if g, ok := got[key]; !ok || !reflect.DeepEqual(w, g) {
			diff = append(diff, key)
		}
	}
	for key := range got {
		if _, ok := want[key]; !ok {
			diff = append(diff, key)
		}
	}
	sort.Strings(diff)
	return diff
}
