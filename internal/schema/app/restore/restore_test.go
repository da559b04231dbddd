package restore

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/indexvault-go/internal/domain/index"
	"github.com/indexvault-go/internal/schema/app/batch"
	"github.com/indexvault-go/internal/schema/app/sanitizer"
	"github.com/indexvault-go/internal/schema/app/snapshot"
	"github.com/indexvault-go/internal/schema/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func catalogDefinition(name string) index.Definition {
	return index.Definition{
		"name": name,
		"fields": []interface{}{
			map[string]interface{}{"name": "id", "type": "Edm.String", "key": true, "analyzer": nil},
			map[string]interface{}{"name": "title", "type": "Edm.String", "searchable": true, "analyzer": "en.microsoft"},
			map[string]interface{}{"name": "vector", "type": "Collection(Edm.Single)", "dimensions": json.Number("1536"), "vectorSearchProfile": "p"},
		},
		"scoringProfiles":       nil,
		"defaultScoringProfile": nil,
		"corsOptions":           map[string]interface{}{"allowedOrigins": nil},
		"suggesters":            []interface{}{},
		"normalizers":           []interface{}{},
		"similarity": map[string]interface{}{
			"@odata.type": "#Microsoft.Azure.Search.BM25Similarity",
			"b":           json.Number("0.75"),
			"k1":          nil,
		},
		"vectorSearch": map[string]interface{}{
			"profiles":   []interface{}{map[string]interface{}{"name": "p", "algorithm": "hnsw", "vectorizer": nil}},
			"algorithms": []interface{}{map[string]interface{}{"name": "hnsw", "kind": "hnsw"}},
		},
	}
}

type fixture struct {
	source *testutil.FakeGateway
	target *testutil.FakeGateway
	store  *testutil.MemoryBlobStore
	repo   *snapshot.Repository
	runner *batch.Runner
}

// setup backs up the given definitions from a source service and returns an
// empty target service to restore into.
func setup(t *testing.T, defs ...index.Definition) *fixture {
	t.Helper()
	f := &fixture{
		source: testutil.NewFakeGateway(defs...),
		target: testutil.NewFakeGateway(),
		store:  testutil.NewMemoryBlobStore(),
		runner: batch.NewRunner(batch.Config{Workers: 2}, nil, nil),
	}
	f.repo = snapshot.NewRepository(f.store, nil)

	report, err := snapshot.NewOrchestrator(f.source, f.repo, f.runner, nil).BackupAll(context.Background())
	require.NoError(t, err)
	require.False(t, report.HasFailures())
	return f
}

func TestOrchestrator_RoundTrip(t *testing.T) {
	original := catalogDefinition("catalog-v1")
	f := setup(t, original, catalogDefinition("catalog-v2"))
	orch := NewOrchestrator(f.target, f.repo, f.runner, nil)

	report, err := orch.RestoreAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"catalog-v1", "catalog-v2"}, report.Succeeded)
	assert.Empty(t, report.Failed)

	live, err := f.target.GetDefinition(context.Background(), "catalog-v1")
	require.NoError(t, err)

	want := sanitizer.Restore(original)
	got := sanitizer.Restore(sanitizer.Capture(live))
	assert.Equal(t, want, got)
	assert.Empty(t, Diff(want, got))
}

func TestOrchestrator_PayloadIsSanitized(t *testing.T) {
	f := setup(t, catalogDefinition("catalog-v1"))
	orch := NewOrchestrator(f.target, f.repo, f.runner, nil)

	_, err := orch.RestoreAll(context.Background())
	require.NoError(t, err)

	puts := f.target.Puts()
	require.Len(t, puts, 1)
	payload := puts[0]
	for key, value := range payload {
		assert.True(t, sanitizer.IsRestorable(key), "unexpected property %q", key)
		assert.NotNil(t, value, "null property %q", key)
	}
	assert.NotContains(t, payload, "scoringProfiles")
	assert.NotContains(t, payload, "corsOptions")
	assert.NotContains(t, payload, "normalizers")
}

func TestOrchestrator_Idempotent(t *testing.T) {
	f := setup(t, catalogDefinition("catalog-v1"))
	orch := NewOrchestrator(f.target, f.repo, f.runner, nil)
	ctx := context.Background()

	first, err := orch.Restore(ctx, []string{"catalog-v1"})
	require.NoError(t, err)
	require.False(t, first.HasFailures())
	after1, ok := f.target.Index("catalog-v1")
	require.True(t, ok)

	second, err := orch.Restore(ctx, []string{"catalog-v1"})
	require.NoError(t, err)
	assert.False(t, second.HasFailures())
	after2, ok := f.target.Index("catalog-v1")
	require.True(t, ok)

	assert.Equal(t, after1, after2)
	assert.Len(t, f.target.Puts(), 2)
}

func TestOrchestrator_BadSnapshots(t *testing.T) {
	f := setup(t, catalogDefinition("good"))
	f.store.Put("renamed-definition.json", []byte(`{"name": "other", "fields": []}`))
	f.store.Put("garbage-definition.json", []byte(`[1, 2, 3]`))
	orch := NewOrchestrator(f.target, f.repo, f.runner, nil)

	report, err := orch.RestoreAll(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"good"}, report.Succeeded)
	assert.ElementsMatch(t, []string{"garbage", "renamed"}, report.FailedNames())
	for _, failure := range report.Failed {
		var serr *index.SerializationError
		assert.ErrorAs(t, failure.Err, &serr, failure.Name)
	}
	_, ok := f.target.Index("other")
	assert.False(t, ok)
}

func TestOrchestrator_RemoteRejection(t *testing.T) {
	f := setup(t, catalogDefinition("a"), catalogDefinition("b"))
	f.target.PutErr["a"] = &index.RemoteError{Status: 400, Body: `{"error":{"message":"Field 'vector' is invalid."}}`}
	orch := NewOrchestrator(f.target, f.repo, f.runner, nil)

	report, err := orch.RestoreAll(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"b"}, report.Succeeded)
	require.Len(t, report.Failed, 1)
	var rerr *index.RemoteError
	require.ErrorAs(t, report.Failed[0].Err, &rerr)
	assert.Equal(t, "Field 'vector' is invalid.", rerr.Message())
}

func TestOrchestrator_MissingSnapshot(t *testing.T) {
	f := setup(t, catalogDefinition("a"))
	orch := NewOrchestrator(f.target, f.repo, f.runner, nil)

	report, err := orch.Restore(context.Background(), []string{"a", "missing"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, report.Succeeded)
	require.Len(t, report.Failed, 1)
	assert.ErrorIs(t, report.Failed[0].Err, index.ErrNotFound)
}

func TestOrchestrator_EnumerationFailureIsFatal(t *testing.T) {
	f := setup(t, catalogDefinition("a"))
	f.store.ListErr = errors.New("container not found")
	orch := NewOrchestrator(f.target, f.repo, f.runner, nil)

	report, err := orch.RestoreAll(context.Background())
	assert.Nil(t, report)
	var serr *index.StorageError
	assert.ErrorAs(t, err, &serr)
	assert.Empty(t, f.target.Puts())
}

func TestVerifier(t *testing.T) {
	f := setup(t, catalogDefinition("a"), catalogDefinition("b"), catalogDefinition("c"))
	ctx := context.Background()

	_, err := NewOrchestrator(f.target, f.repo, f.runner, nil).RestoreAll(ctx)
	require.NoError(t, err)

	// Drift on b, c dropped out of band.
	drifted, _ := f.target.Index("b")
	drifted["suggesters"] = []interface{}{map[string]interface{}{"name": "sg", "sourceFields": []interface{}{"title"}}}
	require.NoError(t, f.target.CreateOrReplace(ctx, drifted))
	f.target.Remove("c")

	report, err := NewVerifier(f.target, f.repo, f.runner, nil).VerifyAll(ctx)
	require.NoError(t, err)

	assert.Equal(t, index.OperationVerify, report.Operation)
	assert.Equal(t, []string{"a"}, report.Succeeded)
	require.Len(t, report.Failed, 2)

	var drift *DriftError
	require.ErrorAs(t, report.Failed[0].Err, &drift)
	assert.Equal(t, "b", drift.Index)
	assert.Equal(t, []string{"suggesters"}, drift.Properties)

	assert.Equal(t, "c", report.Failed[1].Name)
	assert.ErrorIs(t, report.Failed[1].Err, index.ErrNotFound)
}

func TestDiff(t *testing.T) {
	want := index.Definition{"name": "x", "fields": []interface{}{"a"}, "similarity": map[string]interface{}{"b": 1}}
	got := index.Definition{"name": "x", "fields": []interface{}{"a", "b"}, "semantic": map[string]interface{}{}}

	assert.Equal(t, []string{"fields", "semantic", "similarity"}, Diff(want, got))
	assert.Empty(t, Diff(want, want.Clone()))
}
