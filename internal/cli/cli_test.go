package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/indexvault-go/internal/domain/index"
	"github.com/indexvault-go/internal/domain/lifecycle"
	"github.com/indexvault-go/internal/schema/adapters/credentials"
	"github.com/indexvault-go/internal/schema/app/batch"
	"github.com/indexvault-go/internal/schema/app/controller"
	"github.com/indexvault-go/internal/schema/app/snapshot"
	"github.com/indexvault-go/internal/schema/ports"
	"github.com/indexvault-go/internal/schema/testutil"
	"github.com/indexvault-go/pkg/config"
	"github.com/indexvault-go/pkg/logger"
	"github.com/indexvault-go/pkg/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockProvisioner is a mock implementation of ports.Provisioner
type MockProvisioner struct {
	mock.Mock
}

func (m *MockProvisioner) Provision(ctx context.Context, params lifecycle.ProvisionParams) (lifecycle.ServiceInstance, error) {
	args := m.Called(ctx, params)
	return args.Get(0).(lifecycle.ServiceInstance), args.Error(1)
}

func (m *MockProvisioner) Deprovision(ctx context.Context, name string) error {
	args := m.Called(ctx, name)
	return args.Error(0)
}

type harness struct {
	cfg         *config.Config
	gateway     *testutil.FakeGateway
	store       *testutil.MemoryBlobStore
	repo        *testutil.MemoryLifecycleRepository
	provisioner *MockProvisioner
	app         *App

	// wrapGateway, when set, decorates the gateway handed to the controller.
	wrapGateway func(ports.ServiceGateway) ports.ServiceGateway
}

func testConfig() *config.Config {
	return &config.Config{
		Search:  config.SearchConfig{ServiceName: "demo", Endpoint: "https://demo.search.windows.net", MaxAttempts: 1},
		Storage: config.StorageConfig{Backend: "filesystem", Path: "unused", Container: "index-definitions"},
		State:   config.StateConfig{Driver: "sqlite"},
		Lock:    config.LockConfig{Backend: "none"},
		Batch:   config.BatchConfig{Workers: 1},
		Logger:  config.LoggerConfig{Level: "error"},
		Schedule: config.ScheduleConfig{
			Backup:     "0 2 * * *",
			ListenAddr: "127.0.0.1:0",
		},
	}
}

func newHarness(t *testing.T, defs ...index.Definition) *harness {
	h := &harness{
		cfg:         testConfig(),
		gateway:     testutil.NewFakeGateway(defs...),
		store:       testutil.NewMemoryBlobStore(),
		repo:        testutil.NewMemoryLifecycleRepository(),
		provisioner: new(MockProvisioner),
	}

	log := logger.NewNop()
	snapshots := snapshot.NewRepository(h.store, log)
	h.app = &App{
		Config:    h.cfg,
		Logger:    log,
		Telemetry: telemetry.NewNop(),
		Snapshots: snapshots,
		Controller: controller.NewController(controller.Config{
			ServiceName: h.cfg.Search.ServiceName,
			Endpoint:    h.cfg.Search.Endpoint,
		}, controller.Dependencies{
			Repository: h.repo,
			Snapshots:  snapshots,
			Runner:     batch.NewRunner(batch.Config{Workers: 1}, nil, log),
			Gateways: func(endpoint, apiKey string) (ports.ServiceGateway, error) {
				if h.wrapGateway != nil {
					return h.wrapGateway(h.gateway), nil
				}
				return h.gateway, nil
			},
			Credentials: credentials.NewStaticProvider("admin-key"),
			Provisioner: h.provisioner,
			Locker:      testutil.NewMemoryLocker(),
			Logger:      log,
		}),
	}
	return h
}

func (h *harness) execute(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	opts := &options{
		newApp: func(ctx context.Context, cfg *config.Config, log logger.Logger) (*App, error) {
			return h.app, nil
		},
		loadConfig: func(file string) (*config.Config, error) {
			return h.cfg, nil
		},
	}

	var stdout, stderr bytes.Buffer
	root := newRootCommand(opts)
	root.SetArgs(args)
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetIn(strings.NewReader(stdin))

	err := root.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func definition(name string) index.Definition {
	return index.Definition{
		"name": name,
		"fields": []interface{}{
			map[string]interface{}{"name": "id", "type": "Edm.String", "key": true},
		},
	}
}

func TestBackupCommand(t *testing.T) {
	h := newHarness(t, definition("hotels"), definition("products"))

	stdout, _, err := h.execute(t, "", "backup")
	require.NoError(t, err)
	assert.Contains(t, stdout, "=== Backup ===")
	assert.Contains(t, stdout, "✓  [hotels] done")
	assert.Contains(t, stdout, "2 succeeded, 0 failed")
	assert.ElementsMatch(t, []string{"hotels-definition.json", "products-definition.json"}, h.store.Keys())

	record, err := h.repo.GetRecord(context.Background(), "demo")
	require.NoError(t, err)
	assert.Equal(t, lifecycle.StateBackedUp, record.State)
}

func TestBackupCommand_PartialFailureFails(t *testing.T) {
	h := newHarness(t, definition("hotels"), definition("products"))
	h.store.UploadErr["products-definition.json"] = errors.New("throttled")

	stdout, stderr, err := h.execute(t, "", "backup")
	require.Error(t, err)
	assert.Equal(t, "1 of 2 indexes failed", err.Error())
	assert.Contains(t, stdout, "1 succeeded, 1 failed")
	assert.Contains(t, stderr, "[products]")
	assert.Contains(t, stderr, "throttled")
}

func TestBackupCommand_SelectedIndexes(t *testing.T) {
	h := newHarness(t, definition("hotels"), definition("products"))

	_, _, err := h.execute(t, "", "backup", "--index", "hotels")
	require.NoError(t, err)
	assert.Equal(t, []string{"hotels-definition.json"}, h.store.Keys())
}

func TestDeprovisionCommand_Confirmation(t *testing.T) {
	h := newHarness(t, definition("hotels"))
	_, _, err := h.execute(t, "", "backup")
	require.NoError(t, err)

	stdout, _, err := h.execute(t, "other\n", "deprovision")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "aborted")
	assert.Contains(t, stdout, "Type the service name to confirm")
	h.provisioner.AssertNotCalled(t, "Deprovision", mock.Anything, mock.Anything)

	_, _, err = h.execute(t, "", "deprovision")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no confirmation received")
	h.provisioner.AssertNotCalled(t, "Deprovision", mock.Anything, mock.Anything)

	h.provisioner.On("Deprovision", mock.Anything, "demo").Return(nil).Once()
	stdout, _, err = h.execute(t, "demo\n", "deprovision")
	require.NoError(t, err)
	assert.Contains(t, stdout, "deprovisioned; snapshots kept")
	h.provisioner.AssertExpectations(t)

	// Snapshots survive the teardown.
	assert.Equal(t, []string{"hotels-definition.json"}, h.store.Keys())
}

func TestReadLine(t *testing.T) {
	line, err := readLine(strings.NewReader("  demo service \nignored\n"))
	require.NoError(t, err)
	assert.Equal(t, "demo service", line)

	line, err = readLine(strings.NewReader("demo"))
	require.NoError(t, err)
	assert.Equal(t, "demo", line)

	_, err = readLine(strings.NewReader(""))
	assert.ErrorIs(t, err, io.EOF)
}

func TestLifecycleCommands_FullCycle(t *testing.T) {
	h := newHarness(t, definition("hotels"))

	_, _, err := h.execute(t, "", "backup")
	require.NoError(t, err)

	h.provisioner.On("Deprovision", mock.Anything, "demo").Return(nil).Once()
	_, _, err = h.execute(t, "", "deprovision", "--yes")
	require.NoError(t, err)
	h.gateway.Remove("hotels")

	h.provisioner.On("Provision", mock.Anything, mock.Anything).
		Return(lifecycle.ServiceInstance{Name: "demo", Endpoint: "https://demo-2.search.windows.net"}, nil).Once()
	stdout, _, err := h.execute(t, "", "provision")
	require.NoError(t, err)
	assert.Contains(t, stdout, "provisioned at https://demo-2.search.windows.net")

	stdout, _, err = h.execute(t, "", "restore")
	require.NoError(t, err)
	assert.Contains(t, stdout, "✓  [hotels] done")
	assert.Contains(t, stdout, "re-indexed")

	restored, ok := h.gateway.Index("hotels")
	require.True(t, ok)
	assert.Equal(t, "hotels", restored.Name())

	stdout, _, err = h.execute(t, "", "status")
	require.NoError(t, err)
	assert.Contains(t, stdout, "state restored")
	assert.Contains(t, stdout, "=== History ===")
	assert.Contains(t, stdout, "reprovisioned -> restored")
}

func TestLifecycleCommands_InvalidOrder(t *testing.T) {
	h := newHarness(t, definition("hotels"))

	_, _, err := h.execute(t, "", "restore")
	require.Error(t, err)
	assert.ErrorIs(t, err, index.ErrInvalidTransition)

	_, _, err = h.execute(t, "", "deprovision", "--yes")
	assert.ErrorIs(t, err, index.ErrInvalidTransition)
	h.provisioner.AssertNotCalled(t, "Deprovision", mock.Anything, mock.Anything)
}

func TestStatusCommand_JSON(t *testing.T) {
	h := newHarness(t, definition("hotels"))
	_, _, err := h.execute(t, "", "backup")
	require.NoError(t, err)

	stdout, _, err := h.execute(t, "", "status", "--json")
	require.NoError(t, err)

	var status struct {
		Record  lifecycle.Record
		Allowed []lifecycle.Event
		Runs    []lifecycle.Run
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &status))
	assert.Equal(t, lifecycle.StateBackedUp, status.Record.State)
	assert.Equal(t, []lifecycle.Event{lifecycle.EventBackup, lifecycle.EventDeprovision}, status.Allowed)
	require.Len(t, status.Runs, 1)
	assert.Equal(t, []string{"hotels"}, status.Runs[0].Succeeded)
}

func TestVerifyCommand(t *testing.T) {
	h := newHarness(t, definition("hotels"))
	_, _, err := h.execute(t, "", "backup")
	require.NoError(t, err)

	stdout, _, err := h.execute(t, "", "verify")
	require.NoError(t, err)
	assert.Contains(t, stdout, "1 succeeded, 0 failed")

	h.gateway.Remove("hotels")
	_, stderr, err := h.execute(t, "", "verify")
	require.Error(t, err)
	assert.Contains(t, stderr, "[hotels]")
}

func TestSnapshotsCommands(t *testing.T) {
	h := newHarness(t, definition("hotels"), definition("products"))

	stdout, _, err := h.execute(t, "", "snapshots", "list")
	require.NoError(t, err)
	assert.Contains(t, stdout, "no snapshots stored")

	_, _, err = h.execute(t, "", "backup")
	require.NoError(t, err)

	stdout, _, err = h.execute(t, "", "snapshots", "list")
	require.NoError(t, err)
	assert.Contains(t, stdout, "INDEX")
	assert.Contains(t, stdout, "hotels-definition.json")
	assert.Contains(t, stdout, "products")

	stdout, _, err = h.execute(t, "", "snapshots", "show", "hotels", "--payload")
	require.NoError(t, err)
	assert.Contains(t, stdout, `"name": "hotels"`)
	assert.NotContains(t, stdout, "@odata")

	_, _, err = h.execute(t, "nope\n", "snapshots", "delete", "hotels")
	require.Error(t, err)
	assert.Len(t, h.store.Keys(), 2)

	stdout, _, err = h.execute(t, "", "snapshots", "delete", "hotels", "--yes")
	require.NoError(t, err)
	assert.Contains(t, stdout, "snapshot deleted")
	assert.Equal(t, []string{"products-definition.json"}, h.store.Keys())

	_, _, err = h.execute(t, "", "snapshots", "show", "hotels")
	assert.ErrorIs(t, err, index.ErrNotFound)
}

func TestScheduler_Health(t *testing.T) {
	h := newHarness(t, definition("hotels"))

	sched, err := newScheduler(h.app, h.cfg.Schedule.Backup, h.cfg.Schedule.ListenAddr)
	require.NoError(t, err)
	router := sched.router()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "idle", body["state"])
	assert.NotContains(t, body, "lastBackup")

	sched.backup()

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "backed_up", body["state"])
	assert.Contains(t, body, "lastBackup")

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "indexvault_batch_items_total")
}

// blockingGateway holds every definition fetch until release is closed.
type blockingGateway struct {
	ports.ServiceGateway
	once    sync.Once
	started chan struct{}
	release chan struct{}
}

func (g *blockingGateway) GetDefinition(ctx context.Context, name string) (index.Definition, error) {
	g.once.Do(func() { close(g.started) })
	<-g.release
	return g.ServiceGateway.GetDefinition(ctx, name)
}

func TestScheduler_ShutdownWaitsForRunNow(t *testing.T) {
	h := newHarness(t, definition("hotels"))
	gateway := &blockingGateway{started: make(chan struct{}), release: make(chan struct{})}
	h.wrapGateway = func(g ports.ServiceGateway) ports.ServiceGateway {
		gateway.ServiceGateway = g
		return gateway
	}

	sched, err := newScheduler(h.app, h.cfg.Schedule.Backup, h.cfg.Schedule.ListenAddr)
	require.NoError(t, err)

	sched.RunNow()
	select {
	case <-gateway.started:
	case <-time.After(5 * time.Second):
		t.Fatal("backup did not start")
	}

	done := make(chan error, 1)
	go func() { done <- sched.Shutdown(context.Background()) }()

	select {
	case <-done:
		t.Fatal("Shutdown returned while a backup was still running")
	case <-time.After(100 * time.Millisecond):
	}

	close(gateway.release)
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Shutdown did not return after the backup finished")
	}

	record, err := h.repo.GetRecord(context.Background(), "demo")
	require.NoError(t, err)
	assert.Equal(t, lifecycle.StateBackedUp, record.State)
	assert.Equal(t, []string{"hotels-definition.json"}, h.store.Keys())
}

func TestScheduler_InvalidSpec(t *testing.T) {
	h := newHarness(t)
	_, err := newScheduler(h.app, "every day", ":0")
	assert.Error(t, err)
}
