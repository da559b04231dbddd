package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/indexvault-go/internal/domain/lifecycle"
	"github.com/indexvault-go/internal/schema/adapters/blob"
	"github.com/indexvault-go/internal/schema/adapters/credentials"
	"github.com/indexvault-go/internal/schema/adapters/db/repository"
	"github.com/indexvault-go/internal/schema/adapters/lock"
	"github.com/indexvault-go/internal/schema/adapters/provisioner"
	"github.com/indexvault-go/internal/schema/adapters/searchapi"
	"github.com/indexvault-go/internal/schema/app/batch"
	"github.com/indexvault-go/internal/schema/app/controller"
	"github.com/indexvault-go/internal/schema/app/snapshot"
	"github.com/indexvault-go/internal/schema/ports"
	"github.com/indexvault-go/pkg/config"
	"github.com/indexvault-go/pkg/database"
	"github.com/indexvault-go/pkg/events"
	"github.com/indexvault-go/pkg/logger"
	"github.com/indexvault-go/pkg/metrics"
	"github.com/indexvault-go/pkg/telemetry"
)

// App is the wired set of components one command runs against.
type App struct {
	Config     *config.Config
	Logger     logger.Logger
	Telemetry  *telemetry.Telemetry
	Controller *controller.Controller
	Snapshots  *snapshot.Repository

	closers []func(ctx context.Context) error
}

// AppFactory builds an App from loaded configuration.
type AppFactory func(ctx context.Context, cfg *config.Config, log logger.Logger) (*App, error)

type containerStore interface {
	ports.BlobStore
	EnsureContainer(ctx context.Context) error
}

// NewApp connects every adapter selected by cfg.
func NewApp(ctx context.Context, cfg *config.Config, log logger.Logger) (*App, error) {
	app := &App{Config: cfg, Logger: log}
	ok := false
	defer func() {
		if !ok {
			app.Close(context.Background())
		}
	}()

	tel, err := telemetry.New(cfg.Telemetry.ToTelemetryConfig())
	if err != nil {
		return nil, err
	}
	app.Telemetry = tel
	app.onClose(tel.Close)

	store, err := newBlobStore(cfg.Storage)
	if err != nil {
		return nil, err
	}
	if err := store.EnsureContainer(ctx); err != nil {
		return nil, fmt.Errorf("failed to prepare snapshot storage: %w", err)
	}

	db, err := database.New(cfg.State.ToDatabaseConfig())
	if err != nil {
		return nil, err
	}
	app.onClose(func(context.Context) error { return db.Close() })
	if err := repository.Migrate(db); err != nil {
		return nil, err
	}

	locker, err := lock.NewFromConfig(cfg.Lock, log)
	if err != nil {
		return nil, err
	}
	app.onClose(func(context.Context) error { return locker.Close() })

	var publisher events.Publisher = events.NopPublisher{}
	if cfg.Events.Enabled {
		kafka, err := events.NewKafkaPublisher(cfg.Events.ToKafkaConfig())
		if err != nil {
			return nil, fmt.Errorf("failed to create event publisher: %w", err)
		}
		publisher = kafka
		app.onClose(func(context.Context) error { return kafka.Close() })
	}

	creds, err := credentials.NewFromConfig(cfg.Credentials, log)
	if errors.Is(err, credentials.ErrNoCredentials) {
		// Commands that never reach the search service still work.
		creds = credentials.NewStaticProvider("")
	} else if err != nil {
		return nil, err
	}

	gateways := searchapi.NewGatewayFactory(searchapi.Config{
		RequestTimeout:    cfg.Search.RequestTimeout,
		Retry:             cfg.Search.ToRetryConfig(),
		RequestsPerSecond: cfg.Search.RequestsPerSecond,
		Burst:             cfg.Search.Burst,
		BreakerEnabled:    cfg.Search.BreakerEnabled,
		Breaker:           cfg.Search.ToCircuitBreakerConfig(),
	}, log, tel)

	app.Snapshots = snapshot.NewRepository(store, log)
	app.Controller = controller.NewController(controller.Config{
		ServiceName: cfg.Search.ServiceName,
		Endpoint:    cfg.Search.Endpoint,
		Provision: lifecycle.ProvisionParams{
			ServiceName:    cfg.Search.ServiceName,
			SKU:            cfg.Provisioning.SKU,
			ReplicaCount:   cfg.Provisioning.ReplicaCount,
			PartitionCount: cfg.Provisioning.PartitionCount,
			Region:         cfg.Provisioning.Region,
			Parameters:     cfg.Provisioning.Parameters,
		},
	}, controller.Dependencies{
		Repository: repository.NewLifecycleRepository(db),
		Snapshots:  app.Snapshots,
		Runner: batch.NewRunner(batch.Config{
			Workers:     cfg.Batch.Workers,
			ItemTimeout: cfg.Batch.ItemTimeout,
		}, tel, log),
		Gateways:    gateways,
		Credentials: creds,
		Provisioner: provisioner.NewCommandProvisioner(cfg.Provisioning, log),
		Locker:      locker,
		Publisher:   publisher,
		Logger:      log,
	})

	ok = true
	return app, nil
}

// Close pushes metrics and releases every connection. Errors are logged.
func (a *App) Close(ctx context.Context) {
	if a.Config != nil {
		if err := metrics.Push(a.Config.Metrics.PushgatewayURL, a.Config.Metrics.Job); err != nil {
			a.Logger.Warn("Failed to push metrics", "error", err)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			a.Logger.Warn("Failed to close component", "error", err)
		}
	}
	a.closers = nil
}

func (a *App) onClose(fn func(ctx context.Context) error) {
	a.closers = append(a.closers, fn)
}

func newBlobStore(cfg config.StorageConfig) (containerStore, error) {
	switch cfg.Backend {
	case "s3":
		return blob.NewS3StoreFromConfig(blob.S3Config{
			Bucket:          cfg.Container,
			Prefix:          cfg.Prefix,
			Region:          cfg.Region,
			Endpoint:        cfg.Endpoint,
			ForcePathStyle:  cfg.ForcePathStyle,
			AccessKeyID:     cfg.AccessKeyID,
			SecretAccessKey: cfg.SecretAccessKey,
		})
	case "filesystem":
		return blob.NewFilesystemStore(cfg.Path, cfg.Container, cfg.Prefix), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
