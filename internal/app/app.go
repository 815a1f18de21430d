// Package app wires together the Task Scheduler, Chunked Upload
// Coordinator, Media Lifecycle Service, Cleanup/Reconciliation Service,
// and HTTP contract layer from a loaded Config, the way the teacher's
// cmd/dittofs/commands/start.go assembles its Runtime before calling
// rt.Serve.
package app

import (
	"context"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/jeremybastin1207/mindia/internal/config"
	"github.com/jeremybastin1207/mindia/internal/dbstore"
	"github.com/jeremybastin1207/mindia/internal/httpapi"
	"github.com/jeremybastin1207/mindia/pkg/capacity"
	"github.com/jeremybastin1207/mindia/pkg/cleanup"
	"github.com/jeremybastin1207/mindia/pkg/lifecycle"
	"github.com/jeremybastin1207/mindia/pkg/media"
	"github.com/jeremybastin1207/mindia/pkg/objectstore"
	"github.com/jeremybastin1207/mindia/pkg/objectstore/local"
	objs3 "github.com/jeremybastin1207/mindia/pkg/objectstore/s3"
	"github.com/jeremybastin1207/mindia/pkg/ratelimit"
	"github.com/jeremybastin1207/mindia/pkg/scheduler"
	"github.com/jeremybastin1207/mindia/pkg/task"
	"github.com/jeremybastin1207/mindia/pkg/upload"
	"github.com/jeremybastin1207/mindia/pkg/webhook"
)

// App holds every long-lived component cmd/mindia's serve and admin
// commands depend on.
type App struct {
	Config      *config.Config
	Store       *dbstore.GORMStore
	ObjectStore objectstore.Store

	MediaRepo  *media.Repository
	TaskRepo   *task.Repository
	UploadRepo *upload.Repository

	Coordinator *upload.Coordinator
	Scheduler   *scheduler.Scheduler
	Lifecycle   *lifecycle.Service
	Cleanup     *cleanup.Service

	TaskHandler   *httpapi.TaskHandler
	UploadHandler *httpapi.UploadHandler
}

// New constructs an App from cfg, opening the database and object store
// and wiring every subsystem, but does not start the scheduler (the
// caller decides when to Start/Shutdown it).
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	models := append(append([]interface{}{}, media.AllModels()...), task.AllModels()...)
	models = append(models, upload.AllModels()...)

	store, err := dbstore.New(&dbstore.Config{
		Type:     dbstore.DatabaseType(cfg.Database.Type),
		SQLite:   cfg.Database.SQLite,
		Postgres: cfg.Database.Postgres,
	}, models...)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	objStore, err := newObjectStore(ctx, cfg.ObjectStore)
	if err != nil {
		return nil, fmt.Errorf("open object store: %w", err)
	}

	mediaRepo := media.NewRepository(store.DB(), objStore)
	taskRepo := task.NewRepository(store)
	uploadRepo := upload.NewRepository(store.DB())

	emitter := webhook.LoggingEmitter{}
	coordinator := upload.NewCoordinator(uploadRepo, mediaRepo, objStore, emitter)
	coordinator = coordinator.WithKindSizeLimit(media.KindImage, int64(cfg.Upload.MaxDeclaredSize))

	var embeddings lifecycle.EmbeddingStore
	lifecycleSvc := lifecycle.NewService(objStore, embeddings)

	var orphans cleanup.PrefixLister
	if s3Store, ok := objStore.(*objs3.Store); ok {
		orphans = s3Store
	}
	cleanupSvc := cleanup.NewService(cleanup.Config{
		ExpiredMediaBatchSize:     cfg.Cleanup.OrphanReconcileBatch,
		FinishedTaskRetentionDays: int(cfg.Cleanup.FinishedTaskRetention.Hours() / 24),
		OrphanReconcileEnabled:    orphans != nil,
		OrphanSafetyWindow:        cfg.Cleanup.Interval,
	}, mediaRepo, lifecycleSvc, taskRepo, orphans)

	limiter := ratelimit.New(ratelimit.Config{
		Shards:            cfg.RateLimiter.Shards,
		RequestsPerSecond: cfg.RateLimiter.RequestsPerSecond,
		Burst:             cfg.RateLimiter.Burst,
	})

	gate := newCapacityGate(cfg.CapacityGate)

	registry := task.NewHandlerRegistry()
	holder := task.NewContextHolder(&task.HandlerContext{Registry: registry})

	postgresDSN := ""
	if cfg.Database.Type == "postgres" {
		postgresDSN = cfg.Database.Postgres.DSN()
	}
	sched := scheduler.New(scheduler.Config{
		WorkerCount:           cfg.Scheduler.WorkerCount,
		PollInterval:          cfg.Scheduler.PollInterval,
		DefaultTimeoutSeconds: int(cfg.Scheduler.StaleTaskAfter.Seconds()),
		PostgresDSN:           postgresDSN,
	}, taskRepo, holder, limiter, gate, emitter)

	return &App{
		Config:        cfg,
		Store:         store,
		ObjectStore:   objStore,
		MediaRepo:     mediaRepo,
		TaskRepo:      taskRepo,
		UploadRepo:    uploadRepo,
		Coordinator:   coordinator,
		Scheduler:     sched,
		Lifecycle:     lifecycleSvc,
		Cleanup:       cleanupSvc,
		TaskHandler:   httpapi.NewTaskHandler(taskRepo),
		UploadHandler: httpapi.NewUploadHandler(coordinator),
	}, nil
}

func newObjectStore(ctx context.Context, cfg config.ObjectStoreConfig) (objectstore.Store, error) {
	switch cfg.Type {
	case "s3":
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			if cfg.Endpoint != "" {
				o.BaseEndpoint = &cfg.Endpoint
			}
			o.UsePathStyle = cfg.ForcePathStyle
		})
		return objs3.New(client, objs3.Config{
			Bucket:         cfg.Bucket,
			Region:         cfg.Region,
			Endpoint:       cfg.Endpoint,
			KeyPrefix:      cfg.KeyPrefix,
			ForcePathStyle: cfg.ForcePathStyle,
		}), nil
	default:
		return local.New(local.Config{RootDir: cfg.LocalRootDir, BaseURL: cfg.LocalBaseURL})
	}
}

func newCapacityGate(cfg config.CapacityGateConfig) capacity.Gate {
	if !cfg.Enabled {
		return capacity.AlwaysAccept{}
	}
	sampler := capacity.NewSampler(capacity.Thresholds{
		MaxDiskUsedPercent:  cfg.MaxDiskUsedPercent,
		MaxMemoryAllocBytes: cfg.MaxMemoryAllocBytes,
		MaxLoadAverage1m:    cfg.MaxLoadAverage1m,
		DiskBlocks:          cfg.DiskBlocks,
		MemoryBlocks:        cfg.MemoryBlocks,
		LoadBlocks:          cfg.LoadBlocks,
		DiskPath:            cfg.DiskPath,
	}, cfg.SampleInterval)
	go sampler.Run()
	return sampler
}

// Close releases the database connection. The object store and scheduler
// are closed/shut down separately by the caller, which controls their
// lifecycle relative to in-flight requests.
func (a *App) Close() error {
	db, err := a.Store.DB().DB()
	if err != nil {
		return err
	}
	return db.Close()
}
