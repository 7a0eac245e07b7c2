package internal

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/avfoundry/proxa/internal/asset"
	"github.com/avfoundry/proxa/internal/blob"
	"github.com/avfoundry/proxa/internal/database"
	"github.com/avfoundry/proxa/internal/event"
	"github.com/avfoundry/proxa/internal/eventlog"
	"github.com/avfoundry/proxa/internal/ingest"
	"github.com/avfoundry/proxa/internal/lifecycle"
	"github.com/avfoundry/proxa/internal/probe"
	"github.com/avfoundry/proxa/internal/transcode"
	"github.com/avfoundry/proxa/pkg/docker"
	"github.com/avfoundry/proxa/pkg/logger"
	"github.com/docker/go-connections/nat"
	"github.com/google/uuid"
)

var log = logger.Get("Core")

type (
	RunnableService interface {
		Run(context.Context) error
	}

	PollerService interface {
		RunnableService
		CancelTasksForAsset(uuid.UUID)
		AllTasks() []*transcode.PollTask
		TaskForAsset(uuid.UUID) *transcode.PollTask
	}
)

// Engine is the top-level object for the lifecycle-orchestration core. It
// wires the stores, event bus, event log and services together, and exposes
// the upward API consumed by the transport layer (ingest, get, list,
// delete, log queries).
type Engine struct {
	config   EngineConfig
	eventBus event.EventCoordinator
	eventLog *eventlog.Log

	db          database.Manager
	store       asset.Store
	blobs       blob.Store
	tracker     *lifecycle.Tracker
	coordinator *ingest.Coordinator

	pollerService PollerService
	watcher       *ingest.Watcher
	dockerMgr     docker.Manager
}

// New constructs the engine and all of its services. Configuration faults
// (missing provider credentials, unresolvable media tooling, bad blob
// driver) are surfaced here, before anything runs.
func New(config EngineConfig) (*Engine, error) {
	eng := &Engine{
		config:   config,
		eventBus: event.New(),
		eventLog: eventlog.New(config.EventLog),
	}

	if config.InMemoryStore {
		eng.store = asset.NewMemoryStore()
	} else {
		eng.db = database.New()
		eng.store = asset.NewPostgresStore(eng.db)
	}

	blobs, err := blob.NewStore(config.Blob)
	if err != nil {
		return nil, err
	}
	eng.blobs = blobs

	mediaProbe, err := probe.New(config.Probe)
	if err != nil {
		return nil, err
	}

	mediaConvert, err := transcode.NewMediaConvertProvider(config.Transcode.MediaConvert)
	if err != nil {
		return nil, err
	}
	provider := transcode.WithRetries(mediaConvert, config.Transcode.RetryAttempts, config.Transcode.RetryBase())

	eng.tracker = lifecycle.New(eng.store, eng.eventLog, eng.eventBus)
	eng.coordinator = ingest.NewCoordinator(
		config.Ingest, mediaProbe, provider, eng.store, eng.blobs, eng.tracker, eng.eventBus, eng.eventLog,
	)

	pollerService, err := transcode.NewPollerService(
		config.Transcode, provider, eng.tracker, eng.store, eng.eventBus, eng.eventLog,
	)
	if err != nil {
		return nil, err
	}
	eng.pollerService = pollerService

	watcher, err := ingest.NewWatcher(config.Ingest, eng.coordinator)
	if err != nil {
		return nil, err
	}
	eng.watcher = watcher

	return eng, nil
}

// Run brings up the supporting services and connections (optional embedded
// database container, database connection, poller service, watch folder)
// and blocks until the provided context is cancelled, or until a service
// crashes.
func (eng *Engine) Run(parent context.Context) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	crashHandler := func(label string, err error) {
		log.Emit(logger.FATAL, "Service crash (%s)! %s\n", label, err.Error())
		cancel()
	}

	if eng.config.Services.EnablePostgres {
		mgr, err := docker.NewManager()
		if err != nil {
			return err
		}
		eng.dockerMgr = mgr
		defer eng.dockerMgr.Shutdown(time.Second * 10)

		if err := eng.spawnPostgresContainer(ctx); err != nil {
			return err
		}
	}

	if eng.db != nil {
		log.Emit(logger.NEW, "Connecting to database...\n")
		if err := eng.db.Connect(eng.config.Database); err != nil {
			return err
		}
	}

	wg := &sync.WaitGroup{}
	eng.spawnAsyncService(ctx, wg, eng.pollerService, "poller-service", crashHandler)
	eng.spawnAsyncService(ctx, wg, eng.watcher, "ingest-watcher", crashHandler)
	log.Emit(logger.SUCCESS, "Engine services spawned!\n")

	wg.Wait()
	return nil
}

// Ingest validates and ingests the provided submission. See
// ingest.Coordinator Submit for the full contract.
func (eng *Engine) Ingest(ctx context.Context, submission ingest.Submission) (*asset.VideoAsset, error) {
	return eng.coordinator.Submit(ctx, submission)
}

func (eng *Engine) GetAsset(ctx context.Context, id uuid.UUID) (*asset.VideoAsset, error) {
	return eng.store.Get(ctx, id)
}

func (eng *Engine) ListAssets(ctx context.Context) ([]*asset.VideoAsset, error) {
	return eng.store.List(ctx)
}

// DeleteAsset removes the asset record and its binary artifacts. Any
// active poller bound to the asset observes the cancellation and stops
// before its next poll, performing no further state writes or log entries.
func (eng *Engine) DeleteAsset(ctx context.Context, id uuid.UUID) error {
	record, err := eng.store.Get(ctx, id)
	if err != nil {
		return err
	}

	eng.eventBus.Dispatch(event.DeleteAssetEvent, id)
	eng.pollerService.CancelTasksForAsset(id)

	if err := eng.store.Delete(ctx, id); err != nil {
		return err
	}
	eng.tracker.Forget(id)

	for _, ref := range []string{record.SourceRef, record.ThumbnailRef} {
		if ref == "" {
			continue
		}
		if err := eng.blobs.Remove(ctx, ref); err != nil {
			log.Emit(logger.WARNING, "failed to remove blob %s for deleted asset %s: %v\n", ref, id, err)
		}
	}

	log.Emit(logger.REMOVE, "Deleted asset %s\n", id)
	return nil
}

// ConversionStatus reports where the asset is in its lifecycle, alongside
// any playable outputs once it is ready.
func (eng *Engine) ConversionStatus(ctx context.Context, id uuid.UUID) (asset.Status, asset.OutputFileList, error) {
	record, err := eng.store.Get(ctx, id)
	if err != nil {
		return "", nil, err
	}

	return record.Status, record.OutputFiles, nil
}

func (eng *Engine) AssetLogs(id uuid.UUID) []eventlog.Entry {
	return eng.eventLog.ByAsset(id)
}

func (eng *Engine) LogsBetween(start time.Time, end time.Time) []eventlog.Entry {
	return eng.eventLog.ByTimeRange(start, end)
}

// spawnAsyncService will run the provided service as its own goroutine,
// ensuring that the engine service waitgroup is updated correctly.
func (eng *Engine) spawnAsyncService(ctx context.Context, wg *sync.WaitGroup, service RunnableService, serviceLabel string, crashHandler func(string, error)) {
	log.Emit(logger.NEW, "Spawning %s\n", serviceLabel)
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := service.Run(ctx); err != nil {
			crashHandler(serviceLabel, err)
		}
	}()
}

func (eng *Engine) spawnPostgresContainer(ctx context.Context) error {
	port := nat.Port(fmt.Sprintf("%s/tcp", eng.config.Database.Port))
	spec := docker.ContainerSpec{
		Label: "proxa-postgres",
		Image: eng.config.Services.PostgresImage,
		Env: []string{
			fmt.Sprintf("POSTGRES_USER=%s", eng.config.Database.User),
			fmt.Sprintf("POSTGRES_PASSWORD=%s", eng.config.Database.Password),
			fmt.Sprintf("POSTGRES_DB=%s", eng.config.Database.Name),
		},
		Ports: nat.PortMap{
			"5432/tcp": []nat.PortBinding{{HostIP: "0.0.0.0", HostPort: port.Port()}},
		},
	}

	log.Emit(logger.NEW, "Initialising embedded PostgreSQL container...\n")
	return eng.dockerMgr.SpawnContainer(ctx, spec)
}
