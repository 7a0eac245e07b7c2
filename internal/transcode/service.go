package transcode

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/avfoundry/proxa/internal/asset"
	"github.com/avfoundry/proxa/internal/event"
	"github.com/avfoundry/proxa/internal/eventlog"
	"github.com/avfoundry/proxa/internal/lifecycle"
	"github.com/avfoundry/proxa/internal/verr"
	"github.com/avfoundry/proxa/pkg/logger"
	"github.com/avfoundry/proxa/pkg/worker"
	"github.com/google/uuid"
)

var log = logger.Get("PollerServ")

type (
	DataStore interface {
		Get(ctx context.Context, id uuid.UUID) (*asset.VideoAsset, error)
	}

	StatusTracker interface {
		Transition(ctx context.Context, assetID uuid.UUID, ev lifecycle.Event, payload lifecycle.Payload) (*asset.VideoAsset, error)
	}

	// pollerService owns the progress pollers for in-flight remote jobs:
	//   - One cancellable poll task per active job
	//   - A worker pool bounding how many tasks poll concurrently
	//   - Reconciliation of remote job state in to the status tracker
	//   - Cancellation of pollers when their asset is deleted
	pollerService struct {
		*sync.Mutex
		taskWg *sync.WaitGroup
		config Config

		provider Provider
		tracker  StatusTracker
		store    DataStore
		eventBus event.EventCoordinator
		eventLog *eventlog.Log

		runCtx context.Context
		tasks  []*PollTask
		pool   *worker.WorkerPool
	}
)

// NewPollerService wires the poller service and fills its worker pool. The
// provider given here should already be retry-wrapped.
func NewPollerService(
	config Config,
	provider Provider,
	tracker StatusTracker,
	store DataStore,
	eventBus event.EventCoordinator,
	eventLog *eventlog.Log,
) (*pollerService, error) {
	if config.PollerParallelism < 1 {
		return nil, verr.Newf(verr.Configuration, "poller parallelism must be at least 1 (found %d)", config.PollerParallelism)
	}

	service := &pollerService{
		Mutex:    &sync.Mutex{},
		taskWg:   &sync.WaitGroup{},
		config:   config,
		provider: provider,
		tracker:  tracker,
		store:    store,
		eventBus: eventBus,
		eventLog: eventLog,
		tasks:    make([]*PollTask, 0),
		pool:     worker.NewWorkerPool(),
	}

	for i := 0; i < config.PollerParallelism; i++ {
		label := fmt.Sprintf("poller-worker-%d", i)
		service.pool.PushWorker(worker.NewWorker(label, service.performPoll))
	}

	return service, nil
}

// Run is the main entry point for this service; it blocks until the
// provided context is cancelled. New assets announced on the event bus get
// a poll task queued; deleted assets have their tasks cancelled.
func (service *pollerService) Run(ctx context.Context) error {
	service.runCtx = ctx

	eventChannel := make(event.HandlerChannel, 128)
	service.eventBus.RegisterHandlerChannel(eventChannel, event.NewAssetEvent, event.DeleteAssetEvent)

	if err := service.pool.Start(); err != nil {
		return err
	}

	for {
		select {
		case message := <-eventChannel:
			//exhaustive:ignore
			switch message.Event {
			case event.NewAssetEvent:
				if assetID, ok := message.Payload.(uuid.UUID); ok {
					service.spawnPollerForAsset(ctx, assetID)
				} else {
					log.Emit(logger.ERROR, "failed to extract UUID from %s event (payload %#v)\n", message.Event, message.Payload)
				}
			case event.DeleteAssetEvent:
				if assetID, ok := message.Payload.(uuid.UUID); ok {
					log.Emit(logger.DEBUG, "asset %s deleted, cancelling any active poller\n", assetID)
					service.CancelTasksForAsset(assetID)
				} else {
					log.Emit(logger.ERROR, "failed to extract UUID from %s event (payload %#v)\n", message.Event, message.Payload)
				}
			}
		case <-ctx.Done():
			log.Emit(logger.STOP, "Shutting down (context cancelled). Waiting for poll tasks to conclude.\n")
			service.cancelAllTasks()
			service.pool.Close()
			service.taskWg.Wait()
			return nil
		}
	}
}

// AllTasks returns the poll tasks currently known to this service.
func (service *pollerService) AllTasks() []*PollTask {
	service.Lock()
	defer service.Unlock()

	return append([]*PollTask{}, service.tasks...)
}

// TaskForAsset returns the poll task bound to the asset ID provided, if one
// exists.
func (service *pollerService) TaskForAsset(assetID uuid.UUID) *PollTask {
	service.Lock()
	defer service.Unlock()

	return service.taskForAssetLocked(assetID)
}

func (service *pollerService) taskForAssetLocked(assetID uuid.UUID) *PollTask {
	for _, t := range service.tasks {
		if t.assetID == assetID {
			return t
		}
	}

	return nil
}

// CancelTasksForAsset finds and cancels any poll task bound to the asset ID
// provided. The cancelled tasks perform no further state writes or event
// log entries.
func (service *pollerService) CancelTasksForAsset(assetID uuid.UUID) {
	service.Lock()
	defer service.Unlock()

	remaining := service.tasks[:0]
	for _, t := range service.tasks {
		if t.assetID == assetID {
			t.cancel()
			log.Emit(logger.STOP, "Cancelled %s\n", t)
			continue
		}

		remaining = append(remaining, t)
	}
	service.tasks = remaining
}

func (service *pollerService) cancelAllTasks() {
	service.Lock()
	defer service.Unlock()

	for _, t := range service.tasks {
		t.cancel()
	}
	service.tasks = service.tasks[:0]
}

// spawnPollerForAsset queues a poll task for the assets recorded remote
// job. The task begins polling as soon as a pool worker is free to claim
// it.
func (service *pollerService) spawnPollerForAsset(ctx context.Context, assetID uuid.UUID) {
	record, err := service.store.Get(ctx, assetID)
	if err != nil {
		log.Emit(logger.ERROR, "cannot spawn poller for asset %s: %v\n", assetID, err)
		return
	}

	if record.JobID == nil {
		log.Emit(logger.WARNING, "asset %s announced as new but has no remote job recorded\n", assetID)
		return
	}

	service.Lock()
	defer service.Unlock()

	if existing := service.taskForAssetLocked(assetID); existing != nil {
		log.Emit(logger.WARNING, "poller for asset %s already exists (%s)\n", assetID, existing)
		return
	}

	expectedDuration := 0.0
	if record.DurationSeconds != nil {
		expectedDuration = *record.DurationSeconds
	}

	task := newPollTask(assetID, *record.JobID, expectedDuration)
	service.tasks = append(service.tasks, task)
	log.Emit(logger.NEW, "Queued %s\n", task)

	service.pool.WakeupWorkers()
}

// performPoll is the worker function for this service: it claims the first
// WAITING task and polls its remote job to a terminal state. Returns false
// when no task was available, sending the worker back to sleep.
func (service *pollerService) performPoll(w worker.Worker) (bool, error) {
	task := service.claimWaitingTask()
	if task == nil {
		return false, nil
	}

	service.taskWg.Add(1)
	defer service.taskWg.Done()

	log.Emit(logger.DEBUG, "Worker %s claimed %s\n", w.Label(), task)
	service.pollToCompletion(service.runCtx, task)
	service.removeTask(task.id)
	return true, nil
}

func (service *pollerService) claimWaitingTask() *PollTask {
	service.Lock()
	defer service.Unlock()

	for _, t := range service.tasks {
		if t.claim() {
			return t
		}
	}

	return nil
}

func (service *pollerService) removeTask(taskID uuid.UUID) {
	service.Lock()
	defer service.Unlock()

	for i, t := range service.tasks {
		if t.id == taskID {
			service.tasks = append(service.tasks[:i], service.tasks[i+1:]...)
			return
		}
	}
}

// pollToCompletion reconciles the remote job in to the status tracker until
// a terminal state is reached, the task is cancelled, or the service
// context ends. The fixed sleep between polls is the only suspension point.
func (service *pollerService) pollToCompletion(ctx context.Context, task *PollTask) {
	interval := service.config.PollInterval()

	for {
		if task.isCancelled() || ctx.Err() != nil {
			return
		}

		status, err := service.provider.PollJob(ctx, task.jobID)
		if task.isCancelled() || ctx.Err() != nil {
			return
		}

		if err != nil {
			// Retries were already applied by the provider wrapper; this
			// failure is final for the job.
			service.transition(ctx, task, lifecycle.Errored, lifecycle.Payload{Reason: err.Error()})
			task.setState(COMPLETE)
			return
		}

		switch status.State {
		case StateQueued:
			// Remote job not started yet; keep waiting.
		case StateProgressing:
			progress := task.progressEstimate(status)
			if !service.transition(ctx, task, lifecycle.RemoteProgressing, lifecycle.Payload{Progress: progress}) {
				task.setState(COMPLETE)
				return
			}

			if progress-task.lastDispatched >= 5 {
				task.lastDispatched = progress
				service.eventBus.Dispatch(event.TranscodeProgressEvent, task.assetID)
			}
		case StateComplete:
			service.transition(ctx, task, lifecycle.RemoteComplete, lifecycle.Payload{OutputFiles: status.Outputs})
			task.setState(COMPLETE)
			return
		case StateError:
			service.transition(ctx, task, lifecycle.Errored, lifecycle.Payload{Reason: status.Reason})
			task.setState(COMPLETE)
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-task.cancelChan:
			return
		case <-time.After(interval):
		}
	}
}

// transition routes a state change through the status tracker. Returns
// false when the asset no longer exists (deleted mid-flight), signalling
// the caller to stop polling.
func (service *pollerService) transition(ctx context.Context, task *PollTask, ev lifecycle.Event, payload lifecycle.Payload) bool {
	if _, err := service.tracker.Transition(ctx, task.assetID, ev, payload); err != nil {
		if verr.IsKind(err, verr.NotFound) {
			log.Emit(logger.DEBUG, "asset %s no longer exists; stopping poller\n", task.assetID)
			return false
		}

		log.Emit(logger.ERROR, "transition %s for asset %s failed: %v\n", ev, task.assetID, err)
	}

	return true
}
