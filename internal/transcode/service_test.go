package transcode_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/avfoundry/proxa/internal/asset"
	"github.com/avfoundry/proxa/internal/event"
	"github.com/avfoundry/proxa/internal/eventlog"
	"github.com/avfoundry/proxa/internal/lifecycle"
	"github.com/avfoundry/proxa/internal/transcode"
	"github.com/avfoundry/proxa/pkg/logger"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func init() {
	logger.SetMinLoggingLevel(logger.ERROR.Level())
}

func progress(percent float64) *transcode.JobStatus {
	return &transcode.JobStatus{State: transcode.StateProgressing, ProgressPercent: &percent}
}

// scriptedProvider replays a fixed sequence of poll results; once the
// script is exhausted the final result repeats forever.
type scriptedProvider struct {
	mu     sync.Mutex
	script []*transcode.JobStatus
	idx    int
	polls  int
}

func (p *scriptedProvider) SubmitJob(_ context.Context, _ string, _ string) (string, error) {
	return "job-1", nil
}

func (p *scriptedProvider) PollJob(_ context.Context, _ string) (*transcode.JobStatus, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.polls++
	status := p.script[p.idx]
	if p.idx < len(p.script)-1 {
		p.idx++
	}

	return status, nil
}

func (p *scriptedProvider) pollCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.polls
}

type serviceHarness struct {
	service interface {
		Run(context.Context) error
		AllTasks() []*transcode.PollTask
		TaskForAsset(uuid.UUID) *transcode.PollTask
		CancelTasksForAsset(uuid.UUID)
	}
	store    *asset.MemoryStore
	tracker  *lifecycle.Tracker
	eventBus event.EventCoordinator
	eventLog *eventlog.Log

	cancel func()
	wg     *sync.WaitGroup
}

func newServiceHarness(t *testing.T, provider transcode.Provider, pollIntervalSeconds int) *serviceHarness {
	t.Helper()

	store := asset.NewMemoryStore()
	log := eventlog.New(eventlog.Config{MaxEntries: 100})
	bus := event.New()
	tracker := lifecycle.New(store, log, bus)

	cfg := transcode.Config{
		PollIntervalSeconds:   pollIntervalSeconds,
		PollerParallelism:     2,
		RetryAttempts:         1,
		RetryBaseMilliseconds: 1,
	}

	service, err := transcode.NewPollerService(cfg, provider, tracker, store, bus, log)
	assert.Nil(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	wg := &sync.WaitGroup{}
	wg.Add(1)
	go func() {
		defer wg.Done()
		assert.Nil(t, service.Run(ctx))
	}()
	t.Cleanup(func() {
		cancel()
		wg.Wait()
	})

	// Give the service a moment to register its event handlers before any
	// test dispatches against the bus.
	time.Sleep(50 * time.Millisecond)

	return &serviceHarness{
		service:  service,
		store:    store,
		tracker:  tracker,
		eventBus: bus,
		eventLog: log,
		cancel:   cancel,
		wg:       wg,
	}
}

// announceAsset creates an asset that has completed extraction with its
// remote job recorded, then dispatches it to the poller service.
func (h *serviceHarness) announceAsset(t *testing.T, duration *float64) uuid.UUID {
	t.Helper()

	ctx := context.Background()
	record, err := h.store.Create(ctx, asset.CreateParams{Title: "clip", DurationSeconds: duration})
	assert.Nil(t, err)

	_, err = h.tracker.Transition(ctx, record.ID, lifecycle.ExtractionComplete, lifecycle.Payload{})
	assert.Nil(t, err)
	_, err = h.tracker.RecordJob(ctx, record.ID, "job-1")
	assert.Nil(t, err)

	h.eventBus.Dispatch(event.NewAssetEvent, record.ID)
	return record.ID
}

func (h *serviceHarness) waitForStatus(t *testing.T, id uuid.UUID, want asset.Status) *asset.VideoAsset {
	t.Helper()

	var record *asset.VideoAsset
	assert.Eventually(t, func() bool {
		r, err := h.store.Get(context.Background(), id)
		if err != nil {
			return false
		}

		record = r
		return r.Status == want
	}, 5*time.Second, 20*time.Millisecond, "asset %s never reached status %s", id, want)

	return record
}

func TestPollerDrivesAssetToReady(t *testing.T) {
	provider := &scriptedProvider{script: []*transcode.JobStatus{
		{State: transcode.StateQueued},
		progress(10),
		progress(55),
		{State: transcode.StateComplete, Outputs: asset.OutputFileList{
			{Name: "clip-proxy.mp4", URI: "s3://bucket/proxy/clip-proxy.mp4"},
		}},
	}}
	h := newServiceHarness(t, provider, 0)

	id := h.announceAsset(t, nil)

	record := h.waitForStatus(t, id, asset.StatusReady)
	assert.Len(t, record.OutputFiles, 1)
	assert.Equal(t, "clip-proxy.mp4", record.OutputFiles[0].Name)

	// The concluded task is removed from the service.
	assert.Eventually(t, func() bool {
		return h.service.TaskForAsset(id) == nil
	}, time.Second, 10*time.Millisecond)
}

func TestPollerMarksAssetErroredOnRemoteFailure(t *testing.T) {
	provider := &scriptedProvider{script: []*transcode.JobStatus{
		progress(10),
		{State: transcode.StateError, Reason: "unsupported codec"},
	}}
	h := newServiceHarness(t, provider, 0)

	id := h.announceAsset(t, nil)

	h.waitForStatus(t, id, asset.StatusError)

	entries := h.eventLog.ByAsset(id)
	assert.NotEmpty(t, entries)
	last := entries[len(entries)-1]
	assert.Equal(t, eventlog.LevelError, last.Level)
	assert.Equal(t, "unsupported codec", last.Metadata["reason"])
}

func TestDeletionMidConversionStopsPollerWithoutFurtherWrites(t *testing.T) {
	provider := &scriptedProvider{script: []*transcode.JobStatus{progress(10)}}
	h := newServiceHarness(t, provider, 1)

	id := h.announceAsset(t, nil)
	h.waitForStatus(t, id, asset.StatusConverting)

	// Delete the asset the way the engine would: announce the deletion,
	// then drop the record.
	h.eventBus.Dispatch(event.DeleteAssetEvent, id)
	assert.Nil(t, h.store.Delete(context.Background(), id))

	assert.Eventually(t, func() bool {
		return h.service.TaskForAsset(id) == nil
	}, 3*time.Second, 20*time.Millisecond, "cancelled task was never removed")

	// No further polls or log entries occur once the task is gone.
	entriesBefore := len(h.eventLog.ByAsset(id))
	pollsBefore := provider.pollCount()
	time.Sleep(2500 * time.Millisecond)
	assert.Equal(t, entriesBefore, len(h.eventLog.ByAsset(id)))
	assert.Equal(t, pollsBefore, provider.pollCount())
}

func TestProgressEventsAreFloodControlled(t *testing.T) {
	provider := &scriptedProvider{script: []*transcode.JobStatus{
		progress(10),
		progress(12),
		progress(13),
		progress(20),
		{State: transcode.StateComplete, Outputs: asset.OutputFileList{{Name: "clip-proxy.mp4", URI: "s3://b/clip-proxy.mp4"}}},
	}}
	h := newServiceHarness(t, provider, 0)

	progressEvents := make(event.HandlerChannel, 64)
	h.eventBus.RegisterHandlerChannel(progressEvents, event.TranscodeProgressEvent)

	id := h.announceAsset(t, nil)
	h.waitForStatus(t, id, asset.StatusReady)

	// 10 and 20 are dispatched; 12 and 13 are within 5 points of the last
	// dispatch and suppressed.
	assert.Len(t, progressEvents, 2)
}

func TestAssetWithoutJobIsIgnored(t *testing.T) {
	provider := &scriptedProvider{script: []*transcode.JobStatus{progress(10)}}
	h := newServiceHarness(t, provider, 0)

	record, err := h.store.Create(context.Background(), asset.CreateParams{Title: "no job yet"})
	assert.Nil(t, err)

	h.eventBus.Dispatch(event.NewAssetEvent, record.ID)
	time.Sleep(200 * time.Millisecond)

	assert.Nil(t, h.service.TaskForAsset(record.ID))
	assert.Zero(t, provider.pollCount())
}

func TestDuplicateAnnouncementsSpawnOnePoller(t *testing.T) {
	provider := &scriptedProvider{script: []*transcode.JobStatus{progress(10)}}
	h := newServiceHarness(t, provider, 1)

	id := h.announceAsset(t, nil)
	h.eventBus.Dispatch(event.NewAssetEvent, id)
	h.waitForStatus(t, id, asset.StatusConverting)

	assert.Len(t, h.service.AllTasks(), 1)
}
