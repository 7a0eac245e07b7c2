package ingest_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/avfoundry/proxa/internal/asset"
	"github.com/avfoundry/proxa/internal/blob"
	"github.com/avfoundry/proxa/internal/event"
	"github.com/avfoundry/proxa/internal/eventlog"
	"github.com/avfoundry/proxa/internal/ingest"
	"github.com/avfoundry/proxa/internal/lifecycle"
	"github.com/avfoundry/proxa/internal/probe"
	"github.com/avfoundry/proxa/internal/transcode"
	"github.com/avfoundry/proxa/internal/verr"
	"github.com/avfoundry/proxa/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func init() {
	logger.SetMinLoggingLevel(logger.ERROR.Level())
}

var ctx = context.Background()

type mockProbe struct {
	mock.Mock
}

func (m *mockProbe) ExtractThumbnail(ctx context.Context, path string) (string, error) {
	args := m.Called(path)
	return args.String(0), args.Error(1)
}

func (m *mockProbe) ExtractMetadata(ctx context.Context, path string) (*probe.Metadata, error) {
	args := m.Called(path)
	if v, ok := args.Get(0).(*probe.Metadata); ok {
		return v, args.Error(1)
	}

	return nil, args.Error(1)
}

type mockProvider struct {
	mock.Mock
}

func (m *mockProvider) SubmitJob(ctx context.Context, sourceURI string, outputProfile string) (string, error) {
	args := m.Called(sourceURI, outputProfile)
	return args.String(0), args.Error(1)
}

func (m *mockProvider) PollJob(ctx context.Context, jobID string) (*transcode.JobStatus, error) {
	args := m.Called(jobID)
	if v, ok := args.Get(0).(*transcode.JobStatus); ok {
		return v, args.Error(1)
	}

	return nil, args.Error(1)
}

type coordinatorHarness struct {
	coordinator *ingest.Coordinator
	store       *asset.MemoryStore
	eventLog    *eventlog.Log
	probe       *mockProbe
	provider    *mockProvider
	blobDir     string
}

func newCoordinatorHarness(t *testing.T) *coordinatorHarness {
	t.Helper()

	blobDir := t.TempDir()
	blobs, err := blob.NewStore(blob.Config{Driver: "local", BaseDir: blobDir})
	assert.Nil(t, err)

	store := asset.NewMemoryStore()
	log := eventlog.New(eventlog.Config{MaxEntries: 100})
	tracker := lifecycle.New(store, log, event.New())
	probeMock := new(mockProbe)
	providerMock := new(mockProvider)

	cfg := ingest.Config{
		MaxFileSizeBytes: 1_000_000_000,
		AllowedMimeTypes: []string{"video/mp4", "video/webm", "video/ogg"},
		OutputProfile:    "proxy",
	}

	return &coordinatorHarness{
		coordinator: ingest.NewCoordinator(cfg, probeMock, providerMock, store, blobs, tracker, event.New(), log),
		store:       store,
		eventLog:    log,
		probe:       probeMock,
		provider:    providerMock,
		blobDir:     blobDir,
	}
}

func writeTempVideo(t *testing.T, name string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	assert.Nil(t, os.WriteFile(path, []byte("not really mpeg4 data"), 0o644))
	return path
}

func writeTempThumbnail(t *testing.T) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "thumb.jpg")
	assert.Nil(t, os.WriteFile(path, []byte("not really a jpeg"), 0o644))
	return path
}

func validSubmission(t *testing.T) ingest.Submission {
	t.Helper()

	return ingest.Submission{
		Path:      writeTempVideo(t, "holiday.mp4"),
		FileName:  "holiday.mp4",
		MimeType:  "video/mp4",
		SizeBytes: 1024,
		Title:     "Holiday Footage",
	}
}

func metadataFixture() *probe.Metadata {
	return &probe.Metadata{DurationSeconds: 42.5, Width: 1920, Height: 1080, Codec: "h264"}
}

func TestSubmitHappyPath(t *testing.T) {
	h := newCoordinatorHarness(t)
	submission := validSubmission(t)

	h.probe.On("ExtractThumbnail", submission.Path).Return(writeTempThumbnail(t), nil)
	h.probe.On("ExtractMetadata", submission.Path).Return(metadataFixture(), nil)
	h.provider.On("SubmitJob", mock.Anything, "proxy").Return("job-123", nil)

	record, err := h.coordinator.Submit(ctx, submission)
	assert.Nil(t, err)
	assert.Equal(t, asset.StatusProcessing, record.Status)
	assert.Equal(t, "Holiday Footage", record.Title)
	assert.NotNil(t, record.JobID)
	assert.Equal(t, "job-123", *record.JobID)
	assert.Equal(t, 42.5, *record.DurationSeconds)
	assert.Equal(t, 1920, *record.Width)
	assert.Equal(t, "h264", *record.Codec)

	// Source and thumbnail were both persisted to the blob store.
	assert.FileExists(t, filepath.Join(h.blobDir, record.SourceRef))
	assert.FileExists(t, filepath.Join(h.blobDir, record.ThumbnailRef))

	// Creation, the processing transition and the job recording were all
	// logged against the asset.
	assert.GreaterOrEqual(t, len(h.eventLog.ByAsset(record.ID)), 3)
	h.provider.AssertExpectations(t)
}

func TestSubmitDefaultsTitleToFileName(t *testing.T) {
	h := newCoordinatorHarness(t)
	submission := validSubmission(t)
	submission.Title = ""

	h.probe.On("ExtractThumbnail", submission.Path).Return(writeTempThumbnail(t), nil)
	h.probe.On("ExtractMetadata", submission.Path).Return(metadataFixture(), nil)
	h.provider.On("SubmitJob", mock.Anything, "proxy").Return("job-123", nil)

	record, err := h.coordinator.Submit(ctx, submission)
	assert.Nil(t, err)
	assert.Equal(t, "holiday", record.Title)
}

func TestSubmitRejectsUnsupportedMimeTypeBeforeAnySideEffect(t *testing.T) {
	h := newCoordinatorHarness(t)
	submission := validSubmission(t)
	submission.FileName = "photo.png"
	submission.MimeType = "image/png"

	_, err := h.coordinator.Submit(ctx, submission)
	assert.True(t, verr.IsKind(err, verr.Validation))

	// No extraction ran, no asset exists, nothing was logged.
	h.probe.AssertNotCalled(t, "ExtractThumbnail", mock.Anything)
	all, _ := h.store.List(ctx)
	assert.Empty(t, all)
	assert.Equal(t, 0, h.eventLog.Len())
}

func TestSubmitRejectsOversizedFile(t *testing.T) {
	h := newCoordinatorHarness(t)
	submission := validSubmission(t)
	submission.SizeBytes = 2_000_000_000

	_, err := h.coordinator.Submit(ctx, submission)
	assert.True(t, verr.IsKind(err, verr.Validation))
	assert.Equal(t, 0, h.eventLog.Len())
}

func TestSubmitAbortsWhenExtractionFails(t *testing.T) {
	h := newCoordinatorHarness(t)
	submission := validSubmission(t)

	h.probe.On("ExtractThumbnail", submission.Path).Return(writeTempThumbnail(t), nil)
	h.probe.On("ExtractMetadata", submission.Path).Return(nil, verr.New(verr.Processing, "no video stream found"))

	_, err := h.coordinator.Submit(ctx, submission)
	assert.True(t, verr.IsKind(err, verr.Processing))

	// All-or-nothing: no asset record, no blobs, and the failure was
	// recorded in the event log without an asset binding.
	all, _ := h.store.List(ctx)
	assert.Empty(t, all)
	entries := h.eventLog.ByTimeRange(time.Time{}, time.Now().Add(time.Hour))
	assert.Len(t, entries, 1)
	assert.Equal(t, eventlog.LevelError, entries[0].Level)
	assert.Nil(t, entries[0].AssetID)
	h.provider.AssertNotCalled(t, "SubmitJob", mock.Anything, mock.Anything)
}

func TestSubmitMarksAssetErroredWhenJobSubmissionFails(t *testing.T) {
	h := newCoordinatorHarness(t)
	submission := validSubmission(t)

	h.probe.On("ExtractThumbnail", submission.Path).Return(writeTempThumbnail(t), nil)
	h.probe.On("ExtractMetadata", submission.Path).Return(metadataFixture(), nil)
	h.provider.On("SubmitJob", mock.Anything, "proxy").Return("", errors.New("mediaconvert unavailable"))

	_, err := h.coordinator.Submit(ctx, submission)
	assert.NotNil(t, err)

	// The asset record survives, parked in the error state.
	all, listErr := h.store.List(ctx)
	assert.Nil(t, listErr)
	assert.Len(t, all, 1)
	assert.Equal(t, asset.StatusError, all[0].Status)
	assert.Nil(t, all[0].JobID)
}
