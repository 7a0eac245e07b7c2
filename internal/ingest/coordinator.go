// Package ingest orchestrates the initial ingestion of an uploaded media
// file: validation, concurrent thumbnail/metadata extraction, asset record
// creation and the submission of the remote transcode job.
package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/avfoundry/proxa/internal/asset"
	"github.com/avfoundry/proxa/internal/blob"
	"github.com/avfoundry/proxa/internal/event"
	"github.com/avfoundry/proxa/internal/eventlog"
	"github.com/avfoundry/proxa/internal/lifecycle"
	"github.com/avfoundry/proxa/internal/probe"
	"github.com/avfoundry/proxa/internal/transcode"
	"github.com/avfoundry/proxa/internal/verr"
	"github.com/avfoundry/proxa/pkg/logger"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

var log = logger.Get("Ingest")

type (
	// Submission is the already-validated, request-independent input to
	// the coordinator: a local file plus the metadata collected alongside
	// the upload. The HTTP layer (or the watch-folder) is responsible for
	// landing the file on disk before calling Submit.
	Submission struct {
		Path        string `validate:"required"`
		FileName    string `validate:"required"`
		MimeType    string `validate:"required"`
		SizeBytes   int64  `validate:"gte=0"`
		Title       string
		Description string
	}

	StatusTracker interface {
		Transition(ctx context.Context, assetID uuid.UUID, ev lifecycle.Event, payload lifecycle.Payload) (*asset.VideoAsset, error)
		RecordJob(ctx context.Context, assetID uuid.UUID, jobID string) (*asset.VideoAsset, error)
	}

	// Coordinator runs the ingestion workflow. Extraction and record
	// creation are all-or-nothing: no partial asset ever becomes visible.
	Coordinator struct {
		config   Config
		probe    probe.MediaProbe
		provider transcode.Provider
		store    asset.Store
		blobs    blob.Store
		tracker  StatusTracker
		eventBus event.EventDispatcher
		eventLog *eventlog.Log
		validate *validator.Validate
	}
)

func NewCoordinator(
	config Config,
	mediaProbe probe.MediaProbe,
	provider transcode.Provider,
	store asset.Store,
	blobs blob.Store,
	tracker StatusTracker,
	eventBus event.EventDispatcher,
	eventLog *eventlog.Log,
) *Coordinator {
	return &Coordinator{
		config:   config,
		probe:    mediaProbe,
		provider: provider,
		store:    store,
		blobs:    blobs,
		tracker:  tracker,
		eventBus: eventBus,
		eventLog: eventLog,
		validate: validator.New(),
	}
}

// Submit ingests the provided file: it validates the submission, runs
// thumbnail and metadata extraction concurrently, stores the binaries,
// creates the asset record and submits the remote transcode job. On success
// the returned asset is in 'processing' with its job ID recorded and a
// progress poller announced via the event bus.
//
// Validation failures are rejected before any side effect; extraction
// failures abort the ingestion with no asset record created.
func (c *Coordinator) Submit(ctx context.Context, submission Submission) (*asset.VideoAsset, error) {
	if err := c.validateSubmission(&submission); err != nil {
		return nil, err
	}

	log.Emit(logger.NEW, "Beginning ingestion of '%s' (%d bytes)\n", submission.FileName, submission.SizeBytes)
	thumbPath, meta, err := c.runExtraction(ctx, submission.Path)
	if err != nil {
		c.eventLog.Error(fmt.Sprintf("Extraction failed for upload '%s'", submission.FileName), nil, map[string]any{
			"file":  submission.FileName,
			"cause": err.Error(),
		})
		return nil, err
	}
	defer os.Remove(thumbPath)

	sourceRef, thumbRef, err := c.storeBinaries(ctx, submission, thumbPath)
	if err != nil {
		return nil, err
	}

	record, err := c.store.Create(ctx, asset.CreateParams{
		Title:           submission.Title,
		Description:     submission.Description,
		SourceRef:       sourceRef,
		ThumbnailRef:    thumbRef,
		DurationSeconds: &meta.DurationSeconds,
		Width:           &meta.Width,
		Height:          &meta.Height,
		Codec:           &meta.Codec,
	})
	if err != nil {
		c.removeBinaries(ctx, sourceRef, thumbRef)
		return nil, fmt.Errorf("failed to create asset record for '%s': %w", submission.FileName, err)
	}

	c.eventLog.Info(fmt.Sprintf("Asset created for upload '%s'", submission.FileName), &record.ID, map[string]any{
		"title":    record.Title,
		"duration": meta.DurationSeconds,
	})

	if _, err := c.tracker.Transition(ctx, record.ID, lifecycle.ExtractionComplete, lifecycle.Payload{}); err != nil {
		return nil, err
	}

	jobID, err := c.provider.SubmitJob(ctx, c.blobs.URI(sourceRef), c.config.OutputProfile)
	if err != nil {
		c.tracker.Transition(ctx, record.ID, lifecycle.Errored, lifecycle.Payload{Reason: err.Error()})
		return nil, err
	}

	if _, err := c.tracker.RecordJob(ctx, record.ID, jobID); err != nil {
		return nil, err
	}

	c.eventBus.Dispatch(event.NewAssetEvent, record.ID)

	updated, err := c.store.Get(ctx, record.ID)
	if err != nil {
		return nil, err
	}

	log.Emit(logger.SUCCESS, "Ingestion of '%s' complete: %s\n", submission.FileName, updated)
	return updated, nil
}

// validateSubmission enforces the ingestion preconditions. The title
// defaults to the original filename (sans extension) before the
// required-field checks run. No side effects occur on rejection.
func (c *Coordinator) validateSubmission(submission *Submission) error {
	if strings.TrimSpace(submission.Title) == "" {
		base := filepath.Base(submission.FileName)
		submission.Title = strings.TrimSuffix(base, filepath.Ext(base))
	}

	if err := c.validate.Struct(submission); err != nil {
		return verr.Wrap(verr.Validation, err, "submission is missing required fields")
	}

	if strings.TrimSpace(submission.Title) == "" {
		return verr.New(verr.Validation, "title is required").WithDetail("field", "title")
	}

	if submission.SizeBytes > c.config.MaxFileSizeBytes {
		return verr.Newf(verr.Validation, "file size %d exceeds the maximum of %d bytes", submission.SizeBytes, c.config.MaxFileSizeBytes).
			WithDetail("field", "size")
	}

	if !c.config.mimeTypeAllowed(submission.MimeType) {
		return verr.Newf(verr.Validation, "file type '%s' is not supported (allowed: %s)", submission.MimeType, strings.Join(c.config.AllowedMimeTypes, ", ")).
			WithDetail("field", "mimeType")
	}

	return nil
}

// runExtraction runs thumbnail and metadata extraction as two concurrent
// tasks against the media probe. Both must succeed; the first failure
// cancels the sibling task and fails the whole extraction.
func (c *Coordinator) runExtraction(parent context.Context, path string) (string, *probe.Metadata, error) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	var (
		wg        sync.WaitGroup
		thumbPath string
		thumbErr  error
		meta      *probe.Metadata
		metaErr   error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		if thumbPath, thumbErr = c.probe.ExtractThumbnail(ctx, path); thumbErr != nil {
			cancel()
		}
	}()
	go func() {
		defer wg.Done()
		if meta, metaErr = c.probe.ExtractMetadata(ctx, path); metaErr != nil {
			cancel()
		}
	}()
	wg.Wait()

	if thumbErr != nil || metaErr != nil {
		if thumbPath != "" {
			os.Remove(thumbPath)
		}

		if metaErr != nil {
			return "", nil, metaErr
		}
		return "", nil, thumbErr
	}

	return thumbPath, meta, nil
}

// storeBinaries copies the source file and the extracted thumbnail in to
// the blob store. If the second write fails the first is rolled back so a
// failed ingestion leaves no binaries behind.
func (c *Coordinator) storeBinaries(ctx context.Context, submission Submission, thumbPath string) (string, string, error) {
	ingestID := uuid.New()

	source, err := os.Open(submission.Path)
	if err != nil {
		return "", "", verr.Wrapf(verr.Processing, err, "source file '%s' could not be read", submission.Path)
	}
	defer source.Close()

	sourceKey := fmt.Sprintf("sources/%s%s", ingestID, filepath.Ext(submission.FileName))
	sourceRef, err := c.blobs.Put(ctx, sourceKey, source)
	if err != nil {
		return "", "", verr.Wrap(verr.Processing, err, "failed to store source file")
	}

	thumb, err := os.Open(thumbPath)
	if err != nil {
		c.removeBinaries(ctx, sourceRef, "")
		return "", "", verr.Wrapf(verr.Processing, err, "thumbnail '%s' could not be read", thumbPath)
	}
	defer thumb.Close()

	thumbRef, err := c.blobs.Put(ctx, fmt.Sprintf("thumbnails/%s.jpg", ingestID), thumb)
	if err != nil {
		c.removeBinaries(ctx, sourceRef, "")
		return "", "", verr.Wrap(verr.Processing, err, "failed to store thumbnail")
	}

	return sourceRef, thumbRef, nil
}

func (c *Coordinator) removeBinaries(ctx context.Context, sourceRef string, thumbRef string) {
	if sourceRef != "" {
		if err := c.blobs.Remove(ctx, sourceRef); err != nil {
			log.Emit(logger.WARNING, "failed to roll back source blob %s: %v\n", sourceRef, err)
		}
	}
	if thumbRef != "" {
		if err := c.blobs.Remove(ctx, thumbRef); err != nil {
			log.Emit(logger.WARNING, "failed to roll back thumbnail blob %s: %v\n", thumbRef, err)
		}
	}
}
