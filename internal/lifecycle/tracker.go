// Package lifecycle owns the asset finite-state machine. The Tracker is the
// only component permitted to change an asset's status: the ingest
// coordinator and the progress pollers drive it, but never write to the
// asset store directly.
package lifecycle

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/avfoundry/proxa/internal/asset"
	"github.com/avfoundry/proxa/internal/event"
	"github.com/avfoundry/proxa/internal/eventlog"
	"github.com/avfoundry/proxa/internal/verr"
	"github.com/avfoundry/proxa/pkg/logger"
	typedsync "github.com/avfoundry/proxa/pkg/sync"
	"github.com/google/uuid"
)

var log = logger.Get("Lifecycle")

// Event identifies what happened to an asset; combined with the assets
// current status it selects the transition to apply.
type Event string

const (
	// ExtractionComplete fires once extraction has succeeded and the
	// remote job submission is underway. Moves ingested → processing.
	ExtractionComplete Event = "extraction_complete"

	// RemoteProgressing fires when the remote job reports it is working.
	// Moves processing → converting; converting → converting is a no-op
	// that is only re-logged when progress advanced meaningfully.
	RemoteProgressing Event = "remote_progressing"

	// RemoteComplete fires when the remote job has finished and its output
	// artifacts are known. Moves processing|converting → ready.
	RemoteComplete Event = "remote_complete"

	// Errored fires on a local extraction failure or a remote job failure.
	// Moves any non-terminal status → error.
	Errored Event = "errored"
)

// Payload carries the event-specific data applied atomically with the
// transition.
type Payload struct {
	// Progress is the percent estimate accompanying RemoteProgressing.
	Progress float64

	// OutputFiles accompanies RemoteComplete and must be non-empty; it is
	// recorded atomically with the move into ready.
	OutputFiles asset.OutputFileList

	// Reason accompanies Errored.
	Reason string
}

// progressLogThreshold is the minimum advance (in percentage points) before
// a converting → converting no-op is re-logged.
const progressLogThreshold = 5.0

type Tracker struct {
	store    asset.Store
	eventLog *eventlog.Log
	eventBus event.EventDispatcher

	// locks serializes transitions per asset id; transitions across
	// different assets are independent.
	locks      typedsync.TypedSyncMap[uuid.UUID, *sync.Mutex]
	lastLogged typedsync.TypedSyncMap[uuid.UUID, float64]
}

func New(store asset.Store, eventLog *eventlog.Log, eventBus event.EventDispatcher) *Tracker {
	return &Tracker{
		store:    store,
		eventLog: eventLog,
		eventBus: eventBus,
	}
}

func (t *Tracker) lockFor(id uuid.UUID) *sync.Mutex {
	mu, _ := t.locks.LoadOrStore(id, &sync.Mutex{})
	return mu
}

// Transition applies the event to the asset as a single atomic
// read-modify-write against the store. Illegal transitions are rejected
// with an InvalidTransition error and leave the record untouched. Every
// successful transition appends exactly one event log entry before
// returning; the converting → converting no-op only logs when progress
// advanced by at least 5 percentage points since the last logged value.
func (t *Tracker) Transition(ctx context.Context, assetID uuid.UUID, ev Event, payload Payload) (*asset.VideoAsset, error) {
	mu := t.lockFor(assetID)
	mu.Lock()
	defer mu.Unlock()

	var from asset.Status
	updated, err := t.store.Update(ctx, assetID, func(record *asset.VideoAsset) error {
		from = record.Status

		to, err := nextStatus(record.Status, ev)
		if err != nil {
			return err
		}

		if ev == RemoteComplete {
			if len(payload.OutputFiles) == 0 {
				return verr.Newf(verr.InvalidTransition, "transition of asset %s to ready requires output files", assetID)
			}
			record.OutputFiles = append(asset.OutputFileList{}, payload.OutputFiles...)
		}

		record.Status = to
		return nil
	})
	if err != nil {
		if verr.IsKind(err, verr.InvalidTransition) {
			log.Warnf("Rejected transition of asset %s on event %s: %s\n", assetID, ev, err)
		}
		return nil, err
	}

	t.logTransition(assetID, from, updated.Status, ev, payload)

	t.eventBus.Dispatch(event.AssetUpdateEvent, assetID)
	if updated.Status.Terminal() {
		t.lastLogged.Delete(assetID)
		t.eventBus.Dispatch(event.AssetCompleteEvent, assetID)
	}

	return updated, nil
}

// RecordJob atomically records the remote job ID against the asset. The job
// ID can be set at most once per asset lifetime; a second call is rejected
// as an invalid transition.
func (t *Tracker) RecordJob(ctx context.Context, assetID uuid.UUID, jobID string) (*asset.VideoAsset, error) {
	mu := t.lockFor(assetID)
	mu.Lock()
	defer mu.Unlock()

	updated, err := t.store.Update(ctx, assetID, func(record *asset.VideoAsset) error {
		if record.JobID != nil {
			return verr.Newf(verr.InvalidTransition, "asset %s already has job %s recorded", assetID, *record.JobID)
		}

		record.JobID = &jobID
		return nil
	})
	if err != nil {
		return nil, err
	}

	t.eventLog.Info(fmt.Sprintf("Remote transcode job %s recorded", jobID), &assetID, map[string]any{"jobId": jobID})
	return updated, nil
}

// Forget drops per-asset tracking state. Called when an asset is deleted.
func (t *Tracker) Forget(assetID uuid.UUID) {
	t.locks.Delete(assetID)
	t.lastLogged.Delete(assetID)
}

func (t *Tracker) logTransition(assetID uuid.UUID, from asset.Status, to asset.Status, ev Event, payload Payload) {
	if from == asset.StatusConverting && to == asset.StatusConverting {
		last, seen := t.lastLogged.Load(assetID)
		if seen && math.Abs(payload.Progress-last) < progressLogThreshold {
			return
		}

		t.lastLogged.Store(assetID, payload.Progress)
		t.eventLog.Info(fmt.Sprintf("Conversion progress %.0f%%", payload.Progress), &assetID, map[string]any{
			"progress": payload.Progress,
		})
		return
	}

	metadata := map[string]any{"from": string(from), "to": string(to), "event": string(ev)}
	switch to {
	case asset.StatusError:
		metadata["reason"] = payload.Reason
		t.eventLog.Error(fmt.Sprintf("Asset entered error state: %s", payload.Reason), &assetID, metadata)
	case asset.StatusReady:
		metadata["outputFiles"] = len(payload.OutputFiles)
		t.eventLog.Info("Asset is ready for playback", &assetID, metadata)
	case asset.StatusConverting:
		t.lastLogged.Store(assetID, payload.Progress)
		t.eventLog.Info("Remote conversion started", &assetID, metadata)
	default:
		t.eventLog.Info(fmt.Sprintf("Asset moved to %s", to), &assetID, metadata)
	}
}

// nextStatus is the transition table. Any (status, event) pair not listed
// here is illegal.
func nextStatus(from asset.Status, ev Event) (asset.Status, error) {
	if from.Terminal() {
		return "", verr.Newf(verr.InvalidTransition, "asset is already in terminal status %s", from)
	}

	switch ev {
	case ExtractionComplete:
		if from == asset.StatusIngested {
			return asset.StatusProcessing, nil
		}
	case RemoteProgressing:
		if from == asset.StatusProcessing || from == asset.StatusConverting {
			return asset.StatusConverting, nil
		}
	case RemoteComplete:
		if from == asset.StatusProcessing || from == asset.StatusConverting {
			return asset.StatusReady, nil
		}
	case Errored:
		return asset.StatusError, nil
	}

	return "", verr.Newf(verr.InvalidTransition, "event %s is not legal from status %s", ev, from)
}
