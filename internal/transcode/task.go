package transcode

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

type TaskState int

const (
	// WAITING tasks are queued until a poller worker is free to claim
	// them.
	WAITING TaskState = iota
	POLLING
	COMPLETE
	CANCELLED
)

func (s TaskState) String() string {
	return []string{"WAITING", "POLLING", "COMPLETE", "CANCELLED"}[s]
}

// PollTask tracks one in-flight remote transcode job for one asset. The
// task is claimed by a single poller worker, which repeatedly reconciles
// the remote state in to the status tracker until a terminal state is
// reached or the task is cancelled.
type PollTask struct {
	id               uuid.UUID
	assetID          uuid.UUID
	jobID            string
	expectedDuration float64

	mu         sync.Mutex
	state      TaskState
	cancelChan chan struct{}
	startedAt  time.Time

	// lastDispatched is the progress percentage at the time of the last
	// progress event dispatch; used for flood control.
	lastDispatched float64
}

func newPollTask(assetID uuid.UUID, jobID string, expectedDuration float64) *PollTask {
	return &PollTask{
		id:               uuid.New(),
		assetID:          assetID,
		jobID:            jobID,
		expectedDuration: expectedDuration,
		state:            WAITING,
		cancelChan:       make(chan struct{}),
	}
}

func (t *PollTask) ID() uuid.UUID      { return t.id }
func (t *PollTask) AssetID() uuid.UUID { return t.assetID }
func (t *PollTask) JobID() string      { return t.jobID }

func (t *PollTask) String() string {
	return fmt.Sprintf("PollTask{id=%s asset=%s job=%s state=%s}", t.id, t.assetID, t.jobID, t.State())
}

func (t *PollTask) State() TaskState {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.state
}

func (t *PollTask) setState(state TaskState) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.state = state
}

// claim transitions a WAITING task to POLLING, returning false if the task
// is in any other state (already claimed, or cancelled before a worker got
// to it).
func (t *PollTask) claim() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state != WAITING {
		return false
	}

	t.state = POLLING
	t.startedAt = time.Now()
	return true
}

// cancel marks the task cancelled and closes its cancellation channel. The
// owning worker observes the closure before its next poll and performs no
// further state writes or log entries.
func (t *PollTask) cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state == COMPLETE || t.state == CANCELLED {
		return
	}

	t.state = CANCELLED
	close(t.cancelChan)
}

func (t *PollTask) isCancelled() bool {
	select {
	case <-t.cancelChan:
		return true
	default:
		return false
	}
}

// progressEstimate combines the elapsed-time-over-expected-duration
// heuristic with the remote progress report when one is available. The
// elapsed-based estimate alone is capped below completion since only the
// remote provider can declare a job finished.
func (t *PollTask) progressEstimate(status *JobStatus) float64 {
	estimate := 0.0
	if t.expectedDuration > 0 {
		elapsed := time.Since(t.startedAt).Seconds()
		estimate = elapsed / t.expectedDuration * 100
		if estimate > 95 {
			estimate = 95
		}
	}

	if status.ProgressPercent != nil && *status.ProgressPercent > estimate {
		estimate = *status.ProgressPercent
	}

	if estimate > 100 {
		estimate = 100
	}
	return estimate
}
