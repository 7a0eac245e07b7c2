package transcode

import (
	"context"

	"github.com/avfoundry/proxa/internal/asset"
)

// RemoteState is the provider-side state of a transcode job.
type RemoteState string

const (
	StateQueued      RemoteState = "queued"
	StateProgressing RemoteState = "progressing"
	StateComplete    RemoteState = "complete"
	StateError       RemoteState = "error"
)

// JobStatus is a snapshot of an in-flight remote job. Outputs is populated
// only when State is StateComplete, and must be identical across repeated
// polls of a completed job.
type JobStatus struct {
	State           RemoteState
	ProgressPercent *float64
	FramesDecoded   *int64
	Outputs         asset.OutputFileList
	Reason          string
}

// Provider is the remote transcoding service. Both operations are subject
// to transient failure; callers are expected to use a retry-wrapped
// provider (see WithRetries) rather than calling an implementation
// directly.
type Provider interface {
	SubmitJob(ctx context.Context, sourceURI string, outputProfile string) (string, error)
	PollJob(ctx context.Context, jobID string) (*JobStatus, error)
}
