package transcode_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/avfoundry/proxa/internal/asset"
	"github.com/avfoundry/proxa/internal/transcode"
	"github.com/avfoundry/proxa/internal/verr"
	"github.com/stretchr/testify/assert"
)

// flakyProvider fails a fixed number of times before succeeding,
// counting every attempt made against it.
type flakyProvider struct {
	mu           sync.Mutex
	failuresLeft int
	attempts     int
}

func (p *flakyProvider) SubmitJob(_ context.Context, _ string, _ string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.attempts++
	if p.failuresLeft > 0 {
		p.failuresLeft--
		return "", errors.New("throttled")
	}

	return "job-1", nil
}

func (p *flakyProvider) PollJob(_ context.Context, _ string) (*transcode.JobStatus, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.attempts++
	if p.failuresLeft > 0 {
		p.failuresLeft--
		return nil, errors.New("throttled")
	}

	return &transcode.JobStatus{State: transcode.StateComplete, Outputs: asset.OutputFileList{{Name: "out.mp4"}}}, nil
}

func TestRetryRecoversFromTransientFailures(t *testing.T) {
	inner := &flakyProvider{failuresLeft: 2}
	provider := transcode.WithRetries(inner, 3, time.Millisecond)

	jobID, err := provider.SubmitJob(context.Background(), "s3://bucket/sources/in.mp4", "proxy")
	assert.Nil(t, err)
	assert.Equal(t, "job-1", jobID)
	assert.Equal(t, 3, inner.attempts)
}

func TestRetrySurfacesServiceErrorOnceExhausted(t *testing.T) {
	inner := &flakyProvider{failuresLeft: 10}
	provider := transcode.WithRetries(inner, 3, time.Millisecond)

	_, err := provider.PollJob(context.Background(), "job-1")
	assert.True(t, verr.IsKind(err, verr.Service))
	assert.Equal(t, 3, inner.attempts)
}

func TestRetrySucceedsFirstTimeWithoutDelay(t *testing.T) {
	inner := &flakyProvider{}
	provider := transcode.WithRetries(inner, 3, time.Second)

	start := time.Now()
	status, err := provider.PollJob(context.Background(), "job-1")
	assert.Nil(t, err)
	assert.Equal(t, transcode.StateComplete, status.State)
	assert.Equal(t, 1, inner.attempts)
	assert.Less(t, time.Since(start), time.Second)
}
