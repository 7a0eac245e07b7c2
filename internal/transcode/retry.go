package transcode

import (
	"context"
	"time"

	"github.com/avfoundry/proxa/internal/verr"
	"github.com/avfoundry/proxa/pkg/logger"
	"github.com/cenkalti/backoff/v4"
)

var retryLog = logger.Get("Transcode")

// retryingProvider decorates a Provider with bounded exponential backoff.
// Transient provider failures are retried locally and never surfaced to the
// caller; once the attempts are exhausted the last failure is returned as a
// Service error.
type retryingProvider struct {
	inner    Provider
	attempts int
	base     time.Duration
}

// WithRetries wraps the provider so every call is attempted up to
// 'attempts' times with exponential backoff starting at 'base'.
func WithRetries(inner Provider, attempts int, base time.Duration) Provider {
	if attempts < 1 {
		attempts = 1
	}

	return &retryingProvider{inner: inner, attempts: attempts, base: base}
}

func (p *retryingProvider) retry(ctx context.Context, label string, op func() error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.base

	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		if err := op(); err != nil {
			retryLog.Warnf("Provider call %s failed (attempt %d/%d): %s\n", label, attempt, p.attempts, err)
			return err
		}

		return nil
	}, backoff.WithContext(backoff.WithMaxRetries(bo, uint64(p.attempts-1)), ctx))

	if err != nil {
		return verr.Wrapf(verr.Service, err, "provider call %s failed after %d attempts", label, attempt)
	}

	return nil
}

func (p *retryingProvider) SubmitJob(ctx context.Context, sourceURI string, outputProfile string) (string, error) {
	var jobID string
	err := p.retry(ctx, "SubmitJob", func() error {
		id, err := p.inner.SubmitJob(ctx, sourceURI, outputProfile)
		if err != nil {
			return err
		}

		jobID = id
		return nil
	})
	if err != nil {
		return "", err
	}

	return jobID, nil
}

func (p *retryingProvider) PollJob(ctx context.Context, jobID string) (*JobStatus, error) {
	var status *JobStatus
	err := p.retry(ctx, "PollJob", func() error {
		s, err := p.inner.PollJob(ctx, jobID)
		if err != nil {
			return err
		}

		status = s
		return nil
	})
	if err != nil {
		return nil, err
	}

	return status, nil
}
