package verr_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/avfoundry/proxa/internal/verr"
	"github.com/stretchr/testify/assert"
)

func TestKindOfUnwrapsNestedErrors(t *testing.T) {
	inner := verr.New(verr.Validation, "file too large")
	wrapped := fmt.Errorf("submit failed: %w", inner)

	kind, ok := verr.KindOf(wrapped)
	assert.True(t, ok)
	assert.Equal(t, verr.Validation, kind)

	_, ok = verr.KindOf(errors.New("plain"))
	assert.False(t, ok)
}

func TestIsKindMatchesOnKindOnly(t *testing.T) {
	err := verr.Wrapf(verr.Service, errors.New("throttled"), "provider call failed after %d attempts", 3)

	assert.True(t, verr.IsKind(err, verr.Service))
	assert.False(t, verr.IsKind(err, verr.Processing))
	assert.True(t, errors.Is(err, verr.New(verr.Service, "")))
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("no space left on device")
	err := verr.Wrap(verr.Processing, cause, "failed to store thumbnail")

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "processing")
	assert.Contains(t, err.Error(), "no space left on device")
}

func TestWithDetailAccumulates(t *testing.T) {
	err := verr.New(verr.Validation, "bad submission").
		WithDetail("field", "mimeType").
		WithDetail("value", "image/png")

	assert.Equal(t, "mimeType", err.Details["field"])
	assert.Equal(t, "image/png", err.Details["value"])
	assert.False(t, err.Timestamp.IsZero())
}
