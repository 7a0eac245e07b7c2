package eventlog_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/avfoundry/proxa/internal/eventlog"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestAppendRetainsInsertionOrder(t *testing.T) {
	log := eventlog.New(eventlog.Config{MaxEntries: 10})

	assetID := uuid.New()
	log.Info("first", &assetID, nil)
	log.Warn("second", &assetID, nil)
	log.Error("third", &assetID, map[string]any{"reason": "boom"})

	entries := log.ByAsset(assetID)
	assert.Len(t, entries, 3)
	assert.Equal(t, "first", entries[0].Message)
	assert.Equal(t, eventlog.LevelWarn, entries[1].Level)
	assert.Equal(t, "boom", entries[2].Metadata["reason"])
}

func TestCapacityEvictsOldestFirst(t *testing.T) {
	log := eventlog.New(eventlog.Config{MaxEntries: 5})

	for i := 0; i < 8; i++ {
		log.Info(fmt.Sprintf("entry-%d", i), nil, nil)
	}

	assert.Equal(t, 5, log.Len())

	// The three oldest entries were evicted; the survivors keep their
	// relative order.
	survivors := log.ByTimeRange(time.Time{}, time.Now().Add(time.Hour))
	assert.Len(t, survivors, 5)
	assert.Equal(t, "entry-3", survivors[0].Message)
	assert.Equal(t, "entry-7", survivors[4].Message)
}

func TestByAssetIgnoresOtherAssetsAndGlobalEntries(t *testing.T) {
	log := eventlog.New(eventlog.Config{MaxEntries: 100})

	target := uuid.New()
	other := uuid.New()
	log.Info("global entry", nil, nil)
	log.Info("target entry", &target, nil)
	log.Info("other entry", &other, nil)

	entries := log.ByAsset(target)
	assert.Len(t, entries, 1)
	assert.Equal(t, "target entry", entries[0].Message)

	assert.Empty(t, log.ByAsset(uuid.New()))
}

func TestByTimeRangeBoundsAreInclusive(t *testing.T) {
	log := eventlog.New(eventlog.Config{MaxEntries: 100})

	before := time.Now()
	entry := log.Info("inside", nil, nil)
	after := time.Now()

	assert.Len(t, log.ByTimeRange(before, after), 1)
	assert.Len(t, log.ByTimeRange(entry.Timestamp, entry.Timestamp), 1)
	assert.Empty(t, log.ByTimeRange(after.Add(time.Second), after.Add(time.Minute)))
	assert.Empty(t, log.ByTimeRange(before.Add(-time.Minute), before.Add(-time.Second)))
}

func TestZeroCapacityFallsBackToDefault(t *testing.T) {
	log := eventlog.New(eventlog.Config{})

	for i := 0; i < 1005; i++ {
		log.Info("entry", nil, nil)
	}

	assert.Equal(t, 1000, log.Len())
}
