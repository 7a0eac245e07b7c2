// Package eventlog provides the bounded, append-only record of lifecycle
// events. A single instance is constructed at process start and passed by
// reference to every component that needs it; there is no implicit global.
package eventlog

import (
	"sync"
	"time"

	"github.com/avfoundry/proxa/pkg/logger"
	"github.com/google/uuid"
)

type Level string

const (
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Entry is immutable once written.
type Entry struct {
	Timestamp time.Time
	Level     Level
	Message   string
	AssetID   *uuid.UUID
	Metadata  map[string]any
}

type Config struct {
	MaxEntries int `yaml:"max_entries" env:"EVENT_LOG_MAX_ENTRIES" env-default:"1000"`
}

// Log is a bounded FIFO of lifecycle entries, queryable by asset and by
// time range. Once the configured capacity is reached the oldest entries
// are evicted first. Entries are mirrored to the process logger for
// immediate visibility.
type Log struct {
	mu      sync.RWMutex
	max     int
	entries []Entry
	log     logger.Logger
}

func New(config Config) *Log {
	maxEntries := config.MaxEntries
	if maxEntries <= 0 {
		maxEntries = 1000
	}

	return &Log{
		max: maxEntries,
		log: logger.Get("EventLog"),
	}
}

func (l *Log) Append(level Level, message string, assetID *uuid.UUID, metadata map[string]any) Entry {
	entry := Entry{
		Timestamp: time.Now(),
		Level:     level,
		Message:   message,
		AssetID:   assetID,
		Metadata:  metadata,
	}

	l.mu.Lock()
	l.entries = append(l.entries, entry)
	if len(l.entries) > l.max {
		l.entries = l.entries[len(l.entries)-l.max:]
	}
	l.mu.Unlock()

	switch level {
	case LevelError:
		l.log.Errorf("%s %v\n", message, metadata)
	case LevelWarn:
		l.log.Warnf("%s %v\n", message, metadata)
	default:
		l.log.Debugf("%s %v\n", message, metadata)
	}

	return entry
}

func (l *Log) Info(message string, assetID *uuid.UUID, metadata map[string]any) Entry {
	return l.Append(LevelInfo, message, assetID, metadata)
}

func (l *Log) Warn(message string, assetID *uuid.UUID, metadata map[string]any) Entry {
	return l.Append(LevelWarn, message, assetID, metadata)
}

func (l *Log) Error(message string, assetID *uuid.UUID, metadata map[string]any) Entry {
	return l.Append(LevelError, message, assetID, metadata)
}

// ByAsset returns all retained entries recorded against the provided asset
// ID, oldest first.
func (l *Log) ByAsset(assetID uuid.UUID) []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	matches := make([]Entry, 0)
	for _, entry := range l.entries {
		if entry.AssetID != nil && *entry.AssetID == assetID {
			matches = append(matches, entry)
		}
	}

	return matches
}

// ByTimeRange returns all retained entries with a timestamp inside
// [start, end], oldest first.
func (l *Log) ByTimeRange(start time.Time, end time.Time) []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	matches := make([]Entry, 0)
	for _, entry := range l.entries {
		if !entry.Timestamp.Before(start) && !entry.Timestamp.After(end) {
			matches = append(matches, entry)
		}
	}

	return matches
}

func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return len(l.entries)
}
