package ingest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"mime"
	"os"
	"path/filepath"

	"github.com/avfoundry/proxa/pkg/logger"
	"github.com/rjeczalik/notify"
)

// Watcher is the optional watch-folder front door: files dropped in to the
// configured directory are submitted through the coordinator exactly as
// uploads are. Useful for bulk imports without going through the upload
// endpoint.
type Watcher struct {
	config      Config
	coordinator *Coordinator
}

func NewWatcher(config Config, coordinator *Coordinator) (*Watcher, error) {
	if config.WatchPath != "" {
		if info, err := os.Stat(config.WatchPath); err == nil {
			if !info.IsDir() {
				return nil, fmt.Errorf("watch path '%s' is not a directory", config.WatchPath)
			}
		} else if errors.Is(err, fs.ErrNotExist) {
			if err := os.MkdirAll(config.WatchPath, os.ModeDir|os.ModePerm); err != nil {
				return nil, fmt.Errorf("watch path '%s' could not be created: %w", config.WatchPath, err)
			}
		} else {
			return nil, fmt.Errorf("watch path '%s' could not be accessed: %w", config.WatchPath, err)
		}
	}

	return &Watcher{config: config, coordinator: coordinator}, nil
}

// Run listens to the host file system and submits newly arrived files. It
// blocks until the provided context is cancelled. When no watch path is
// configured this returns immediately.
func (w *Watcher) Run(ctx context.Context) error {
	if w.config.WatchPath == "" {
		log.Emit(logger.DEBUG, "No watch path configured; watch-folder ingestion disabled\n")
		return nil
	}

	fsNotifyChannel := make(chan notify.EventInfo, 16)
	if err := notify.Watch(w.config.WatchPath, fsNotifyChannel, notify.Create, notify.Rename); err != nil {
		return fmt.Errorf("failed to watch '%s': %w", w.config.WatchPath, err)
	}
	defer notify.Stop(fsNotifyChannel)

	log.Emit(logger.NEW, "Watching '%s' for new media files\n", w.config.WatchPath)
	for {
		select {
		case eventInfo := <-fsNotifyChannel:
			w.submitPath(ctx, eventInfo.Path())
		case <-ctx.Done():
			return nil
		}
	}
}

func (w *Watcher) submitPath(ctx context.Context, path string) {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return
	}

	submission := Submission{
		Path:      path,
		FileName:  filepath.Base(path),
		MimeType:  mime.TypeByExtension(filepath.Ext(path)),
		SizeBytes: info.Size(),
	}

	if _, err := w.coordinator.Submit(ctx, submission); err != nil {
		log.Emit(logger.WARNING, "watch-folder ingestion of '%s' rejected: %v\n", path, err)
	}
}
