// Copyright 2023 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

// Package filewatcher reloads policy and data files when they change on disk.
package filewatcher

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/regolith-dev/regolith/loader"
	"github.com/regolith-dev/regolith/logging"
)

// OnReload is called with the result of reloading every watched path. On
// failure the result is nil and err is set.
type OnReload func(ctx context.Context, loaded *loader.Result, elapsed time.Duration, err error)

// FileWatcher watches a set of paths and reloads all of them whenever a file
// below one of them is created, written, removed or renamed.
type FileWatcher struct {
	paths    []string
	filter   loader.Filter
	onReload OnReload
	logger   logging.Logger
}

// NewFileWatcher returns a watcher for paths. Paths may carry a document
// prefix as accepted by loader.All.
func NewFileWatcher(paths []string, filter loader.Filter, onReload OnReload, logger logging.Logger) *FileWatcher {
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	return &FileWatcher{
		paths:    paths,
		filter:   filter,
		onReload: onReload,
		logger:   logger,
	}
}

// Start begins watching. Events are processed until ctx is cancelled.
func (w *FileWatcher) Start(ctx context.Context) error {
	watcher, err := w.getWatcher(w.paths)
	if err != nil {
		return err
	}
	go w.readWatcher(ctx, watcher)
	return nil
}

func (w *FileWatcher) getWatcher(rootPaths []string) (*fsnotify.Watcher, error) {
	watchPaths, err := getWatchPaths(rootPaths)
	if err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	for _, path := range watchPaths {
		w.logger.WithFields(map[string]interface{}{"path": path}).Debug("watching path")
		if err := watcher.Add(path); err != nil {
			watcher.Close()
			return nil, err
		}
	}

	return watcher, nil
}

func (w *FileWatcher) readWatcher(ctx context.Context, watcher *fsnotify.Watcher) {
	defer watcher.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("File watcher error: %v", err)
		case evt, ok := <-watcher.Events:
			if !ok {
				return
			}
			mask := fsnotify.Create | fsnotify.Write | fsnotify.Remove | fsnotify.Rename
			if (evt.Op & mask) != 0 {
				w.logger.WithFields(map[string]interface{}{
					"event": evt.String(),
				}).Debug("Registered file event.")
				w.processWatcherUpdate(ctx)
			}
		}
	}
}

func (w *FileWatcher) processWatcherUpdate(ctx context.Context) {
	t0 := time.Now()
	loaded, err := loader.NewFileLoader().WithFilter(w.filter).All(w.paths)
	if err != nil {
		w.onReload(ctx, nil, time.Since(t0), err)
		return
	}
	w.onReload(ctx, loaded, time.Since(t0), nil)
}

// getWatchPaths returns every directory below rootPaths. Files are watched
// through their parent directory so that editors replacing the file are
// noticed.
func getWatchPaths(rootPaths []string) ([]string, error) {
	seen := map[string]struct{}{}

	for _, path := range rootPaths {
		_, path = loader.SplitPrefix(path)

		info, err := os.Stat(path)
		if err != nil {
			return nil, err
		}

		if !info.IsDir() {
			seen[filepath.Dir(path)] = struct{}{}
			continue
		}

		err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				seen[p] = struct{}{}
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	paths := make([]string, 0, len(seen))
	for p := range seen {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths, nil
}
