// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package library

import (
	"context"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"

	"github.com/reframedultimate/ReFramed-sub002/support/logging"
)

// DefaultSettleDelay is the default Watcher.SettleDelay.
const DefaultSettleDelay = 250 * time.Millisecond

// Watcher keeps an Index current with a directory by reindexing replays as
// they are written, renamed and removed.
type Watcher struct {
	// Index is the index to update. It must not be nil.
	Index *Index
	// Dir is the watched directory. Subdirectories are not watched.
	Dir string

	// SettleDelay is how long a file must go unchanged before it is
	// reindexed. If zero, DefaultSettleDelay is used.
	SettleDelay time.Duration

	// Logger, if not nil, is the logger to use.
	Logger logging.L

	// OnUpdate, if not nil, is called after each reindexed path. e is nil if
	// the path's entry was removed.
	OnUpdate func(path string, e *Entry)

	mu      sync.Mutex
	pending map[string]*time.Timer
}

// Run scans Dir, then watches it until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	logger := logging.Must(w.Logger)

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "creating watcher")
	}
	defer fw.Close()

	// Watch before scanning, so that nothing written in between is missed.
	if err := fw.Add(w.Dir); err != nil {
		return errors.Wrapf(err, "watching %q", w.Dir)
	}
	if _, err := w.Index.Scan(ctx, w.Dir); err != nil {
		return err
	}

	w.mu.Lock()
	w.pending = make(map[string]*time.Timer)
	w.mu.Unlock()
	defer w.stopPending()

	logger.Infof("Watching %q for replays.", w.Dir)
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !IsReplayPath(event.Name) {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			logger.Debugf("Replay %q changed (%s).", event.Name, event.Op)
			w.schedule(ctx, event.Name)

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			logger.Warnf("Watch error on %q: %s", w.Dir, err)
		}
	}
}

// schedule reindexes path once it has settled.
func (w *Watcher) schedule(ctx context.Context, path string) {
	delay := w.SettleDelay
	if delay <= 0 {
		delay = DefaultSettleDelay
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if t := w.pending[path]; t != nil {
		t.Stop()
	}
	w.pending[path] = time.AfterFunc(delay, func() {
		w.mu.Lock()
		delete(w.pending, path)
		w.mu.Unlock()

		if ctx.Err() != nil {
			return
		}
		e, err := w.Index.Update(ctx, path)
		if err != nil {
			logging.Must(w.Logger).Warnf("Failed to reindex %q: %s", path, err)
			return
		}
		if w.OnUpdate != nil {
			w.OnUpdate(path, e)
		}
	})
}

func (w *Watcher) stopPending() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for path, t := range w.pending {
		t.Stop()
		delete(w.pending, path)
	}
}
