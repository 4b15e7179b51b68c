// Package watcher reloads the results store when the feed file changes and
// notifies push subscribers.
package watcher

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"equiscore/internal/logging"

	"github.com/fsnotify/fsnotify"
)

// Reloader re-reads the feed. changed is false when nothing differs.
type Reloader interface {
	Reload(ctx context.Context) (changed bool, err error)
}

// Notifier announces a new snapshot to clients.
type Notifier interface {
	Broadcast(event string) int
}

// FeedWatcher watches the feed's directory and reacts to events on the feed
// file only. The directory is watched rather than the file so that
// providers replacing the file via rename are still seen: the replacement
// arrives as a create on the feed path.
type FeedWatcher struct {
	mu       sync.RWMutex
	watcher  *fsnotify.Watcher
	path     string // cleaned absolute feed path
	dir      string
	reloader Reloader
	notifier Notifier
	event    string
	debounce *debouncer

	// ctx for reloads fired by the debounce timer
	runCtx context.Context

	stopCh  chan struct{}
	doneCh  chan struct{}
	running bool
	reloads sync.WaitGroup

	stats Stats
}

// Stats tracks watcher activity.
type Stats struct {
	EventsSeen    int       `json:"events_seen"`
	EventsIgnored int       `json:"events_ignored"`
	Reloads       int       `json:"reloads"`
	Unchanged     int       `json:"unchanged"`
	Notifications int       `json:"notifications"`
	Errors        int       `json:"errors"`
	LastEventTime time.Time `json:"last_event_time"`
	LastEventPath string    `json:"last_event_path"`
	LastEventType string    `json:"last_event_type"`
	LastError     string    `json:"last_error,omitempty"`
}

// New creates a FeedWatcher for the feed at path. event is broadcast after
// every reload that changed the snapshot.
func New(path string, reloader Reloader, notifier Notifier, event string, debounce time.Duration) (*FeedWatcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve feed path: %w", err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &FeedWatcher{
		watcher:  w,
		path:     filepath.Clean(abs),
		dir:      filepath.Dir(abs),
		reloader: reloader,
		notifier: notifier,
		event:    event,
		debounce: newDebouncer(debounce),
		runCtx:   context.Background(),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// Start begins watching the feed directory.
// This method is non-blocking; it starts the watcher in a goroutine.
func (fw *FeedWatcher) Start(ctx context.Context) error {
	fw.mu.Lock()
	if fw.running {
		fw.mu.Unlock()
		return nil // Already running
	}

	if err := fw.watcher.Add(fw.dir); err != nil {
		fw.mu.Unlock()
		return fmt.Errorf("watch %s: %w", fw.dir, err)
	}
	fw.running = true
	fw.runCtx = ctx
	fw.mu.Unlock()

	logging.Watcher("watching %s for changes to %s", fw.dir, filepath.Base(fw.path))

	go fw.run(ctx)
	return nil
}

// Stop stops the watcher and waits for the event loop and any in-flight
// reload to finish.
func (fw *FeedWatcher) Stop() {
	fw.mu.Lock()
	if !fw.running {
		fw.mu.Unlock()
		_ = fw.watcher.Close()
		return
	}
	fw.running = false
	fw.mu.Unlock()

	close(fw.stopCh)
	<-fw.doneCh
	if fw.debounce.cancel() {
		fw.reloads.Done()
	}
	fw.reloads.Wait()

	if err := fw.watcher.Close(); err != nil {
		logging.Get(logging.CategoryWatcher).Error("error closing watcher: %v", err)
	}
	logging.Watcher("stopped")
}

// Wait blocks until the event loop exits (context cancelled or Stop).
func (fw *FeedWatcher) Wait() {
	<-fw.doneCh
}

func (fw *FeedWatcher) run(ctx context.Context) {
	defer close(fw.doneCh)

	for {
		select {
		case <-ctx.Done():
			logging.WatcherDebug("context cancelled")
			return

		case <-fw.stopCh:
			logging.WatcherDebug("stop signal received")
			return

		case event, ok := <-fw.watcher.Events:
			if !ok {
				logging.WatcherDebug("event channel closed")
				return
			}
			fw.handleEvent(event)

		case err, ok := <-fw.watcher.Errors:
			if !ok {
				logging.WatcherDebug("error channel closed")
				return
			}
			logging.Get(logging.CategoryWatcher).Error("fsnotify: %v", err)
			fw.mu.Lock()
			fw.stats.Errors++
			fw.stats.LastError = err.Error()
			fw.mu.Unlock()
		}
	}
}

func (fw *FeedWatcher) handleEvent(event fsnotify.Event) {
	var eventType string
	switch {
	case event.Op&fsnotify.Write != 0:
		eventType = "modify"
	case event.Op&fsnotify.Create != 0:
		eventType = "create"
	case event.Op&fsnotify.Rename != 0:
		eventType = "rename"
	case event.Op&fsnotify.Remove != 0:
		eventType = "delete"
	default:
		return // chmod
	}

	fw.mu.Lock()
	fw.stats.EventsSeen++
	if filepath.Clean(event.Name) != fw.path {
		fw.stats.EventsIgnored++
		fw.mu.Unlock()
		logging.WatcherDebug("%s %s is not the feed, ignoring", eventType, event.Name)
		return
	}
	fw.stats.LastEventTime = time.Now()
	fw.stats.LastEventPath = event.Name
	fw.stats.LastEventType = eventType
	fw.mu.Unlock()

	logging.WatcherDebug("%s event for %s", eventType, event.Name)

	if eventType == "delete" || eventType == "rename" {
		// The feed was removed or moved away. Keep serving the last
		// snapshot; a create follows when the next export lands.
		return
	}

	fw.reloads.Add(1)
	if fw.debounce.debounce(func() {
		defer fw.reloads.Done()
		fw.reload()
	}) {
		fw.reloads.Done() // superseded call never runs
	}
}

// reload re-reads the feed and notifies subscribers if it changed.
func (fw *FeedWatcher) reload() {
	fw.mu.RLock()
	ctx := fw.runCtx
	fw.mu.RUnlock()

	changed, err := fw.reloader.Reload(ctx)

	fw.mu.Lock()
	fw.stats.Reloads++
	if err != nil {
		fw.stats.Errors++
		fw.stats.LastError = err.Error()
		fw.mu.Unlock()
		logging.Get(logging.CategoryWatcher).Warn("reload failed, keeping previous results: %v", err)
		return
	}
	if !changed {
		fw.stats.Unchanged++
		fw.mu.Unlock()
		logging.WatcherDebug("feed content unchanged")
		return
	}
	fw.stats.Notifications++
	fw.mu.Unlock()

	n := fw.notifier.Broadcast(fw.event)
	logging.Watcher("feed reloaded, notified %d clients", n)
}

// Stats returns the current watcher statistics.
func (fw *FeedWatcher) Stats() Stats {
	fw.mu.RLock()
	defer fw.mu.RUnlock()
	return fw.stats
}

// IsWatching returns true if the watcher is currently running.
func (fw *FeedWatcher) IsWatching() bool {
	fw.mu.RLock()
	defer fw.mu.RUnlock()
	return fw.running
}

// Path returns the absolute feed path being watched.
func (fw *FeedWatcher) Path() string {
	return fw.path
}
