// Package watcher reloads the document when its record file is edited
// outside the server.
//
// The watcher observes the directory containing the record, because the
// file store replaces the record by rename and a watch on the file itself
// would be lost after the first save. Bursts of events are debounced into a
// single reload.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Reloader re-reads the store and applies any change.
type Reloader interface {
	Reload(ctx context.Context) (bool, error)
}

// Config holds configuration for the watcher.
type Config struct {
	// DebounceInterval is how long events must be quiet before reloading
	DebounceInterval time.Duration

	// Logger for watcher activity
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		DebounceInterval: 100 * time.Millisecond,
		Logger:           log.New(os.Stderr, "[watcher] ", log.LstdFlags),
	}
}

// Watcher triggers a reload after the record file changes.
type Watcher struct {
	path     string
	reloader Reloader
	config   *Config

	watcher *fsnotify.Watcher

	mu        sync.Mutex
	running   bool
	pending   bool
	lastEvent time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a watcher for the record at path. Start must be called before
// it reacts to changes.
func New(path string, reloader Reloader, config *Config) (*Watcher, error) {
	if path == "" {
		return nil, fmt.Errorf("path cannot be empty")
	}
	if reloader == nil {
		return nil, fmt.Errorf("reloader cannot be nil")
	}
	defaults := DefaultConfig()
	if config == nil {
		config = defaults
	}
	if config.DebounceInterval <= 0 {
		config.DebounceInterval = defaults.DebounceInterval
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", path, err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Watcher{
		path:     abs,
		reloader: reloader,
		config:   config,
		watcher:  fw,
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// Start begins watching the record's directory.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return fmt.Errorf("watcher already running")
	}

	dir := filepath.Dir(w.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	if err := w.watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch directory %s: %w", dir, err)
	}

	w.running = true
	w.wg.Add(2)
	go w.watchEvents()
	go w.processPending()

	w.config.Logger.Printf("Watching %s", w.path)
	return nil
}

// Stop stops watching and waits for background goroutines to exit.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	w.mu.Unlock()

	w.cancel()
	err := w.watcher.Close()
	w.wg.Wait()

	if err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}
	return nil
}

// watchEvents records relevant events on the record file.
func (w *Watcher) watchEvents() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			// Removal is not an edit; a deleted record must not wipe the
			// document.
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}

			w.mu.Lock()
			w.pending = true
			w.lastEvent = time.Now()
			w.mu.Unlock()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.config.Logger.Printf("Watcher error: %v", err)
		}
	}
}

// processPending reloads once events have been quiet for the debounce
// interval.
func (w *Watcher) processPending() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.config.DebounceInterval / 2)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return

		case <-ticker.C:
			w.mu.Lock()
			due := w.pending && time.Since(w.lastEvent) >= w.config.DebounceInterval
			if due {
				w.pending = false
			}
			w.mu.Unlock()

			if due {
				w.reload()
			}
		}
	}
}

func (w *Watcher) reload() {
	if _, err := os.Stat(w.path); err != nil {
		return
	}

	changed, err := w.reloader.Reload(w.ctx)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			w.config.Logger.Printf("Warning: reload skipped: %v", err)
		}
		return
	}
	if changed {
		w.config.Logger.Printf("Applied external edit to %s", w.path)
	}
}
