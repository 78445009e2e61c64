package config

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"runboat/pkg/logging"
)

// DefaultDebounceInterval is the time to wait after the last change to the
// file before reloading it.
const DefaultDebounceInterval = 500 * time.Millisecond

// Watcher reloads the configuration file when it changes and hands every
// valid new version to OnChange. Invalid versions are logged and skipped;
// the previous configuration stays in effect.
type Watcher struct {
	mu sync.Mutex

	path     string
	debounce time.Duration
	onChange func(RunboatConfig)

	fsWatcher *fsnotify.Watcher
	stopCh    chan struct{}
	doneCh    chan struct{}
	running   bool

	debounceTimer *time.Timer
	debounceMu    sync.Mutex
}

// NewWatcher creates a watcher for the file at path. A zero debounce uses
// DefaultDebounceInterval.
func NewWatcher(path string, debounce time.Duration, onChange func(RunboatConfig)) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounceInterval
	}
	return &Watcher{
		path:     path,
		debounce: debounce,
		onChange: onChange,
	}
}

// Start begins watching. The parent directory is watched rather than the
// file itself so that editors and ConfigMap updates that replace the file
// are noticed too.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(w.path)); err != nil {
		watcher.Close()
		return err
	}

	w.fsWatcher = watcher
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	w.running = true

	go w.processEvents(watcher.Events, watcher.Errors, w.stopCh, w.doneCh)

	logging.Info("ConfigWatcher", "Watching %s for changes", w.path)
	return nil
}

// Stop ends watching. Pending reloads are discarded.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	close(w.stopCh)
	fsWatcher, done := w.fsWatcher, w.doneCh
	w.mu.Unlock()

	<-done
	fsWatcher.Close()

	w.debounceMu.Lock()
	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	w.debounceMu.Unlock()

	logging.Info("ConfigWatcher", "Stopped watching %s", w.path)
}

func (w *Watcher) processEvents(eventsCh <-chan fsnotify.Event, errorsCh <-chan error, stopCh, doneCh chan struct{}) {
	defer close(doneCh)
	for {
		select {
		case <-stopCh:
			return

		case event, ok := <-eventsCh:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-errorsCh:
			if !ok {
				return
			}
			logging.Error("ConfigWatcher", err, "fsnotify error")
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if filepath.Clean(event.Name) != filepath.Clean(w.path) &&
		filepath.Base(event.Name) != "..data" {
		return
	}
	if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
		return
	}

	logging.Debug("ConfigWatcher", "Configuration file changed: %s (%s)", event.Name, event.Op)
	w.reloadDebounced()
}

func (w *Watcher) reloadDebounced() {
	w.debounceMu.Lock()
	defer w.debounceMu.Unlock()

	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	w.debounceTimer = time.AfterFunc(w.debounce, w.reload)
}

func (w *Watcher) reload() {
	w.mu.Lock()
	running := w.running
	w.mu.Unlock()
	if !running {
		return
	}

	// A vanished file would load as defaults; keep the current settings.
	if _, err := os.Stat(w.path); err != nil {
		logging.Warn("ConfigWatcher", "Configuration file %s is not readable, keeping current settings: %v", w.path, err)
		return
	}

	config, err := LoadConfig(w.path)
	if err != nil {
		logging.Error("ConfigWatcher", err, "Ignoring invalid configuration change")
		return
	}

	logging.Info("ConfigWatcher", "Reloaded configuration from %s", w.path)
	if w.onChange != nil {
		w.onChange(config)
	}
}
