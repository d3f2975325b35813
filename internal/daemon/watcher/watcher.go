// Package watcher reacts to filesystem changes the daemon cares about:
// edits to hotkeys.json and plugin directories appearing or vanishing
// outside the daemon's own operations.
package watcher

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// debounceWindow coalesces event bursts for the same path. Editors and
// atomic writes produce several events per logical change.
const debounceWindow = 100 * time.Millisecond

// Options configures a Watcher.
type Options struct {
	// HotkeysPath is the hotkeys.json location. Its parent directory is
	// what fsnotify subscribes to, since atomic writes replace the file by
	// rename and a watch on the file itself would go stale.
	HotkeysPath string
	// PluginsDir is watched for plugin directories being added or removed.
	PluginsDir string
	// OnHotkeysChanged fires, debounced, after hotkeys.json changes.
	OnHotkeysChanged func()
	// OnPluginsChanged fires, debounced, after the plugins dir changes.
	OnPluginsChanged func()
	// Logger defaults to a no-op logger.
	Logger *zap.Logger
}

// Watcher turns raw fsnotify events into the two callbacks the daemon
// acts on.
type Watcher struct {
	log         *zap.Logger
	fsWatcher   *fsnotify.Watcher
	hotkeysPath string
	pluginsDir  string
	onHotkeys   func()
	onPlugins   func()
	done        chan struct{}
	stopOnce    sync.Once

	debounceMu sync.Mutex
	debounce   map[string]*time.Timer
}

// New creates a watcher. Call Start to begin receiving events.
func New(opts Options) (*Watcher, error) {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		log:         log,
		fsWatcher:   fsWatcher,
		hotkeysPath: opts.HotkeysPath,
		pluginsDir:  opts.PluginsDir,
		onHotkeys:   opts.OnHotkeysChanged,
		onPlugins:   opts.OnPluginsChanged,
		done:        make(chan struct{}),
		debounce:    make(map[string]*time.Timer),
	}, nil
}

// Start subscribes the watch targets and begins dispatching. A target that
// cannot be watched is logged and skipped; the daemon works without it.
func (w *Watcher) Start() {
	if w.hotkeysPath != "" {
		if err := w.fsWatcher.Add(filepath.Dir(w.hotkeysPath)); err != nil {
			w.log.Warn("failed to watch config dir", zap.Error(err))
		}
	}
	if w.pluginsDir != "" {
		if err := w.fsWatcher.Add(w.pluginsDir); err != nil {
			w.log.Warn("failed to watch plugins dir", zap.Error(err))
		}
	}
	go w.processEvents()
}

// Stop stops the watcher. Pending debounce timers may still fire.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		_ = w.fsWatcher.Close()
	})
}

func (w *Watcher) processEvents() {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.log.Warn("watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	// Rename matters: atomic writes (write tmp, rename over target)
	// surface as Rename or Create on the target, never Write.
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
		return
	}
	w.debounceEvent(event.Name, func() {
		w.dispatch(event.Name)
	})
}

// debounceEvent resets the timer for a path so only the last event of a
// burst is acted on.
func (w *Watcher) debounceEvent(path string, fn func()) {
	w.debounceMu.Lock()
	defer w.debounceMu.Unlock()

	if timer, ok := w.debounce[path]; ok {
		timer.Stop()
	}
	w.debounce[path] = time.AfterFunc(debounceWindow, func() {
		w.debounceMu.Lock()
		delete(w.debounce, path)
		w.debounceMu.Unlock()
		fn()
	})
}

// dispatch classifies a settled path change. The config dir watch sees
// every file in it, so only exact hotkeys.json hits count; temp files from
// atomic writes fall through.
func (w *Watcher) dispatch(path string) {
	switch {
	case w.hotkeysPath != "" && path == w.hotkeysPath:
		w.log.Debug("hotkeys file changed", zap.String("path", path))
		if w.onHotkeys != nil {
			w.onHotkeys()
		}
	case w.pluginsDir != "" && filepath.Dir(path) == w.pluginsDir:
		w.log.Debug("plugins dir changed", zap.String("path", path))
		if w.onPlugins != nil {
			w.onPlugins()
		}
	}
}
