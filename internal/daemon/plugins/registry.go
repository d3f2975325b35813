// Package plugins manages the installed plugin set: manifest parsing,
// directory scanning, per-plugin config storage, and action execution.
// The registry mirrors the plugins directory in memory; every scan is an
// authoritative snapshot replacement, never an incremental patch.
package plugins

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/qol-tools/qol-tray/internal/daemon/events"
	"github.com/qol-tools/qol-tray/internal/daemon/supervisor"
)

// Sentinel errors for registry operations.
var (
	ErrPluginNotFound   = errors.New("plugin not found")
	ErrReloadInProgress = errors.New("plugin reload already in progress")
	ErrNoInstaller      = errors.New("plugin installation is not available")
)

// Installer places a plugin's files into a destination directory, or
// refreshes one already there. The store client implements this.
type Installer interface {
	Install(id, dest string) error
	Update(id, dest string) error
}

// Registry is the in-memory mirror of the plugins directory. It owns the
// daemon supervisor so that every mutation (install, uninstall, reload)
// keeps the process table consistent with the directory contents.
type Registry struct {
	log       *zap.Logger
	root      string
	sup       *supervisor.Supervisor
	bus       *events.Bus
	installer Installer

	mu        sync.RWMutex
	plugins   map[string]*Plugin
	reloading bool
}

// Options configures a Registry.
type Options struct {
	// Root is the plugins directory.
	Root string
	// Supervisor manages daemon child processes. Required.
	Supervisor *supervisor.Supervisor
	// Bus receives plugins-changed events after mutations. Optional.
	Bus *events.Bus
	// Installer fetches plugin files for Install/Update. Optional; without
	// one those operations return ErrNoInstaller.
	Installer Installer
	// Logger defaults to a no-op logger.
	Logger *zap.Logger
}

// New creates a plugin registry. Call Scan to populate it.
func New(opts Options) *Registry {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	bus := opts.Bus
	if bus == nil {
		bus = events.NewBus()
	}
	return &Registry{
		log:       log,
		root:      opts.Root,
		sup:       opts.Supervisor,
		bus:       bus,
		installer: opts.Installer,
		plugins:   make(map[string]*Plugin),
	}
}

// Scan reads the plugins directory and replaces the in-memory set with what
// it finds. A directory that fails to load is logged and skipped; only the
// root directory being unreadable fails the scan.
func (r *Registry) Scan() error {
	entries, err := os.ReadDir(r.root)
	if err != nil {
		return fmt.Errorf("failed to read plugins directory %s: %w", r.root, err)
	}

	found := make(map[string]*Plugin)
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		path := filepath.Join(r.root, name)

		// Stat rather than entry.IsDir so symlinked plugin directories
		// (dev links) are followed.
		info, err := os.Stat(path)
		if err != nil {
			r.log.Warn("skipping unreadable plugin entry",
				zap.String("plugin", name),
				zap.Error(err))
			continue
		}
		if !info.IsDir() {
			continue
		}

		p := r.loadPlugin(path)
		if p == nil {
			continue
		}
		found[p.ID] = p
	}

	r.mu.Lock()
	r.plugins = found
	r.mu.Unlock()

	// A plugin dropped by the scan takes its daemon with it; a process must
	// never outlive the record that owns it.
	for _, id := range r.sup.Tracked() {
		if _, ok := found[id]; !ok {
			r.sup.Stop(id)
		}
	}

	r.log.Info("plugin scan complete", zap.Int("count", len(found)))
	return nil
}

// loadPlugin builds a Plugin record from a directory. A broken or missing
// manifest degrades to a minimal one rather than dropping the plugin; only
// platform exclusion returns nil.
func (r *Registry) loadPlugin(path string) *Plugin {
	id := filepath.Base(path)

	manifest, err := LoadManifest(path)
	if err != nil {
		r.log.Warn("plugin manifest degraded",
			zap.String("plugin", id),
			zap.Error(err))
	}

	if !manifest.SupportsPlatform(runtime.GOOS) {
		r.log.Debug("plugin does not support this platform",
			zap.String("plugin", id),
			zap.Strings("platforms", manifest.Plugin.Platforms))
		return nil
	}

	return &Plugin{
		ID:           id,
		Path:         path,
		Manifest:     manifest,
		HasRunScript: FindScript(path) != nil,
		HasUI:        fileExists(filepath.Join(path, "ui", "index.html")),
		HasCover:     fileExists(filepath.Join(path, CoverFileName)),
	}
}

// Get returns the plugin with the given id.
func (r *Registry) Get(id string) (*Plugin, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.plugins[id]
	return p, ok
}

// List returns every installed plugin sorted by display name.
func (r *Registry) List() []*Plugin {
	r.mu.RLock()
	out := make([]*Plugin, 0, len(r.plugins))
	for _, p := range r.plugins {
		out = append(out, p)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		ni, nj := strings.ToLower(out[i].Name()), strings.ToLower(out[j].Name())
		if ni != nj {
			return ni < nj
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Count returns the number of installed plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// Supervisor exposes the daemon supervisor for status queries.
func (r *Registry) Supervisor() *supervisor.Supervisor {
	return r.sup
}

// StartDaemons starts the daemon for every plugin whose manifest declares an
// enabled one. Individual failures are logged; the rest proceed.
func (r *Registry) StartDaemons() {
	for _, p := range r.List() {
		if !p.HasDaemon() {
			continue
		}
		if err := r.sup.Start(p.ID, p.Path, p.Manifest.Daemon.Command); err != nil {
			r.log.Warn("failed to start plugin daemon",
				zap.String("plugin", p.ID),
				zap.Error(err))
		}
	}
}

// Reload stops every running daemon, rescans the plugins directory, and
// starts the daemons of the new set. Only one reload runs at a time; a
// second caller gets ErrReloadInProgress instead of queueing.
func (r *Registry) Reload() error {
	r.mu.Lock()
	if r.reloading {
		r.mu.Unlock()
		return ErrReloadInProgress
	}
	r.reloading = true
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.reloading = false
		r.mu.Unlock()
	}()

	r.log.Info("reloading plugins")

	// Every old daemon is fully down before any new one starts, so a
	// relinked plugin never briefly runs twice.
	r.sup.StopAll()

	if err := r.Scan(); err != nil {
		return err
	}
	r.StartDaemons()

	r.bus.PluginsChanged()
	return nil
}

// Install fetches a plugin into the plugins directory and reloads.
func (r *Registry) Install(id string) error {
	if !IsSafeID(id) {
		return ErrInvalidID
	}
	if r.installer == nil {
		return ErrNoInstaller
	}
	if err := r.installer.Install(id, filepath.Join(r.root, id)); err != nil {
		return fmt.Errorf("failed to install plugin %s: %w", id, err)
	}
	return r.Reload()
}

// Update refreshes an installed plugin's files and reloads.
func (r *Registry) Update(id string) error {
	if !IsSafeID(id) {
		return ErrInvalidID
	}
	if r.installer == nil {
		return ErrNoInstaller
	}
	if _, ok := r.Get(id); !ok {
		return ErrPluginNotFound
	}

	// The daemon must not hold files open while the working tree changes.
	r.sup.Stop(id)

	if err := r.installer.Update(id, filepath.Join(r.root, id)); err != nil {
		return fmt.Errorf("failed to update plugin %s: %w", id, err)
	}
	return r.Reload()
}

// Uninstall stops the plugin's daemon, removes its directory, and rescans.
func (r *Registry) Uninstall(id string) error {
	if !IsSafeID(id) {
		return ErrInvalidID
	}
	p, ok := r.Get(id)
	if !ok {
		return ErrPluginNotFound
	}

	// Stop before removing files so the daemon never runs from a deleted
	// working directory.
	r.sup.Stop(id)

	if err := os.RemoveAll(p.Path); err != nil {
		return fmt.Errorf("failed to remove plugin %s: %w", id, err)
	}

	if err := r.Scan(); err != nil {
		return err
	}
	r.bus.PluginsChanged()

	r.log.Info("plugin uninstalled", zap.String("plugin", id))
	return nil
}

// ExecuteAction runs the named action of an installed plugin through its run
// script as a detached child.
func (r *Registry) ExecuteAction(id, action string) error {
	p, ok := r.Get(id)
	if !ok {
		return ErrPluginNotFound
	}
	return RunAction(p.Path, action)
}

// Close stops every running daemon. Called at shutdown so no child process
// outlives the registry that owns it.
func (r *Registry) Close() {
	r.sup.StopAll()
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
