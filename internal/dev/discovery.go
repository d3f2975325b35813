package dev

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/qol-tools/qol-tray/internal/config"
	"github.com/qol-tools/qol-tray/internal/daemon/events"
	"github.com/qol-tools/qol-tray/internal/daemon/plugins"
	"github.com/qol-tools/qol-tray/internal/models"
)

// maxSearchDepth bounds the walk below each search root.
const maxSearchDepth = 5

// templateDirName is the plugin scaffold checkout; never offered for linking.
const templateDirName = "plugin-template"

// Discovered is a plugin working tree found under a search path. Working
// trees already linked into the plugins dir are filtered out before they
// get here; InstalledNotLinked flags an unrelated regular install squatting
// on the same id.
type Discovered struct {
	ID                 string `json:"id"`
	Name               string `json:"name"`
	Path               string `json:"path"`
	AlreadyLinked      bool   `json:"already_linked"`
	InstalledNotLinked bool   `json:"installed_not_linked"`
}

// Discover walks the search paths for plugin working trees, reporting those
// not already linked into pluginsDir, sorted by display name.
func Discover(cfg *SearchConfig, pluginsDir string) []Discovered {
	dirs := findPluginDirs(cfg.EffectiveSearchPaths())

	seen := make(map[string]bool, len(dirs))
	var found []Discovered
	for _, dir := range dirs {
		abs := canonical(dir)
		if seen[abs] {
			continue
		}
		seen[abs] = true

		id := filepath.Base(dir)
		if id == templateDirName {
			continue
		}

		manifest, _ := plugins.LoadManifest(dir)
		linked, installed := installStatus(pluginsDir, id, dir)
		if linked {
			continue
		}

		found = append(found, Discovered{
			ID:                 id,
			Name:               manifest.Plugin.Name,
			Path:               dir,
			InstalledNotLinked: installed,
		})
	}

	sort.Slice(found, func(i, j int) bool { return found[i].Name < found[j].Name })
	return found
}

// skipDirName filters directories that never hold plugin working trees
// worth offering.
func skipDirName(name string) bool {
	return strings.HasPrefix(name, ".") ||
		name == "node_modules" ||
		name == "target" ||
		name == "vendor"
}

// findPluginDirs walks each root up to maxSearchDepth looking for
// directories containing a manifest. A match ends descent into that
// directory; symlinks are not followed.
func findPluginDirs(roots []string) []string {
	var dirs []string
	for _, root := range roots {
		if !isDir(root) {
			continue
		}
		root := root
		_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil
			}
			if !d.IsDir() || path == root {
				return nil
			}
			if skipDirName(d.Name()) {
				return fs.SkipDir
			}
			rel, rerr := filepath.Rel(root, path)
			if rerr != nil {
				return nil
			}
			if strings.Count(rel, string(filepath.Separator))+1 > maxSearchDepth {
				return fs.SkipDir
			}
			if config.FileExists(filepath.Join(path, plugins.ManifestFileName)) {
				dirs = append(dirs, path)
				return fs.SkipDir
			}
			return nil
		})
	}
	return dirs
}

// installStatus reports whether pluginsDir already links to this working
// tree, or holds something else under the same id.
func installStatus(pluginsDir, id, target string) (linked, installedElsewhere bool) {
	linkPath := filepath.Join(pluginsDir, id)
	fi, err := os.Lstat(linkPath)
	if err != nil {
		return false, false
	}
	if fi.Mode()&os.ModeSymlink == 0 {
		return false, true
	}
	resolved, err := os.Readlink(linkPath)
	if err != nil {
		return false, true
	}
	if resolved == target || canonical(resolved) == canonical(target) {
		return true, false
	}
	return false, true
}

// Discovery status values reported to the browser UI.
const (
	StatusIdle        = "idle"
	StatusDiscovering = "discovering"
	StatusComplete    = "complete"
)

// Discoverer runs search-path scans in the background and keeps the latest
// result around for polling. A trigger while a scan runs is ignored.
type Discoverer struct {
	log        *zap.Logger
	bus        *events.Bus
	configPath string
	pluginsDir string

	mu      sync.RWMutex
	status  string
	plugins []models.DiscoveredPlugin
}

// NewDiscoverer creates an idle discoverer reading search paths from
// configPath and checking link state against pluginsDir.
func NewDiscoverer(configPath, pluginsDir string, bus *events.Bus, log *zap.Logger) *Discoverer {
	if log == nil {
		log = zap.NewNop()
	}
	if bus == nil {
		bus = events.NewBus()
	}
	return &Discoverer{
		log:        log,
		bus:        bus,
		configPath: configPath,
		pluginsDir: pluginsDir,
		status:     StatusIdle,
	}
}

// Start kicks off a background scan unless one is already running.
func (d *Discoverer) Start() {
	d.mu.Lock()
	if d.status == StatusDiscovering {
		d.mu.Unlock()
		return
	}
	d.status = StatusDiscovering
	d.mu.Unlock()

	d.bus.DiscoveryStarted()
	go d.run()
}

func (d *Discoverer) run() {
	cfg := LoadSearchConfig(d.configPath)
	found := Discover(cfg, d.pluginsDir)

	infos := make([]models.DiscoveredPlugin, 0, len(found))
	for _, p := range found {
		infos = append(infos, models.DiscoveredPlugin{ID: p.ID, Name: p.Name, Path: p.Path})
	}

	d.mu.Lock()
	d.status = StatusComplete
	d.plugins = infos
	d.mu.Unlock()

	d.log.Info("plugin discovery complete", zap.Int("found", len(infos)))
	d.bus.DiscoveryComplete(infos)
}

// State returns the current status and the latest scan results.
func (d *Discoverer) State() (string, []models.DiscoveredPlugin) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.status, append([]models.DiscoveredPlugin(nil), d.plugins...)
}
