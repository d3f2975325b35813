// Package daemon assembles the tray daemon: plugin registry, process
// supervisor, hotkey manager, config store, control surface, and the
// filesystem watcher that keeps the in-memory state honest against
// external edits.
package daemon

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/qol-tools/qol-tray/internal/config"
	"github.com/qol-tools/qol-tray/internal/daemon/events"
	"github.com/qol-tools/qol-tray/internal/daemon/hotkeys"
	"github.com/qol-tools/qol-tray/internal/daemon/plugins"
	"github.com/qol-tools/qol-tray/internal/daemon/server"
	"github.com/qol-tools/qol-tray/internal/daemon/supervisor"
	"github.com/qol-tools/qol-tray/internal/daemon/taskrunner"
	"github.com/qol-tools/qol-tray/internal/daemon/tray"
	"github.com/qol-tools/qol-tray/internal/daemon/watcher"
	"github.com/qol-tools/qol-tray/internal/dev"
	"github.com/qol-tools/qol-tray/internal/models"
	"github.com/qol-tools/qol-tray/internal/notify"
	"github.com/qol-tools/qol-tray/internal/store"
	"github.com/qol-tools/qol-tray/internal/telemetry"
)

// stopGrace bounds the graceful HTTP shutdown at exit.
const stopGrace = 5 * time.Second

// Options configures a Daemon.
type Options struct {
	Settings *models.Settings
	// Port overrides the settings port when nonzero.
	Port int
	// DevMode mounts the dev-only control surface routes and the plugin
	// discovery walker.
	DevMode bool
	Logger  *zap.Logger
}

// Daemon owns every long-lived component of the tray process. Construction
// wires them together; Start brings them up in dependency order and Stop
// tears them down so no child process or socket outlives the daemon.
type Daemon struct {
	log      *zap.Logger
	settings *models.Settings
	devMode  bool
	port     int

	pluginsDir string

	bus         *events.Bus
	sup         *supervisor.Supervisor
	registry    *plugins.Registry
	configs     *plugins.ConfigStore
	hotkeys     *hotkeys.Manager
	storeClient *store.Client
	tasks       *taskrunner.Runner
	notifier    *notify.Notifier
	telemetry   *telemetry.Telemetry
	discoverer  *dev.Discoverer
	watch       *watcher.Watcher
	srv         *server.Server

	onChange func()

	shutdown     chan struct{}
	shutdownOnce sync.Once
	stopOnce     sync.Once
	busSub       string
}

// New builds a daemon from settings. It creates the config directory tree
// but starts nothing; call Start.
func New(opts Options) (*Daemon, error) {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	settings := opts.Settings
	if settings == nil {
		settings = models.NewSettings()
	}

	if err := config.EnsureDir(); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	pluginsDir := settings.PluginsDir
	if pluginsDir == "" {
		var err error
		pluginsDir, err = config.PluginsDir()
		if err != nil {
			return nil, err
		}
	}

	runDir, err := config.RunDir()
	if err != nil {
		return nil, err
	}
	hotkeysPath, err := config.HotkeysFile()
	if err != nil {
		return nil, err
	}
	backupPath, err := config.BackupConfigsFile()
	if err != nil {
		return nil, err
	}
	cachePath, err := config.StoreCacheFile()
	if err != nil {
		return nil, err
	}
	taskPath, err := config.TaskRunnerFile()
	if err != nil {
		return nil, err
	}

	port := opts.Port
	if port == 0 {
		port = settings.Server.Port
	}

	d := &Daemon{
		log:        log,
		settings:   settings,
		devMode:    opts.DevMode,
		port:       port,
		pluginsDir: pluginsDir,
		bus:        events.NewBus(),
		shutdown:   make(chan struct{}),
	}

	d.sup = supervisor.New(supervisor.Options{
		RunDir:       runDir,
		StopTimeout:  time.Duration(settings.Daemons.StopTimeoutSeconds) * time.Second,
		StartupGrace: time.Duration(settings.Daemons.StartupGraceMillis) * time.Millisecond,
		Logger:       log,
	})

	installer := store.NewInstaller(settings.Store.Org, log)
	d.registry = plugins.New(plugins.Options{
		Root:       pluginsDir,
		Supervisor: d.sup,
		Bus:        d.bus,
		Installer:  installer,
		Logger:     log,
	})

	d.configs = plugins.NewConfigStore(pluginsDir, backupPath, log)

	d.hotkeys = hotkeys.NewManager(hotkeys.Options{
		ConfigPath: hotkeysPath,
		Runner:     d.registry,
		Logger:     log,
	})

	d.storeClient = store.NewClient(store.ClientOptions{
		Org:         settings.Store.Org,
		CachePath:   cachePath,
		CacheMaxAge: time.Duration(settings.Store.CacheMaxAgeMinutes) * time.Minute,
		Token:       config.GitHubToken,
		Logger:      log,
	})

	d.tasks = taskrunner.New(taskPath, log)
	d.notifier = notify.New(settings.Notifications.Enabled, log)
	d.telemetry = telemetry.New(settings.Telemetry, log)

	if opts.DevMode {
		devPath, err := config.DevFile()
		if err != nil {
			return nil, err
		}
		d.discoverer = dev.NewDiscoverer(devPath, pluginsDir, d.bus, log)
	}

	d.watch, err = watcher.New(watcher.Options{
		HotkeysPath: hotkeysPath,
		PluginsDir:  pluginsDir,
		OnHotkeysChanged: func() {
			log.Info("hotkeys file changed, reloading")
			d.hotkeys.TriggerReload()
		},
		OnPluginsChanged: func() {
			// Registry mutations through the API also land here via the
			// filesystem; Scan is cheap and snapshot-replace makes the
			// extra pass harmless.
			if err := d.registry.Scan(); err != nil {
				log.Warn("rescan after plugins dir change failed", zap.Error(err))
				return
			}
			d.bus.PluginsChanged()
		},
		Logger: log,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create filesystem watcher: %w", err)
	}

	return d, nil
}

// Start brings the daemon up: orphan cleanup, initial scan, control surface,
// plugin daemons, hotkeys, watcher. Orphans die before the server binds its
// port so a leftover daemon can never hold a socket the new run needs.
//
// An unreadable plugins directory is deliberately not fatal: the tray and
// the control surface still come up, report zero plugins, and the cause is
// logged and shown to the user.
func (d *Daemon) Start() error {
	if err := config.EnsureRunDir(); err != nil {
		d.log.Warn("failed to create run directory", zap.Error(err))
	}
	d.sup.CleanupOrphans()

	if err := os.MkdirAll(d.pluginsDir, 0755); err != nil {
		d.log.Error("plugins directory unavailable", zap.Error(err))
		d.notifier.Alert("QOL Tray", "Plugins directory is not accessible")
	} else if err := d.registry.Scan(); err != nil {
		d.log.Error("initial plugin scan failed", zap.Error(err))
		d.notifier.Alert("QOL Tray", "Plugins could not be loaded")
	}

	srv, err := server.New(server.Options{
		Port:         d.port,
		PluginsDir:   d.pluginsDir,
		Registry:     d.registry,
		Configs:      d.configs,
		Hotkeys:      d.hotkeys,
		Store:        d.storeClient,
		Tasks:        d.tasks,
		Bus:          d.bus,
		Discoverer:   d.discoverer,
		DevMode:      d.devMode,
		Notifier:     d.notifier,
		Telemetry:    d.telemetry,
		CheckUpdates: d.settings.Updates.CheckOnStartup,
		Logger:       d.log,
	})
	if err != nil {
		return fmt.Errorf("failed to start control surface: %w", err)
	}
	d.srv = srv

	d.registry.StartDaemons()

	if err := d.hotkeys.Start(); err != nil {
		// Individual grab failures were already logged per binding; this is
		// the config itself being unreadable. Hotkeys stay down until the
		// next successful reload.
		d.log.Error("hotkey registration failed", zap.Error(err))
	}

	d.watch.Start()

	info := models.NewDaemonInfo("localhost", srv.Port(), os.Getpid())
	if err := config.SaveDaemonInfo(info); err != nil {
		d.log.Warn("failed to write daemon info", zap.Error(err))
	}

	d.sup.SetOnChange(d.notifyChange)
	d.busSub = d.subscribeBus()

	go func() {
		if err := srv.Serve(); err != nil {
			d.log.Error("control surface failed", zap.Error(err))
			d.RequestShutdown()
		}
	}()

	d.telemetry.DaemonStarted()
	d.log.Info("daemon started",
		zap.Int("port", srv.Port()),
		zap.Int("pid", os.Getpid()),
		zap.Int("plugins", d.registry.Count()))
	return nil
}

// Stop tears everything down in reverse order. Safe to call more than once.
func (d *Daemon) Stop() {
	d.stopOnce.Do(func() {
		d.log.Info("daemon stopping")

		d.watch.Stop()
		d.hotkeys.Stop()

		if d.busSub != "" {
			d.bus.Unsubscribe(d.busSub)
		}

		if d.srv != nil {
			ctx, cancel := context.WithTimeout(context.Background(), stopGrace)
			if err := d.srv.Stop(ctx); err != nil {
				d.log.Warn("control surface shutdown failed", zap.Error(err))
			}
			cancel()
		}

		d.registry.Close()
		d.telemetry.Close()

		if err := config.RemoveDaemonInfo(); err != nil {
			d.log.Warn("failed to remove daemon info", zap.Error(err))
		}
		d.log.Info("daemon stopped")
	})
}

// Port returns the control surface port. Valid after Start.
func (d *Daemon) Port() int {
	if d.srv != nil {
		return d.srv.Port()
	}
	return d.port
}

// RequestShutdown asks the process to exit. The first call wins.
func (d *Daemon) RequestShutdown() {
	d.shutdownOnce.Do(func() { close(d.shutdown) })
}

// ShutdownRequested is closed when something inside the daemon wants the
// process to exit: the tray quit item, a dead control surface.
func (d *Daemon) ShutdownRequested() <-chan struct{} {
	return d.shutdown
}

// SetOnStateChange registers a callback fired whenever plugin or daemon
// state changes. The tray uses it to refresh its menu.
func (d *Daemon) SetOnStateChange(fn func()) {
	d.onChange = fn
}

func (d *Daemon) notifyChange() {
	if fn := d.onChange; fn != nil {
		fn()
	}
}

// subscribeBus forwards plugins-changed events to the state change
// callback so API-driven mutations refresh the tray too.
func (d *Daemon) subscribeBus() string {
	id, ch := d.bus.Subscribe()
	go func() {
		for ev := range ch {
			if ev.Type == events.TypePluginsChanged {
				d.notifyChange()
			}
		}
	}()
	return id
}

// TrayState returns the adapter the system tray drives the daemon through.
func (d *Daemon) TrayState() tray.DaemonState {
	return &trayState{d: d}
}

// trayState implements tray.DaemonState on top of the daemon.
type trayState struct {
	d *Daemon
}

func (t *trayState) Port() int {
	return t.d.Port()
}

func (t *trayState) Plugins() []tray.PluginInfo {
	list := t.d.registry.List()
	out := make([]tray.PluginInfo, 0, len(list))
	for _, p := range list {
		info := tray.PluginInfo{
			ID:            p.ID,
			Label:         p.Name(),
			HasUI:         p.HasUI,
			DaemonRunning: t.d.sup.IsRunning(p.ID),
		}
		if p.Manifest.Menu != nil && p.Manifest.Menu.Label != "" {
			info.Label = p.Manifest.Menu.Label
		}
		for _, a := range p.Manifest.Actions() {
			info.Actions = append(info.Actions, tray.ActionInfo{ID: a.ID, Label: a.Label})
		}
		if len(info.Actions) == 0 && p.HasRunScript {
			info.Actions = []tray.ActionInfo{{ID: models.ActionRun, Label: "Run"}}
		}
		for _, tg := range p.Manifest.Toggles() {
			info.Toggles = append(info.Toggles, tray.ToggleInfo{
				ConfigKey: tg.ConfigKey,
				Label:     tg.Label,
				Checked:   t.d.configs.BoolAt(p.ID, tg.ConfigKey, tg.Default),
			})
		}
		out = append(out, info)
	}
	return out
}

func (t *trayState) OpenUI(pluginID string) {
	openBrowser(t.d.log, fmt.Sprintf("http://127.0.0.1:%d/plugins/%s/", t.d.Port(), pluginID))
}

func (t *trayState) OpenStore() {
	openBrowser(t.d.log, fmt.Sprintf("http://127.0.0.1:%d/", t.d.Port()))
}

func (t *trayState) RunAction(pluginID, actionID string) {
	if err := t.d.registry.ExecuteAction(pluginID, actionID); err != nil {
		t.d.log.Warn("tray action failed",
			zap.String("plugin", pluginID),
			zap.String("action", actionID),
			zap.Error(err))
	}
}

func (t *trayState) ToggleConfig(pluginID, configKey string) {
	if _, err := t.d.configs.Toggle(pluginID, configKey); err != nil {
		t.d.log.Warn("tray toggle failed",
			zap.String("plugin", pluginID),
			zap.String("key", configKey),
			zap.Error(err))
		return
	}
	// Re-render so the check mark reflects the stored value.
	t.d.notifyChange()
}

func (t *trayState) ReloadPlugins() {
	if err := t.d.registry.Reload(); err != nil {
		t.d.log.Warn("tray reload failed", zap.Error(err))
	}
}

func (t *trayState) RequestShutdown() {
	t.d.RequestShutdown()
}
