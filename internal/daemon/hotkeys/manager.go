// Package hotkeys keeps OS-level global hotkey registrations in sync with
// the persisted binding list and dispatches plugin actions when a
// registered combination is pressed.
package hotkeys

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/qol-tools/qol-tray/internal/config"
	"github.com/qol-tools/qol-tray/internal/models"
)

// ActionRunner executes a plugin action. The plugin registry implements it.
type ActionRunner interface {
	ExecuteAction(pluginID, action string) error
}

type press struct {
	binding models.HotkeyBinding
}

// Manager owns the binding config and the live hotkey grabs. Every reload
// closes the whole backend and builds a fresh one from the config file, so
// the registered set always matches the file exactly.
type Manager struct {
	log        *zap.Logger
	configPath string
	runner     ActionRunner
	factory    BackendFactory

	reload chan struct{}
	events chan press
	done   chan struct{}

	stopOnce sync.Once

	mu         sync.Mutex
	stopped    bool
	backend    Backend
	stop       chan struct{}
	registered int
	failures   map[string]string
}

// Options configures a Manager.
type Options struct {
	// ConfigPath is the hotkeys.json location.
	ConfigPath string
	// Runner executes matched plugin actions. Required.
	Runner ActionRunner
	// Factory creates OS hotkey backends. Defaults to NewXBackend.
	Factory BackendFactory
	// Logger defaults to a no-op logger.
	Logger *zap.Logger
}

// NewManager creates a hotkey manager. Call Start to register the persisted
// bindings and begin dispatching.
func NewManager(opts Options) *Manager {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	factory := opts.Factory
	if factory == nil {
		factory = NewXBackend
	}
	return &Manager{
		log:        log,
		configPath: opts.ConfigPath,
		runner:     opts.Runner,
		factory:    factory,
		// One pending reload is enough: the next apply reads the whole
		// file, so signals sent while one is queued are covered by it.
		reload:   make(chan struct{}, 1),
		events:   make(chan press, 16),
		done:     make(chan struct{}),
		failures: make(map[string]string),
	}
}

// Start registers the persisted bindings and runs the dispatch loop. The
// loop runs even if the initial registration fails, so a later reload can
// recover.
func (m *Manager) Start() error {
	err := m.Reload()
	go m.run()
	return err
}

// Stop releases every grab and ends the dispatch loop.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() { close(m.done) })
	m.mu.Lock()
	// A reload racing Stop must not rebuild the backend after the grabs
	// are released; apply checks this flag under the same lock.
	m.stopped = true
	m.closeGenerationLocked()
	m.mu.Unlock()
}

// TriggerReload asks the dispatch loop to re-read the binding config. The
// signal is durable: one fits in the channel even while a reload is being
// applied, and sending never blocks the caller.
func (m *Manager) TriggerReload() {
	select {
	case m.reload <- struct{}{}:
	default:
	}
}

// Reload re-reads the config file and replaces the registered set.
func (m *Manager) Reload() error {
	cfg, err := m.LoadConfig()
	if err != nil {
		return err
	}
	return m.apply(cfg)
}

// LoadConfig reads hotkeys.json. A missing file is an empty binding list.
func (m *Manager) LoadConfig() (*models.HotkeyConfig, error) {
	cfg := models.NewHotkeyConfig()
	if err := config.LoadJSON(m.configPath, cfg); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return models.NewHotkeyConfig(), nil
		}
		return nil, err
	}
	if cfg.Hotkeys == nil {
		cfg.Hotkeys = []models.HotkeyBinding{}
	}
	return cfg, nil
}

// SaveConfig persists the binding list, assigning ids to new entries. The
// write is atomic, so a reload signalled right after it always reads the
// complete new list.
func (m *Manager) SaveConfig(cfg *models.HotkeyConfig) error {
	for i := range cfg.Hotkeys {
		if cfg.Hotkeys[i].ID == "" {
			cfg.Hotkeys[i].ID = uuid.New().String()
		}
		cfg.Hotkeys[i].Enabled = true
	}
	return config.SaveJSON(m.configPath, cfg)
}

// RegisteredCount returns how many bindings hold a live grab.
func (m *Manager) RegisteredCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.registered
}

// Failures returns the bindings that could not be registered on the last
// apply, keyed by their combination string.
func (m *Manager) Failures() map[string]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]string, len(m.failures))
	for k, v := range m.failures {
		out[k] = v
	}
	return out
}

// apply replaces the registered set with the given config. The old backend
// is closed before the new one exists, so no grab from the previous
// generation can linger.
func (m *Manager) apply(cfg *models.HotkeyConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return nil
	}

	m.closeGenerationLocked()

	backend, err := m.factory()
	if err != nil {
		return fmt.Errorf("failed to create hotkey backend: %w", err)
	}

	stop := make(chan struct{})
	seen := make(map[string]bool)
	failures := make(map[string]string)
	registered := 0

	for _, binding := range cfg.Hotkeys {
		combo, err := ParseCombo(binding.Key)
		if err != nil {
			failures[binding.Key] = err.Error()
			m.log.Warn("invalid hotkey binding",
				zap.String("key", binding.Key),
				zap.Error(err))
			continue
		}

		canonical := combo.String()
		if seen[canonical] {
			failures[binding.Key] = "duplicate combination"
			m.log.Warn("duplicate hotkey binding",
				zap.String("key", binding.Key),
				zap.String("canonical", canonical))
			continue
		}
		seen[canonical] = true

		reg, err := backend.Register(combo)
		if err != nil {
			failures[binding.Key] = err.Error()
			m.log.Warn("failed to register hotkey",
				zap.String("key", canonical),
				zap.Error(err))
			continue
		}

		registered++
		go m.listen(reg, binding, stop)
		m.log.Info("registered hotkey",
			zap.String("key", canonical),
			zap.String("plugin", binding.PluginID),
			zap.String("action", binding.Action))
	}

	m.backend = backend
	m.stop = stop
	m.registered = registered
	m.failures = failures
	return nil
}

func (m *Manager) closeGenerationLocked() {
	if m.stop != nil {
		close(m.stop)
		m.stop = nil
	}
	if m.backend != nil {
		if err := m.backend.Close(); err != nil {
			m.log.Warn("failed to close hotkey backend", zap.Error(err))
		}
		m.backend = nil
	}
	m.registered = 0
}

// listen forwards presses of one registration to the dispatch loop. A
// keystroke arrives as a press and a release; only the press is forwarded.
func (m *Manager) listen(reg Registration, binding models.HotkeyBinding, stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case _, ok := <-reg.Keydown():
			if !ok {
				return
			}
			select {
			case m.events <- press{binding: binding}:
			case <-stop:
				return
			}
		case _, ok := <-reg.Keyup():
			if !ok {
				return
			}
		}
	}
}

// run is the dispatch loop: it executes queued presses and applies reload
// signals, one at a time.
func (m *Manager) run() {
	for {
		select {
		case <-m.done:
			return
		case p := <-m.events:
			m.execute(p.binding)
		case <-m.reload:
			if err := m.Reload(); err != nil {
				m.log.Error("failed to reload hotkeys", zap.Error(err))
			}
		}
	}
}

// execute runs the bound plugin action. Failures are logged and never block
// later presses.
func (m *Manager) execute(binding models.HotkeyBinding) {
	m.log.Info("hotkey triggered",
		zap.String("key", binding.Key),
		zap.String("plugin", binding.PluginID),
		zap.String("action", binding.Action))

	if err := m.runner.ExecuteAction(binding.PluginID, binding.Action); err != nil {
		m.log.Warn("hotkey action failed",
			zap.String("plugin", binding.PluginID),
			zap.String("action", binding.Action),
			zap.Error(err))
	}
}
