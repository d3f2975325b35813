package hotkeys

import (
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qol-tools/qol-tray/internal/config"
	"github.com/qol-tools/qol-tray/internal/models"
)

type fakeRegistration struct {
	down   chan struct{}
	up     chan struct{}
	closed bool
}

func (r *fakeRegistration) Keydown() <-chan struct{} { return r.down }
func (r *fakeRegistration) Keyup() <-chan struct{}   { return r.up }
func (r *fakeRegistration) Close() error {
	r.closed = true
	return nil
}

type fakeBackend struct {
	mu     sync.Mutex
	regs   map[string]*fakeRegistration
	failOn map[string]bool
	closed bool
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		regs:   make(map[string]*fakeRegistration),
		failOn: make(map[string]bool),
	}
}

func (b *fakeBackend) Register(combo Combo) (Registration, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	canonical := combo.String()
	if b.failOn[canonical] {
		return nil, errors.New("grab refused")
	}
	r := &fakeRegistration{
		down: make(chan struct{}, 1),
		up:   make(chan struct{}, 1),
	}
	b.regs[canonical] = r
	return r, nil
}

func (b *fakeBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for _, r := range b.regs {
		r.closed = true
	}
	return nil
}

func (b *fakeBackend) has(canonical string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.regs[canonical]
	return ok
}

func (b *fakeBackend) press(canonical string) {
	b.mu.Lock()
	r := b.regs[canonical]
	b.mu.Unlock()
	r.down <- struct{}{}
}

func (b *fakeBackend) release(canonical string) {
	b.mu.Lock()
	r := b.regs[canonical]
	b.mu.Unlock()
	r.up <- struct{}{}
}

type fakeRunner struct {
	mu    sync.Mutex
	calls []string
}

func (r *fakeRunner) ExecuteAction(pluginID, action string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, pluginID+"::"+action)
	return nil
}

func (r *fakeRunner) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

type managerFixture struct {
	manager  *Manager
	runner   *fakeRunner
	mu       sync.Mutex
	backends []*fakeBackend
}

func (f *managerFixture) backend(i int) *fakeBackend {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.backends[i]
}

func (f *managerFixture) backendCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.backends)
}

func newManagerFixture(t *testing.T, bindings []models.HotkeyBinding) *managerFixture {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), config.HotkeysFileName)
	require.NoError(t, config.SaveJSON(configPath, &models.HotkeyConfig{Hotkeys: bindings}))

	f := &managerFixture{runner: &fakeRunner{}}
	f.manager = NewManager(Options{
		ConfigPath: configPath,
		Runner:     f.runner,
		Factory: func() (Backend, error) {
			b := newFakeBackend()
			f.mu.Lock()
			f.backends = append(f.backends, b)
			f.mu.Unlock()
			return b, nil
		},
	})
	t.Cleanup(f.manager.Stop)
	return f
}

func TestManagerRegistersBindings(t *testing.T) {
	f := newManagerFixture(t, []models.HotkeyBinding{
		{ID: "1", Key: "Ctrl+Shift+R", PluginID: "clipboard-sync", Action: "run"},
		{ID: "2", Key: "super + t", PluginID: "themer", Action: "toggle"},
	})

	require.NoError(t, f.manager.Start())

	assert.Equal(t, 2, f.manager.RegisteredCount())
	b := f.backend(0)
	assert.True(t, b.has("Ctrl+Shift+R"))
	assert.True(t, b.has("Super+T"))
	assert.Empty(t, f.manager.Failures())
}

// One physical keystroke arrives as a press and a release; only the press
// may fire the action.
func TestManagerDispatchesOnPressOnly(t *testing.T) {
	f := newManagerFixture(t, []models.HotkeyBinding{
		{ID: "1", Key: "Ctrl+Shift+R", PluginID: "clipboard-sync", Action: "run"},
	})
	require.NoError(t, f.manager.Start())
	b := f.backend(0)

	b.press("Ctrl+Shift+R")
	assert.Eventually(t, func() bool { return f.runner.count() == 1 },
		2*time.Second, 10*time.Millisecond)

	b.release("Ctrl+Shift+R")
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, f.runner.count(), "release must not fire the action")

	b.press("Ctrl+Shift+R")
	assert.Eventually(t, func() bool { return f.runner.count() == 2 },
		2*time.Second, 10*time.Millisecond)

	f.runner.mu.Lock()
	defer f.runner.mu.Unlock()
	assert.Equal(t, []string{"clipboard-sync::run", "clipboard-sync::run"}, f.runner.calls)
}

func TestManagerSkipsInvalidBinding(t *testing.T) {
	f := newManagerFixture(t, []models.HotkeyBinding{
		{ID: "1", Key: "Ctrl+", PluginID: "broken", Action: "run"},
		{ID: "2", Key: "Ctrl+R", PluginID: "fine", Action: "run"},
	})

	require.NoError(t, f.manager.Start())

	assert.Equal(t, 1, f.manager.RegisteredCount())
	assert.True(t, f.backend(0).has("Ctrl+R"))
	assert.Contains(t, f.manager.Failures(), "Ctrl+")
}

func TestManagerRejectsDuplicateCombos(t *testing.T) {
	f := newManagerFixture(t, []models.HotkeyBinding{
		{ID: "1", Key: "Ctrl+R", PluginID: "first", Action: "run"},
		{ID: "2", Key: "ctrl + r", PluginID: "second", Action: "run"},
	})

	require.NoError(t, f.manager.Start())

	assert.Equal(t, 1, f.manager.RegisteredCount())
	assert.Contains(t, f.manager.Failures(), "ctrl + r")
}

func TestManagerRegistrationFailureIsolation(t *testing.T) {
	f := newManagerFixture(t, []models.HotkeyBinding{
		{ID: "1", Key: "Ctrl+A", PluginID: "a", Action: "run"},
		{ID: "2", Key: "Ctrl+B", PluginID: "b", Action: "run"},
	})
	// First backend refuses Ctrl+A, as when another app owns the grab.
	f.manager.factory = func() (Backend, error) {
		b := newFakeBackend()
		b.failOn["Ctrl+A"] = true
		f.mu.Lock()
		f.backends = append(f.backends, b)
		f.mu.Unlock()
		return b, nil
	}

	require.NoError(t, f.manager.Start())

	assert.Equal(t, 1, f.manager.RegisteredCount())
	assert.False(t, f.backend(0).has("Ctrl+A"))
	assert.True(t, f.backend(0).has("Ctrl+B"))
	assert.Contains(t, f.manager.Failures(), "Ctrl+A")
}

func TestManagerReloadReplacesBackend(t *testing.T) {
	f := newManagerFixture(t, []models.HotkeyBinding{
		{ID: "1", Key: "Ctrl+R", PluginID: "old", Action: "run"},
	})
	require.NoError(t, f.manager.Start())
	require.True(t, f.backend(0).has("Ctrl+R"))

	// Rewrite the config behind the manager's back, then signal it.
	cfg := &models.HotkeyConfig{Hotkeys: []models.HotkeyBinding{
		{ID: "2", Key: "Ctrl+T", PluginID: "new", Action: "run"},
	}}
	require.NoError(t, config.SaveJSON(f.manager.configPath, cfg))

	f.manager.TriggerReload()

	assert.Eventually(t, func() bool { return f.backendCount() == 2 },
		2*time.Second, 10*time.Millisecond, "reload should build a fresh backend")
	assert.Eventually(t, func() bool { return f.backend(0).closed },
		2*time.Second, 10*time.Millisecond, "old backend should be closed")
	assert.True(t, f.backend(1).has("Ctrl+T"))
	assert.False(t, f.backend(1).has("Ctrl+R"))
}

// Presence in the list is what activates a binding; a stale enabled=false
// from an older config does not deactivate it.
func TestManagerRegistersDisabledFlaggedBinding(t *testing.T) {
	f := newManagerFixture(t, []models.HotkeyBinding{
		{ID: "1", Key: "Ctrl+R", PluginID: "p", Action: "run", Enabled: false},
	})

	require.NoError(t, f.manager.Start())

	assert.Equal(t, 1, f.manager.RegisteredCount())
	assert.True(t, f.backend(0).has("Ctrl+R"))
}

func TestTriggerReloadNeverBlocks(t *testing.T) {
	f := newManagerFixture(t, nil)

	// No dispatch loop is draining the channel yet; repeated signals must
	// still return immediately.
	for i := 0; i < 10; i++ {
		f.manager.TriggerReload()
	}
}

func TestSaveConfigAssignsIDs(t *testing.T) {
	f := newManagerFixture(t, nil)

	cfg := &models.HotkeyConfig{Hotkeys: []models.HotkeyBinding{
		{Key: "Ctrl+R", PluginID: "p", Action: "run"},
	}}
	require.NoError(t, f.manager.SaveConfig(cfg))

	loaded, err := f.manager.LoadConfig()
	require.NoError(t, err)
	require.Len(t, loaded.Hotkeys, 1)
	assert.NotEmpty(t, loaded.Hotkeys[0].ID)
	assert.True(t, loaded.Hotkeys[0].Enabled)
}

func TestLoadConfigMissingFile(t *testing.T) {
	m := NewManager(Options{
		ConfigPath: filepath.Join(t.TempDir(), "absent.json"),
		Runner:     &fakeRunner{},
	})

	cfg, err := m.LoadConfig()
	require.NoError(t, err)
	assert.Empty(t, cfg.Hotkeys)
}

// A reload that loses the race with Stop must not build a fresh backend
// and re-grab keys that were just released.
func TestReloadAfterStopIsInert(t *testing.T) {
	f := newManagerFixture(t, []models.HotkeyBinding{
		{ID: "1", Key: "Ctrl+Shift+R", PluginID: "clipboard-sync", Action: "run"},
	})

	require.NoError(t, f.manager.Start())
	require.Equal(t, 1, f.backendCount())

	f.manager.Stop()
	require.NoError(t, f.manager.Reload())

	assert.Equal(t, 1, f.backendCount(), "no backend may be created after Stop")
	assert.Zero(t, f.manager.RegisteredCount())
	assert.True(t, f.backend(0).closed)
}
