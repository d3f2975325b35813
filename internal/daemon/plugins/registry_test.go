//go:build !windows

package plugins

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qol-tools/qol-tray/internal/daemon/events"
	"github.com/qol-tools/qol-tray/internal/daemon/supervisor"
)

func newTestRegistry(t *testing.T) (*Registry, string, *events.Bus) {
	t.Helper()
	root := t.TempDir()
	sup := supervisor.New(supervisor.Options{
		RunDir:       t.TempDir(),
		StopTimeout:  2 * time.Second,
		StartupGrace: 300 * time.Millisecond,
	})
	bus := events.NewBus()
	r := New(Options{
		Root:       root,
		Supervisor: sup,
		Bus:        bus,
	})
	t.Cleanup(r.Close)
	return r, root, bus
}

func writePlugin(t *testing.T, root, id string, files map[string]string) string {
	t.Helper()
	dir := filepath.Join(root, id)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	for name, body := range files {
		mode := os.FileMode(0o644)
		if filepath.Ext(name) == ".sh" {
			body = "#!/bin/sh\n" + body
			mode = 0o755
		}
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), mode))
	}
	return dir
}

const daemonLoop = "trap 'exit 0' TERM\nwhile :; do sleep 0.1; done\n"

func waitForEvent(t *testing.T, ch <-chan events.Event, eventType string) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-ch:
			if ev.Type == eventType {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s event", eventType)
		}
	}
}

// Three plugin directories in one scan: a complete manifest with an enabled
// daemon, a broken manifest salvageable by its name line, and a directory
// with no manifest at all. All three must appear; none may abort the scan.
func TestScanMixedDirectories(t *testing.T) {
	r, root, _ := newTestRegistry(t)

	writePlugin(t, root, "alpha", map[string]string{
		"plugin.toml": "[plugin]\nname = \"Alpha\"\n\n[daemon]\nenabled = true\ncommand = \"daemon.sh\"\n",
		"daemon.sh":   daemonLoop,
		"run.sh":      "exit 0\n",
	})
	writePlugin(t, root, "beta", map[string]string{
		"plugin.toml": "[plugin]\nname = \"Beta\"\nplatforms = [broken\n",
	})
	writePlugin(t, root, "gamma", map[string]string{
		"run.sh": "exit 0\n",
	})

	require.NoError(t, r.Scan())
	require.Equal(t, 3, r.Count())

	alpha, ok := r.Get("alpha")
	require.True(t, ok)
	assert.Equal(t, "Alpha", alpha.Name())
	assert.True(t, alpha.HasDaemon())
	assert.True(t, alpha.HasRunScript)

	beta, ok := r.Get("beta")
	require.True(t, ok)
	assert.Equal(t, "Beta", beta.Name(), "name should be salvaged from the broken manifest")
	assert.False(t, beta.HasDaemon())

	gamma, ok := r.Get("gamma")
	require.True(t, ok)
	assert.Equal(t, "gamma", gamma.Name(), "directory name stands in when there is no manifest")
	assert.True(t, gamma.HasRunScript)

	r.StartDaemons()
	assert.True(t, r.Supervisor().IsRunning("alpha"))
	assert.False(t, r.Supervisor().IsRunning("beta"))
}

func TestScanReplacesSnapshot(t *testing.T) {
	r, root, _ := newTestRegistry(t)

	writePlugin(t, root, "first", map[string]string{"run.sh": "exit 0\n"})
	require.NoError(t, r.Scan())
	require.Equal(t, 1, r.Count())

	require.NoError(t, os.RemoveAll(filepath.Join(root, "first")))
	writePlugin(t, root, "second", map[string]string{"run.sh": "exit 0\n"})
	require.NoError(t, r.Scan())

	_, ok := r.Get("first")
	assert.False(t, ok, "removed plugin must not survive a rescan")
	_, ok = r.Get("second")
	assert.True(t, ok)
}

func TestScanSkipsNonPluginEntries(t *testing.T) {
	r, root, _ := newTestRegistry(t)

	require.NoError(t, os.WriteFile(filepath.Join(root, "stray.txt"), []byte("x"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(root, ".hidden"), 0o755))
	writePlugin(t, root, "real", map[string]string{"run.sh": "exit 0\n"})

	require.NoError(t, r.Scan())
	assert.Equal(t, 1, r.Count())
}

func TestScanFollowsSymlinkedDirs(t *testing.T) {
	r, root, _ := newTestRegistry(t)

	target := writePlugin(t, t.TempDir(), "dev-checkout", map[string]string{
		"plugin.toml": "[plugin]\nname = \"Dev Link\"\n",
	})
	require.NoError(t, os.Symlink(target, filepath.Join(root, "dev-link")))

	require.NoError(t, r.Scan())

	p, ok := r.Get("dev-link")
	require.True(t, ok, "symlinked plugin directories must be scanned")
	assert.Equal(t, "Dev Link", p.Name())
}

func TestScanPlatformFilter(t *testing.T) {
	r, root, _ := newTestRegistry(t)

	writePlugin(t, root, "elsewhere", map[string]string{
		"plugin.toml": "[plugin]\nname = \"Elsewhere\"\nplatforms = [\"windows\"]\n",
	})
	writePlugin(t, root, "everywhere", map[string]string{
		"plugin.toml": "[plugin]\nname = \"Everywhere\"\n",
	})

	require.NoError(t, r.Scan())

	_, ok := r.Get("elsewhere")
	assert.False(t, ok)
	_, ok = r.Get("everywhere")
	assert.True(t, ok)
}

func TestScanMissingRootFails(t *testing.T) {
	sup := supervisor.New(supervisor.Options{RunDir: t.TempDir()})
	r := New(Options{
		Root:       filepath.Join(t.TempDir(), "does-not-exist"),
		Supervisor: sup,
	})

	assert.Error(t, r.Scan())
}

func TestListSortedByName(t *testing.T) {
	r, root, _ := newTestRegistry(t)

	writePlugin(t, root, "z-id", map[string]string{"plugin.toml": "[plugin]\nname = \"Apple\"\n"})
	writePlugin(t, root, "a-id", map[string]string{"plugin.toml": "[plugin]\nname = \"zebra\"\n"})
	writePlugin(t, root, "m-id", map[string]string{"plugin.toml": "[plugin]\nname = \"Mango\"\n"})

	require.NoError(t, r.Scan())

	var names []string
	for _, p := range r.List() {
		names = append(names, p.Name())
	}
	assert.Equal(t, []string{"Apple", "Mango", "zebra"}, names)
}

func TestReloadRestartsDaemons(t *testing.T) {
	r, root, bus := newTestRegistry(t)

	writePlugin(t, root, "worker", map[string]string{
		"plugin.toml": "[plugin]\nname = \"Worker\"\n\n[daemon]\nenabled = true\ncommand = \"daemon.sh\"\n",
		"daemon.sh":   daemonLoop,
	})
	require.NoError(t, r.Scan())
	r.StartDaemons()
	require.True(t, r.Supervisor().IsRunning("worker"))

	_, ch := bus.Subscribe()

	require.NoError(t, r.Reload())

	assert.True(t, r.Supervisor().IsRunning("worker"))
	waitForEvent(t, ch, events.TypePluginsChanged)
}

func TestReloadGuard(t *testing.T) {
	r, _, _ := newTestRegistry(t)

	r.mu.Lock()
	r.reloading = true
	r.mu.Unlock()

	assert.ErrorIs(t, r.Reload(), ErrReloadInProgress)
}

func TestUninstall(t *testing.T) {
	r, root, bus := newTestRegistry(t)

	dir := writePlugin(t, root, "doomed", map[string]string{
		"plugin.toml": "[plugin]\nname = \"Doomed\"\n\n[daemon]\nenabled = true\ncommand = \"daemon.sh\"\n",
		"daemon.sh":   daemonLoop,
	})
	require.NoError(t, r.Scan())
	r.StartDaemons()
	require.True(t, r.Supervisor().IsRunning("doomed"))

	_, ch := bus.Subscribe()

	require.NoError(t, r.Uninstall("doomed"))

	assert.False(t, r.Supervisor().IsRunning("doomed"))
	assert.NoDirExists(t, dir)
	_, ok := r.Get("doomed")
	assert.False(t, ok)
	waitForEvent(t, ch, events.TypePluginsChanged)
}

func TestUninstallUnknown(t *testing.T) {
	r, _, _ := newTestRegistry(t)
	require.NoError(t, r.Scan())

	assert.ErrorIs(t, r.Uninstall("ghost"), ErrPluginNotFound)
	assert.ErrorIs(t, r.Uninstall("../escape"), ErrInvalidID)
}

func TestInstallWithoutInstaller(t *testing.T) {
	r, _, _ := newTestRegistry(t)

	assert.ErrorIs(t, r.Install("anything"), ErrNoInstaller)
	assert.ErrorIs(t, r.Update("anything"), ErrNoInstaller)
}

type fakeInstaller struct {
	installed []string
}

func (f *fakeInstaller) Install(id, dest string) error {
	f.installed = append(f.installed, id)
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return err
	}
	manifest := fmt.Sprintf("[plugin]\nname = %q\n", id)
	return os.WriteFile(filepath.Join(dest, ManifestFileName), []byte(manifest), 0o644)
}

func (f *fakeInstaller) Update(id, dest string) error {
	return f.Install(id, dest)
}

func TestInstall(t *testing.T) {
	root := t.TempDir()
	sup := supervisor.New(supervisor.Options{RunDir: t.TempDir()})
	bus := events.NewBus()
	installer := &fakeInstaller{}
	r := New(Options{
		Root:       root,
		Supervisor: sup,
		Bus:        bus,
		Installer:  installer,
	})
	t.Cleanup(r.Close)

	_, ch := bus.Subscribe()

	require.NoError(t, r.Install("fresh-plugin"))

	assert.Equal(t, []string{"fresh-plugin"}, installer.installed)
	p, ok := r.Get("fresh-plugin")
	require.True(t, ok)
	assert.Equal(t, "fresh-plugin", p.Name())
	waitForEvent(t, ch, events.TypePluginsChanged)
}

func TestExecuteAction(t *testing.T) {
	r, root, _ := newTestRegistry(t)

	dir := writePlugin(t, root, "echoer", map[string]string{
		"plugin.toml": "[plugin]\nname = \"Echoer\"\n",
		"run.sh":      "printf '%s' \"$1\" > invoked.txt\n",
	})
	require.NoError(t, r.Scan())

	require.NoError(t, r.ExecuteAction("echoer", "export"))

	marker := filepath.Join(dir, "invoked.txt")
	assert.Eventually(t, func() bool {
		raw, err := os.ReadFile(marker)
		return err == nil && string(raw) == "export"
	}, 2*time.Second, 50*time.Millisecond, "run script should receive the action id")
}

func TestExecuteActionUnknownPlugin(t *testing.T) {
	r, _, _ := newTestRegistry(t)
	require.NoError(t, r.Scan())

	assert.ErrorIs(t, r.ExecuteAction("ghost", "run"), ErrPluginNotFound)
}
