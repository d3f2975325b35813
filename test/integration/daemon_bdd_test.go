//go:build integration && !windows

package integration

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/qol-tools/qol-tray/internal/config"
	"github.com/qol-tools/qol-tray/internal/daemon"
	"github.com/qol-tools/qol-tray/internal/daemon/supervisor"
	"github.com/qol-tools/qol-tray/internal/models"
)

// installedEntry is the row shape of GET /api/installed.
type installedEntry struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Version   string `json:"version"`
	HasUI     bool   `json:"has_ui"`
	HasDaemon bool   `json:"has_daemon"`
	Running   bool   `json:"running"`
}

// testSettings tunes the daemon for fast test runs: ephemeral port, short
// supervision windows, every outward-facing feature off.
func testSettings() *models.Settings {
	s := models.NewSettings()
	s.Server.Port = 0
	s.Daemons.StopTimeoutSeconds = 1
	s.Daemons.StartupGraceMillis = 100
	s.Notifications.Enabled = false
	s.Updates.CheckOnStartup = false
	s.Telemetry.Enabled = false
	return s
}

var _ = Describe("Tray daemon", func() {
	var (
		cfgRoot  string
		oldXDG   string
		hadXDG   bool
		oldHome  string
		hadHome  bool
		settings *models.Settings
		d        *daemon.Daemon
	)

	BeforeEach(func() {
		var err error
		cfgRoot, err = os.MkdirTemp("", "qol-tray-integration-*")
		Expect(err).NotTo(HaveOccurred())

		// Point the user config dir at the temp root for the duration of
		// the spec. Specs run sequentially, so process-wide env is safe.
		oldXDG, hadXDG = os.LookupEnv("XDG_CONFIG_HOME")
		oldHome, hadHome = os.LookupEnv("HOME")
		Expect(os.Setenv("XDG_CONFIG_HOME", cfgRoot)).To(Succeed())
		Expect(os.Setenv("HOME", cfgRoot)).To(Succeed())

		settings = testSettings()
		d = nil
	})

	AfterEach(func() {
		if d != nil {
			d.Stop()
		}
		restoreEnv("XDG_CONFIG_HOME", oldXDG, hadXDG)
		restoreEnv("HOME", oldHome, hadHome)
		Expect(os.RemoveAll(cfgRoot)).To(Succeed())
	})

	// start builds and starts a daemon over the redirected config root and
	// returns the control surface base URL.
	start := func() string {
		var err error
		d, err = daemon.New(daemon.Options{Settings: settings})
		Expect(err).NotTo(HaveOccurred())
		Expect(d.Start()).To(Succeed())
		return fmt.Sprintf("http://127.0.0.1:%d", d.Port())
	}

	Describe("startup on a fresh config root", func() {
		It("creates the config tree and records itself in daemon.yaml", func() {
			base := start()

			for _, dir := range []func() (string, error){config.Dir, config.PluginsDir, config.RunDir} {
				path, err := dir()
				Expect(err).NotTo(HaveOccurred())
				Expect(path).To(BeADirectory())
			}

			info, err := config.LoadDaemonInfo()
			Expect(err).NotTo(HaveOccurred())
			Expect(info).NotTo(BeNil())
			Expect(info.PID).To(Equal(os.Getpid()))
			Expect(info.Port).To(Equal(d.Port()))
			Expect(info.Port).NotTo(BeZero())

			status, _ := httpGet(base + "/api/version")
			Expect(status).To(Equal(http.StatusOK))

			var installed []installedEntry
			getJSON(base+"/api/installed", &installed)
			Expect(installed).To(BeEmpty())
		})

		It("removes daemon.yaml on shutdown", func() {
			start()
			d.Stop()

			info, err := config.LoadDaemonInfo()
			Expect(err).NotTo(HaveOccurred())
			Expect(info).To(BeNil())
		})
	})

	Describe("with plugins installed", func() {
		BeforeEach(func() {
			writeHelloPlugin()
			writeWorkerPlugin()
		})

		It("reports both plugins over the control surface", func() {
			base := start()

			var installed []installedEntry
			getJSON(base+"/api/installed", &installed)
			Expect(installed).To(HaveLen(2))

			hello := findEntry(installed, "hello")
			Expect(hello).NotTo(BeNil())
			Expect(hello.Name).To(Equal("Hello"))
			Expect(hello.Version).To(Equal("1.2.0"))
			Expect(hello.HasUI).To(BeTrue())
			Expect(hello.HasDaemon).To(BeFalse())
			Expect(hello.Running).To(BeFalse())

			worker := findEntry(installed, "worker")
			Expect(worker).NotTo(BeNil())
			Expect(worker.HasDaemon).To(BeTrue())
			Expect(worker.Running).To(BeTrue())
		})

		It("tracks the plugin daemon in a pidfile and kills it on stop", func() {
			start()

			pf := readPidfile("worker")
			Expect(pf.PID).To(BeNumerically(">", 0))
			Expect(pf.CreateTimeMS).NotTo(BeZero())
			Expect(pidAlive(pf.PID)).To(BeTrue())

			d.Stop()

			Eventually(func() bool { return pidAlive(pf.PID) }, "3s", "100ms").Should(BeFalse())
			Expect(pidfilePath("worker")).NotTo(BeAnExistingFile())
		})

		It("serves the plugin UI from its directory", func() {
			base := start()

			status, body := httpGet(base + "/plugins/hello/")
			Expect(status).To(Equal(http.StatusOK))
			Expect(string(body)).To(ContainSubstring("Hello UI"))

			status, _ = httpGet(base + "/plugins/hello/missing.js")
			Expect(status).To(Equal(http.StatusNotFound))
		})

		It("stops the daemon and removes the files on uninstall", func() {
			base := start()
			pf := readPidfile("worker")

			status, body := httpPost(base+"/api/uninstall/worker", nil)
			Expect(status).To(Equal(http.StatusOK))
			Expect(string(body)).To(ContainSubstring(`"success":true`))

			Eventually(func() bool { return pidAlive(pf.PID) }, "3s", "100ms").Should(BeFalse())

			dir, err := config.PluginsDir()
			Expect(err).NotTo(HaveOccurred())
			Expect(filepath.Join(dir, "worker")).NotTo(BeADirectory())

			var installed []installedEntry
			getJSON(base+"/api/installed", &installed)
			Expect(findEntry(installed, "worker")).To(BeNil())
		})

		It("streams plugin changes to event stream subscribers", func() {
			base := start()

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/api/events", nil)
			Expect(err).NotTo(HaveOccurred())
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Type")).To(Equal("text/event-stream"))

			rd := bufio.NewReader(resp.Body)
			line, err := rd.ReadString('\n')
			Expect(err).NotTo(HaveOccurred())
			Expect(strings.TrimSpace(line)).To(Equal(": connected"))

			status, _ := httpPost(base+"/api/uninstall/hello", nil)
			Expect(status).To(Equal(http.StatusOK))

			for {
				line, err = rd.ReadString('\n')
				Expect(err).NotTo(HaveOccurred())
				if strings.HasPrefix(line, "data: ") {
					break
				}
			}
			Expect(line).To(ContainSubstring("plugins_changed"))
		})
	})

	Describe("plugin configuration", func() {
		BeforeEach(func() {
			writeHelloPlugin()
		})

		It("round-trips config and mirrors it into the aggregate backup", func() {
			base := start()
			payload := []byte(`{"greeting":"hi","volume":7}`)

			status, _ := httpPut(base+"/api/plugins/hello/config", payload)
			Expect(status).To(Equal(http.StatusOK))

			dir, err := config.PluginsDir()
			Expect(err).NotTo(HaveOccurred())
			primary := filepath.Join(dir, "hello", "config.json")
			Expect(primary).To(BeAnExistingFile())

			backupPath, err := config.BackupConfigsFile()
			Expect(err).NotTo(HaveOccurred())
			backup, err := os.ReadFile(backupPath)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(backup)).To(ContainSubstring(`"hello"`))

			status, body := httpGet(base + "/api/plugins/hello/config")
			Expect(status).To(Equal(http.StatusOK))
			Expect(body).To(MatchJSON(payload))
		})

		It("restores a deleted primary copy from the backup on read", func() {
			base := start()
			payload := []byte(`{"greeting":"hi"}`)

			status, _ := httpPut(base+"/api/plugins/hello/config", payload)
			Expect(status).To(Equal(http.StatusOK))

			dir, err := config.PluginsDir()
			Expect(err).NotTo(HaveOccurred())
			primary := filepath.Join(dir, "hello", "config.json")
			Expect(os.Remove(primary)).To(Succeed())

			status, body := httpGet(base + "/api/plugins/hello/config")
			Expect(status).To(Equal(http.StatusOK))
			Expect(body).To(MatchJSON(payload))
			Expect(primary).To(BeAnExistingFile())
		})

		It("rejects oversized and malformed payloads", func() {
			base := start()

			big := []byte(`{"pad":"` + strings.Repeat("x", 1<<20) + `"}`)
			status, _ := httpPut(base+"/api/plugins/hello/config", big)
			Expect(status).To(Equal(http.StatusRequestEntityTooLarge))

			status, _ = httpPut(base+"/api/plugins/hello/config", []byte("not json"))
			Expect(status).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("hotkey bindings", func() {
		It("persists bindings through the API and assigns ids", func() {
			base := start()

			payload := []byte(`{"hotkeys":[{"key":"Ctrl+Shift+F9","plugin_id":"hello","action":"run"}]}`)
			status, _ := httpPut(base+"/api/hotkeys", payload)
			Expect(status).To(Equal(http.StatusOK))

			path, err := config.HotkeysFile()
			Expect(err).NotTo(HaveOccurred())
			Expect(path).To(BeAnExistingFile())

			var cfg models.HotkeyConfig
			getJSON(base+"/api/hotkeys", &cfg)
			Expect(cfg.Hotkeys).To(HaveLen(1))
			Expect(cfg.Hotkeys[0].ID).NotTo(BeEmpty())
			Expect(cfg.Hotkeys[0].Key).To(Equal("Ctrl+Shift+F9"))
			Expect(cfg.Hotkeys[0].Enabled).To(BeTrue())
		})
	})

	Describe("task runner", func() {
		It("executes a configured action with parameter interpolation", func() {
			base := start()

			cfg := []byte(`{"actions":{"greet":{"name":"Greet","command":"printf 'hello %s' {{who}}"}}}`)
			status, _ := httpPut(base+"/api/task-runner/config", cfg)
			Expect(status).To(Equal(http.StatusOK))

			path, err := config.TaskRunnerFile()
			Expect(err).NotTo(HaveOccurred())
			Expect(path).To(BeAnExistingFile())

			req := []byte(`{"action":"greet","params":{"who":"world"}}`)
			status, body := httpPost(base+"/api/task-runner/execute", req)
			Expect(status).To(Equal(http.StatusOK))

			var res struct {
				Success bool   `json:"success"`
				Stdout  string `json:"stdout"`
			}
			Expect(json.Unmarshal(body, &res)).To(Succeed())
			Expect(res.Success).To(BeTrue())
			Expect(res.Stdout).To(Equal("hello world"))
		})

		It("reports unknown actions", func() {
			base := start()

			status, _ := httpPost(base+"/api/task-runner/execute", []byte(`{"action":"nope"}`))
			Expect(status).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("orphaned plugin daemons", func() {
		It("terminates processes recorded by a previous run before starting", func() {
			// The plugin declares no daemon, so only the abandoned
			// supervisor below ever starts one for it.
			pluginDir := writePluginDir("legacy", "[plugin]\nname = \"Legacy\"\n", nil)
			writeScript(pluginDir, "daemon.sh")

			runDir, err := config.RunDir()
			Expect(err).NotTo(HaveOccurred())
			Expect(os.MkdirAll(runDir, 0755)).To(Succeed())

			// Simulate a crashed daemon: start a plugin process, then walk
			// away without stopping it. The pidfile stays behind.
			abandoned := supervisor.New(supervisor.Options{
				RunDir:       runDir,
				StopTimeout:  time.Second,
				StartupGrace: 50 * time.Millisecond,
			})
			Expect(abandoned.Start("legacy", pluginDir, "daemon.sh")).To(Succeed())

			pf := readPidfile("legacy")
			Expect(pidAlive(pf.PID)).To(BeTrue())

			start()

			Eventually(func() bool { return pidAlive(pf.PID) }, "5s", "100ms").Should(BeFalse())
			Expect(pidfilePath("legacy")).NotTo(BeAnExistingFile())
		})
	})

	Describe("single instance lock", func() {
		It("admits one holder at a time", func() {
			release, err := config.AcquireInstanceLock()
			Expect(err).NotTo(HaveOccurred())

			_, err = config.AcquireInstanceLock()
			Expect(err).To(MatchError(config.ErrAlreadyRunning))

			release()

			release2, err := config.AcquireInstanceLock()
			Expect(err).NotTo(HaveOccurred())
			release2()
		})
	})
})

func restoreEnv(key, value string, had bool) {
	if had {
		Expect(os.Setenv(key, value)).To(Succeed())
	} else {
		Expect(os.Unsetenv(key)).To(Succeed())
	}
}

// writePluginDir creates a plugin directory with a manifest and extra files
// under the active plugins root and returns its path.
func writePluginDir(id, manifest string, files map[string]string) string {
	root, err := config.PluginsDir()
	Expect(err).NotTo(HaveOccurred())

	dir := filepath.Join(root, id)
	Expect(os.MkdirAll(dir, 0755)).To(Succeed())
	Expect(os.WriteFile(filepath.Join(dir, "plugin.toml"), []byte(manifest), 0644)).To(Succeed())

	for rel, content := range files {
		path := filepath.Join(dir, rel)
		Expect(os.MkdirAll(filepath.Dir(path), 0755)).To(Succeed())
		Expect(os.WriteFile(path, []byte(content), 0644)).To(Succeed())
	}
	return dir
}

// writeScript drops a long-running daemon script that exits promptly on
// SIGTERM into the plugin directory.
func writeScript(dir, name string) {
	script := "#!/bin/sh\ntrap 'exit 0' TERM\nwhile :; do sleep 0.1; done\n"
	Expect(os.WriteFile(filepath.Join(dir, name), []byte(script), 0755)).To(Succeed())
}

func writeHelloPlugin() {
	manifest := `[plugin]
name = "Hello"
description = "Says hello"
version = "1.2.0"

[menu]
label = "Hello"

[[menu.items]]
type = "action"
id = "greet"
label = "Greet"
`
	writePluginDir("hello", manifest, map[string]string{
		"run.sh":        "#!/bin/sh\necho \"$1\" > invoked.txt\n",
		"ui/index.html": "<h1>Hello UI</h1>",
	})
}

func writeWorkerPlugin() {
	manifest := `[plugin]
name = "Worker"
description = "Background worker"
version = "0.1.0"

[daemon]
enabled = true
command = "daemon.sh"
`
	dir := writePluginDir("worker", manifest, nil)
	writeScript(dir, "daemon.sh")
}

func findEntry(entries []installedEntry, id string) *installedEntry {
	for i := range entries {
		if entries[i].ID == id {
			return &entries[i]
		}
	}
	return nil
}

func pidfilePath(id string) string {
	runDir, err := config.RunDir()
	Expect(err).NotTo(HaveOccurred())
	return filepath.Join(runDir, id+".json")
}

func readPidfile(id string) models.DaemonPidfile {
	raw, err := os.ReadFile(pidfilePath(id))
	Expect(err).NotTo(HaveOccurred())
	var pf models.DaemonPidfile
	Expect(json.Unmarshal(raw, &pf)).To(Succeed())
	return pf
}

func pidAlive(pid int) bool {
	exists, err := process.PidExists(int32(pid))
	return err == nil && exists
}

func httpGet(url string) (int, []byte) {
	resp, err := http.Get(url)
	Expect(err).NotTo(HaveOccurred())
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	Expect(err).NotTo(HaveOccurred())
	return resp.StatusCode, body
}

func httpPost(url string, body []byte) (int, []byte) {
	return doRequest(http.MethodPost, url, body)
}

func httpPut(url string, body []byte) (int, []byte) {
	return doRequest(http.MethodPut, url, body)
}

func doRequest(method, url string, body []byte) (int, []byte) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequest(method, url, rd)
	Expect(err).NotTo(HaveOccurred())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	Expect(err).NotTo(HaveOccurred())
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	Expect(err).NotTo(HaveOccurred())
	return resp.StatusCode, data
}

func getJSON(url string, out any) {
	status, body := httpGet(url)
	Expect(status).To(Equal(http.StatusOK))
	Expect(json.Unmarshal(body, out)).To(Succeed())
}
