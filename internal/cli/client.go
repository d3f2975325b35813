package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/qol-tools/qol-tray/internal/config"
	"github.com/qol-tools/qol-tray/internal/daemon/supervisor"
)

var errDaemonNotRunning = errors.New("qol-tray daemon is not running")

// apiClient talks to a running daemon's control surface.
type apiClient struct {
	base  string
	httpc *http.Client
}

// newAPIClient connects to the daemon described by daemon.yaml. Returns
// errDaemonNotRunning when there is no live daemon to talk to.
func newAPIClient() (*apiClient, error) {
	running, info, err := config.IsDaemonRunning()
	if err != nil {
		return nil, fmt.Errorf("failed to check daemon status: %w", err)
	}
	if !running || info == nil {
		return nil, errDaemonNotRunning
	}

	return &apiClient{
		base:  fmt.Sprintf("http://%s:%d", info.Host, info.Port),
		httpc: &http.Client{Timeout: 10 * time.Second},
	}, nil
}

// getJSON fetches an API path and decodes the JSON response into out.
func (c *apiClient) getJSON(path string, out any) error {
	resp, err := c.httpc.Get(c.base + path)
	if err != nil {
		return fmt.Errorf("daemon request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("daemon returned %d: %s", resp.StatusCode, string(body))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// startDaemonProcess launches this binary as a detached background daemon
// and waits for it to come up.
func startDaemonProcess() error {
	self, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to locate binary: %w", err)
	}

	cmd := exec.Command(self)
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil
	supervisor.Detach(cmd)

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start daemon: %w", err)
	}
	go func() { _ = cmd.Wait() }()

	// Wait for the daemon to be ready (max 5 seconds)
	for i := 0; i < 50; i++ {
		time.Sleep(100 * time.Millisecond)
		running, _, err := config.IsDaemonRunning()
		if err == nil && running {
			return nil
		}
	}
	return fmt.Errorf("daemon failed to start within timeout")
}

// stopDaemonProcess signals the daemon to exit and waits for it to go away.
func stopDaemonProcess(pid int) error {
	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("failed to find daemon process: %w", err)
	}
	if err := process.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("failed to send stop signal: %w", err)
	}

	// Poll for shutdown (max 5 seconds)
	for i := 0; i < 50; i++ {
		time.Sleep(100 * time.Millisecond)
		running, _, err := config.IsDaemonRunning()
		if err == nil && !running {
			return nil
		}
	}
	return fmt.Errorf("daemon did not stop within timeout")
}
