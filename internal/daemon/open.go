package daemon

import (
	"os/exec"
	"runtime"

	"go.uber.org/zap"
)

// openBrowser opens url with the platform's default browser. Failures are
// logged; there is nothing more to do when the desktop refuses.
func openBrowser(log *zap.Logger, url string) {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("cmd", "/c", "start", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}

	if err := cmd.Start(); err != nil {
		log.Warn("failed to open browser", zap.String("url", url), zap.Error(err))
		return
	}
	go func() { _ = cmd.Wait() }()
}
