package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/qol-tools/qol-tray/internal/config"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon status",
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	running, info, err := config.IsDaemonRunning()
	if err != nil {
		return fmt.Errorf("failed to check daemon status: %w", err)
	}

	if !running || info == nil {
		fmt.Println("Daemon is not running.")
		fmt.Println(styleHint.Render("Start it with: qol-tray start"))
		return nil
	}

	uptime := time.Since(info.StartedAt).Truncate(time.Second)

	fmt.Println(styleSuccess.Render("Daemon is running."))
	fmt.Printf("  %s %s\n", styleLabel.Render("Host:  "), styleValue.Render(info.Host))
	fmt.Printf("  %s %s\n", styleLabel.Render("Port:  "), styleValue.Render(fmt.Sprintf("%d", info.Port)))
	fmt.Printf("  %s %s\n", styleLabel.Render("PID:   "), styleValue.Render(fmt.Sprintf("%d", info.PID)))
	fmt.Printf("  %s %s\n", styleLabel.Render("Uptime:"), styleValue.Render(uptime.String()))

	// Plugin summary via the control surface; skip silently if unreachable.
	client, err := newAPIClient()
	if err != nil {
		if !errors.Is(err, errDaemonNotRunning) {
			fmt.Println(styleWarning.Render("Could not query plugin state."))
		}
		return nil
	}

	var installed []installedPlugin
	if err := client.getJSON("/api/installed", &installed); err != nil {
		fmt.Println(styleWarning.Render("Could not query plugin state."))
		return nil
	}

	daemons := 0
	for _, p := range installed {
		if p.Running {
			daemons++
		}
	}
	fmt.Printf("\n%s %d installed, %d daemons running\n",
		styleLabel.Render("Plugins:"), len(installed), daemons)
	return nil
}
