package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

// installedPlugin mirrors one row of GET /api/installed.
type installedPlugin struct {
	ID               string  `json:"id"`
	Name             string  `json:"name"`
	Description      string  `json:"description"`
	Version          string  `json:"version"`
	HasUI            bool    `json:"has_ui"`
	HasDaemon        bool    `json:"has_daemon"`
	Running          bool    `json:"running"`
	AvailableVersion *string `json:"available_version"`
	UpdateAvailable  bool    `json:"update_available"`
}

var pluginsCmd = &cobra.Command{
	Use:   "plugins",
	Short: "List installed plugins",
	RunE:  runPlugins,
}

func runPlugins(cmd *cobra.Command, args []string) error {
	client, err := newAPIClient()
	if err != nil {
		if errors.Is(err, errDaemonNotRunning) {
			fmt.Println("Daemon is not running.")
			fmt.Println(styleHint.Render("Start it with: qol-tray start"))
			return nil
		}
		return err
	}

	var installed []installedPlugin
	if err := client.getJSON("/api/installed", &installed); err != nil {
		return err
	}

	if len(installed) == 0 {
		fmt.Println("No plugins installed.")
		return nil
	}

	for _, p := range installed {
		badge := "  "
		switch {
		case p.Running:
			badge = badgeRunning.Render("● ")
		case p.HasDaemon:
			badge = badgeStopped.Render("○ ")
		}

		line := fmt.Sprintf("%s%s", badge, styleValue.Render(p.Name))
		if p.Version != "" {
			line += " " + styleVersion.Render("v"+p.Version)
		}
		if p.UpdateAvailable && p.AvailableVersion != nil {
			line += " " + styleUpdate.Render(fmt.Sprintf("(v%s available)", *p.AvailableVersion))
		}
		fmt.Println(line)

		if p.Description != "" {
			fmt.Printf("    %s\n", styleHint.Render(p.Description))
		}
	}
	return nil
}
