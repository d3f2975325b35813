package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/qol-tools/qol-tray/internal/config"
	"github.com/qol-tools/qol-tray/internal/updater"
)

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Update qol-tray to the latest version",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println("Checking for updates...")

		result, err := updater.Check()
		if err != nil {
			return fmt.Errorf("failed to check for updates: %w", err)
		}

		if !result.Available {
			fmt.Printf("Already up to date (v%s).\n", result.CurrentVersion)
			return nil
		}

		fmt.Printf("Update available: v%s %s v%s\n",
			result.CurrentVersion, styleUpdate.Render("->"), result.LatestVersion)
		fmt.Printf("Release: %s\n", styleHint.Render(result.ReleaseURL))

		asset := updater.FindAsset(result.Release, updater.AssetName())
		if asset == nil {
			return fmt.Errorf("binary not found in release (expected %s)", updater.AssetName())
		}

		// Stop the daemon before swapping the binary it runs from.
		daemonWasRunning, daemonInfo, _ := config.IsDaemonRunning()
		if daemonWasRunning && daemonInfo != nil {
			fmt.Println("Stopping daemon...")
			if err := stopDaemonProcess(daemonInfo.PID); err != nil {
				fmt.Printf("Warning: failed to stop daemon: %v\n", err)
			}
		}

		fmt.Printf("Downloading %s...\n", asset.Name)
		tmpPath, err := updater.DownloadAsset(asset)
		if err != nil {
			return fmt.Errorf("failed to download update: %w", err)
		}
		defer os.Remove(tmpPath)

		selfPath, err := os.Executable()
		if err != nil {
			return fmt.Errorf("failed to find self: %w", err)
		}

		fmt.Println("Installing...")
		if err := updater.ReplaceBinary(selfPath, tmpPath); err != nil {
			return fmt.Errorf("failed to install update: %w", err)
		}

		if daemonWasRunning {
			fmt.Println("Restarting daemon...")
			if err := startDaemonProcess(); err != nil {
				fmt.Printf("Warning: failed to restart daemon: %v\n", err)
			}
		}

		fmt.Printf("%s\n", styleSuccess.Render(fmt.Sprintf("Updated to v%s.", result.LatestVersion)))
		return nil
	},
}
