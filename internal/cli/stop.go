package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/qol-tools/qol-tray/internal/config"
)

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop a running daemon",
	RunE:  runStop,
}

func runStop(cmd *cobra.Command, args []string) error {
	running, info, err := config.IsDaemonRunning()
	if err != nil {
		return fmt.Errorf("failed to check daemon status: %w", err)
	}

	if !running || info == nil {
		fmt.Println("Daemon is not running.")
		return nil
	}

	if err := stopDaemonProcess(info.PID); err != nil {
		return err
	}

	fmt.Println("Daemon stopped.")
	return nil
}
