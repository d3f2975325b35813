// Package cli implements the qol-tray command line interface. Running the
// bare binary starts the tray daemon; the subcommands talk to a running
// daemon over its control surface.
package cli

import (
	"github.com/spf13/cobra"
)

var (
	flagForeground bool
	flagPort       int
	flagDev        bool
)

var rootCmd = &cobra.Command{
	Use:   "qol-tray",
	Short: "Tray daemon hosting quality-of-life plugins",
	Long: `QOL Tray hosts small script plugins behind a system tray icon: it
discovers them in the plugins directory, supervises their background
daemons, binds global hotkeys to their actions, and serves the browser
UI that manages it all.

Run without arguments to start the daemon.`,
	RunE:          runDaemon,
	SilenceUsage:  true,
	SilenceErrors: false,
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.Flags().BoolVar(&flagForeground, "foreground", false, "Run without the system tray (for development)")
	rootCmd.Flags().IntVar(&flagPort, "port", 0, "Control surface port (0 uses the configured port)")
	rootCmd.Flags().BoolVar(&flagDev, "dev", false, "Enable development-only features")

	// Add subcommands (alphabetical)
	rootCmd.AddCommand(pluginsCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(updateCmd)
	rootCmd.AddCommand(versionCmd)
}
