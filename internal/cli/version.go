package cli

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/qol-tools/qol-tray/internal/buildinfo"
)

var versionCmd = &cobra.Command{
	Use:     "version",
	Aliases: []string{"v"},
	Short:   "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("%s %s\n", styleBrand.Render("QOL Tray"), styleVersion.Render(buildinfo.Version))
		if buildinfo.CommitHash != "unknown" {
			fmt.Printf("  %s %s\n", styleLabel.Render("Commit: "), buildinfo.CommitHash)
		}
		if buildinfo.BuildDate != "unknown" {
			fmt.Printf("  %s %s\n", styleLabel.Render("Built:  "), buildinfo.BuildDate)
		}
		fmt.Printf("  %s %s/%s\n", styleLabel.Render("OS/Arch:"), runtime.GOOS, runtime.GOARCH)
		fmt.Printf("  %s %s\n", styleLabel.Render("Go:     "), runtime.Version())
	},
}
