// Package main is the entry point for the qol-tray binary. The bare binary
// runs the tray daemon; subcommands act as clients of a running daemon.
package main

import (
	"os"

	"github.com/qol-tools/qol-tray/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
