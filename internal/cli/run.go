package cli

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/qol-tools/qol-tray/internal/config"
	"github.com/qol-tools/qol-tray/internal/daemon"
	"github.com/qol-tools/qol-tray/internal/daemon/tray"
	"github.com/qol-tools/qol-tray/internal/logging"
)

// runDaemon is the root command: it starts the tray daemon and blocks until
// shutdown.
func runDaemon(cmd *cobra.Command, args []string) error {
	release, err := config.AcquireInstanceLock()
	if err != nil {
		if errors.Is(err, config.ErrAlreadyRunning) {
			if info, loadErr := config.LoadDaemonInfo(); loadErr == nil && info != nil {
				return fmt.Errorf("qol-tray is already running (PID %d, port %d)", info.PID, info.Port)
			}
			return err
		}
		return err
	}
	defer release()

	settings, err := config.LoadSettings()
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}

	log, err := logging.New(settings.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	d, err := daemon.New(daemon.Options{
		Settings: settings,
		Port:     flagPort,
		DevMode:  flagDev || config.DevMode(),
		Logger:   log,
	})
	if err != nil {
		return err
	}

	if flagForeground {
		return runForeground(d, log)
	}
	runWithTray(d, log)
	return nil
}

// runForeground runs the daemon without a system tray, blocking on signals.
func runForeground(d *daemon.Daemon, log *zap.Logger) error {
	if err := d.Start(); err != nil {
		return err
	}

	fmt.Printf("qol-tray running on port %d (PID %d)\n", d.Port(), os.Getpid())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("received signal, shutting down", zap.String("signal", sig.String()))
	case <-d.ShutdownRequested():
		log.Info("shutdown requested")
	}

	d.Stop()
	fmt.Println("qol-tray stopped")
	return nil
}

// runWithTray runs the daemon behind a system tray icon on the main
// goroutine. systray.Run must occupy the main goroutine on macOS (Cocoa
// requirement), so everything else hangs off its ready callback.
func runWithTray(d *daemon.Daemon, log *zap.Logger) {
	state := d.TrayState()

	onStart := func() {
		if err := d.Start(); err != nil {
			log.Error("daemon failed to start", zap.Error(err))
			fmt.Fprintf(os.Stderr, "qol-tray failed to start: %v\n", err)
			tray.Quit()
			return
		}

		refresh := func() { tray.UpdatePlugins(state.Plugins()) }
		d.SetOnStateChange(refresh)
		refresh()

		// Quit the tray on SIGINT/SIGTERM or an internal shutdown request;
		// cleanup happens in onExit.
		go func() {
			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			select {
			case sig := <-sigCh:
				log.Info("received signal, shutting down", zap.String("signal", sig.String()))
			case <-d.ShutdownRequested():
				log.Info("shutdown requested")
			}
			tray.Quit()
		}()
	}

	onExit := func() {
		d.Stop()
	}

	tray.Run(state, onStart, onExit)
}
