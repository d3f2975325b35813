// Package logging builds the daemon's zap logger.
package logging

import (
	"fmt"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/qol-tools/qol-tray/internal/config"
)

// New builds a production logger writing to stdout and the log file under
// the application's logs directory. level is one of "debug", "info", "warn",
// "error"; anything else falls back to info.
func New(level string) (*zap.Logger, error) {
	if err := config.EnsureLogsDir(); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	logsDir, err := config.LogsDir()
	if err != nil {
		return nil, err
	}
	logFile := filepath.Join(logsDir, "qol-tray.log")

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(parseLevel(level))
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.MessageKey = "message"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.OutputPaths = []string{"stdout", logFile}
	cfg.ErrorOutputPaths = []string{"stderr", logFile}

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return logger, nil
}

func parseLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zap.DebugLevel
	case "warn":
		return zap.WarnLevel
	case "error":
		return zap.ErrorLevel
	default:
		return zap.InfoLevel
	}
}
