package config

import (
	"os"

	"github.com/qol-tools/qol-tray/internal/models"
)

// LoadSettings loads the global settings from settings.yaml.
// If the file doesn't exist, returns default settings.
func LoadSettings() (*models.Settings, error) {
	path, err := SettingsFile()
	if err != nil {
		return nil, err
	}
	return LoadYAMLOrDefault(path, models.NewSettings)
}

// SaveSettings saves the global settings to settings.yaml.
func SaveSettings(settings *models.Settings) error {
	path, err := SettingsFile()
	if err != nil {
		return err
	}
	return SaveYAML(path, settings)
}

// DevMode reports whether development-only features are switched on via the
// QOL_TRAY_DEV environment variable.
func DevMode() bool {
	switch os.Getenv("QOL_TRAY_DEV") {
	case "1", "true", "yes":
		return true
	}
	return false
}
