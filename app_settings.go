package main

import (
	"allergen-map/internal/config"
)

// ===================
// Settings Management
// ===================

// GetSettings returns current user settings
func (a *App) GetSettings() (*config.Settings, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	// Return a copy to prevent external modifications
	settingsCopy := *a.settings
	return &settingsCopy, nil
}

// SaveSettings saves user settings to disk. Map and opacity changes apply to the
// next page load; storage, color and overlay changes apply on next restart.
func (a *App) SaveSettings(settings *config.Settings) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := settings.Validate(); err != nil {
		return err
	}
	if err := config.SaveSettings(settings, a.settingsPath); err != nil {
		return err
	}

	// Only presentation settings take effect immediately
	a.settings.Map = settings.Map
	a.settings.Overlay.Opacity = settings.Overlay.Opacity
	a.logger.Info("settings saved", "path", a.settingsPath)
	return nil
}

// GetSettingsPath returns the settings file path
func (a *App) GetSettingsPath() string {
	return a.settingsPath
}
