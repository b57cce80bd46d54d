package main

import (
	"context"
	"os"

	"github.com/wailsapp/wails/v2"
	"github.com/wailsapp/wails/v2/pkg/options"
	"github.com/wailsapp/wails/v2/pkg/options/assetserver"

	"allergen-map/frontend"
	"allergen-map/internal/bootstrap"
	"allergen-map/internal/config"
	"allergen-map/internal/logging"
)

// isDevMode detects if running in development mode
// Production builds will have embedded assets, dev mode uses live server
func isDevMode() bool {
	return os.Getenv("WAILS_DEV_SERVER") != "" || os.Getenv("FRONTEND_DEVSERVER_URL") != ""
}

func main() {
	devMode := os.Getenv("DEV_MODE") == "1" || isDevMode()

	settingsPath := config.GetSettingsPath()
	settings, err := config.LoadSettings(settingsPath)
	logger := logging.New(os.Stderr, devMode || (settings != nil && settings.Verbose))
	if err != nil {
		logger.Fatal("invalid settings", "path", settingsPath, "err", err)
	}
	logger.Info("settings loaded", "path", settingsPath)

	services, err := bootstrap.Build(context.Background(), settings, logger)
	if err != nil {
		logger.Fatal("startup failed", "err", err)
	}

	// Create an instance of the app structure
	app := NewApp(services, settingsPath)
	app.devMode = devMode

	// Create application with options
	err = wails.Run(&options.App{
		Title:  "Allergen Map",
		Width:  1024,
		Height: 768,
		AssetServer: &assetserver.Options{
			Assets: frontend.Dist(),
		},
		BackgroundColour: &options.RGBA{R: 27, G: 38, B: 54, A: 1},
		OnStartup:        app.startup,
		OnShutdown:       app.Shutdown,
		Bind: []interface{}{
			app,
		},
	})

	if err != nil {
		logger.Error("application stopped", "err", err)
		os.Exit(1)
	}
}
