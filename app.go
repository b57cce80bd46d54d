package main

import (
	"context"
	"fmt"
	goruntime "runtime"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/posthog/posthog-go"
	wailsRuntime "github.com/wailsapp/wails/v2/pkg/runtime"

	"allergen-map/frontend"
	"allergen-map/internal/bootstrap"
	"allergen-map/internal/catalog"
	"allergen-map/internal/colormap"
	"allergen-map/internal/common"
	"allergen-map/internal/config"
	"allergen-map/internal/handlers/mapserver"
	"allergen-map/internal/mapview"
	"allergen-map/internal/session"
)

// Linker flags
var (
	PostHogKey  string
	PostHogHost string
	AppVersion  string = "0.0.0-dev"
)

// App is bound to the desktop window. It owns a single map session whose overlay
// images are served by a local map server.
type App struct {
	ctx          context.Context
	services     *bootstrap.Services
	sessions     *session.Registry
	session      *session.Session
	server       *mapserver.Server
	settings     *config.Settings
	settingsPath string
	logger       *log.Logger
	mu           sync.Mutex
	devMode      bool // Enable verbose logging in dev mode only
	phClient     posthog.Client
}

// NewApp creates the App on already built services
func NewApp(services *bootstrap.Services, settingsPath string) *App {
	// The window never goes idle long enough to lose its session
	sessions := session.NewRegistry(1, 0, services.NewController, services.Metrics, services.Logger)

	// Initialize PostHog
	var phClient posthog.Client
	key := PostHogKey
	if key == "" {
		key = services.Settings.AnalyticsKey
	}
	if key != "" {
		client, err := posthog.NewWithConfig(key, posthog.Config{Endpoint: PostHogHost})
		if err != nil {
			services.Logger.Warn("failed to initialize PostHog", "err", err)
		} else {
			phClient = client
		}
	}

	// the window edits its own copy; the map server keeps the startup settings
	settings := *services.Settings

	return &App{
		services:     services,
		sessions:     sessions,
		session:      sessions.Create(),
		settings:     &settings,
		settingsPath: settingsPath,
		logger:       services.Logger,
		phClient:     phClient,
	}
}

// startup is called when the app starts
func (a *App) startup(ctx context.Context) {
	a.ctx = ctx

	a.server = a.services.NewServer(a.sessions, frontend.Dist())
	if err := a.server.Start("127.0.0.1:0"); err != nil {
		wailsRuntime.LogError(ctx, fmt.Sprintf("Failed to start map server: %v", err))
	} else {
		wailsRuntime.LogInfo(ctx, "Map server listening on "+a.server.URL())
	}

	a.session.Controller.OnChange(func(v mapview.View) {
		wailsRuntime.EventsEmit(ctx, "view-changed", a.sessionResponse(v))
	})

	// Track app start
	a.TrackEvent("app_started", map[string]interface{}{
		"version":  a.GetAppVersion(),
		"os":       goruntime.GOOS,
		"arch":     goruntime.GOARCH,
		"datasets": len(a.services.Catalog.Entries()),
	})
}

// TrackEvent sends an event to PostHog
func (a *App) TrackEvent(event string, props map[string]interface{}) {
	if a.phClient != nil {
		a.phClient.Enqueue(posthog.Capture{
			DistinctId: "backend_user",
			Event:      event,
			Properties: props,
		})
	}
}

// Shutdown cleans up resources
func (a *App) Shutdown(ctx context.Context) {
	if a.server != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			a.logger.Warn("map server shutdown", "err", err)
		}
	}
	a.sessions.Close()
	if a.phClient != nil {
		a.phClient.Close()
	}
}

// GetAppVersion returns the current application version
func (a *App) GetAppVersion() string {
	return AppVersion
}

// GetServerURL returns the base URL of the local map server
func (a *App) GetServerURL() string {
	if a.server == nil {
		return ""
	}
	return a.server.URL()
}

// GetCatalog lists the selectable datasets in display order
func (a *App) GetCatalog() []catalog.Entry {
	return a.services.Catalog.Entries()
}

// GetMapConfig returns base map, opacity, datasets and legend for the first paint
func (a *App) GetMapConfig() mapserver.ClientConfig {
	a.mu.Lock()
	defer a.mu.Unlock()
	return mapserver.BuildClientConfig(a.settings, a.services.Catalog, a.services.Mapping)
}

// GetLegend samples the color ramp at steps stops
func (a *App) GetLegend(steps int) colormap.Legend {
	if steps < 2 {
		steps = mapserver.DefaultLegendSteps
	}
	return a.services.Mapping.Legend(mapserver.LegendTitle, steps)
}

// GetMetadata returns the dataset description text verbatim
func (a *App) GetMetadata() (string, error) {
	data, err := a.services.Metadata.Read(a.ctx)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// SelectDataset changes the displayed dataset. selection is a display label,
// a selection key, "" or "none". A failed selection still returns the resulting
// Idle view, with the error in the response body.
func (a *App) SelectDataset(selection string) mapserver.SessionResponse {
	v, err := a.session.Controller.Select(a.ctx, selection)
	resp := a.sessionResponse(v)
	if err != nil {
		a.emitLog(fmt.Sprintf("selection %q: %v", selection, err))
		body := mapserver.ErrorBody{Kind: common.KindOf(err), Message: err.Error()}
		resp.Error = &body
		return resp
	}
	if v.HasOverlay() {
		a.TrackEvent("dataset_selected", map[string]interface{}{
			"dataset": v.Key,
			"factor":  v.Image.Factor,
		})
	}
	return resp
}

// GetView returns the current view
func (a *App) GetView() mapserver.SessionResponse {
	return a.sessionResponse(a.session.Controller.View())
}

// overlay URLs are relative to GetServerURL
func (a *App) sessionResponse(v mapview.View) mapserver.SessionResponse {
	return mapserver.NewSessionResponse(a.session, v)
}

// emitLog sends a log message to the frontend (only in dev mode)
func (a *App) emitLog(message string) {
	a.logger.Debug(message)
	if a.devMode && a.ctx != nil {
		wailsRuntime.EventsEmit(a.ctx, "log", message)
	}
}
