// Package bootstrap wires the shared services from the settings.
package bootstrap

import (
	"context"
	"fmt"
	"io/fs"
	"time"

	"github.com/charmbracelet/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"allergen-map/internal/catalog"
	"allergen-map/internal/colormap"
	"allergen-map/internal/config"
	"allergen-map/internal/export"
	"allergen-map/internal/handlers/mapserver"
	"allergen-map/internal/logging"
	"allergen-map/internal/mapview"
	"allergen-map/internal/metrics"
	"allergen-map/internal/overlay"
	"allergen-map/internal/raster"
	"allergen-map/internal/session"
	"allergen-map/internal/storage"
)

// Services are shared by every session. All of them are safe for concurrent use.
type Services struct {
	Settings *config.Settings
	Catalog  *catalog.Catalog
	Mapping  *colormap.Mapping
	Source   storage.Source
	Metadata storage.Resource
	Loader   *raster.Loader
	Pipeline *mapview.RasterPipeline
	Bundler  *export.Bundler

	Registry *prometheus.Registry
	Metrics  *metrics.Metrics
	Logger   *log.Logger
}

// Build validates the settings and wires the services.
// Configuration problems wrap common.ErrConfig and must abort startup.
func Build(ctx context.Context, settings *config.Settings, logger *log.Logger) (*Services, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	source, err := storage.Open(ctx, settings.Storage)
	if err != nil {
		return nil, fmt.Errorf("storage: %w", err)
	}
	return BuildWithSource(settings, source, logger)
}

// BuildWithSource wires the services on an already opened source
func BuildWithSource(settings *config.Settings, source storage.Source, logger *log.Logger) (*Services, error) {
	if logger == nil {
		logger = logging.Discard()
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	mapping, err := colormap.New(settings.Color)
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	cat := catalog.Default()
	metadata := storage.Resource{Source: source, Path: settings.Storage.MetadataPath}
	loader := raster.NewLoader(source, int64(settings.MaxResidentRasters), m, logger)
	opts := overlay.Options{MaxBytes: settings.Overlay.MaxBytes, MinDimension: settings.Overlay.MinDimension}

	s := &Services{
		Settings: settings,
		Catalog:  cat,
		Mapping:  mapping,
		Source:   source,
		Metadata: metadata,
		Loader:   loader,
		Pipeline: mapview.NewPipeline(loader, mapping, opts, m, logger),
		Bundler:  export.NewBundler(cat, loader, metadata, settings.Export.TempDir, m, logger),
		Registry: reg,
		Metrics:  m,
		Logger:   logger,
	}
	logger.Info("services ready",
		"driver", settings.Storage.Driver,
		"datasets", len(cat.Entries()),
		"max_overlay_bytes", opts.MaxBytes,
		"max_resident_rasters", settings.MaxResidentRasters)
	return s, nil
}

// NewController creates an Idle map view for one session
func (s *Services) NewController() *mapview.Controller {
	return mapview.NewController(s.Catalog, s.Pipeline, s.Metrics, s.Logger)
}

// NewSessions creates the session registry sized by the server settings
func (s *Services) NewSessions() *session.Registry {
	ttl := time.Duration(s.Settings.Server.SessionTTLMinutes) * time.Minute
	return session.NewRegistry(s.Settings.Server.MaxSessions, ttl, s.NewController, s.Metrics, s.Logger)
}

// NewServer creates the HTTP server over sessions, serving assets at / when given
func (s *Services) NewServer(sessions *session.Registry, assets fs.FS) *mapserver.Server {
	return mapserver.NewServer(mapserver.Deps{
		Settings: s.Settings,
		Catalog:  s.Catalog,
		Mapping:  s.Mapping,
		Metadata: s.Metadata,
		Bundler:  s.Bundler,
		Sessions: sessions,
		Gatherer: s.Registry,
		Assets:   assets,
		Logger:   s.Logger,
	})
}
