package mapview

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"allergen-map/internal/catalog"
	"allergen-map/internal/colormap"
	"allergen-map/internal/common"
	"allergen-map/internal/logging"
	"allergen-map/internal/metrics"
	"allergen-map/internal/overlay"
	"allergen-map/internal/raster"
	"allergen-map/internal/utils/naming"
)

// Result of one pipeline run. The grid it came from has already been released.
type Result struct {
	Overlay *overlay.Image
	Stats   raster.Stats
}

// Pipeline turns a catalog entry into an overlay.
type Pipeline interface {
	Render(ctx context.Context, entry catalog.Entry) (*Result, error)
}

// RasterPipeline loads the raster, color-maps and rasterizes it, then drops the grid.
type RasterPipeline struct {
	loader  *raster.Loader
	mapping *colormap.Mapping
	opts    overlay.Options
	metrics *metrics.Metrics
	logger  *log.Logger
	tracer  trace.Tracer
}

// NewPipeline creates the load, color-map and rasterize pipeline
func NewPipeline(loader *raster.Loader, mapping *colormap.Mapping, opts overlay.Options, m *metrics.Metrics, logger *log.Logger) *RasterPipeline {
	return &RasterPipeline{
		loader:  loader,
		mapping: mapping,
		opts:    opts,
		metrics: m,
		logger:  logging.Component(logger, "pipeline"),
		tracer:  otel.Tracer("allergen-map/mapview"),
	}
}

// Render implements Pipeline
func (p *RasterPipeline) Render(ctx context.Context, entry catalog.Entry) (res *Result, err error) {
	ctx, span := p.tracer.Start(ctx, "mapview.render", trace.WithAttributes(
		attribute.String("dataset", entry.Key),
		attribute.String("source", entry.SourcePath),
	))
	start := time.Now()
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = common.KindOf(err)
			span.RecordError(err)
			span.SetStatus(codes.Error, outcome)
		}
		p.metrics.ObserveRender(entry.Key, outcome, time.Since(start))
		span.End()
	}()

	grid, err := p.loader.Load(ctx, entry.SourcePath)
	if err != nil {
		return nil, err
	}
	defer grid.Release()

	stats := grid.Stats()
	img, err := overlay.Render(grid, p.mapping, p.opts)
	if err != nil {
		return nil, err
	}

	span.SetAttributes(
		attribute.Int("overlay.width", img.Width()),
		attribute.Int("overlay.height", img.Height()),
		attribute.Int("overlay.factor", img.Factor),
		attribute.Int64("overlay.bytes", img.ByteSize),
	)
	p.metrics.SetOverlay(entry.Key, img.ByteSize, img.Factor)
	p.logger.Debug("overlay rendered",
		"dataset", entry.Key,
		"grid", [2]int{grid.Width, grid.Height},
		"bbox", naming.GenerateBBoxString(img.Bounds.South, img.Bounds.West, img.Bounds.North, img.Bounds.East),
		"factor", img.Factor,
		"bytes", img.ByteSize,
		"elapsed", time.Since(start))

	return &Result{Overlay: img, Stats: stats}, nil
}
