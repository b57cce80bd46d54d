package raster

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/semaphore"

	"allergen-map/internal/common"
	"allergen-map/internal/logging"
	"allergen-map/internal/metrics"
	"allergen-map/internal/storage"
	"allergen-map/pkg/geotiff"
)

// Loader reads rasters from a storage source. It never caches: every Load decodes afresh.
// At most maxResident grids are alive at once across all callers sharing the Loader;
// further loads wait until a grid is released or their context ends.
type Loader struct {
	source  storage.Source
	sem     *semaphore.Weighted
	metrics *metrics.Metrics
	logger  *log.Logger
}

// NewLoader creates a loader. maxResident below 1 is treated as 1.
func NewLoader(source storage.Source, maxResident int64, m *metrics.Metrics, logger *log.Logger) *Loader {
	if maxResident < 1 {
		maxResident = 1
	}
	return &Loader{
		source:  source,
		sem:     semaphore.NewWeighted(maxResident),
		metrics: m,
		logger:  logging.Component(logger, "raster"),
	}
}

// Load reads and decodes the raster at path.
// Errors wrap common.ErrNotFound, common.ErrCorruptData or the context error.
func (l *Loader) Load(ctx context.Context, path string) (*Grid, error) {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	// the slot leaves with the grid; any other exit, a panic included, returns it
	handedOver := false
	defer func() {
		if !handedOver {
			l.sem.Release(1)
		}
	}()

	start := time.Now()
	grid, err := l.read(ctx, path)
	if err != nil {
		return nil, err
	}

	l.metrics.RasterLoaded()
	grid.release = func() {
		l.sem.Release(1)
		l.metrics.RasterReleased()
	}
	handedOver = true
	l.logger.Debug("raster loaded", "path", path, "width", grid.Width, "height", grid.Height, "elapsed", time.Since(start))
	return grid, nil
}

func (l *Loader) read(ctx context.Context, path string) (*Grid, error) {
	rc, err := l.source.Open(ctx, path)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, fmt.Errorf("raster %s: %v: %w", path, err, common.ErrCorruptData)
	}
	data, err := io.ReadAll(rc)
	rc.Close()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("raster %s: read: %v: %w", path, err, common.ErrCorruptData)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r, err := geotiff.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("raster %s: %v: %w", path, err, common.ErrCorruptData)
	}
	if !r.Bounds.Valid() {
		return nil, fmt.Errorf("raster %s: invalid bounds %+v: %w", path, r.Bounds, common.ErrCorruptData)
	}
	return fromRaster(r), nil
}

// fromRaster takes ownership of r's samples, replacing nodata cells with NaN
func fromRaster(r *geotiff.Raster) *Grid {
	nan := float32(math.NaN())
	if r.HasNoData && !math.IsNaN(r.NoData) {
		nd := float32(r.NoData)
		for i, v := range r.Samples {
			if v == nd {
				r.Samples[i] = nan
			}
		}
	}
	epsg := r.EPSG
	if epsg == 0 {
		epsg = geotiff.EPSG4326
	}
	return &Grid{
		Width:     r.Width,
		Height:    r.Height,
		Bounds:    r.Bounds,
		EPSG:      epsg,
		Cells:     r.Samples,
		NoData:    r.NoData,
		HasNoData: r.HasNoData,
	}
}
