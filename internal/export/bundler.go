package export

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"allergen-map/internal/catalog"
	"allergen-map/internal/common"
	"allergen-map/internal/logging"
	"allergen-map/internal/metrics"
	"allergen-map/internal/raster"
	"allergen-map/internal/storage"
	"allergen-map/internal/utils/naming"
	"allergen-map/pkg/geotiff"
)

// Bundler builds export archives. It never reuses a displayed overlay:
// every export reloads its own grid through the loader.
type Bundler struct {
	catalog  *catalog.Catalog
	loader   *raster.Loader
	metadata storage.Resource
	tempDir  string
	metrics  *metrics.Metrics
	logger   *log.Logger
	tracer   trace.Tracer
}

// NewBundler creates a bundler. An empty tempDir uses the OS default.
func NewBundler(cat *catalog.Catalog, loader *raster.Loader, metadata storage.Resource, tempDir string, m *metrics.Metrics, logger *log.Logger) *Bundler {
	return &Bundler{
		catalog:  cat,
		loader:   loader,
		metadata: metadata,
		tempDir:  tempDir,
		metrics:  m,
		logger:   logging.Component(logger, "export"),
		tracer:   otel.Tracer("allergen-map/export"),
	}
}

// Export builds the archive for the selection key: <base>.tif then infoMap.txt.
// Errors wrap common.ErrNoSelection, ErrNotFound or ErrCorruptData.
// The intermediate raster file never outlives the call.
func (b *Bundler) Export(ctx context.Context, key string) (bundle *Bundle, err error) {
	ctx, span := b.tracer.Start(ctx, "export.bundle", trace.WithAttributes(attribute.String("dataset", key)))
	start := time.Now()
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = common.KindOf(err)
			span.RecordError(err)
			span.SetStatus(codes.Error, outcome)
			b.logger.Warn("export failed", "dataset", key, "kind", outcome, "err", err)
		}
		b.metrics.ObserveExport(key, outcome, time.Since(start))
		span.End()
	}()

	if catalog.IsNone(key) {
		return nil, fmt.Errorf("export: %w", common.ErrNoSelection)
	}
	entry, err := b.catalog.Lookup(key)
	if err != nil {
		return nil, err
	}

	dir, err := os.MkdirTemp(b.tempDir, "allergen-export-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create export directory: %w", err)
	}
	defer os.RemoveAll(dir)

	tifPath := filepath.Join(dir, entry.RasterFileName())
	if err := b.writeRaster(ctx, entry, tifPath); err != nil {
		return nil, err
	}
	tif, err := os.ReadFile(tifPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read back %s: %w", entry.RasterFileName(), err)
	}

	meta, err := b.metadata.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("metadata: %w", err)
	}

	bundle = &Bundle{
		Key:         entry.Key,
		ArchiveName: entry.ArchiveFileName(),
		Entries: []Entry{
			{Name: entry.RasterFileName(), Data: tif},
			{Name: naming.MetadataFileName, Data: meta},
		},
		Created: time.Now(),
	}
	span.SetAttributes(attribute.Int("raster.bytes", len(tif)))
	b.logger.Info("export ready", "dataset", key, "archive", bundle.ArchiveName, "raster_bytes", len(tif), "elapsed", time.Since(start))
	return bundle, nil
}

// writeRaster reloads the grid, writes it as a standalone GeoTIFF and releases it
func (b *Bundler) writeRaster(ctx context.Context, entry catalog.Entry, path string) error {
	grid, err := b.loader.Load(ctx, entry.SourcePath)
	if err != nil {
		return err
	}
	defer grid.Release()

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Base(path), err)
	}
	w := bufio.NewWriter(f)
	if err := geotiff.Encode(w, grid.Raster()); err != nil {
		f.Close()
		return fmt.Errorf("failed to encode %s: %v: %w", entry.Key, err, common.ErrCorruptData)
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	return f.Close()
}
