// Package metrics registers the Prometheus collectors of the render and export pipelines.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is nil-safe: every method is a no-op on a nil receiver.
type Metrics struct {
	// Render pipeline latency by dataset and outcome kind
	RenderLatency *prometheus.HistogramVec

	// Size of the last overlay produced per dataset
	OverlayBytes *prometheus.GaugeVec

	// Downsampling factor applied to the last overlay per dataset
	OverlayFactor *prometheus.GaugeVec

	// Selection changes by outcome
	Selections *prometheus.CounterVec

	// Export requests by dataset and outcome
	Exports *prometheus.CounterVec

	// Export bundling latency
	ExportLatency prometheus.Histogram

	// Rasters currently decoded in memory
	ResidentRasters prometheus.Gauge

	// Live map sessions
	Sessions prometheus.Gauge
}

// New registers all collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		RenderLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "allergenmap_render_duration_seconds",
			Help:    "Duration of the load, color-map and rasterize pipeline",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"dataset", "outcome"}),

		OverlayBytes: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "allergenmap_overlay_bytes",
			Help: "RGBA byte size of the most recent overlay per dataset",
		}, []string{"dataset"}),

		OverlayFactor: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "allergenmap_overlay_downsample_factor",
			Help: "Downsampling factor of the most recent overlay per dataset",
		}, []string{"dataset"}),

		Selections: f.NewCounterVec(prometheus.CounterOpts{
			Name: "allergenmap_selections_total",
			Help: "Selection changes by outcome",
		}, []string{"outcome"}),

		Exports: f.NewCounterVec(prometheus.CounterOpts{
			Name: "allergenmap_exports_total",
			Help: "Export requests by dataset and outcome",
		}, []string{"dataset", "outcome"}),

		ExportLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "allergenmap_export_duration_seconds",
			Help:    "Duration of building an export bundle",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),

		ResidentRasters: f.NewGauge(prometheus.GaugeOpts{
			Name: "allergenmap_resident_rasters",
			Help: "Raster grids currently decoded in memory",
		}),

		Sessions: f.NewGauge(prometheus.GaugeOpts{
			Name: "allergenmap_sessions",
			Help: "Live map sessions",
		}),
	}
}

// ObserveRender records one pipeline run
func (m *Metrics) ObserveRender(dataset, outcome string, d time.Duration) {
	if m != nil {
		m.RenderLatency.WithLabelValues(dataset, outcome).Observe(d.Seconds())
	}
}

// SetOverlay records the size and downsampling factor of an overlay
func (m *Metrics) SetOverlay(dataset string, bytes int64, factor int) {
	if m != nil {
		m.OverlayBytes.WithLabelValues(dataset).Set(float64(bytes))
		m.OverlayFactor.WithLabelValues(dataset).Set(float64(factor))
	}
}

// IncSelection counts a selection change
func (m *Metrics) IncSelection(outcome string) {
	if m != nil {
		m.Selections.WithLabelValues(outcome).Inc()
	}
}

// ObserveExport records one export request
func (m *Metrics) ObserveExport(dataset, outcome string, d time.Duration) {
	if m != nil {
		m.Exports.WithLabelValues(dataset, outcome).Inc()
		m.ExportLatency.Observe(d.Seconds())
	}
}

// RasterLoaded increments the resident raster gauge
func (m *Metrics) RasterLoaded() {
	if m != nil {
		m.ResidentRasters.Inc()
	}
}

// RasterReleased decrements the resident raster gauge
func (m *Metrics) RasterReleased() {
	if m != nil {
		m.ResidentRasters.Dec()
	}
}

// SetSessions sets the live session gauge
func (m *Metrics) SetSessions(n int) {
	if m != nil {
		m.Sessions.Set(float64(n))
	}
}
