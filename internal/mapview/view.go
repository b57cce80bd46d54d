// Package mapview holds the per-session selection state and drives the render pipeline.
package mapview

import (
	"allergen-map/internal/overlay"
	"allergen-map/internal/raster"
	"allergen-map/pkg/geotiff"
)

// State of a map view
type State string

const (
	// StateIdle shows the base map and legend only
	StateIdle State = "idle"
	// StateDisplaying shows the overlay of the selected dataset
	StateDisplaying State = "displaying"
)

// ImageInfo describes the rendered overlay without its pixels.
type ImageInfo struct {
	Width    int   `json:"width"`
	Height   int   `json:"height"`
	Factor   int   `json:"factor"`
	ByteSize int64 `json:"byteSize"`
}

// View is an immutable snapshot of a controller.
// While Pending is set the selection has been accepted and its overlay is still rendering.
type View struct {
	State   State  `json:"state"`
	Key     string `json:"key,omitempty"`
	Label   string `json:"label,omitempty"`
	Pending bool   `json:"pending"`

	Overlay *overlay.Image  `json:"-"`
	Bounds  *geotiff.Bounds `json:"bounds,omitempty"`
	Image   *ImageInfo      `json:"image,omitempty"`
	Stats   *raster.Stats   `json:"stats,omitempty"`

	// Warning is a recoverable problem with the last selection
	Warning     string `json:"warning,omitempty"`
	WarningKind string `json:"warningKind,omitempty"`

	// Revision increases with every accepted selection change
	Revision uint64 `json:"revision"`
}

// HasOverlay reports whether the view carries a rendered image
func (v View) HasOverlay() bool {
	return v.State == StateDisplaying && !v.Pending && v.Overlay != nil
}

func idleView(rev uint64) View {
	return View{State: StateIdle, Revision: rev}
}

func displayingView(rev uint64, key, label string, res *Result) View {
	v := View{State: StateDisplaying, Key: key, Label: label, Revision: rev}
	if res == nil {
		v.Pending = true
		return v
	}
	img := res.Overlay
	stats := res.Stats
	bounds := img.Bounds
	v.Overlay = img
	v.Bounds = &bounds
	v.Stats = &stats
	v.Image = &ImageInfo{
		Width:    img.Width(),
		Height:   img.Height(),
		Factor:   img.Factor,
		ByteSize: img.ByteSize,
	}
	return v
}
