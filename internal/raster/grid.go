// Package raster loads single-band allergen rasters into memory under a residency limit.
package raster

import (
	"math"
	"sync"

	"allergen-map/pkg/geotiff"
)

// DefaultNoData is written for missing cells when the source declared no nodata value
const DefaultNoData = -9999

// Grid is a decoded raster owned by exactly one requester. Missing cells are NaN.
// Call Release as soon as the grid is no longer needed.
type Grid struct {
	Width  int
	Height int
	Bounds geotiff.Bounds
	EPSG   int
	Cells  []float32

	// NoData is the sentinel of the source file, kept for re-encoding
	NoData    float64
	HasNoData bool

	once    sync.Once
	release func()
}

// Stats summarises the valid cells of a grid.
type Stats struct {
	ValidCells int     `json:"validCells"`
	TotalCells int     `json:"totalCells"`
	Min        float64 `json:"min"`
	Max        float64 `json:"max"`
}

// At returns the value at column x, row y (row 0 is the north edge)
func (g *Grid) At(x, y int) float32 {
	return g.Cells[y*g.Width+x]
}

// Stats computes the valid cell count and value range. Min and Max are zero without valid cells.
func (g *Grid) Stats() Stats {
	s := Stats{TotalCells: len(g.Cells)}
	for _, v := range g.Cells {
		if math.IsNaN(float64(v)) {
			continue
		}
		f := float64(v)
		if s.ValidCells == 0 || f < s.Min {
			s.Min = f
		}
		if s.ValidCells == 0 || f > s.Max {
			s.Max = f
		}
		s.ValidCells++
	}
	return s
}

// Raster converts the grid back to an encodable float32 GeoTIFF raster.
// Cells are shared, not copied.
func (g *Grid) Raster() *geotiff.Raster {
	noData, has := g.NoData, g.HasNoData
	if !has {
		noData, has = DefaultNoData, true
	}
	return &geotiff.Raster{
		Width:      g.Width,
		Height:     g.Height,
		Samples:    g.Cells,
		Bounds:     g.Bounds,
		EPSG:       g.EPSG,
		NoData:     noData,
		HasNoData:  has,
		SampleType: geotiff.Float32,
	}
}

// Release drops the cell data and frees the residency slot. It is safe to call more than once.
func (g *Grid) Release() {
	g.once.Do(func() {
		g.Cells = nil
		if g.release != nil {
			g.release()
		}
	})
}
