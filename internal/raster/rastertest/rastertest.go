// Package rastertest builds small GeoTIFF fixtures and in-memory storage for tests.
package rastertest

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"allergen-map/internal/storage"
	"allergen-map/pkg/geotiff"
)

// Metadata is the infoMap.txt content served by Source
const Metadata = "Allergen tree species coverage (%)\nSources: EU-Forest, Mauri et al. 2017\nProjection: EPSG:4326\n"

// CellSize of the fixture rasters in degrees; exact in binary so bounds survive encoding unchanged
const CellSize = 0.25

// BoundsFor returns the extent of a w x h fixture anchored at 6E 48N
func BoundsFor(w, h int) geotiff.Bounds {
	return geotiff.Bounds{West: 6, North: 48, East: 6 + CellSize*float64(w), South: 48 - CellSize*float64(h)}
}

// Bounds is the extent of a 16 x 8 fixture
var Bounds = BoundsFor(16, 8)

// Raster returns a w x h float32 raster whose values ramp from -1 to 55 with one nodata cell per row
func Raster(w, h int) *geotiff.Raster {
	samples := make([]float32, w*h)
	n := float32(len(samples) - 1)
	if n == 0 {
		n = 1
	}
	for i := range samples {
		samples[i] = -1 + 56*float32(i)/n
	}
	for y := 0; y < h; y++ {
		samples[y*w+(y%w)] = -9999
	}
	return &geotiff.Raster{
		Width:      w,
		Height:     h,
		Samples:    samples,
		Bounds:     BoundsFor(w, h),
		EPSG:       geotiff.EPSG4326,
		NoData:     -9999,
		HasNoData:  true,
		SampleType: geotiff.Float32,
	}
}

// Encode serialises r or fails the test
func Encode(t testing.TB, r *geotiff.Raster) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := geotiff.Encode(&buf, r); err != nil {
		t.Fatalf("encode fixture: %v", err)
	}
	return buf.Bytes()
}

// Files returns the shipped dataset layout: one raster per catalog entry plus infoMap.txt
func Files(t testing.TB, w, h int) fstest.MapFS {
	t.Helper()
	data := Encode(t, Raster(w, h))
	return fstest.MapFS{
		"Alnus.tif":   {Data: data},
		"Betula.tif":  {Data: data},
		"Corylus.tif": {Data: data},
		"infoMap.txt": {Data: []byte(Metadata)},
	}
}

// Source serves Files(w, h) from memory
func Source(t testing.TB, w, h int) *storage.FS {
	t.Helper()
	return storage.NewFS(Files(t, w, h), "fixture")
}

// WriteDir writes Files(w, h) into dir, for code that opens a data directory
func WriteDir(t testing.TB, dir string, w, h int) {
	t.Helper()
	for name, f := range Files(t, w, h) {
		if err := os.WriteFile(filepath.Join(dir, name), f.Data, 0o644); err != nil {
			t.Fatalf("write fixture %s: %v", name, err)
		}
	}
}
