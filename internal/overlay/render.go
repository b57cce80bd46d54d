// Package overlay rasterizes a grid into a color-mapped RGBA image under a byte budget.
package overlay

import (
	"fmt"
	"image"
	"image/png"
	"io"
	"math"

	"allergen-map/internal/colormap"
	"allergen-map/internal/common"
	"allergen-map/internal/raster"
	"allergen-map/pkg/geotiff"
)

// BytesPerPixel of the RGBA output
const BytesPerPixel = 4

// DefaultMaxBytes is the default overlay budget
const DefaultMaxBytes = 6_500_000

// Options bounds the rendered image.
type Options struct {
	// MaxBytes is the RGBA size ceiling, width*height*4
	MaxBytes int64 `json:"maxBytes" mapstructure:"maxbytes"`

	// MinDimension is the smallest width or height downsampling may reach
	MinDimension int `json:"minDimension" mapstructure:"mindimension"`
}

// DefaultOptions returns the budget used when nothing is configured
func DefaultOptions() Options {
	return Options{MaxBytes: DefaultMaxBytes, MinDimension: 1}
}

// Image is a rendered overlay. It shares the geographic bounds of its source grid.
type Image struct {
	RGBA     *image.RGBA
	Bounds   geotiff.Bounds
	ByteSize int64

	// Factor is the downsampling step: each pixel covers Factor x Factor source cells
	Factor       int
	SourceWidth  int
	SourceHeight int
}

// Width of the image in pixels
func (img *Image) Width() int { return img.RGBA.Rect.Dx() }

// Height of the image in pixels
func (img *Image) Height() int { return img.RGBA.Rect.Dy() }

// Render color-maps grid. When the full-resolution image exceeds opts.MaxBytes the grid is
// halved repeatedly, each output pixel taking the mean of the in-domain cells of its block.
// It fails with common.ErrOutputTooLarge when the budget cannot be met above opts.MinDimension.
func Render(grid *raster.Grid, mapping *colormap.Mapping, opts Options) (*Image, error) {
	if grid == nil || grid.Width <= 0 || grid.Height <= 0 || len(grid.Cells) != grid.Width*grid.Height {
		return nil, fmt.Errorf("overlay: empty or released grid: %w", common.ErrCorruptData)
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = DefaultMaxBytes
	}
	if opts.MinDimension < 1 {
		opts.MinDimension = 1
	}

	factor, w, h, err := fit(grid.Width, grid.Height, opts)
	if err != nil {
		return nil, err
	}

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for oy := 0; oy < h; oy++ {
		for ox := 0; ox < w; ox++ {
			v := blockMean(grid, mapping, ox*factor, oy*factor, factor)
			img.SetRGBA(ox, oy, mapping.ColorFor(v))
		}
	}

	return &Image{
		RGBA:         img,
		Bounds:       grid.Bounds,
		ByteSize:     int64(len(img.Pix)),
		Factor:       factor,
		SourceWidth:  grid.Width,
		SourceHeight: grid.Height,
	}, nil
}

// fit picks the smallest power-of-two factor whose output fits the budget
func fit(width, height int, opts Options) (factor, w, h int, err error) {
	factor, w, h = 1, width, height
	for int64(w)*int64(h)*BytesPerPixel > opts.MaxBytes {
		next := factor * 2
		nw, nh := ceilDiv(width, next), ceilDiv(height, next)
		if nw < opts.MinDimension || nh < opts.MinDimension || (nw == w && nh == h) {
			return 0, 0, 0, fmt.Errorf("overlay: %dx%d grid needs more than %d bytes at %dx%d: %w",
				width, height, opts.MaxBytes, w, h, common.ErrOutputTooLarge)
		}
		factor, w, h = next, nw, nh
	}
	return factor, w, h, nil
}

// blockMean averages the in-domain cells of the factor x factor block at (x0, y0); NaN if there are none
func blockMean(grid *raster.Grid, mapping *colormap.Mapping, x0, y0, factor int) float64 {
	if factor == 1 {
		return float64(grid.At(x0, y0))
	}
	x1, y1 := min(x0+factor, grid.Width), min(y0+factor, grid.Height)
	var sum float64
	var n int
	for y := y0; y < y1; y++ {
		row := grid.Cells[y*grid.Width : (y+1)*grid.Width]
		for x := x0; x < x1; x++ {
			v := float64(row[x])
			if mapping.Contains(v) {
				sum += v
				n++
			}
		}
	}
	if n == 0 {
		return math.NaN()
	}
	return sum / float64(n)
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}

// EncodePNG writes the overlay as a PNG with alpha
func (img *Image) EncodePNG(w io.Writer) error {
	enc := png.Encoder{CompressionLevel: png.BestSpeed}
	return enc.Encode(w, img.RGBA)
}
