package overlay

import (
	"bytes"
	"image/color"
	"image/png"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"allergen-map/internal/colormap"
	"allergen-map/internal/common"
	"allergen-map/internal/raster"
	"allergen-map/internal/raster/rastertest"
)

func mapping(t *testing.T) *colormap.Mapping {
	t.Helper()
	m, err := colormap.New(colormap.DefaultDomain())
	require.NoError(t, err)
	return m
}

func grid(w, h int, cells ...float32) *raster.Grid {
	if cells == nil {
		cells = make([]float32, w*h)
		for i := range cells {
			cells[i] = float32(i % 56)
		}
	}
	return &raster.Grid{Width: w, Height: h, Bounds: rastertest.Bounds, Cells: cells}
}

func TestRenderFullResolution(t *testing.T) {
	m := mapping(t)
	nan := float32(math.NaN())
	g := grid(3, 1, -1, nan, 100)

	img, err := Render(g, m, Options{MaxBytes: 12})
	require.NoError(t, err)

	assert.Equal(t, 1, img.Factor)
	assert.Equal(t, 3, img.Width())
	assert.Equal(t, 1, img.Height())
	assert.Equal(t, int64(12), img.ByteSize)
	assert.Equal(t, rastertest.Bounds, img.Bounds)

	assert.Equal(t, m.Anchors()[0], img.RGBA.RGBAAt(0, 0))
	assert.Equal(t, color.RGBA{}, img.RGBA.RGBAAt(1, 0))
	assert.Equal(t, color.RGBA{}, img.RGBA.RGBAAt(2, 0))
}

func TestRenderHalvesUntilBudgetFits(t *testing.T) {
	img, err := Render(grid(8, 8), mapping(t), Options{MaxBytes: 64})
	require.NoError(t, err)

	assert.Equal(t, 2, img.Factor)
	assert.Equal(t, 4, img.Width())
	assert.Equal(t, 4, img.Height())
	assert.Equal(t, int64(64), img.ByteSize)
	assert.Equal(t, 8, img.SourceWidth)
}

func TestRenderOddDimensionsRoundUp(t *testing.T) {
	img, err := Render(grid(5, 3), mapping(t), Options{MaxBytes: 24})
	require.NoError(t, err)
	assert.Equal(t, 2, img.Factor)
	assert.Equal(t, 3, img.Width())
	assert.Equal(t, 2, img.Height())
}

func TestBlockMeanIgnoresMissingAndOutOfDomain(t *testing.T) {
	m := mapping(t)
	nan := float32(math.NaN())
	g := grid(2, 2, 10, nan, 20, 100)

	img, err := Render(g, m, Options{MaxBytes: 4})
	require.NoError(t, err)
	assert.Equal(t, m.ColorFor(15), img.RGBA.RGBAAt(0, 0))

	empty := grid(2, 2, nan, nan, 200, -50)
	img, err = Render(empty, m, Options{MaxBytes: 4})
	require.NoError(t, err)
	assert.Equal(t, color.RGBA{}, img.RGBA.RGBAAt(0, 0))
}

func TestRenderRespectsBudget(t *testing.T) {
	m := mapping(t)
	for _, size := range [][2]int{{1, 1}, {7, 3}, {64, 48}, {333, 101}, {1000, 10}} {
		for _, budget := range []int64{4, 100, 4096, 65536} {
			img, err := Render(grid(size[0], size[1]), m, Options{MaxBytes: budget})
			if err != nil {
				assert.ErrorIs(t, err, common.ErrOutputTooLarge)
				continue
			}
			assert.LessOrEqual(t, img.ByteSize, budget, "%v budget %d", size, budget)
			assert.Equal(t, int64(img.Width()*img.Height()*BytesPerPixel), img.ByteSize)
		}
	}
}

func TestRenderOutputTooLarge(t *testing.T) {
	m := mapping(t)

	_, err := Render(grid(8, 8), m, Options{MaxBytes: 16, MinDimension: 4})
	assert.ErrorIs(t, err, common.ErrOutputTooLarge)

	// a single cell can not shrink further
	_, err = Render(grid(1, 1), m, Options{MaxBytes: 3})
	assert.ErrorIs(t, err, common.ErrOutputTooLarge)
}

func TestRenderRejectsReleasedGrid(t *testing.T) {
	g := grid(2, 2)
	g.Release()
	_, err := Render(g, mapping(t), DefaultOptions())
	assert.ErrorIs(t, err, common.ErrCorruptData)
}

func TestEncodePNG(t *testing.T) {
	img, err := Render(grid(6, 4), mapping(t), DefaultOptions())
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, img.EncodePNG(&buf))

	decoded, err := png.Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, img.RGBA.Bounds(), decoded.Bounds())
}
