package raster

import (
	"context"
	"io"
	"math"
	"sync/atomic"
	"testing"
	"testing/fstest"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"allergen-map/internal/common"
	"allergen-map/internal/metrics"
	"allergen-map/internal/raster/rastertest"
	"allergen-map/internal/storage"
)

func TestLoadReplacesNoDataWithNaN(t *testing.T) {
	l := NewLoader(rastertest.Source(t, 4, 3), 2, nil, nil)

	g, err := l.Load(context.Background(), "Alnus.tif")
	require.NoError(t, err)
	defer g.Release()

	assert.Equal(t, 4, g.Width)
	assert.Equal(t, 3, g.Height)
	assert.Equal(t, rastertest.BoundsFor(4, 3), g.Bounds)
	assert.True(t, g.HasNoData)
	assert.Equal(t, -9999.0, g.NoData)

	// fixture puts one nodata cell on the diagonal of each row
	for y := 0; y < g.Height; y++ {
		assert.True(t, math.IsNaN(float64(g.At(y, y))), "row %d", y)
	}
	assert.InDelta(t, -1+56.0/11, g.At(1, 0), 1e-5)

	s := g.Stats()
	assert.Equal(t, 12, s.TotalCells)
	assert.Equal(t, 9, s.ValidCells)
	assert.InDelta(t, 55, s.Max, 1e-4)
	assert.Greater(t, s.Min, -1.0)
}

func TestLoadErrors(t *testing.T) {
	src := storage.NewFS(fstest.MapFS{
		"broken.tif": {Data: []byte("II*\x00garbage")},
	}, "mem")
	l := NewLoader(src, 1, nil, nil)
	ctx := context.Background()

	_, err := l.Load(ctx, "missing.tif")
	assert.ErrorIs(t, err, common.ErrNotFound)

	_, err = l.Load(ctx, "broken.tif")
	assert.ErrorIs(t, err, common.ErrCorruptData)

	// failed loads give their slot back
	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	_, err = l.Load(ctx, "missing.tif")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestResidencyLimit(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	l := NewLoader(rastertest.Source(t, 2, 2), 1, m, nil)

	first, err := l.Load(context.Background(), "Alnus.tif")
	require.NoError(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ResidentRasters))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = l.Load(ctx, "Betula.tif")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	first.Release()
	first.Release()
	assert.Nil(t, first.Cells)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.ResidentRasters))

	second, err := l.Load(context.Background(), "Betula.tif")
	require.NoError(t, err)
	second.Release()
}

// panicOnce blows up on its first Open and serves src afterwards
type panicOnce struct {
	storage.Source
	opened atomic.Int32
}

func (p *panicOnce) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	if p.opened.Add(1) == 1 {
		panic("source exploded")
	}
	return p.Source.Open(ctx, name)
}

func TestPanicDuringLoadReleasesSlot(t *testing.T) {
	src := &panicOnce{Source: rastertest.Source(t, 2, 2)}
	l := NewLoader(src, 1, nil, nil)

	assert.Panics(t, func() { _, _ = l.Load(context.Background(), "Alnus.tif") })

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	g, err := l.Load(ctx, "Alnus.tif")
	require.NoError(t, err)
	g.Release()
}

func TestLoadRejectsOversizedHeader(t *testing.T) {
	data := rastertest.Files(t, 2, 2)["Alnus.tif"].Data
	// ImageWidth is the first IFD entry; value at 8 (header) + 2 (count) + 8
	huge := append([]byte{}, data...)
	huge[18], huge[19], huge[20], huge[21] = 0xff, 0xff, 0xff, 0xff
	src := storage.NewFS(fstest.MapFS{"huge.tif": {Data: huge}}, "mem")
	l := NewLoader(src, 1, nil, nil)

	_, err := l.Load(context.Background(), "huge.tif")
	assert.ErrorIs(t, err, common.ErrCorruptData)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err = l.Load(ctx, "huge.tif")
	assert.ErrorIs(t, err, common.ErrCorruptData)
}

func TestGridRasterRoundTrip(t *testing.T) {
	l := NewLoader(rastertest.Source(t, 3, 3), 1, nil, nil)
	g, err := l.Load(context.Background(), "Corylus.tif")
	require.NoError(t, err)
	defer g.Release()

	r := g.Raster()
	assert.Equal(t, 3, r.Width)
	assert.Equal(t, -9999.0, r.NoData)
	assert.True(t, r.HasNoData)

	g.HasNoData = false
	assert.Equal(t, float64(DefaultNoData), g.Raster().NoData)
}

func TestStatsWithoutValidCells(t *testing.T) {
	nan := float32(math.NaN())
	g := &Grid{Width: 2, Height: 1, Cells: []float32{nan, nan}}
	s := g.Stats()
	assert.Zero(t, s.ValidCells)
	assert.Zero(t, s.Min)
	assert.Zero(t, s.Max)
}
