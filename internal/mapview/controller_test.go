package mapview

import (
	"context"
	"fmt"
	"image"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"allergen-map/internal/catalog"
	"allergen-map/internal/common"
	"allergen-map/internal/overlay"
	"allergen-map/internal/raster"
	"allergen-map/internal/raster/rastertest"
	"allergen-map/internal/storage"
)

// fakePipeline records calls and can hold a render until its gate is closed.
type fakePipeline struct {
	mu           sync.Mutex
	calls        []string
	gates        map[string]chan struct{}
	errs         map[string]error
	ignoreCancel bool
}

func newFakePipeline() *fakePipeline {
	return &fakePipeline{gates: map[string]chan struct{}{}, errs: map[string]error{}}
}

func (f *fakePipeline) Render(ctx context.Context, entry catalog.Entry) (*Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, entry.Key)
	gate, err := f.gates[entry.Key], f.errs[entry.Key]
	f.mu.Unlock()

	if gate != nil {
		if f.ignoreCancel {
			<-gate
		} else {
			select {
			case <-gate:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	if err != nil {
		return nil, err
	}
	img := image.NewRGBA(image.Rect(0, 0, 2, 1))
	return &Result{
		Overlay: &overlay.Image{RGBA: img, Bounds: rastertest.Bounds, ByteSize: int64(len(img.Pix)), Factor: 1, SourceWidth: 2, SourceHeight: 1},
		Stats:   raster.Stats{ValidCells: 2, TotalCells: 2, Max: 1},
	}, nil
}

func (f *fakePipeline) callCount(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, k := range f.calls {
		if k == key {
			n++
		}
	}
	return n
}

type ControllerSuite struct {
	suite.Suite
	pipeline *fakePipeline
	ctrl     *Controller
	ctx      context.Context
}

func TestControllerSuite(t *testing.T) {
	suite.Run(t, new(ControllerSuite))
}

func (s *ControllerSuite) SetupTest() {
	s.pipeline = newFakePipeline()
	s.ctrl = NewController(catalog.Default(), s.pipeline, nil, nil)
	s.ctx = context.Background()
}

func (s *ControllerSuite) TestStartsIdle() {
	v := s.ctrl.View()
	s.Equal(StateIdle, v.State)
	s.Equal(catalog.None, s.ctrl.Selection())
	s.False(v.HasOverlay())
}

func (s *ControllerSuite) TestSelectByLabelAndKey() {
	v, err := s.ctrl.Select(s.ctx, "Alnus spp.")
	s.Require().NoError(err)
	s.Equal(StateDisplaying, v.State)
	s.Equal("Alnus", v.Key)
	s.Equal("Alnus spp.", v.Label)
	s.False(v.Pending)
	s.True(v.HasOverlay())
	s.Equal(rastertest.Bounds, *v.Bounds)
	s.Equal(&ImageInfo{Width: 2, Height: 1, Factor: 1, ByteSize: 8}, v.Image)
	s.Equal("Alnus", s.ctrl.Selection())

	v, err = s.ctrl.Select(s.ctx, "Betula")
	s.Require().NoError(err)
	s.Equal("Betula", v.Key)
	s.Greater(v.Revision, uint64(1))
}

func (s *ControllerSuite) TestReselectRerunsPipeline() {
	_, err := s.ctrl.Select(s.ctx, "Corylus avellana")
	s.Require().NoError(err)
	_, err = s.ctrl.Select(s.ctx, "Corylus avellana")
	s.Require().NoError(err)
	s.Equal(2, s.pipeline.callCount("Corylus"))
}

func (s *ControllerSuite) TestUnknownSelectionGoesIdleWithWarning() {
	_, err := s.ctrl.Select(s.ctx, "Alnus")
	s.Require().NoError(err)

	v, err := s.ctrl.Select(s.ctx, "Quercus robur")
	s.ErrorIs(err, common.ErrNotFound)
	s.Equal(StateIdle, v.State)
	s.Nil(v.Overlay)
	s.Contains(v.Warning, "Quercus robur")
	s.Equal(common.KindNotFound, v.WarningKind)
	s.Equal(catalog.None, s.ctrl.Selection())
}

func (s *ControllerSuite) TestClearSelection() {
	for _, input := range []string{"", "none", " None "} {
		_, err := s.ctrl.Select(s.ctx, "Alnus")
		s.Require().NoError(err)

		v, err := s.ctrl.Select(s.ctx, input)
		s.Require().NoError(err)
		s.Equal(StateIdle, v.State)
		s.Empty(v.Warning)
	}
}

func (s *ControllerSuite) TestPipelineFailureGoesIdle() {
	s.pipeline.errs["Betula"] = fmt.Errorf("decode: %w", common.ErrCorruptData)

	v, err := s.ctrl.Select(s.ctx, "Betula spp.")
	s.ErrorIs(err, common.ErrCorruptData)
	s.Equal(StateIdle, v.State)
	s.Equal(common.KindCorruptData, v.WarningKind)
	s.Contains(v.Warning, "Betula spp.")

	s.pipeline.errs["Alnus"] = fmt.Errorf("too big: %w", common.ErrOutputTooLarge)
	v, _ = s.ctrl.Select(s.ctx, "Alnus")
	s.Equal(common.KindOutputTooLarge, v.WarningKind)
}

func (s *ControllerSuite) TestOnChangeSeesPendingThenResult() {
	var views []View
	s.ctrl.OnChange(func(v View) { views = append(views, v) })

	_, err := s.ctrl.Select(s.ctx, "Alnus")
	s.Require().NoError(err)

	s.Require().Len(views, 2)
	s.True(views[0].Pending)
	s.Equal("Alnus", views[0].Key)
	s.False(views[1].Pending)
	s.True(views[1].HasOverlay())
	s.Equal(views[0].Revision, views[1].Revision)
}

func (s *ControllerSuite) TestCloseRejectsSelections() {
	s.ctrl.Close()
	s.ctrl.Close()
	_, err := s.ctrl.Select(s.ctx, "Alnus")
	s.ErrorIs(err, ErrClosed)
	_, err = s.ctrl.Select(s.ctx, "")
	s.ErrorIs(err, ErrClosed)
}

func TestSupersedingSelectionWins(t *testing.T) {
	for _, ignoreCancel := range []bool{false, true} {
		t.Run(fmt.Sprintf("ignoreCancel=%v", ignoreCancel), func(t *testing.T) {
			p := newFakePipeline()
			p.ignoreCancel = ignoreCancel
			gate := make(chan struct{})
			p.gates["Alnus"] = gate
			ctrl := NewController(catalog.Default(), p, nil, nil)
			ctx := context.Background()

			staleErr := make(chan error, 1)
			go func() {
				_, err := ctrl.Select(ctx, "Alnus spp.")
				staleErr <- err
			}()
			require.Eventually(t, func() bool { return p.callCount("Alnus") == 1 }, time.Second, time.Millisecond)

			v, err := ctrl.Select(ctx, "Betula spp.")
			require.NoError(t, err)
			assert.Equal(t, "Betula", v.Key)

			// the slow Alnus render finishes after Betula
			close(gate)
			select {
			case err := <-staleErr:
				assert.ErrorIs(t, err, common.ErrSuperseded)
			case <-time.After(time.Second):
				t.Fatal("stale render never returned")
			}

			final := ctrl.View()
			assert.Equal(t, "Betula", final.Key)
			assert.True(t, final.HasOverlay())
		})
	}
}

func TestCallerCancellationDoesNotAbortRender(t *testing.T) {
	p := newFakePipeline()
	gate := make(chan struct{})
	p.gates["Alnus"] = gate
	ctrl := NewController(catalog.Default(), p, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := ctrl.Select(ctx, "Alnus")
		done <- err
	}()
	require.Eventually(t, func() bool { return p.callCount("Alnus") == 1 }, time.Second, time.Millisecond)
	cancel()
	close(gate)

	require.NoError(t, <-done)
	assert.True(t, ctrl.View().HasOverlay())
}

func TestRasterPipelineEndToEnd(t *testing.T) {
	mapping := defaultMapping(t)
	loader := raster.NewLoader(rastertest.Source(t, 16, 8), 1, nil, nil)
	pipeline := NewPipeline(loader, mapping, overlay.Options{MaxBytes: 16 * 8 * 4 / 4}, nil, nil)
	ctrl := NewController(catalog.Default(), pipeline, nil, nil)

	v, err := ctrl.Select(context.Background(), "Alnus spp.")
	require.NoError(t, err)
	assert.Equal(t, &ImageInfo{Width: 8, Height: 4, Factor: 2, ByteSize: 128}, v.Image)
	assert.Equal(t, 128, v.Stats.TotalCells)
	assert.Equal(t, 120, v.Stats.ValidCells)

	// the grid was released: a second load with a single residency slot succeeds
	_, err = ctrl.Select(context.Background(), "Betula spp.")
	require.NoError(t, err)

	tiny := NewPipeline(raster.NewLoader(rastertest.Source(t, 16, 8), 1, nil, nil), mapping, overlay.Options{MaxBytes: 3}, nil, nil)
	v, err = NewController(catalog.Default(), tiny, nil, nil).Select(context.Background(), "Alnus")
	assert.ErrorIs(t, err, common.ErrOutputTooLarge)
	assert.Equal(t, StateIdle, v.State)
	assert.Equal(t, common.KindOutputTooLarge, v.WarningKind)
}

// countingSource counts the rasters opened through it
type countingSource struct {
	storage.Source
	opens atomic.Int32
}

func (c *countingSource) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	c.opens.Add(1)
	return c.Source.Open(ctx, name)
}

func TestRasterPipelineReselectSameDataset(t *testing.T) {
	src := &countingSource{Source: rastertest.Source(t, 16, 8)}
	pipeline := NewPipeline(raster.NewLoader(src, 1, nil, nil), defaultMapping(t), overlay.Options{MaxBytes: 16 * 8 * 4}, nil, nil)
	ctrl := NewController(catalog.Default(), pipeline, nil, nil)

	first, err := ctrl.Select(context.Background(), "Alnus")
	require.NoError(t, err)
	require.True(t, first.HasOverlay())

	second, err := ctrl.Select(context.Background(), "Alnus")
	require.NoError(t, err)
	require.True(t, second.HasOverlay())

	assert.Equal(t, first.Bounds, second.Bounds)
	assert.Equal(t, first.Overlay.RGBA.Pix, second.Overlay.RGBA.Pix)
	assert.Equal(t, first.Stats, second.Stats)
	assert.Greater(t, second.Revision, first.Revision)
	assert.EqualValues(t, 2, src.opens.Load())
}
