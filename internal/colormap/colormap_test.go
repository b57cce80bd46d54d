package colormap

import (
	"image/color"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"allergen-map/internal/common"
)

func defaultMapping(t *testing.T) *Mapping {
	t.Helper()
	m, err := New(DefaultDomain())
	require.NoError(t, err)
	return m
}

func TestAnchorsAreExact(t *testing.T) {
	m := defaultMapping(t)

	assert.Equal(t, color.RGBA{R: 0x0C, G: 0x2C, B: 0x84, A: 255}, m.ColorFor(-1))
	assert.Equal(t, color.RGBA{R: 0x41, G: 0xB6, B: 0xC4, A: 255}, m.ColorFor(27))
	assert.Equal(t, color.RGBA{R: 0xFF, G: 0xFF, B: 0xCC, A: 255}, m.ColorFor(55))
}

func TestOutsideDomainIsTransparent(t *testing.T) {
	m := defaultMapping(t)
	for _, v := range []float64{-1.0001, 55.0001, -9999, 1e9, math.NaN(), math.Inf(1), math.Inf(-1)} {
		assert.Equal(t, Transparent, m.ColorFor(v), "value %v", v)
	}
}

func TestRampIsMonotonicAndContinuous(t *testing.T) {
	m := defaultMapping(t)
	anchors := m.Anchors()
	mid := (m.Low() + m.High()) / 2

	segments := []struct {
		from, to float64
		a, b     color.RGBA
	}{
		{m.Low(), mid, anchors[0], anchors[1]},
		{mid, m.High(), anchors[1], anchors[2]},
	}

	channels := func(c color.RGBA) [3]int { return [3]int{int(c.R), int(c.G), int(c.B)} }

	for _, seg := range segments {
		dir := [3]int{}
		ca, cb := channels(seg.a), channels(seg.b)
		for i := range dir {
			dir[i] = sign(cb[i] - ca[i])
		}

		prev := channels(m.ColorFor(seg.from))
		const step = 0.01
		for v := seg.from + step; v <= seg.to; v += step {
			cur := channels(m.ColorFor(v))
			for ch := 0; ch < 3; ch++ {
				delta := cur[ch] - prev[ch]
				assert.GreaterOrEqual(t, delta*dir[ch], 0, "channel %d reversed at %v", ch, v)
				assert.LessOrEqual(t, abs(delta), 2, "channel %d jumped at %v", ch, v)
			}
			assert.Equal(t, uint8(255), m.ColorFor(v).A)
			prev = cur
		}
	}
}

func TestColorForIsDeterministic(t *testing.T) {
	a := defaultMapping(t)
	b := defaultMapping(t)
	for v := -1.0; v <= 55; v += 0.37 {
		assert.Equal(t, a.ColorFor(v), a.ColorFor(v))
		assert.Equal(t, a.ColorFor(v), b.ColorFor(v))
	}
}

func TestNewRejectsInvalidDomains(t *testing.T) {
	cases := map[string]Domain{
		"empty range":   {Low: 5, High: 5, Anchors: DefaultDomain().Anchors},
		"inverted":      {Low: 55, High: -1, Anchors: DefaultDomain().Anchors},
		"nan":           {Low: math.NaN(), High: 55, Anchors: DefaultDomain().Anchors},
		"one anchor":    {Low: -1, High: 55, Anchors: []string{"#000000"}},
		"bad hex color": {Low: -1, High: 55, Anchors: []string{"#000000", "blue"}},
	}
	for name, d := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := New(d)
			assert.ErrorIs(t, err, common.ErrConfig)
		})
	}
}

func TestLegend(t *testing.T) {
	m := defaultMapping(t)
	legend := m.Legend("Coverage (%)", 8)

	assert.Equal(t, "Coverage (%)", legend.Title)
	assert.Equal(t, []string{"#0c2c84", "#41b6c4", "#ffffcc"}, legend.Anchors)
	require.Len(t, legend.Stops, 8)
	assert.Equal(t, -1.0, legend.Stops[0].Value)
	assert.Equal(t, "#0c2c84", legend.Stops[0].Color)
	assert.Equal(t, 55.0, legend.Stops[7].Value)
	assert.Equal(t, "55", legend.Stops[7].Label)
	assert.Equal(t, "#ffffcc", legend.Stops[7].Color)
}

func sign(v int) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
