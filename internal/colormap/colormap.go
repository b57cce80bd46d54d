// Package colormap maps raster cell values onto a continuous color ramp.
package colormap

import (
	"fmt"
	"image/color"
	"math"

	"github.com/lucasb-eyer/go-colorful"

	"allergen-map/internal/common"
)

// Transparent is returned for missing or out-of-domain values
var Transparent = color.RGBA{}

// Domain is the numeric range and the ordered anchor colors of the ramp.
type Domain struct {
	Low     float64  `json:"low" mapstructure:"low"`
	High    float64  `json:"high" mapstructure:"high"`
	Anchors []string `json:"anchors" mapstructure:"anchors"`
}

// DefaultDomain covers tree coverage values -1..55 on a blue to pale yellow ramp
func DefaultDomain() Domain {
	return Domain{
		Low:     -1,
		High:    55,
		Anchors: []string{"#0C2C84", "#41B6C4", "#FFFFCC"},
	}
}

// Mapping is immutable and safe for concurrent use.
type Mapping struct {
	low, high float64
	anchors   []colorful.Color
	exact     []color.RGBA
}

// New validates the domain and returns a mapping. Any problem wraps common.ErrConfig.
func New(d Domain) (*Mapping, error) {
	if math.IsNaN(d.Low) || math.IsNaN(d.High) || math.IsInf(d.Low, 0) || math.IsInf(d.High, 0) {
		return nil, fmt.Errorf("color domain [%v, %v] is not finite: %w", d.Low, d.High, common.ErrConfig)
	}
	if d.Low >= d.High {
		return nil, fmt.Errorf("color domain low %v must be below high %v: %w", d.Low, d.High, common.ErrConfig)
	}
	if len(d.Anchors) < 2 {
		return nil, fmt.Errorf("color ramp needs at least 2 anchors, got %d: %w", len(d.Anchors), common.ErrConfig)
	}

	m := &Mapping{low: d.Low, high: d.High}
	for _, hex := range d.Anchors {
		c, err := colorful.Hex(hex)
		if err != nil {
			return nil, fmt.Errorf("anchor color %q: %v: %w", hex, err, common.ErrConfig)
		}
		m.anchors = append(m.anchors, c)
		m.exact = append(m.exact, toRGBA(c))
	}
	return m, nil
}

// Low is the lower bound of the domain
func (m *Mapping) Low() float64 { return m.low }

// High is the upper bound of the domain
func (m *Mapping) High() float64 { return m.high }

// Contains reports whether v is a colorable value
func (m *Mapping) Contains(v float64) bool {
	return !math.IsNaN(v) && v >= m.low && v <= m.high
}

// Anchors returns the anchor colors in ramp order
func (m *Mapping) Anchors() []color.RGBA {
	return append([]color.RGBA(nil), m.exact...)
}

// ColorFor returns the opaque ramp color for v, or Transparent when v is NaN
// or outside the domain. The ramp is split into len(anchors)-1 equal segments
// interpolated linearly in RGB.
func (m *Mapping) ColorFor(v float64) color.RGBA {
	if !m.Contains(v) {
		return Transparent
	}

	segments := len(m.anchors) - 1
	t := (v - m.low) / (m.high - m.low) * float64(segments)
	i := int(t)
	if i >= segments {
		return m.exact[segments]
	}
	f := t - float64(i)
	if f == 0 {
		return m.exact[i]
	}
	return toRGBA(m.anchors[i].BlendRgb(m.anchors[i+1], f))
}

func toRGBA(c colorful.Color) color.RGBA {
	r, g, b := c.RGB255()
	return color.RGBA{R: r, G: g, B: b, A: 255}
}

// Hex formats an opaque color as #rrggbb
func Hex(c color.RGBA) string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}
