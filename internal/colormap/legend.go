package colormap

import "strconv"

// LegendStop is one labelled swatch of the legend
type LegendStop struct {
	Value float64 `json:"value"`
	Label string  `json:"label"`
	Color string  `json:"color"`
}

// Legend describes the ramp for the presentation layer
type Legend struct {
	Title   string       `json:"title"`
	Low     float64      `json:"low"`
	High    float64      `json:"high"`
	Anchors []string     `json:"anchors"`
	Stops   []LegendStop `json:"stops"`
}

// Legend samples the ramp at steps evenly spaced values from Low to High inclusive
func (m *Mapping) Legend(title string, steps int) Legend {
	if steps < 2 {
		steps = 2
	}

	legend := Legend{Title: title, Low: m.low, High: m.high}
	for _, c := range m.exact {
		legend.Anchors = append(legend.Anchors, Hex(c))
	}

	step := (m.high - m.low) / float64(steps-1)
	for i := 0; i < steps; i++ {
		v := m.low + float64(i)*step
		if i == steps-1 {
			v = m.high
		}
		legend.Stops = append(legend.Stops, LegendStop{
			Value: v,
			Label: strconv.FormatFloat(v, 'f', -1, 64),
			Color: Hex(m.ColorFor(v)),
		})
	}
	return legend
}
