package gauge

import (
	"sort"

	"github.com/frostdev-ops/meterdash/internal/core/meter"
)

// DefaultColor is used when a gauge has no zones.
const DefaultColor = "#4CAF50"

// Zone colours the dial below Value.
type Zone struct {
	Value float64 `json:"value" mapstructure:"value"`
	Color string  `json:"color" mapstructure:"color"`
}

// Config describes one dashboard gauge.
type Config struct {
	Field string  `json:"field" mapstructure:"field"`
	Min   float64 `json:"min" mapstructure:"min"`
	Max   float64 `json:"max" mapstructure:"max"`
	Zones []Zone  `json:"zones" mapstructure:"zones"`
}

// Reading is the evaluated state of a gauge for one meter reading.
type Reading struct {
	Field   string   `json:"field"`
	Label   string   `json:"label"`
	Unit    string   `json:"unit,omitempty"`
	Value   *float64 `json:"value"`
	Percent float64  `json:"percent"`
	Color   string   `json:"color"`
}

// ColorFor returns the colour of the first zone whose value exceeds v, or
// the last zone's colour once v reaches the highest zone.
func ColorFor(v float64, zones []Zone) string {
	if len(zones) == 0 {
		return DefaultColor
	}
	sorted := make([]Zone, len(zones))
	copy(sorted, zones)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Value < sorted[j].Value })

	for _, z := range sorted {
		if v < z.Value {
			return z.Color
		}
	}
	return sorted[len(sorted)-1].Color
}

// Percent places v on the min..max dial, clamped to 0..100. A max that is
// not above min is treated as min+1.
func Percent(v, min, max float64) float64 {
	if max <= min {
		max = min + 1
	}
	p := (v - min) / (max - min) * 100
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	}
	return p
}

// Evaluate computes every configured gauge against r. A text encoded channel
// only has a value once the caller has run meter.CoerceReading on r.
func Evaluate(r meter.Reading, gauges []Config) []Reading {
	out := make([]Reading, 0, len(gauges))
	for _, g := range gauges {
		gr := Reading{Field: g.Field, Label: meter.Label(g.Field), Color: DefaultColor}
		if f, ok := meter.Lookup(g.Field); ok {
			gr.Unit = f.Unit
		}
		if v, ok := r.Number(g.Field); ok {
			gr.Value = &v
			gr.Percent = Percent(v, g.Min, g.Max)
			gr.Color = ColorFor(v, g.Zones)
		}
		out = append(out, gr)
	}
	return out
}
