package analytics

import (
	"strings"
	"time"

	"github.com/frostdev-ops/meterdash/internal/core/meter"
)

// Palette holds the fallback series colours, assigned by field position.
var Palette = []string{
	"#3f51b5", "#f44336", "#4caf50", "#ff9800", "#9c27b0",
	"#03a9f4", "#e91e63", "#00bcd4", "#8bc34a", "#ffc107",
	"#673ab7", "#009688", "#cddc39", "#ff5722", "#795548",
}

// Dataset is one plotted series.
type Dataset struct {
	Field  string     `json:"field"`
	Name   string     `json:"name"`
	Color  string     `json:"color"`
	Values []*float64 `json:"values"`
}

// ChartSeries is the display-ready form of a series.
type ChartSeries struct {
	Labels   []string  `json:"labels"`
	Datasets []Dataset `json:"datasets"`
}

// LabelContext carries the query window and display options for labels.
type LabelContext struct {
	Start    time.Time
	End      time.Time
	Location *time.Location
	// Colors overrides palette colours per field.
	Colors map[string]string
}

func (lc LabelContext) span() (time.Duration, bool) {
	if lc.Start.IsZero() || lc.End.IsZero() {
		return 0, false
	}
	return lc.End.Sub(lc.Start), true
}

func (lc LabelContext) location() *time.Location {
	if lc.Location == nil {
		return time.UTC
	}
	return lc.Location
}

// FormatChart turns points into labelled datasets, one per requested field.
func FormatChart(points []meter.Reading, fields []string, interval Interval, lc LabelContext) (ChartSeries, error) {
	if !interval.Valid() {
		return ChartSeries{}, ErrInvalidInterval
	}
	series := ChartSeries{Labels: []string{}, Datasets: []Dataset{}}
	if len(points) == 0 {
		return series, nil
	}

	kept := make([]meter.Reading, 0, len(points))
	for _, p := range points {
		t, err := p.Time()
		if err != nil {
			continue
		}
		kept = append(kept, p)
		series.Labels = append(series.Labels, FormatLabel(p.Timestamp, t, interval, lc))
	}

	for i, f := range fields {
		color := lc.Colors[f]
		if color == "" {
			color = Palette[i%len(Palette)]
		}
		ds := Dataset{
			Field:  f,
			Name:   meter.Label(f),
			Color:  color,
			Values: make([]*float64, len(kept)),
		}
		for j, p := range kept {
			if v, ok := p.Number(f); ok {
				ds.Values[j] = &v
			}
		}
		series.Datasets = append(series.Datasets, ds)
	}

	return series, nil
}

// FormatLabel renders the axis label for a point at t whose raw timestamp
// (or bucket key) is raw.
func FormatLabel(raw string, t time.Time, interval Interval, lc LabelContext) string {
	local := t.In(lc.location())
	span, known := lc.span()

	switch interval {
	case IntervalMinutely:
		if known && span <= 24*time.Hour {
			return local.Format("2 Jan") + "\n" + local.Format("15:04")
		}
		return local.Format("15:04")
	case IntervalHourly:
		if !known || span > time.Hour {
			return local.Format("2 Jan") + "\n" + local.Format("15") + ":00"
		}
		return local.Format("15") + ":00"
	case IntervalDaily:
		return t.Format("Jan 2")
	case IntervalWeekly:
		if year, week, ok := strings.Cut(raw, "-W"); ok {
			return "Week " + week + ", " + year
		}
		return raw
	case IntervalMonthly:
		return t.Format("Jan 2006")
	case IntervalYearly:
		return t.Format("2006")
	default:
		if known && span <= 24*time.Hour {
			return local.Format("15:04")
		}
		return local.Format("Jan 2 2006 15:04")
	}
}
