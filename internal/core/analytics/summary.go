package analytics

import "github.com/frostdev-ops/meterdash/internal/core/meter"

// SummaryStat describes one field over a series.
type SummaryStat struct {
	Average      float64 `json:"avg"`
	Minimum      float64 `json:"min"`
	MinTimestamp string  `json:"minTimestamp"`
	Maximum      float64 `json:"max"`
	MaxTimestamp string  `json:"maxTimestamp"`
	SampleCount  int     `json:"count"`
}

// TimeSpan is the first and last timestamp of a series.
type TimeSpan struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// Summarize computes average, minimum and maximum for each field over
// points, which may be raw readings or the output of Aggregate. Fields
// without a single numeric sample are omitted. On ties the first
// occurrence keeps the min/max timestamp.
func Summarize(points []meter.Reading, fields []string) map[string]SummaryStat {
	stats := make(map[string]SummaryStat, len(fields))

	for _, f := range fields {
		var (
			mean     runningMean
			min, max float64
			minAt    string
			maxAt    string
		)
		for _, p := range points {
			if _, err := p.Time(); err != nil {
				continue
			}
			v, ok := p.Number(f)
			if !ok {
				continue
			}
			if mean.n == 0 || v < min {
				min, minAt = v, p.Timestamp
			}
			if mean.n == 0 || v > max {
				max, maxAt = v, p.Timestamp
			}
			mean.add(v)
		}
		if mean.n == 0 {
			continue
		}
		stats[f] = SummaryStat{
			Average:      Round2(mean.mean),
			Minimum:      Round2(min),
			MinTimestamp: minAt,
			Maximum:      Round2(max),
			MaxTimestamp: maxAt,
			SampleCount:  mean.n,
		}
	}

	return stats
}

// Span returns the timestamps of the first and last points, or nil for an
// empty series.
func Span(points []meter.Reading) *TimeSpan {
	if len(points) == 0 {
		return nil
	}
	return &TimeSpan{Start: points[0].Timestamp, End: points[len(points)-1].Timestamp}
}
