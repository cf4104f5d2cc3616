package analytics

import (
	"math"
	"sort"
	"time"

	"github.com/frostdev-ops/meterdash/internal/core/meter"
)

// bucket accumulates every reading that maps onto the same key.
type bucket struct {
	key   string
	start time.Time
	means map[string]*runningMean
}

// runningMean keeps an incremental mean so that large samples never
// overflow an intermediate sum.
type runningMean struct {
	mean float64
	n    int
}

func (m *runningMean) add(v float64) {
	m.n++
	m.mean += (v - m.mean) / float64(m.n)
}

// Aggregate buckets readings at the given interval and averages each
// requested field per bucket. The result is ordered by bucket time. Each
// returned point carries the bucket key as Timestamp and, for every
// requested field, either the rounded average or nil when the bucket had no
// numeric sample. Minutely buckets forward-fill nil values from the last
// known value of the same field.
//
// With IntervalNone the readings are returned as FilterFields would return
// them. Readings whose timestamp cannot be parsed are skipped.
func Aggregate(readings []meter.Reading, interval Interval, fields []string) ([]meter.Reading, error) {
	if !interval.Valid() {
		return nil, ErrInvalidInterval
	}
	if interval == IntervalNone {
		return FilterFields(readings, fields), nil
	}

	buckets := make(map[string]*bucket)
	for _, r := range readings {
		t, err := r.Time()
		if err != nil {
			continue
		}
		key, err := interval.BucketKey(t)
		if err != nil {
			return nil, err
		}

		b, ok := buckets[key]
		if !ok {
			start, err := meter.ParseTimestamp(key)
			if err != nil {
				continue
			}
			b = &bucket{
				key:   key,
				start: start,
				means: make(map[string]*runningMean, len(fields)),
			}
			buckets[key] = b
		}

		for _, f := range fields {
			v, ok := r.Number(f)
			if !ok {
				continue
			}
			m, ok := b.means[f]
			if !ok {
				m = &runningMean{}
				b.means[f] = m
			}
			m.add(v)
		}
	}

	ordered := make([]*bucket, 0, len(buckets))
	for _, b := range buckets {
		ordered = append(ordered, b)
	}
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].start.Before(ordered[j].start)
	})

	points := make([]meter.Reading, len(ordered))
	for i, b := range ordered {
		values := make(map[string]any, len(fields))
		for _, f := range fields {
			if m, ok := b.means[f]; ok {
				values[f] = Round2(m.mean)
			} else {
				values[f] = nil
			}
		}
		points[i] = meter.Reading{Timestamp: b.key, Fields: values}
	}

	if interval == IntervalMinutely {
		forwardFill(points, fields)
	}
	return points, nil
}

// FilterFields copies readings keeping only the requested fields that are
// present. Readings with unparseable timestamps are dropped.
func FilterFields(readings []meter.Reading, fields []string) []meter.Reading {
	out := make([]meter.Reading, 0, len(readings))
	for _, r := range readings {
		if _, err := r.Time(); err != nil {
			continue
		}
		values := make(map[string]any, len(fields))
		for _, f := range fields {
			if v, ok := r.Fields[f]; ok {
				values[f] = v
			}
		}
		out = append(out, meter.Reading{Timestamp: r.Timestamp, Fields: values})
	}
	return out
}

// forwardFill replaces nil values with the most recent non-nil value of the
// same field. Leading nils stay nil.
func forwardFill(points []meter.Reading, fields []string) {
	for _, f := range fields {
		var last any
		for _, p := range points {
			if p.Fields[f] == nil {
				p.Fields[f] = last
				continue
			}
			last = p.Fields[f]
		}
	}
}

// Round2 rounds v to two decimal places. Values too large to carry a
// fractional part, and non-finite values, are returned unchanged since
// scaling them would overflow.
func Round2(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || math.Abs(v) > 1e15 {
		return v
	}
	return math.Round(v*100) / 100
}
