package analytics

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Interval is the calendar granularity readings are bucketed at.
type Interval string

const (
	IntervalNone     Interval = "none"
	IntervalMinutely Interval = "minutely"
	IntervalHourly   Interval = "hourly"
	IntervalDaily    Interval = "daily"
	IntervalWeekly   Interval = "weekly"
	IntervalMonthly  Interval = "monthly"
	IntervalYearly   Interval = "yearly"
)

// ErrInvalidInterval is returned for interval names outside the enumeration.
var ErrInvalidInterval = errors.New("invalid aggregation interval")

// Intervals lists every supported interval.
var Intervals = []Interval{
	IntervalNone, IntervalMinutely, IntervalHourly, IntervalDaily,
	IntervalWeekly, IntervalMonthly, IntervalYearly,
}

// ParseInterval maps a request value onto an Interval. An empty value means
// no aggregation.
func ParseInterval(s string) (Interval, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return IntervalNone, nil
	}
	iv := Interval(s)
	if !iv.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidInterval, s)
	}
	return iv, nil
}

// Valid reports whether i is one of the supported intervals.
func (i Interval) Valid() bool {
	for _, known := range Intervals {
		if i == known {
			return true
		}
	}
	return false
}

// BucketKey derives the bucket key for t. Keys sort chronologically as
// strings within a single interval.
func (i Interval) BucketKey(t time.Time) (string, error) {
	t = t.UTC()
	switch i {
	case IntervalMinutely:
		return t.Format("2006-01-02T15:04") + ":00", nil
	case IntervalHourly:
		return t.Format("2006-01-02 15") + ":00", nil
	case IntervalDaily:
		return t.Format("2006-01-02"), nil
	case IntervalWeekly:
		year, week := t.ISOWeek()
		return fmt.Sprintf("%04d-W%02d", year, week), nil
	case IntervalMonthly:
		return t.Format("2006-01"), nil
	case IntervalYearly:
		return t.Format("2006"), nil
	default:
		return "", fmt.Errorf("%w: %q has no bucket key", ErrInvalidInterval, string(i))
	}
}
