package meter

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006-01",
	"2006",
}

// ParseTimestamp parses the timestamp shapes found in stored rows, client
// requests and aggregation bucket keys. Values without a zone are UTC.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	if strings.Contains(s, "-W") {
		return parseISOWeek(s)
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// FormatTimestamp renders t in StorageLayout (UTC).
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(StorageLayout)
}

// parseISOWeek parses "YYYY-Www" into the Monday starting that ISO week.
func parseISOWeek(s string) (time.Time, error) {
	parts := strings.SplitN(s, "-W", 2)
	year, err := strconv.Atoi(parts[0])
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid week year in %q", s)
	}
	week, err := strconv.Atoi(parts[1])
	if err != nil || week < 1 || week > 53 {
		return time.Time{}, fmt.Errorf("invalid week number in %q", s)
	}
	return ISOWeekStart(year, week), nil
}

// ISOWeekStart returns 00:00 UTC on the Monday of the given ISO week.
func ISOWeekStart(year, week int) time.Time {
	// January 4th always falls in week 1.
	jan4 := time.Date(year, time.January, 4, 0, 0, 0, 0, time.UTC)
	offset := (int(jan4.Weekday()) + 6) % 7
	monday := jan4.AddDate(0, 0, -offset)
	return monday.AddDate(0, 0, (week-1)*7)
}
