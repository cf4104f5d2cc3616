package historical

import (
	"context"
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"github.com/frostdev-ops/meterdash/internal/core/analytics"
	"github.com/frostdev-ops/meterdash/internal/core/analytics/export"
	"github.com/frostdev-ops/meterdash/internal/core/meter"
	"github.com/frostdev-ops/meterdash/internal/database/repositories"
	apperrors "github.com/frostdev-ops/meterdash/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Result sources.
const (
	SourceRaw       = "raw"
	SourceAggregate = "aggregate"
	SourceSQL       = "sql"
)

// Config tunes historical queries.
type Config struct {
	// CoerceTextValues parses text encoded channels before aggregation.
	CoerceTextValues bool
	// SQLMonthlyRollup averages monthly buckets in the database.
	SQLMonthlyRollup bool
	// MaxRange caps end-start; zero means unbounded.
	MaxRange time.Duration
}

// Query selects a window of readings.
type Query struct {
	Start    time.Time
	End      time.Time
	Fields   []string
	Interval analytics.Interval
}

// Result is a raw or bucketed series.
type Result struct {
	Points   []meter.Reading    `json:"points"`
	Fields   []string           `json:"fields"`
	Interval analytics.Interval `json:"interval"`
	Source   string             `json:"source"`
}

// Summary is the statistics view of a series.
type Summary struct {
	Stats    map[string]analytics.SummaryStat `json:"stats"`
	Range    *analytics.TimeSpan              `json:"range"`
	Points   int                              `json:"points"`
	Interval analytics.Interval               `json:"interval"`
}

// Service answers historical queries against the reading store.
type Service struct {
	readings repositories.ReadingRepository
	cfg      Config
	logger   *logrus.Logger
}

// NewService creates a historical query service.
func NewService(readings repositories.ReadingRepository, cfg Config, logger *logrus.Logger) *Service {
	return &Service{readings: readings, cfg: cfg, logger: logger}
}

// ParseQuery builds a Query from request parameters. startDate, endDate and
// fields are required; unknown fields are dropped and at least one must
// remain. Errors wrap apperrors.ErrInvalidArgument, and an unsupported
// interval also wraps analytics.ErrInvalidInterval.
func ParseQuery(startDate, endDate, fields, interval string) (Query, error) {
	if strings.TrimSpace(startDate) == "" || strings.TrimSpace(endDate) == "" || strings.TrimSpace(fields) == "" {
		return Query{}, apperrors.WithDetails(apperrors.ErrInvalidArgument, "Missing required parameters")
	}

	start, err := meter.ParseTimestamp(startDate)
	if err != nil {
		return Query{}, apperrors.Wrap(apperrors.ErrInvalidArgument, fmt.Errorf("startDate: %w", err))
	}
	end, err := meter.ParseTimestamp(endDate)
	if err != nil {
		return Query{}, apperrors.Wrap(apperrors.ErrInvalidArgument, fmt.Errorf("endDate: %w", err))
	}

	known := meter.FilterKnown(meter.ParseFieldList(fields))
	if len(known) == 0 {
		return Query{}, apperrors.WithDetails(apperrors.ErrInvalidArgument, "No valid fields selected")
	}

	iv, err := analytics.ParseInterval(interval)
	if err != nil {
		return Query{}, apperrors.Wrap(apperrors.ErrInvalidArgument, err)
	}

	return Query{Start: start, End: end, Fields: known, Interval: iv}, nil
}

// Validate checks the window against the configured limits.
func (s *Service) Validate(q Query) error {
	if q.End.Before(q.Start) {
		return apperrors.WithDetails(apperrors.ErrInvalidArgument, "endDate is before startDate")
	}
	if s.cfg.MaxRange > 0 && q.End.Sub(q.Start) > s.cfg.MaxRange {
		return apperrors.WithDetails(apperrors.ErrInvalidArgument,
			fmt.Sprintf("range exceeds the maximum of %s", s.cfg.MaxRange))
	}
	if !q.Interval.Valid() {
		return apperrors.Wrap(apperrors.ErrInvalidArgument, analytics.ErrInvalidInterval)
	}
	if len(q.Fields) == 0 {
		return apperrors.WithDetails(apperrors.ErrInvalidArgument, "No valid fields selected")
	}
	return nil
}

// Fetch loads the window and buckets it at the requested interval.
func (s *Service) Fetch(ctx context.Context, q Query) (*Result, error) {
	if err := s.Validate(q); err != nil {
		return nil, err
	}

	if s.useSQLRollup(q) {
		points, err := s.readings.MonthlyAverages(ctx, q.Start, q.End, q.Fields)
		if err != nil {
			return nil, fmt.Errorf("monthly rollup: %w", err)
		}
		for _, p := range points {
			for f, v := range p.Fields {
				n, ok := meter.ToFloat(v)
				if !ok {
					continue
				}
				// an overflowed SQL average has no JSON form
				if math.IsInf(n, 0) || math.IsNaN(n) {
					p.Fields[f] = nil
					continue
				}
				p.Fields[f] = analytics.Round2(n)
			}
		}
		return &Result{Points: points, Fields: q.Fields, Interval: q.Interval, Source: SourceSQL}, nil
	}

	raw, err := s.readings.Range(ctx, q.Start, q.End, q.Fields)
	if err != nil {
		return nil, fmt.Errorf("range query: %w", err)
	}
	if s.cfg.CoerceTextValues {
		raw = meter.CoerceTextValues(raw)
	}

	points, err := analytics.Aggregate(raw, q.Interval, q.Fields)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInvalidArgument, err)
	}

	source := SourceAggregate
	if q.Interval == analytics.IntervalNone {
		source = SourceRaw
	}

	s.logger.WithFields(logrus.Fields{
		"start":    q.Start,
		"end":      q.End,
		"fields":   len(q.Fields),
		"interval": q.Interval,
		"rows":     len(raw),
		"points":   len(points),
	}).Debug("Historical query served")

	return &Result{Points: points, Fields: q.Fields, Interval: q.Interval, Source: source}, nil
}

// useSQLRollup reports whether the database can produce the buckets. Text
// encoded channels cannot be averaged in SQL, so any such field keeps the
// whole query on the in-process path.
func (s *Service) useSQLRollup(q Query) bool {
	if !s.cfg.SQLMonthlyRollup || q.Interval != analytics.IntervalMonthly {
		return false
	}
	for _, name := range q.Fields {
		if f, ok := meter.Lookup(name); ok && f.TextEncoded {
			return false
		}
	}
	return true
}

// Summarize computes statistics over the (possibly bucketed) series.
func (s *Service) Summarize(ctx context.Context, q Query) (*Summary, error) {
	res, err := s.Fetch(ctx, q)
	if err != nil {
		return nil, err
	}
	return &Summary{
		Stats:    analytics.Summarize(res.Points, res.Fields),
		Range:    analytics.Span(res.Points),
		Points:   len(res.Points),
		Interval: res.Interval,
	}, nil
}

// Chart renders the series as labelled datasets. loc sets the label time
// zone and colors overrides palette colours per field.
func (s *Service) Chart(ctx context.Context, q Query, loc *time.Location, colors map[string]string) (analytics.ChartSeries, error) {
	res, err := s.Fetch(ctx, q)
	if err != nil {
		return analytics.ChartSeries{}, err
	}
	return analytics.FormatChart(res.Points, res.Fields, res.Interval, analytics.LabelContext{
		Start:    q.Start,
		End:      q.End,
		Location: loc,
		Colors:   colors,
	})
}

// Export writes the series to w in format f.
func (s *Service) Export(ctx context.Context, q Query, f export.Format, w io.Writer) error {
	res, err := s.Fetch(ctx, q)
	if err != nil {
		return err
	}
	return export.Write(w, f, res.Points, res.Fields)
}

// ParseColors reads "field:#hex,field:#hex" into a map. Malformed pairs are
// skipped.
func ParseColors(raw string) map[string]string {
	colors := make(map[string]string)
	for _, pair := range meter.ParseFieldList(raw) {
		field, color, ok := strings.Cut(pair, ":")
		field, color = strings.TrimSpace(field), strings.TrimSpace(color)
		if !ok || field == "" || color == "" {
			continue
		}
		colors[field] = color
	}
	return colors
}
