package historical

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"math"
	"testing"
	"time"

	"github.com/frostdev-ops/meterdash/internal/core/analytics"
	"github.com/frostdev-ops/meterdash/internal/core/analytics/export"
	"github.com/frostdev-ops/meterdash/internal/core/meter"
	apperrors "github.com/frostdev-ops/meterdash/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeReadings struct {
	rows        []meter.Reading
	monthly     []meter.Reading
	rangeCalls  int
	rollupCalls int
	err         error
}

func (f *fakeReadings) Latest(context.Context) (*meter.Reading, error) { return nil, nil }
func (f *fakeReadings) Insert(context.Context, meter.Reading) error    { return nil }
func (f *fakeReadings) Count(context.Context) (int64, error)           { return int64(len(f.rows)), nil }

func (f *fakeReadings) Range(_ context.Context, _, _ time.Time, _ []string) ([]meter.Reading, error) {
	f.rangeCalls++
	return f.rows, f.err
}

func (f *fakeReadings) MonthlyAverages(_ context.Context, _, _ time.Time, _ []string) ([]meter.Reading, error) {
	f.rollupCalls++
	return f.monthly, f.err
}

func newService(repo *fakeReadings, cfg Config) *Service {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return NewService(repo, cfg, l)
}

func mustQuery(t *testing.T, start, end, fields, interval string) Query {
	t.Helper()
	q, err := ParseQuery(start, end, fields, interval)
	require.NoError(t, err)
	return q
}

func TestParseQuery(t *testing.T) {
	q := mustQuery(t, "2024-01-01T00:00:00", "2024-01-02T00:00:00", "Current_A, Bogus,Current_A,Frequency", "")
	assert.Equal(t, []string{"Current_A", "Frequency"}, q.Fields)
	assert.Equal(t, analytics.IntervalNone, q.Interval)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), q.Start)

	tests := []struct {
		name                              string
		start, end, fields, interval, msg string
	}{
		{"missing start", "", "2024-01-02", "Current_A", "", "Missing required parameters"},
		{"missing fields", "2024-01-01", "2024-01-02", " ", "", "Missing required parameters"},
		{"no valid fields", "2024-01-01", "2024-01-02", "Bogus;DROP", "", "No valid fields selected"},
		{"bad start", "yesterday", "2024-01-02", "Current_A", "", "startDate"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseQuery(tt.start, tt.end, tt.fields, tt.interval)
			require.Error(t, err)
			assert.ErrorIs(t, err, apperrors.ErrInvalidArgument)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}

	_, err := ParseQuery("2024-01-01", "2024-01-02", "Current_A", "fortnightly")
	assert.ErrorIs(t, err, apperrors.ErrInvalidArgument)
	assert.ErrorIs(t, err, analytics.ErrInvalidInterval)
}

func TestValidate(t *testing.T) {
	svc := newService(&fakeReadings{}, Config{MaxRange: 48 * time.Hour})

	q := mustQuery(t, "2024-01-02", "2024-01-01", "Current_A", "")
	assert.ErrorIs(t, svc.Validate(q), apperrors.ErrInvalidArgument)

	q = mustQuery(t, "2024-01-01", "2024-01-05", "Current_A", "")
	err := svc.Validate(q)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "48h0m0s")

	q = mustQuery(t, "2024-01-01", "2024-01-02", "Current_A", "")
	q.Interval = "weekday"
	assert.ErrorIs(t, svc.Validate(q), analytics.ErrInvalidInterval)
}

func TestFetchAggregatesWithCoercion(t *testing.T) {
	repo := &fakeReadings{rows: []meter.Reading{
		{Timestamp: "2024-01-01T00:10:00.000Z", Fields: map[string]any{"Current_A": 5.0, "Power_Factor_Total": "0.90 lagging"}},
		{Timestamp: "2024-01-01T00:50:00.000Z", Fields: map[string]any{"Current_A": 15.0, "Power_Factor_Total": "0.80 lagging"}},
	}}

	svc := newService(repo, Config{CoerceTextValues: true})
	res, err := svc.Fetch(context.Background(), mustQuery(t, "2024-01-01", "2024-01-02", "Current_A,Power_Factor_Total", "hourly"))
	require.NoError(t, err)
	assert.Equal(t, SourceAggregate, res.Source)
	require.Len(t, res.Points, 1)
	assert.Equal(t, "2024-01-01 00:00", res.Points[0].Timestamp)
	assert.Equal(t, 10.0, res.Points[0].Fields["Current_A"])
	assert.Equal(t, 0.85, res.Points[0].Fields["Power_Factor_Total"])

	// without coercion the text channel has no numeric samples
	svc = newService(repo, Config{})
	res, err = svc.Fetch(context.Background(), mustQuery(t, "2024-01-01", "2024-01-02", "Power_Factor_Total", "hourly"))
	require.NoError(t, err)
	assert.Nil(t, res.Points[0].Fields["Power_Factor_Total"])
}

func TestFetchRawPassesThrough(t *testing.T) {
	repo := &fakeReadings{rows: []meter.Reading{
		{Timestamp: "2024-01-01T00:10:00.000Z", Fields: map[string]any{"Current_A": 5.0}},
	}}
	svc := newService(repo, Config{})

	res, err := svc.Fetch(context.Background(), mustQuery(t, "2024-01-01", "2024-01-02", "Current_A", "none"))
	require.NoError(t, err)
	assert.Equal(t, SourceRaw, res.Source)
	assert.Equal(t, repo.rows, res.Points)
}

func TestMonthlyRollupInSQL(t *testing.T) {
	repo := &fakeReadings{monthly: []meter.Reading{
		{Timestamp: "2024-01", Fields: map[string]any{"Current_A": 10.456, "Frequency": nil}},
	}}
	svc := newService(repo, Config{SQLMonthlyRollup: true})

	res, err := svc.Fetch(context.Background(), mustQuery(t, "2024-01-01", "2024-03-01", "Current_A,Frequency", "monthly"))
	require.NoError(t, err)
	assert.Equal(t, SourceSQL, res.Source)
	assert.Equal(t, 10.46, res.Points[0].Fields["Current_A"])
	assert.Nil(t, res.Points[0].Fields["Frequency"])
	assert.Equal(t, 1, repo.rollupCalls)
	assert.Zero(t, repo.rangeCalls)

	// text encoded channels fall back to in-process aggregation
	_, err = svc.Fetch(context.Background(), mustQuery(t, "2024-01-01", "2024-03-01", "Current_A,Power_Factor_Total", "monthly"))
	require.NoError(t, err)
	assert.Equal(t, 1, repo.rollupCalls)
	assert.Equal(t, 1, repo.rangeCalls)
}

func TestMonthlyRollupKeepsHugeAverages(t *testing.T) {
	repo := &fakeReadings{monthly: []meter.Reading{
		{Timestamp: "2024-01", Fields: map[string]any{"Current_A": 1e307, "Frequency": math.Inf(1)}},
	}}
	svc := newService(repo, Config{SQLMonthlyRollup: true})

	res, err := svc.Fetch(context.Background(), mustQuery(t, "2024-01-01", "2024-03-01", "Current_A,Frequency", "monthly"))
	require.NoError(t, err)
	assert.Equal(t, 1e307, res.Points[0].Fields["Current_A"])
	assert.Nil(t, res.Points[0].Fields["Frequency"])

	_, err = json.Marshal(res.Points)
	assert.NoError(t, err)
}

func TestFetchPropagatesStoreErrors(t *testing.T) {
	boom := errors.New("database is locked")
	svc := newService(&fakeReadings{err: boom}, Config{})

	_, err := svc.Fetch(context.Background(), mustQuery(t, "2024-01-01", "2024-01-02", "Current_A", ""))
	assert.ErrorIs(t, err, boom)
	assert.False(t, apperrors.IsAppError(err))
}

func TestSummarizeChartAndExport(t *testing.T) {
	repo := &fakeReadings{rows: []meter.Reading{
		{Timestamp: "2024-01-01T00:00:00.000Z", Fields: map[string]any{"Voltage_A_B": 100.0}},
		{Timestamp: "2024-01-01T00:01:00.000Z", Fields: map[string]any{"Voltage_A_B": 200.0}},
		{Timestamp: "2024-01-01T00:02:00.000Z", Fields: map[string]any{"Voltage_A_B": 150.0}},
	}}
	svc := newService(repo, Config{})
	q := mustQuery(t, "2024-01-01T00:00:00", "2024-01-01T01:00:00", "Voltage_A_B,Current_A", "")
	ctx := context.Background()

	sum, err := svc.Summarize(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, 3, sum.Points)
	require.Contains(t, sum.Stats, "Voltage_A_B")
	assert.NotContains(t, sum.Stats, "Current_A")
	stat := sum.Stats["Voltage_A_B"]
	assert.Equal(t, 150.0, stat.Average)
	assert.Equal(t, "2024-01-01T00:00:00.000Z", stat.MinTimestamp)
	assert.Equal(t, "2024-01-01T00:01:00.000Z", stat.MaxTimestamp)
	assert.Equal(t, "2024-01-01T00:02:00.000Z", sum.Range.End)

	chart, err := svc.Chart(ctx, q, time.UTC, map[string]string{"Current_A": "#000000"})
	require.NoError(t, err)
	assert.Len(t, chart.Labels, 3)
	require.Len(t, chart.Datasets, 2)
	assert.Equal(t, "Voltage A-B", chart.Datasets[0].Name)
	assert.Equal(t, analytics.Palette[0], chart.Datasets[0].Color)
	assert.Equal(t, "#000000", chart.Datasets[1].Color)
	assert.Nil(t, chart.Datasets[1].Values[0])

	var buf bytes.Buffer
	require.NoError(t, svc.Export(ctx, q, export.FormatCSV, &buf))
	assert.Contains(t, buf.String(), "Timestamp,Voltage A-B (V),Current A (A)\n")
	assert.Contains(t, buf.String(), "2024-01-01T00:01:00.000Z,200,\n")
}

func TestParseColors(t *testing.T) {
	assert.Equal(t, map[string]string{"Current_A": "#ff0000", "Frequency": "blue"},
		ParseColors("Current_A:#ff0000, Frequency:blue,broken,:#fff,Voltage_A_B:"))
	assert.Empty(t, ParseColors(""))
}
