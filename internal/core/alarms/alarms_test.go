package alarms

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/frostdev-ops/meterdash/internal/core/meter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func threshold(v float64) *float64 { return &v }

func TestEvaluate(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	r := meter.Reading{
		Timestamp: "2024-06-01T11:59:58.000Z",
		Fields: map[string]any{
			"Current_A":          120.0,
			"Frequency":          49.2,
			"Power_Factor_Total": "0.95 lagging",
		},
	}
	rules := []Rule{
		{Field: "Current_A", Threshold: threshold(100), Condition: ConditionGreater},
		{Field: "Current_A", Threshold: threshold(150), Condition: ConditionGreater},
		{Field: "Frequency", Threshold: threshold(49.5), Condition: ConditionLess},
		{Field: "Voltage_A_B", Threshold: threshold(1), Condition: ConditionGreater},
		{Field: "Power_Factor_Total", Threshold: threshold(0.99), Condition: ConditionLess},
		{Field: "Current_A", Threshold: threshold(1), Condition: "equal"},
	}

	events := Evaluate(r, rules, now)
	require.Len(t, events, 2)

	assert.Equal(t, Event{
		Field:            "Current_A",
		CurrentValue:     120,
		Threshold:        100,
		Condition:        ConditionGreater,
		Timestamp:        now,
		ReadingTimestamp: "2024-06-01T11:59:58.000Z",
	}, events[0])
	assert.Equal(t, "Frequency", events[1].Field)

	// power factor fires once its text value is coerced
	events = Evaluate(meter.CoerceReading(r), rules[4:5], now)
	require.Len(t, events, 1)
	assert.Equal(t, 0.95, events[0].CurrentValue)
}

func TestEvaluateBoundaryIsExclusive(t *testing.T) {
	r := meter.Reading{Fields: map[string]any{"Current_A": 100.0}}
	rules := []Rule{
		{Field: "Current_A", Threshold: threshold(100), Condition: ConditionGreater},
		{Field: "Current_A", Threshold: threshold(100), Condition: ConditionLess},
	}
	assert.Empty(t, Evaluate(r, rules, time.Now()))
}

func TestFilter(t *testing.T) {
	rules := []Rule{
		{Field: "Current_A", Threshold: threshold(0), Condition: ConditionGreater},
		{Field: "", Threshold: threshold(1), Condition: ConditionLess},
		{Field: "Current_B", Condition: ConditionLess},
		{Field: "Current_C", Threshold: threshold(1), Condition: "between"},
	}
	got := Filter(rules)
	require.Len(t, got, 1)
	assert.Equal(t, "Current_A", got[0].Field)
	assert.Equal(t, 0.0, *got[0].Threshold)
}

func TestLoadRules(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "alarms.yaml")
	content := `
rules:
  - field: Current_A
    threshold: 250
    condition: greater
  - field: Frequency
    threshold: 49.5
    condition: less
  - field: Not_A_Channel
    threshold: 1
    condition: greater
  - field: Current_B
    condition: greater
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	rules, err := LoadRules(path)
	require.NoError(t, err)
	require.Len(t, rules, 2)
	assert.Equal(t, "Current_A", rules[0].Field)
	assert.Equal(t, 250.0, *rules[0].Threshold)
	assert.Equal(t, ConditionLess, rules[1].Condition)

	_, err = LoadRules(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}
