package export

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/frostdev-ops/meterdash/internal/core/meter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func samplePoints() []meter.Reading {
	return []meter.Reading{
		{Timestamp: "2024-01-01 00:00", Fields: map[string]any{"Voltage_A_B": 401.25, "Power_Factor_Total": "0.95 lagging"}},
		{Timestamp: "2024-01-01 01:00", Fields: map[string]any{"Voltage_A_B": nil, "Frequency": 50}},
	}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatCSV, samplePoints(), []string{"Voltage_A_B", "Power_Factor_Total", "Frequency", "Made_Up"}))

	want := "Timestamp,Voltage A-B (V),Power Factor Total,Frequency (Hz),Made Up\n" +
		"2024-01-01 00:00,401.25,0.95 lagging,,\n" +
		"2024-01-01 01:00,,,50,\n"
	assert.Equal(t, want, buf.String())
}

func TestWriteCSVEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, nil, []string{"Current_A"}))
	assert.Equal(t, "Timestamp,Current A (A)\n", buf.String())
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatJSON, samplePoints(), nil))

	var rows []map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rows))
	require.Len(t, rows, 2)
	assert.Equal(t, "2024-01-01 00:00", rows[0]["Timestamp"])
	assert.Equal(t, 401.25, rows[0]["Voltage_A_B"])

	buf.Reset()
	require.NoError(t, WriteJSON(&buf, nil))
	assert.JSONEq(t, `[]`, buf.String())
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatCSV, f)

	f, err = ParseFormat(" JSON ")
	require.NoError(t, err)
	assert.Equal(t, FormatJSON, f)
	assert.Equal(t, "application/json", f.ContentType())

	_, err = ParseFormat("xlsx")
	assert.Error(t, err)
}
