package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/frostdev-ops/meterdash/internal/core/meter"
)

// Format is an export file format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
)

// ParseFormat maps a request value onto a Format. Empty means CSV.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case "", FormatCSV:
		return FormatCSV, nil
	case FormatJSON:
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unsupported export format %q", s)
	}
}

// ContentType is the MIME type served for f.
func (f Format) ContentType() string {
	if f == FormatJSON {
		return "application/json"
	}
	return "text/csv; charset=utf-8"
}

// Write encodes points in format f. CSV headers use the catalog labels and
// units, e.g. "Voltage A-B (V)"; absent and null values are empty cells.
func Write(w io.Writer, f Format, points []meter.Reading, fields []string) error {
	switch f {
	case FormatJSON:
		return WriteJSON(w, points)
	case FormatCSV:
		return WriteCSV(w, points, fields)
	default:
		return fmt.Errorf("unsupported export format %q", f)
	}
}

// WriteCSV writes a header row and one row per point.
func WriteCSV(w io.Writer, points []meter.Reading, fields []string) error {
	writer := csv.NewWriter(w)

	headers := make([]string, 0, len(fields)+1)
	headers = append(headers, meter.TimestampColumn)
	for _, f := range fields {
		headers = append(headers, header(f))
	}
	if err := writer.Write(headers); err != nil {
		return fmt.Errorf("failed to write CSV headers: %w", err)
	}

	record := make([]string, len(headers))
	for _, p := range points {
		record[0] = p.Timestamp
		for i, f := range fields {
			record[i+1] = cell(p.Fields[f])
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("CSV writer error: %w", err)
	}
	return nil
}

// WriteJSON writes points as an indented JSON array.
func WriteJSON(w io.Writer, points []meter.Reading) error {
	if points == nil {
		points = []meter.Reading{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(points); err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return nil
}

func header(field string) string {
	f, ok := meter.Lookup(field)
	if !ok || f.Unit == "" {
		return meter.Label(field)
	}
	return fmt.Sprintf("%s (%s)", f.Label, f.Unit)
}

func cell(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	}
	if n, ok := meter.ToFloat(v); ok {
		return strconv.FormatFloat(n, 'f', -1, 64)
	}
	return fmt.Sprint(v)
}
