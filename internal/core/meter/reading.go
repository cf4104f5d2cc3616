package meter

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// StorageLayout is the layout used when readings are written as text and
// when time values read back from the store are rendered.
const StorageLayout = "2006-01-02T15:04:05.000Z"

// Reading is one row of meter data. Fields holds numbers, strings for text
// encoded channels, or nil for a missing (null) value.
type Reading struct {
	Timestamp string
	Fields    map[string]any
}

// NewReading creates a reading stamped with t.
func NewReading(t time.Time, fields map[string]any) Reading {
	if fields == nil {
		fields = make(map[string]any)
	}
	return Reading{Timestamp: FormatTimestamp(t), Fields: fields}
}

// Time parses the reading timestamp.
func (r Reading) Time() (time.Time, error) {
	return ParseTimestamp(r.Timestamp)
}

// Number returns the value of field when it is a finite number.
func (r Reading) Number(field string) (float64, bool) {
	v, ok := r.Fields[field]
	if !ok {
		return 0, false
	}
	return ToFloat(v)
}

// ToFloat converts numeric kinds to float64. Strings are not numbers here.
func ToFloat(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int32:
		f = float64(n)
	case int64:
		f = float64(n)
	case uint:
		f = float64(n)
	case uint32:
		f = float64(n)
	case uint64:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case *float64:
		if n == nil {
			return 0, false
		}
		f = *n
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// MarshalJSON renders the flat row shape {"Timestamp": ..., "<field>": ...}.
func (r Reading) MarshalJSON() ([]byte, error) {
	row := make(map[string]any, len(r.Fields)+1)
	for k, v := range r.Fields {
		row[k] = v
	}
	row[TimestampColumn] = r.Timestamp
	return json.Marshal(row)
}

// UnmarshalJSON accepts the flat row shape. Numbers decode as json.Number.
func (r *Reading) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(strings.NewReader(string(data)))
	dec.UseNumber()

	var row map[string]any
	if err := dec.Decode(&row); err != nil {
		return err
	}

	r.Fields = make(map[string]any, len(row))
	for k, v := range row {
		if k == TimestampColumn {
			switch ts := v.(type) {
			case string:
				r.Timestamp = ts
			case nil:
				r.Timestamp = ""
			default:
				r.Timestamp = fmt.Sprint(ts)
			}
			continue
		}
		r.Fields[k] = v
	}
	return nil
}

// FromRow converts a database row into a Reading. Columns outside the
// catalog are ignored and NULL columns are left absent.
func FromRow(row map[string]any) Reading {
	r := Reading{Fields: make(map[string]any, len(row))}
	for col, v := range row {
		if col == TimestampColumn {
			r.Timestamp = timestampString(v)
			continue
		}
		f, ok := Lookup(col)
		if !ok || v == nil {
			continue
		}
		r.Fields[col] = columnValue(v, f)
	}
	return r
}

func timestampString(v any) string {
	switch t := v.(type) {
	case time.Time:
		return FormatTimestamp(t)
	case string:
		return t
	case []byte:
		return string(t)
	case nil:
		return ""
	default:
		return fmt.Sprint(t)
	}
}

func columnValue(v any, f Field) any {
	switch val := v.(type) {
	case []byte:
		s := string(val)
		if n, err := strconv.ParseFloat(s, 64); err == nil && !f.TextEncoded {
			return n
		}
		return s
	case int64:
		return float64(val)
	default:
		return val
	}
}

var leadingNumber = regexp.MustCompile(`[-+]?[0-9]*\.?[0-9]+`)

// ParseLeadingNumber extracts the first numeric token from s, so that
// "0.95 lagging" and "leading 0.92" both yield a number.
func ParseLeadingNumber(s string) (float64, bool) {
	m := leadingNumber.FindString(s)
	if m == "" {
		return 0, false
	}
	n, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// CoerceTextValues returns copies of readings in which string values of
// text encoded channels are replaced by their leading number. Strings with
// no numeric token are kept as-is.
func CoerceTextValues(readings []Reading) []Reading {
	out := make([]Reading, len(readings))
	for i, r := range readings {
		out[i] = CoerceReading(r)
	}
	return out
}

// CoerceReading is CoerceTextValues for a single reading.
func CoerceReading(r Reading) Reading {
	fields := make(map[string]any, len(r.Fields))
	for k, v := range r.Fields {
		fields[k] = v
		s, isText := v.(string)
		if !isText {
			continue
		}
		if f, ok := Lookup(k); ok && f.TextEncoded {
			if n, ok := ParseLeadingNumber(s); ok {
				fields[k] = n
			}
		}
	}
	return Reading{Timestamp: r.Timestamp, Fields: fields}
}
