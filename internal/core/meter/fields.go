package meter

import "strings"

// Field describes one measurement channel of the power meter.
type Field struct {
	Name  string `json:"field"`
	Label string `json:"label"`
	Unit  string `json:"unit,omitempty"`
	// TextEncoded marks channels the meter sometimes stores as text,
	// e.g. "0.95 lagging" for the power factor.
	TextEncoded bool `json:"text_encoded,omitempty"`
}

// TimestampColumn is the name of the reading time column.
const TimestampColumn = "Timestamp"

// Fields is the catalog of every channel stored for a reading, in table order.
var Fields = []Field{
	{Name: "Current_A", Label: "Current A", Unit: "A"},
	{Name: "Current_B", Label: "Current B", Unit: "A"},
	{Name: "Current_C", Label: "Current C", Unit: "A"},
	{Name: "Current_N", Label: "Current N", Unit: "A"},
	{Name: "Current_Avg", Label: "Current Avg", Unit: "A"},
	{Name: "Voltage_A_B", Label: "Voltage A-B", Unit: "V"},
	{Name: "Voltage_B_C", Label: "Voltage B-C", Unit: "V"},
	{Name: "Voltage_C_A", Label: "Voltage C-A", Unit: "V"},
	{Name: "Voltage_A_N", Label: "Voltage A-N", Unit: "V"},
	{Name: "Voltage_B_N", Label: "Voltage B-N", Unit: "V"},
	{Name: "Voltage_C_N", Label: "Voltage C-N", Unit: "V"},
	{Name: "Voltage_L_L_Avg", Label: "Voltage L-L Avg", Unit: "V"},
	{Name: "Voltage_L_N_Avg", Label: "Voltage L-N Avg", Unit: "V"},
	{Name: "Active_Power_A", Label: "Active Power A", Unit: "kW"},
	{Name: "Active_Power_B", Label: "Active Power B", Unit: "kW"},
	{Name: "Active_Power_C", Label: "Active Power C", Unit: "kW"},
	{Name: "Active_Power_Total", Label: "Active Power Total", Unit: "kW"},
	{Name: "Reactive_Power_A", Label: "Reactive Power A", Unit: "kVAR"},
	{Name: "Reactive_Power_B", Label: "Reactive Power B", Unit: "kVAR"},
	{Name: "Reactive_Power_C", Label: "Reactive Power C", Unit: "kVAR"},
	{Name: "Reactive_Power_Total", Label: "Reactive Power Total", Unit: "kVAR"},
	{Name: "Apparent_Power_A", Label: "Apparent Power A", Unit: "kVA"},
	{Name: "Apparent_Power_B", Label: "Apparent Power B", Unit: "kVA"},
	{Name: "Apparent_Power_C", Label: "Apparent Power C", Unit: "kVA"},
	{Name: "Apparent_Power_Total", Label: "Apparent Power Total", Unit: "kVA"},
	{Name: "Power_Factor_Total", Label: "Power Factor Total", TextEncoded: true},
	{Name: "Frequency", Label: "Frequency", Unit: "Hz"},
	{Name: "Active_Energy", Label: "Active Energy", Unit: "kWh"},
	{Name: "Apparent_Energy", Label: "Apparent Energy", Unit: "kVAh"},
	{Name: "Reactive_Energy_D_R", Label: "Reactive Energy", Unit: "kVARh"},
	{Name: "THD_Current_A", Label: "THD Current A", Unit: "%"},
	{Name: "THD_Current_B", Label: "THD Current B", Unit: "%"},
	{Name: "THD_Current_C", Label: "THD Current C", Unit: "%"},
	{Name: "THD_Current_N", Label: "THD Current N", Unit: "%"},
	{Name: "THD_Voltage_A_B", Label: "THD Voltage A-B", Unit: "%"},
	{Name: "THD_Voltage_B_C", Label: "THD Voltage B-C", Unit: "%"},
	{Name: "THD_Voltage_C_A", Label: "THD Voltage C-A", Unit: "%"},
	{Name: "THD_Voltage_L_L", Label: "THD Voltage L-L", Unit: "%"},
	{Name: "THD_Voltage_A_N", Label: "THD Voltage A-N", Unit: "%"},
	{Name: "THD_Voltage_B_N", Label: "THD Voltage B-N", Unit: "%"},
	{Name: "THD_Voltage_C_N", Label: "THD Voltage C-N", Unit: "%"},
	{Name: "THD_Voltage_L_N", Label: "THD Voltage L-N", Unit: "%"},
	{Name: "Voltage_Unbalance_A_B", Label: "Voltage Unbalance A-B", Unit: "%"},
	{Name: "Voltage_Unbalance_B_C", Label: "Voltage Unbalance B-C", Unit: "%"},
	{Name: "Voltage_Unbalance_C_A", Label: "Voltage Unbalance C-A", Unit: "%"},
	{Name: "Voltage_Unbalance_A_N", Label: "Voltage Unbalance A-N", Unit: "%"},
	{Name: "Voltage_Unbalance_B_N", Label: "Voltage Unbalance B-N", Unit: "%"},
	{Name: "Voltage_Unbalance_C_N", Label: "Voltage Unbalance C-N", Unit: "%"},
}

var fieldIndex = func() map[string]Field {
	idx := make(map[string]Field, len(Fields))
	for _, f := range Fields {
		idx[f.Name] = f
	}
	return idx
}()

// Lookup returns the catalog entry for name.
func Lookup(name string) (Field, bool) {
	f, ok := fieldIndex[name]
	return f, ok
}

// IsKnown reports whether name is a cataloged channel.
func IsKnown(name string) bool {
	_, ok := fieldIndex[name]
	return ok
}

// Label returns the display label for name. Unknown names fall back to the
// raw name with underscores replaced by spaces.
func Label(name string) string {
	if f, ok := fieldIndex[name]; ok {
		return f.Label
	}
	return strings.ReplaceAll(name, "_", " ")
}

// FilterKnown keeps the cataloged names from names, preserving order and
// dropping duplicates.
func FilterKnown(names []string) []string {
	out := make([]string, 0, len(names))
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if !IsKnown(n) || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}

// ParseFieldList splits a comma separated list, trimming blanks.
func ParseFieldList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Names returns every cataloged channel name in table order.
func Names() []string {
	names := make([]string, len(Fields))
	for i, f := range Fields {
		names[i] = f.Name
	}
	return names
}
