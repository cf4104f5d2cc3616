package alarms

import (
	"fmt"
	"os"
	"time"

	"github.com/frostdev-ops/meterdash/internal/core/meter"
	"gopkg.in/yaml.v3"
)

// Condition is the comparison applied between a reading and a threshold.
type Condition string

const (
	ConditionGreater Condition = "greater"
	ConditionLess    Condition = "less"
)

// Rule raises an alarm when Field compares against Threshold per Condition.
type Rule struct {
	ID        int       `json:"id,omitempty" db:"id" yaml:"-"`
	Field     string    `json:"readingField" db:"reading_field" yaml:"field"`
	Threshold *float64  `json:"threshold" db:"threshold" yaml:"threshold"`
	Condition Condition `json:"condition" db:"condition" yaml:"condition"`
}

// Event is a rule that matched the latest reading.
type Event struct {
	Field            string    `json:"readingField"`
	CurrentValue     float64   `json:"currentValue"`
	Threshold        float64   `json:"threshold"`
	Condition        Condition `json:"condition"`
	Timestamp        time.Time `json:"timestamp"`
	ReadingTimestamp string    `json:"readingTimestamp"`
}

// Valid reports whether the rule names a field, carries a threshold and
// uses a known condition.
func (r Rule) Valid() bool {
	if r.Field == "" || r.Threshold == nil {
		return false
	}
	return r.Condition == ConditionGreater || r.Condition == ConditionLess
}

// Filter keeps only valid rules.
func Filter(rules []Rule) []Rule {
	valid := make([]Rule, 0, len(rules))
	for _, r := range rules {
		if r.Valid() {
			valid = append(valid, r)
		}
	}
	return valid
}

// Evaluate returns an event for every rule whose field is numeric on the
// reading and whose condition holds. now stamps the events.
func Evaluate(r meter.Reading, rules []Rule, now time.Time) []Event {
	var events []Event
	for _, rule := range rules {
		if !rule.Valid() {
			continue
		}
		v, ok := r.Number(rule.Field)
		if !ok {
			continue
		}
		threshold := *rule.Threshold

		var hit bool
		switch rule.Condition {
		case ConditionGreater:
			hit = v > threshold
		case ConditionLess:
			hit = v < threshold
		}
		if !hit {
			continue
		}

		events = append(events, Event{
			Field:            rule.Field,
			CurrentValue:     v,
			Threshold:        threshold,
			Condition:        rule.Condition,
			Timestamp:        now.UTC(),
			ReadingTimestamp: r.Timestamp,
		})
	}
	return events
}

type ruleFile struct {
	Rules []Rule `yaml:"rules"`
}

// LoadRules reads alarm rules from a YAML seed file. Invalid rules and rules
// naming fields outside the catalog are dropped.
func LoadRules(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read alarm rules: %w", err)
	}

	var file ruleFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse alarm rules: %w", err)
	}

	rules := make([]Rule, 0, len(file.Rules))
	for _, r := range Filter(file.Rules) {
		if meter.IsKnown(r.Field) {
			rules = append(rules, r)
		}
	}
	return rules, nil
}
