package sqlite

import (
	"context"
	"fmt"

	"github.com/frostdev-ops/meterdash/internal/core/alarms"
	"github.com/jmoiron/sqlx"
)

// AlarmRepository implements repositories.AlarmRepository
type AlarmRepository struct {
	db *sqlx.DB
}

// NewAlarmRepository creates a new alarm repository
func NewAlarmRepository(db *sqlx.DB) *AlarmRepository {
	return &AlarmRepository{db: db}
}

// List returns the stored rules in insertion order
func (r *AlarmRepository) List(ctx context.Context) ([]alarms.Rule, error) {
	query := `SELECT id, reading_field, threshold, condition FROM alarm_settings ORDER BY id`

	rules := make([]alarms.Rule, 0)
	if err := r.db.SelectContext(ctx, &rules, query); err != nil {
		return nil, fmt.Errorf("failed to list alarm settings: %w", err)
	}
	return rules, nil
}

// Replace swaps the whole rule set. Invalid rules are dropped before writing.
func (r *AlarmRepository) Replace(ctx context.Context, rules []alarms.Rule) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM alarm_settings`); err != nil {
		return fmt.Errorf("failed to clear alarm settings: %w", err)
	}

	insert := tx.Rebind(`INSERT INTO alarm_settings (reading_field, threshold, condition) VALUES (?, ?, ?)`)
	for _, rule := range alarms.Filter(rules) {
		if _, err := tx.ExecContext(ctx, insert, rule.Field, *rule.Threshold, string(rule.Condition)); err != nil {
			return fmt.Errorf("failed to insert alarm setting for %s: %w", rule.Field, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit alarm settings: %w", err)
	}
	return nil
}
