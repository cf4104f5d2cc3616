package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/frostdev-ops/meterdash/internal/core/alarms"
	"github.com/frostdev-ops/meterdash/internal/core/meter"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("record not found")

// ReadingRepository defines meter reading data access methods
type ReadingRepository interface {
	// Latest returns the newest reading with every cataloged column.
	Latest(ctx context.Context) (*meter.Reading, error)
	// Range returns readings with start <= Timestamp <= end in ascending
	// order, selecting only the given cataloged fields.
	Range(ctx context.Context, start, end time.Time, fields []string) ([]meter.Reading, error)
	// MonthlyAverages averages numeric fields per calendar month in the
	// database. Each result's Timestamp is the month key (YYYY-MM).
	MonthlyAverages(ctx context.Context, start, end time.Time, fields []string) ([]meter.Reading, error)
	Insert(ctx context.Context, r meter.Reading) error
	Count(ctx context.Context) (int64, error)
}

// AlarmRepository defines alarm rule data access methods
type AlarmRepository interface {
	List(ctx context.Context) ([]alarms.Rule, error)
	// Replace swaps the stored rule set for rules in one transaction.
	Replace(ctx context.Context, rules []alarms.Rule) error
}
