package database

import (
	"github.com/frostdev-ops/meterdash/internal/core/metrics"
	"github.com/frostdev-ops/meterdash/internal/database/repositories"
	"github.com/frostdev-ops/meterdash/internal/database/sqlite"
	"github.com/jmoiron/sqlx"
)

// Repositories holds all repository instances
type Repositories struct {
	Reading repositories.ReadingRepository
	Alarm   repositories.AlarmRepository
}

// NewRepositories creates all repository instances
func NewRepositories(db *sqlx.DB, collector metrics.MetricsCollector) *Repositories {
	return &Repositories{
		Reading: sqlite.NewReadingRepository(db, collector),
		Alarm:   sqlite.NewAlarmRepository(db),
	}
}
