package database

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/frostdev-ops/meterdash/internal/config"
	"github.com/frostdev-ops/meterdash/internal/core/meter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitializeAndMigrate(t *testing.T) {
	cfg := config.DatabaseConfig{
		Driver:         DriverSQLite,
		Path:           filepath.Join(t.TempDir(), "nested", "meter.db"),
		MaxConnections: 4,
	}

	db, err := Initialize(cfg)
	require.NoError(t, err)
	defer db.Close()

	migrations := filepath.Join("..", "..", "migrations", "sqlite")
	require.NoError(t, Migrate(db, migrations, nil))
	// second run is a no-op
	require.NoError(t, Migrate(db, migrations, nil))

	repos := NewRepositories(db, nil)
	ctx := context.Background()
	require.NoError(t, repos.Reading.Insert(ctx, meter.Reading{
		Timestamp: "2024-05-01T12:00:00Z",
		Fields:    map[string]any{"Voltage_A_N": 231.4},
	}))

	latest, err := repos.Reading.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, 231.4, latest.Fields["Voltage_A_N"])

	rules, err := repos.Alarm.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, rules)
}

func TestInitializeUnknownDriver(t *testing.T) {
	_, err := Initialize(config.DatabaseConfig{Driver: "oracle", MaxConnections: 1})
	assert.Error(t, err)
}
