package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/frostdev-ops/meterdash/internal/config"
	"github.com/frostdev-ops/meterdash/internal/database"
	"github.com/golang-migrate/migrate/v4"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

const usage = `Usage: migrate [-config file] [-path dir] <command>

Commands:
  up          apply all pending migrations
  down        roll back every migration
  steps N     apply (N>0) or roll back (N<0) N migrations
  version     print the current schema version`

func main() {
	configFile := flag.String("config", "", "path to a config file")
	migrationsPath := flag.String("path", "", "migrations directory (default: database.migrations_path)")
	flag.Usage = func() { fmt.Fprintln(os.Stderr, usage) }
	flag.Parse()

	log := logrus.New()

	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.LoadFrom(viper.New(), *configFile)
	if err != nil {
		log.WithError(err).Fatal("Failed to load configuration")
	}
	if *migrationsPath != "" {
		cfg.Database.MigrationsPath = *migrationsPath
	}

	db, err := database.Initialize(cfg.Database)
	if err != nil {
		log.WithError(err).Fatal("Failed to open database")
	}
	defer db.Close()

	m, err := database.NewMigrator(db, cfg.Database.MigrationsPath)
	if err != nil {
		log.WithError(err).Fatal("Failed to create migrate instance")
	}

	entry := log.WithFields(logrus.Fields{
		"driver": db.DriverName(),
		"path":   cfg.Database.MigrationsPath,
	})

	switch cmd := flag.Arg(0); cmd {
	case "up":
		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			entry.WithError(err).Fatal("An error occurred while migrating up")
		}
		entry.Info("Migrations applied successfully")
	case "down":
		if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			entry.WithError(err).Fatal("An error occurred while migrating down")
		}
		entry.Info("Migrations rolled back successfully")
	case "steps":
		n, err := strconv.Atoi(flag.Arg(1))
		if err != nil || n == 0 {
			entry.Fatal("steps needs a non-zero integer argument")
		}
		if err := m.Steps(n); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			entry.WithError(err).Fatal("An error occurred while stepping migrations")
		}
		entry.WithField("steps", n).Info("Migrations stepped successfully")
	case "version":
		v, dirty, err := m.Version()
		if errors.Is(err, migrate.ErrNilVersion) {
			entry.Info("No migrations applied")
			return
		}
		if err != nil {
			entry.WithError(err).Fatal("Failed to read schema version")
		}
		entry.WithFields(logrus.Fields{"version": v, "dirty": dirty}).Info("Current schema version")
	default:
		entry.WithField("command", cmd).Error("Unknown command")
		flag.Usage()
		os.Exit(2)
	}
}
