package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/frostdev-ops/meterdash/internal/api"
	"github.com/frostdev-ops/meterdash/internal/config"
	"github.com/frostdev-ops/meterdash/internal/core/alarms"
	"github.com/frostdev-ops/meterdash/internal/core/metrics"
	"github.com/frostdev-ops/meterdash/internal/core/monitor"
	"github.com/frostdev-ops/meterdash/internal/database"
	"github.com/frostdev-ops/meterdash/internal/publish"
	"github.com/frostdev-ops/meterdash/internal/websocket"
	"github.com/frostdev-ops/meterdash/pkg/logger"
	"github.com/frostdev-ops/meterdash/pkg/version"
	"github.com/jmoiron/sqlx"
	"github.com/klauspost/compress/gzhttp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

func main() {
	configFile := flag.String("config", "", "path to a config file (default: ./configs/config.yaml or ./config.yaml)")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadFrom(viper.New(), *configFile)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}

	// Initialize logger
	log := logger.New(logger.Options{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		BatchSize: cfg.Logging.BatchSize,
	})
	log.WithFields(logrus.Fields{
		"version": version.GetFullVersion(),
		"driver":  cfg.Database.Driver,
	}).Info("Starting meterdash")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	var collector metrics.MetricsCollector = metrics.Noop{}
	if cfg.Metrics.Enabled {
		collector = metrics.NewPrometheusCollectorWith(registry, &metrics.MetricsConfig{
			Enabled: true,
			Prefix:  cfg.Metrics.Prefix,
		})
	}

	// Initialize database
	db, err := database.Initialize(cfg.Database)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize database")
	}
	defer db.Close()

	// Run migrations
	if cfg.Database.Migration.AutoMigrate {
		if err := database.Migrate(db, cfg.Database.MigrationsPath, log.Logger); err != nil {
			log.WithError(err).Fatal("Failed to run migrations")
		}
	}

	repos := database.NewRepositories(db, collector)

	if cfg.Alarms.SeedFile != "" {
		if err := seedAlarms(ctx, repos, cfg.Alarms.SeedFile, log.Logger); err != nil {
			log.WithError(err).Warn("Failed to seed alarm settings")
		}
	}

	// Create WebSocket hub
	wsHub := websocket.NewHub(log.Logger, collector, websocket.Options{
		PingInterval:   time.Duration(cfg.WebSocket.PingInterval) * time.Second,
		PongTimeout:    time.Duration(cfg.WebSocket.PongTimeout) * time.Second,
		WriteTimeout:   time.Duration(cfg.WebSocket.WriteTimeout) * time.Second,
		MaxMessageSize: int64(cfg.WebSocket.MaxMessageSize),
		SendBufferSize: cfg.WebSocket.SendBufferSize,
		AllowedOrigins: cfg.Security.AllowedOrigins,
	})
	go wsHub.Run(ctx)

	health := metrics.NewHealthChecker(2 * time.Second)
	health.Register("database", databaseCheck(db))

	dataDir := "."
	if cfg.Database.Driver == database.DriverSQLite && cfg.Database.Path != ":memory:" {
		dataDir = filepath.Dir(cfg.Database.Path)
	}
	hostMonitor := monitor.NewHostMonitor(dataDir, monitor.DefaultHostThresholds(), log.Logger)
	health.Register("host", hostMonitor.Health)

	// Optional sinks
	var pollerOpts []monitor.Option
	pollerOpts = append(pollerOpts, monitor.WithMetrics(collector))

	if cfg.Kafka.Enabled {
		sink, err := publish.NewKafkaAlarmSink(cfg.Kafka, log.Logger)
		if err != nil {
			log.WithError(err).Fatal("Failed to create Kafka alarm sink")
		}
		defer sink.Close()
		pollerOpts = append(pollerOpts, monitor.WithSink(sink))
	}

	if cfg.MQTT.Enabled {
		mirror, err := publish.NewMQTTReadingMirror(cfg.MQTT, log.Logger)
		if err != nil {
			log.WithError(err).Fatal("Failed to connect MQTT reading mirror")
		}
		defer mirror.Close()
		pollerOpts = append(pollerOpts, monitor.WithMirror(mirror))
		health.Register("mqtt", func(context.Context) metrics.HealthStatus {
			if mirror.Connected() {
				return metrics.NewHealthStatus("healthy", "connected")
			}
			return metrics.NewHealthStatus("degraded", "reconnecting")
		})
	}

	deps := api.Dependencies{
		Health:    health,
		Collector: collector,
		Gatherer:  registry,
		Host:      hostMonitor,
	}

	// Live poll loop
	var poller *monitor.Poller
	if cfg.Poller.Enabled {
		poller = monitor.NewPoller(monitor.Config{
			Interval:         cfg.Poller.Interval,
			Timeout:          cfg.Poller.Timeout,
			CoerceTextValues: cfg.Analytics.CoerceTextValues,
			SinkFailures:     cfg.Poller.SinkFailures,
			SinkCooldown:     cfg.Poller.SinkCooldown,
			PublishTimeout:   cfg.Poller.PublishTimeout,
		}, repos.Reading, repos.Alarm, wsHub, log.Logger, pollerOpts...)

		if err := poller.Start(); err != nil {
			log.WithError(err).Fatal("Failed to start poller")
		}
		health.Register("poller", poller.Health)
		deps.Poller = poller
	}

	router := api.NewRouter(ctx, cfg, repos, log, wsHub, deps)

	var handler http.Handler = router
	if cfg.Server.Compression {
		handler = gzhttp.GzipHandler(router)
	}

	// Create HTTP server
	srv := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      cfg.Database.QueryTimeout + 15*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Start server
	serverErr := make(chan error, 1)
	go func() {
		log.WithField("addr", srv.Addr).Info("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("Shutting down server...")
	case err := <-serverErr:
		log.WithError(err).Error("HTTP server failed")
	}

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if poller != nil {
		if err := poller.Stop(shutdownCtx); err != nil {
			log.WithError(err).Warn("Poller did not stop cleanly")
		}
	}

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("Server forced to shutdown")
	}

	stop()
	log.FlushPending()
	log.Info("Server exited")
}

// seedAlarms loads rules from path when no rules are stored yet.
func seedAlarms(ctx context.Context, repos *database.Repositories, path string, log *logrus.Logger) error {
	existing, err := repos.Alarm.List(ctx)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}

	rules, err := alarms.LoadRules(path)
	if err != nil {
		return err
	}
	valid := alarms.Filter(rules)
	if err := repos.Alarm.Replace(ctx, valid); err != nil {
		return err
	}

	log.WithFields(logrus.Fields{
		"file":  path,
		"rules": len(valid),
	}).Info("Seeded alarm settings")
	return nil
}

func databaseCheck(db *sqlx.DB) metrics.HealthCheck {
	return func(ctx context.Context) metrics.HealthStatus {
		if err := db.PingContext(ctx); err != nil {
			return metrics.NewHealthStatus("unhealthy", err.Error())
		}
		stats := db.Stats()
		return metrics.NewHealthStatus("healthy", "connected").
			WithDetail("driver", db.DriverName()).
			WithDetail("open_connections", stats.OpenConnections).
			WithDetail("in_use", stats.InUse)
	}
}
