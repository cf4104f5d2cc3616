package api

import (
	"context"
	"net/http"
	"time"

	"github.com/frostdev-ops/meterdash/internal/api/handlers"
	"github.com/frostdev-ops/meterdash/internal/api/middleware"
	"github.com/frostdev-ops/meterdash/internal/config"
	"github.com/frostdev-ops/meterdash/internal/core/metrics"
	"github.com/frostdev-ops/meterdash/internal/database"
	"github.com/frostdev-ops/meterdash/internal/websocket"
	"github.com/frostdev-ops/meterdash/pkg/logger"
	"github.com/frostdev-ops/meterdash/pkg/utils"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Dependencies are the optional collaborators of the router. Nil fields
// disable what they back.
type Dependencies struct {
	Poller    handlers.PollerStatus
	Health    *metrics.HealthChecker
	Collector metrics.MetricsCollector
	Host      handlers.HostStatsSource
	// Gatherer serves /metrics when metrics are enabled.
	Gatherer prometheus.Gatherer
}

// NewRouter creates and configures the main HTTP router. ctx bounds
// background work such as rate limiter cleanup.
func NewRouter(ctx context.Context, cfg *config.Config, repos *database.Repositories, log *logger.BatchLogger, wsHub *websocket.Hub, deps Dependencies) *gin.Engine {
	// Set gin mode based on config
	switch cfg.Server.Mode {
	case "production":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	router := gin.New()
	router.HandleMethodNotAllowed = true

	// Global middleware
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.ErrorHandlingMiddleware(log.Logger))
	router.Use(middleware.LoggingMiddleware(log))
	if deps.Collector != nil {
		router.Use(middleware.MetricsMiddleware(deps.Collector))
	}
	if cfg.Security.EnableCORS {
		router.Use(middleware.CORSMiddleware(cfg.Security.AllowedOrigins))
	}
	if cfg.Security.RateLimitRPS > 0 {
		rateLimiter := middleware.NewRateLimiter(cfg.Security.RateLimitRPS, cfg.Security.RateLimitBurst)
		go rateLimiter.Cleanup(ctx, time.Minute)
		router.Use(rateLimiter.RateLimitMiddleware())
	}

	h := handlers.NewHandlersWithHost(cfg, repos, wsHub, deps.Poller, deps.Health, deps.Host, log.Logger)

	// Public routes
	router.GET("/health", h.Health)
	router.GET("/version", h.Version)
	router.GET("/ws", h.WebSocketHandler())

	if cfg.Metrics.Enabled && deps.Gatherer != nil {
		path := cfg.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		router.GET(path, gin.WrapH(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}

	api := router.Group("/api")
	{
		api.GET("/latest", h.GetLatest)
		api.GET("/fields", h.GetFields)
		api.GET("/gauges", h.GetGauges)
		api.POST("/readings", h.IngestReading)

		historical := api.Group("/historical")
		{
			historical.GET("", h.GetHistorical)
			historical.GET("/summary", h.GetHistoricalSummary)
			historical.GET("/chart", h.GetHistoricalChart)
			historical.GET("/export", h.ExportHistorical)
		}

		api.GET("/alarms", h.GetAlarms)
		api.POST("/alarms", h.SetAlarms)

		api.GET("/websocket/stats", h.GetWebSocketStats)
		api.GET("/system", h.GetSystem)
	}

	router.NoRoute(func(c *gin.Context) {
		utils.SendError(c, http.StatusNotFound, "Endpoint not found")
	})
	router.NoMethod(func(c *gin.Context) {
		utils.SendError(c, http.StatusMethodNotAllowed, "Method not allowed")
	})

	return router
}
