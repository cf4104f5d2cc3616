package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/frostdev-ops/meterdash/internal/config"
	"github.com/frostdev-ops/meterdash/internal/core/analytics/historical"
	"github.com/frostdev-ops/meterdash/internal/core/metrics"
	"github.com/frostdev-ops/meterdash/internal/core/monitor"
	"github.com/frostdev-ops/meterdash/internal/database"
	"github.com/frostdev-ops/meterdash/internal/database/repositories"
	"github.com/frostdev-ops/meterdash/internal/websocket"
	apperrors "github.com/frostdev-ops/meterdash/pkg/errors"
	"github.com/frostdev-ops/meterdash/pkg/utils"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// PollerStatus exposes the live poller's state.
type PollerStatus interface {
	Status() monitor.Status
}

// HostStatsSource reports resource usage of the host.
type HostStatsSource interface {
	Stats(ctx context.Context) *monitor.HostStats
}

// Handlers holds all HTTP handlers and their dependencies
type Handlers struct {
	cfg        *config.Config
	repos      *database.Repositories
	historical *historical.Service
	wsHub      *websocket.Hub
	poller     PollerStatus
	health     *metrics.HealthChecker
	host       HostStatsSource
	log        *logrus.Logger
}

// NewHandlers creates a new handlers instance. poller may be nil when live
// polling is disabled.
func NewHandlers(cfg *config.Config, repos *database.Repositories, wsHub *websocket.Hub, poller PollerStatus, health *metrics.HealthChecker, logger *logrus.Logger) *Handlers {
	return NewHandlersWithHost(cfg, repos, wsHub, poller, health, nil, logger)
}

// NewHandlersWithHost also serves host resource statistics from host.
func NewHandlersWithHost(cfg *config.Config, repos *database.Repositories, wsHub *websocket.Hub, poller PollerStatus, health *metrics.HealthChecker, host HostStatsSource, logger *logrus.Logger) *Handlers {
	svc := historical.NewService(repos.Reading, historical.Config{
		CoerceTextValues: cfg.Analytics.CoerceTextValues,
		SQLMonthlyRollup: cfg.Analytics.SQLMonthlyRollup,
		MaxRange:         cfg.Analytics.MaxRange,
	}, logger)

	if health == nil {
		health = metrics.NewHealthChecker(0)
	}

	return &Handlers{
		cfg:        cfg,
		repos:      repos,
		historical: svc,
		wsHub:      wsHub,
		poller:     poller,
		health:     health,
		host:       host,
		log:        logger,
	}
}

// queryContext bounds a request's store access by database.query_timeout.
func (h *Handlers) queryContext(c *gin.Context) (context.Context, context.CancelFunc) {
	if h.cfg.Database.QueryTimeout > 0 {
		return context.WithTimeout(c.Request.Context(), h.cfg.Database.QueryTimeout)
	}
	return context.WithCancel(c.Request.Context())
}

// sendError maps err onto a status code. Application errors carry their own
// code and message; anything else is logged and answered with 500.
func (h *Handlers) sendError(c *gin.Context, err error) {
	var appErr *apperrors.AppError
	switch {
	case errors.As(err, &appErr):
		message := appErr.Message
		if appErr.Details != "" {
			message = appErr.Details
		}
		utils.SendError(c, appErr.Code, message)
	case errors.Is(err, repositories.ErrNotFound):
		utils.SendError(c, http.StatusNotFound, "No readings available")
	case errors.Is(err, context.DeadlineExceeded):
		h.log.WithError(err).WithField("path", c.Request.URL.Path).Warn("Request timed out")
		utils.SendError(c, http.StatusGatewayTimeout, "Query timed out")
	default:
		h.log.WithError(err).WithField("path", c.Request.URL.Path).Error("Request failed")
		utils.SendError(c, http.StatusInternalServerError, "Server Error")
	}
}
