package handlers

import (
	"net/http"

	"github.com/frostdev-ops/meterdash/pkg/utils"
	"github.com/frostdev-ops/meterdash/pkg/version"
	"github.com/gin-gonic/gin"
)

// Health runs the registered checks. Unhealthy answers 503 so load
// balancers take the instance out.
func (h *Handlers) Health(c *gin.Context) {
	report := h.health.Report(c.Request.Context())

	body := gin.H{
		"status":     report.Status,
		"message":    report.Message,
		"service":    version.Service,
		"version":    version.GetVersion(),
		"timestamp":  report.Timestamp,
		"uptime":     report.Uptime,
		"components": report.Components,
	}
	if h.poller != nil {
		body["poller"] = h.poller.Status()
	}

	code := http.StatusOK
	if report.Status == "unhealthy" {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, body)
}

// Version returns build information.
func (h *Handlers) Version(c *gin.Context) {
	utils.SendSuccess(c, version.GetBuildInfo())
}

// GetSystem returns host resource usage for the reading store.
func (h *Handlers) GetSystem(c *gin.Context) {
	if h.host == nil {
		utils.SendError(c, http.StatusNotFound, "Host statistics are disabled")
		return
	}
	utils.SendSuccess(c, h.host.Stats(c.Request.Context()))
}
